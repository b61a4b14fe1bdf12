package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// WalletReconciler is the part of the wallet manager the sweep needs.
type WalletReconciler interface {
	ReconcileAll(ctx context.Context) (checked int, mismatched []string, err error)
}

// ================================
// RECONCILIATION WORKER
// ================================

// Reconciler runs a full ledger sweep on a cron schedule. Overlapping runs
// are skipped rather than queued.
type Reconciler struct {
	wallets  WalletReconciler
	cron     *cron.Cron
	schedule string
	timeout  time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
}

func NewReconciler(wallets WalletReconciler, schedule string, timeout time.Duration, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Reconciler{
		wallets:  wallets,
		cron:     cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
		schedule: schedule,
		timeout:  timeout,
		logger:   logger,
	}
}

// Run schedules the sweep and blocks until ctx is done.
func (r *Reconciler) Run(ctx context.Context) error {
	if _, err := r.cron.AddFunc(r.schedule, func() { r.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("schedule reconciliation %q: %w", r.schedule, err)
	}
	r.logger.Info("reconciliation worker started", zap.String("schedule", r.schedule))
	r.cron.Start()

	<-ctx.Done()
	stopped := r.cron.Stop()
	<-stopped.Done()
	r.logger.Info("reconciliation worker stopped")
	return nil
}

// RunOnce performs one sweep. It reports whether a sweep actually ran.
func (r *Reconciler) RunOnce(ctx context.Context) bool {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		r.logger.Warn("reconciliation still running, skipping tick")
		return false
	}
	r.running = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	checked, mismatched, err := r.wallets.ReconcileAll(ctx)
	if err != nil {
		r.logger.Error("reconciliation sweep failed", zap.Int("checked", checked), zap.Error(err))
		return true
	}
	if len(mismatched) > 0 {
		r.logger.Error("reconciliation found mismatched wallets",
			zap.Int("checked", checked),
			zap.Strings("wallet_ids", mismatched))
		return true
	}
	r.logger.Info("reconciliation sweep completed",
		zap.Int("checked", checked),
		zap.Duration("duration", time.Since(start)))
	return true
}
