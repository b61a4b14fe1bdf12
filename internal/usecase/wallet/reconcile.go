package wallet

import (
	"context"
	"errors"
	"fmt"

	"escrow-service/internal/domain"
	"escrow-service/internal/metrics"
	"escrow-service/internal/repository"
	xerrors "escrow-service/shared/utils/errors"

	"go.uber.org/zap"
)

// Reconcile recomputes the wallet's buckets from its ledger under the wallet
// lock. A mismatch is reported as ErrInvariantViolation and never corrected.
func (s *Service) Reconcile(ctx context.Context, walletID string) (*domain.ReconcileReport, error) {
	var report *domain.ReconcileReport
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		ws, err := tx.Wallets().LockForUpdate(ctx, walletID)
		if err != nil {
			return err
		}
		sums, err := tx.Ledger().SumByWallet(ctx, walletID)
		if err != nil {
			return err
		}
		w := ws[walletID]
		report = &domain.ReconcileReport{
			WalletID:  walletID,
			Wallet:    w,
			Ledger:    sums,
			Balanced:  sums.AvailableCents == w.AvailableCents && sums.PendingCents == w.PendingCents,
			CheckedAt: s.now(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !report.Balanced {
		metrics.ReconcileMismatches.Inc()
		s.logger.Error("wallet ledger mismatch",
			zap.String("wallet_id", walletID),
			zap.Int64("wallet_available", report.Wallet.AvailableCents),
			zap.Int64("wallet_pending", report.Wallet.PendingCents),
			zap.Int64("ledger_available", report.Ledger.AvailableCents),
			zap.Int64("ledger_pending", report.Ledger.PendingCents))
		return report, fmt.Errorf("wallet %s does not match its ledger: %w", walletID, xerrors.ErrInvariantViolation)
	}
	return report, nil
}

// ReconcileAll checks every wallet and returns the ids that did not balance.
// Wallets busy under a lock are skipped and retried on the next sweep.
func (s *Service) ReconcileAll(ctx context.Context) (checked int, mismatched []string, err error) {
	var ids []string
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		ids, err = tx.Wallets().ListIDs(ctx)
		return err
	})
	if err != nil {
		return 0, nil, err
	}

	for _, wid := range ids {
		if ctx.Err() != nil {
			return checked, mismatched, ctx.Err()
		}
		_, rerr := s.Reconcile(ctx, wid)
		switch {
		case rerr == nil:
			checked++
		case errors.Is(rerr, xerrors.ErrInvariantViolation):
			checked++
			mismatched = append(mismatched, wid)
		case errors.Is(rerr, xerrors.ErrBusy):
			s.logger.Warn("wallet busy during reconciliation", zap.String("wallet_id", wid))
		default:
			return checked, mismatched, rerr
		}
	}
	metrics.ReconcileRuns.Inc()
	return checked, mismatched, nil
}
