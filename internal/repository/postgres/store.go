package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"escrow-service/internal/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schema string

type Store struct {
	db          *pgxpool.Pool
	lockTimeout time.Duration
	logger      *zap.Logger
}

func NewStore(db *pgxpool.Pool, lockTimeout time.Duration, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, lockTimeout: lockTimeout, logger: logger}
}

var _ repository.Store = (*Store)(nil)

// Migrate applies the embedded schema. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Close() {
	s.db.Close()
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return classify(err, "begin transaction")
	}
	defer tx.Rollback(context.WithoutCancel(ctx))

	if s.lockTimeout > 0 {
		// SET does not take bind parameters
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return classify(err, "set lock timeout")
		}
	}

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}

	// commit is not cancellable once started
	if err := tx.Commit(context.WithoutCancel(ctx)); err != nil {
		s.logger.Warn("commit failed", zap.Error(err))
		return classify(err, "commit")
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Escrows() repository.EscrowRepository { return &escrowRepo{tx: t.tx} }
func (t *pgTx) Wallets() repository.WalletRepository { return &walletRepo{tx: t.tx} }
func (t *pgTx) Ledger() repository.LedgerRepository { return &ledgerRepo{tx: t.tx} }
func (t *pgTx) Milestones() repository.MilestoneRepository { return &milestoneRepo{tx: t.tx} }
func (t *pgTx) Disputes() repository.DisputeRepository { return &disputeRepo{tx: t.tx} }
func (t *pgTx) Transitions() repository.TransitionRepository { return &transitionRepo{tx: t.tx} }
