package postgres

import (
	"context"

	"escrow-service/internal/domain"
	"escrow-service/internal/repository"

	"github.com/jackc/pgx/v5"
)

type ledgerRepo struct {
	tx pgx.Tx
}

func (r *ledgerRepo) Append(ctx context.Context, entries ...*domain.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`
			INSERT INTO ledger_entries (id, wallet_id, bucket, delta_cents, reason, related_escrow_id, reference, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, e.ID, e.WalletID, e.Bucket, e.DeltaCents, e.Reason, e.RelatedEscrowID, e.Reference, e.CreatedAt)
	}
	return classify(r.tx.SendBatch(ctx, batch).Close(), "append ledger")
}

func (r *ledgerRepo) SumByWallet(ctx context.Context, walletID string) (domain.LedgerSums, error) {
	var sums domain.LedgerSums
	err := r.tx.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(delta_cents) FILTER (WHERE bucket = 'AVAILABLE'), 0),
			COALESCE(SUM(delta_cents) FILTER (WHERE bucket = 'PENDING'), 0),
			COALESCE(SUM(delta_cents) FILTER (WHERE reason IN ('DEPOSIT', 'WITHDRAWAL')), 0)
		FROM ledger_entries
		WHERE wallet_id = $1
	`, walletID).Scan(&sums.AvailableCents, &sums.PendingCents, &sums.ExternalCents)
	return sums, classify(err, "sum ledger")
}

func (r *ledgerRepo) ListByWallet(ctx context.Context, walletID string, limit, offset int) ([]*domain.LedgerEntry, error) {
	if offset < 0 {
		offset = 0
	}
	rows, err := r.tx.Query(ctx, `
		SELECT id, wallet_id, bucket, delta_cents, reason, related_escrow_id, reference, created_at
		FROM ledger_entries
		WHERE wallet_id = $1
		ORDER BY seq DESC
		LIMIT $2 OFFSET $3
	`, walletID, repository.ClampLimit(limit), offset)
	if err != nil {
		return nil, classify(err, "list ledger")
	}
	defer rows.Close()

	var out []*domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.ID, &e.WalletID, &e.Bucket, &e.DeltaCents, &e.Reason, &e.RelatedEscrowID, &e.Reference, &e.CreatedAt); err != nil {
			return nil, classify(err, "scan ledger")
		}
		out = append(out, &e)
	}
	return out, classify(rows.Err(), "list ledger")
}
