package postgres

import (
	"context"

	"escrow-service/internal/domain"

	"github.com/jackc/pgx/v5"
)

type milestoneRepo struct {
	tx pgx.Tx
}

func (r *milestoneRepo) CreateBatch(ctx context.Context, ms []*domain.Milestone) error {
	batch := &pgx.Batch{}
	for _, m := range ms {
		batch.Queue(`
			INSERT INTO escrow_milestones
				(id, escrow_id, name, description, amount_cents, fee_cents, position, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, m.ID, m.EscrowID, m.Name, m.Description, m.AmountCents, m.FeeCents, m.Position, m.Status, m.CreatedAt, m.UpdatedAt)
	}
	return classify(r.tx.SendBatch(ctx, batch).Close(), "create milestones")
}

func (r *milestoneRepo) ListByEscrow(ctx context.Context, escrowID string) ([]*domain.Milestone, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT id, escrow_id, name, description, amount_cents, fee_cents, position, status,
		       completed_at, released_at, created_at, updated_at
		FROM escrow_milestones
		WHERE escrow_id = $1
		ORDER BY position
	`, escrowID)
	if err != nil {
		return nil, classify(err, "list milestones")
	}
	defer rows.Close()

	var out []*domain.Milestone
	for rows.Next() {
		var m domain.Milestone
		if err := rows.Scan(&m.ID, &m.EscrowID, &m.Name, &m.Description, &m.AmountCents, &m.FeeCents, &m.Position, &m.Status,
			&m.CompletedAt, &m.ReleasedAt, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, classify(err, "scan milestone")
		}
		out = append(out, &m)
	}
	return out, classify(rows.Err(), "list milestones")
}

func (r *milestoneRepo) Update(ctx context.Context, m *domain.Milestone) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE escrow_milestones
		SET status = $2, completed_at = $3, released_at = $4, updated_at = $5
		WHERE id = $1
	`, m.ID, m.Status, m.CompletedAt, m.ReleasedAt, m.UpdatedAt)
	if err != nil {
		return classify(err, "update milestone")
	}
	if tag.RowsAffected() == 0 {
		return classify(pgx.ErrNoRows, "milestone "+m.ID)
	}
	return nil
}
