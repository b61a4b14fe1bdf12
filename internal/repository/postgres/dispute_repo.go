package postgres

import (
	"context"

	"escrow-service/internal/domain"

	"github.com/jackc/pgx/v5"
)

type disputeRepo struct {
	tx pgx.Tx
}

// Create relies on the partial unique index uq_dispute_open for the
// one-open-dispute rule.
func (r *disputeRepo) Create(ctx context.Context, d *domain.Dispute) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO escrow_disputes
			(id, escrow_id, initiator_id, reason, description, status, prior_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, d.ID, d.EscrowID, d.InitiatorID, d.Reason, d.Description, d.Status, d.PriorStatus, d.CreatedAt)
	return classify(err, "create dispute")
}

func (r *disputeRepo) GetLatestByEscrow(ctx context.Context, escrowID string) (*domain.Dispute, error) {
	var d domain.Dispute
	err := r.tx.QueryRow(ctx, `
		SELECT id, escrow_id, initiator_id, reason, description, status, prior_status,
		       outcome, buyer_refund_cents, resolved_by, resolution_note, created_at, resolved_at
		FROM escrow_disputes
		WHERE escrow_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, escrowID).Scan(&d.ID, &d.EscrowID, &d.InitiatorID, &d.Reason, &d.Description, &d.Status, &d.PriorStatus,
		&d.Outcome, &d.BuyerRefundCents, &d.ResolvedBy, &d.ResolutionNote, &d.CreatedAt, &d.ResolvedAt)
	if err != nil {
		return nil, classify(err, "dispute for escrow "+escrowID)
	}
	return &d, nil
}

func (r *disputeRepo) Update(ctx context.Context, d *domain.Dispute) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE escrow_disputes
		SET status = $2, outcome = $3, buyer_refund_cents = $4, resolved_by = $5,
		    resolution_note = $6, resolved_at = $7
		WHERE id = $1
	`, d.ID, d.Status, d.Outcome, d.BuyerRefundCents, d.ResolvedBy, d.ResolutionNote, d.ResolvedAt)
	if err != nil {
		return classify(err, "update dispute")
	}
	if tag.RowsAffected() == 0 {
		return classify(pgx.ErrNoRows, "dispute "+d.ID)
	}
	return nil
}
