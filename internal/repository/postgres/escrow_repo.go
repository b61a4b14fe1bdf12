package postgres

import (
	"context"
	"fmt"
	"strings"

	"escrow-service/internal/domain"
	"escrow-service/internal/repository"

	"github.com/jackc/pgx/v5"
)

type escrowRepo struct {
	tx pgx.Tx
}

const escrowColumns = `
	id, buyer_id, seller_id, amount_cents, currency, fee_cents, net_amount_cents,
	status, description, tracking_number, carrier, refund_reason,
	settled_cents, settled_fee_cents, version,
	created_at, updated_at, funded_at, shipped_at, delivered_at, disputed_at,
	released_at, refunded_at, cancelled_at`

func scanEscrow(row pgx.Row) (*domain.EscrowAgreement, error) {
	var e domain.EscrowAgreement
	err := row.Scan(
		&e.ID, &e.BuyerID, &e.SellerID, &e.AmountCents, &e.Currency, &e.FeeCents, &e.NetAmountCents,
		&e.Status, &e.Description, &e.TrackingNumber, &e.Carrier, &e.RefundReason,
		&e.SettledCents, &e.SettledFeeCents, &e.Version,
		&e.CreatedAt, &e.UpdatedAt, &e.FundedAt, &e.ShippedAt, &e.DeliveredAt, &e.DisputedAt,
		&e.ReleasedAt, &e.RefundedAt, &e.CancelledAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *escrowRepo) Create(ctx context.Context, e *domain.EscrowAgreement) error {
	query := `
		INSERT INTO escrow_agreements (` + escrowColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		        $16, $17, $18, $19, $20, $21, $22, $23, $24)
	`
	_, err := r.tx.Exec(ctx, query,
		e.ID, e.BuyerID, e.SellerID, e.AmountCents, e.Currency, e.FeeCents, e.NetAmountCents,
		e.Status, e.Description, e.TrackingNumber, e.Carrier, e.RefundReason,
		e.SettledCents, e.SettledFeeCents, e.Version,
		e.CreatedAt, e.UpdatedAt, e.FundedAt, e.ShippedAt, e.DeliveredAt, e.DisputedAt,
		e.ReleasedAt, e.RefundedAt, e.CancelledAt,
	)
	return classify(err, "create escrow")
}

func (r *escrowRepo) Get(ctx context.Context, id string) (*domain.EscrowAgreement, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrow_agreements WHERE id = $1`
	e, err := scanEscrow(r.tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, classify(err, "escrow "+id)
	}
	return e, nil
}

// GetForUpdate fetches the agreement with a row lock (SELECT FOR UPDATE).
// lock_timeout bounds the wait.
func (r *escrowRepo) GetForUpdate(ctx context.Context, id string) (*domain.EscrowAgreement, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrow_agreements WHERE id = $1 FOR UPDATE`
	e, err := scanEscrow(r.tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, classify(err, "lock escrow "+id)
	}
	return e, nil
}

func (r *escrowRepo) Update(ctx context.Context, e *domain.EscrowAgreement) error {
	query := `
		UPDATE escrow_agreements SET
			status = $2, tracking_number = $3, carrier = $4, refund_reason = $5,
			settled_cents = $6, settled_fee_cents = $7, version = $8, updated_at = $9,
			funded_at = $10, shipped_at = $11, delivered_at = $12, disputed_at = $13,
			released_at = $14, refunded_at = $15, cancelled_at = $16
		WHERE id = $1
	`
	tag, err := r.tx.Exec(ctx, query,
		e.ID, e.Status, e.TrackingNumber, e.Carrier, e.RefundReason,
		e.SettledCents, e.SettledFeeCents, e.Version, e.UpdatedAt,
		e.FundedAt, e.ShippedAt, e.DeliveredAt, e.DisputedAt,
		e.ReleasedAt, e.RefundedAt, e.CancelledAt,
	)
	if err != nil {
		return classify(err, "update escrow")
	}
	if tag.RowsAffected() == 0 {
		return classify(pgx.ErrNoRows, "escrow "+e.ID)
	}
	return nil
}

func (r *escrowRepo) List(ctx context.Context, f domain.EscrowFilter) ([]*domain.EscrowAgreement, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.ParticipantID != "" {
		args = append(args, f.ParticipantID)
		n := len(args)
		switch f.Role {
		case string(domain.PartyBuyer):
			where = append(where, fmt.Sprintf("buyer_id = $%d", n))
		case string(domain.PartySeller):
			where = append(where, fmt.Sprintf("seller_id = $%d", n))
		default:
			where = append(where, fmt.Sprintf("(buyer_id = $%d OR seller_id = $%d)", n, n))
		}
	}
	if f.Currency != "" {
		args = append(args, f.Currency)
		where = append(where, fmt.Sprintf("currency = $%d", len(args)))
	}
	if f.MinAmountCents > 0 {
		args = append(args, f.MinAmountCents)
		where = append(where, fmt.Sprintf("amount_cents >= $%d", len(args)))
	}
	if f.MaxAmountCents > 0 {
		args = append(args, f.MaxAmountCents)
		where = append(where, fmt.Sprintf("amount_cents <= $%d", len(args)))
	}
	if !f.CreatedFrom.IsZero() {
		args = append(args, f.CreatedFrom)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !f.CreatedTo.IsZero() {
		args = append(args, f.CreatedTo)
		where = append(where, fmt.Sprintf("created_at < $%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, f.Search)
		n := len(args)
		where = append(where, fmt.Sprintf("(id = $%d OR strpos(lower(description), lower($%d)) > 0)", n, n))
	}

	query := `SELECT ` + escrowColumns + ` FROM escrow_agreements`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, repository.ClampLimit(f.Limit), offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(err, "list escrows")
	}
	defer rows.Close()

	var out []*domain.EscrowAgreement
	for rows.Next() {
		e, err := scanEscrow(rows)
		if err != nil {
			return nil, classify(err, "scan escrow")
		}
		out = append(out, e)
	}
	return out, classify(rows.Err(), "list escrows")
}
