package postgres

import (
	"context"

	"escrow-service/internal/domain"

	"github.com/jackc/pgx/v5"
)

type transitionRepo struct {
	tx pgx.Tx
}

func (r *transitionRepo) Append(ctx context.Context, t *domain.EscrowTransition) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO escrow_transitions
			(id, escrow_id, event, from_status, to_status, actor_id, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, t.ID, t.EscrowID, t.Event, t.FromStatus, t.ToStatus, t.ActorID, t.IdempotencyKey, t.CreatedAt)
	return classify(err, "append transition")
}

const transitionColumns = `id, escrow_id, event, from_status, to_status, actor_id, idempotency_key, created_at`

func scanTransition(row pgx.Row) (*domain.EscrowTransition, error) {
	var t domain.EscrowTransition
	if err := row.Scan(&t.ID, &t.EscrowID, &t.Event, &t.FromStatus, &t.ToStatus, &t.ActorID, &t.IdempotencyKey, &t.CreatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *transitionRepo) FindByKey(ctx context.Context, actorID, key string) (*domain.EscrowTransition, error) {
	t, err := scanTransition(r.tx.QueryRow(ctx, `
		SELECT `+transitionColumns+`
		FROM escrow_transitions
		WHERE actor_id = $1 AND idempotency_key = $2
	`, actorID, key))
	if err != nil {
		return nil, classify(err, "transition with key "+key)
	}
	return t, nil
}

func (r *transitionRepo) ListByEscrow(ctx context.Context, escrowID string) ([]*domain.EscrowTransition, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+transitionColumns+` FROM escrow_transitions WHERE escrow_id = $1 ORDER BY created_at, id`, escrowID)
	if err != nil {
		return nil, classify(err, "list transitions")
	}
	defer rows.Close()

	var out []*domain.EscrowTransition
	for rows.Next() {
		t, err := scanTransition(rows)
		if err != nil {
			return nil, classify(err, "scan transition")
		}
		out = append(out, t)
	}
	return out, classify(rows.Err(), "list transitions")
}
