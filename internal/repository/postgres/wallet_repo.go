package postgres

import (
	"context"

	"escrow-service/internal/domain"
	"escrow-service/internal/repository"

	"github.com/jackc/pgx/v5"
)

type walletRepo struct {
	tx pgx.Tx
}

const walletColumns = `id, owner_id, currency, available_cents, pending_cents, version, created_at, updated_at`

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	var w domain.Wallet
	if err := row.Scan(&w.ID, &w.OwnerID, &w.Currency, &w.AvailableCents, &w.PendingCents, &w.Version, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *walletRepo) Create(ctx context.Context, w *domain.Wallet) error {
	query := `
		INSERT INTO wallets (` + walletColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.tx.Exec(ctx, query, w.ID, w.OwnerID, w.Currency, w.AvailableCents, w.PendingCents, w.Version, w.CreatedAt, w.UpdatedAt)
	return classify(err, "create wallet")
}

func (r *walletRepo) Get(ctx context.Context, id string) (*domain.Wallet, error) {
	w, err := scanWallet(r.tx.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, id))
	if err != nil {
		return nil, classify(err, "wallet "+id)
	}
	return w, nil
}

func (r *walletRepo) GetByOwner(ctx context.Context, ownerID string) (*domain.Wallet, error) {
	w, err := scanWallet(r.tx.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE owner_id = $1`, ownerID))
	if err != nil {
		return nil, classify(err, "wallet for owner "+ownerID)
	}
	return w, nil
}

// LockForUpdate locks rows one at a time in ascending id order. A single
// ORDER BY ... FOR UPDATE does not guarantee lock acquisition order.
func (r *walletRepo) LockForUpdate(ctx context.Context, ids ...string) (map[string]*domain.Wallet, error) {
	out := make(map[string]*domain.Wallet, len(ids))
	for _, id := range repository.SortedIDs(ids) {
		w, err := scanWallet(r.tx.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return nil, classify(err, "lock wallet "+id)
		}
		out[id] = w
	}
	return out, nil
}

func (r *walletRepo) Update(ctx context.Context, w *domain.Wallet) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE wallets
		SET available_cents = $2, pending_cents = $3, version = $4, updated_at = $5
		WHERE id = $1
	`, w.ID, w.AvailableCents, w.PendingCents, w.Version, w.UpdatedAt)
	if err != nil {
		return classify(err, "update wallet")
	}
	if tag.RowsAffected() == 0 {
		return classify(pgx.ErrNoRows, "wallet "+w.ID)
	}
	return nil
}

func (r *walletRepo) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.tx.Query(ctx, `SELECT id FROM wallets ORDER BY id`)
	if err != nil {
		return nil, classify(err, "list wallets")
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	return ids, classify(err, "list wallets")
}
