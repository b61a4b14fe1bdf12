package repository

import (
	"context"
	"sort"

	"escrow-service/internal/domain"
)

// Store runs units of work. Every write happens inside WithinTx: either all
// staged rows commit together or none do.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Close()
}

// Tx exposes the repositories bound to one unit of work. Locks taken through
// the ForUpdate methods are held until the unit ends.
type Tx interface {
	Escrows() EscrowRepository
	Wallets() WalletRepository
	Ledger() LedgerRepository
	Milestones() MilestoneRepository
	Disputes() DisputeRepository
	Transitions() TransitionRepository
}

type EscrowRepository interface {
	Create(ctx context.Context, e *domain.EscrowAgreement) error
	Get(ctx context.Context, id string) (*domain.EscrowAgreement, error)
	// GetForUpdate locks the agreement row for the rest of the unit.
	GetForUpdate(ctx context.Context, id string) (*domain.EscrowAgreement, error)
	Update(ctx context.Context, e *domain.EscrowAgreement) error
	List(ctx context.Context, f domain.EscrowFilter) ([]*domain.EscrowAgreement, error)
}

type WalletRepository interface {
	// Create fails with ErrConflict when the owner already has a wallet.
	Create(ctx context.Context, w *domain.Wallet) error
	Get(ctx context.Context, id string) (*domain.Wallet, error)
	GetByOwner(ctx context.Context, ownerID string) (*domain.Wallet, error)
	// LockForUpdate locks the wallets in ascending id order.
	LockForUpdate(ctx context.Context, ids ...string) (map[string]*domain.Wallet, error)
	Update(ctx context.Context, w *domain.Wallet) error
	ListIDs(ctx context.Context) ([]string, error)
}

// LedgerRepository is append-only.
type LedgerRepository interface {
	Append(ctx context.Context, entries ...*domain.LedgerEntry) error
	SumByWallet(ctx context.Context, walletID string) (domain.LedgerSums, error)
	ListByWallet(ctx context.Context, walletID string, limit, offset int) ([]*domain.LedgerEntry, error)
}

type MilestoneRepository interface {
	CreateBatch(ctx context.Context, ms []*domain.Milestone) error
	ListByEscrow(ctx context.Context, escrowID string) ([]*domain.Milestone, error)
	Update(ctx context.Context, m *domain.Milestone) error
}

type DisputeRepository interface {
	// Create fails with ErrConflict when the agreement already has an open dispute.
	Create(ctx context.Context, d *domain.Dispute) error
	// GetLatestByEscrow returns the most recent dispute of the agreement.
	GetLatestByEscrow(ctx context.Context, escrowID string) (*domain.Dispute, error)
	Update(ctx context.Context, d *domain.Dispute) error
}

type TransitionRepository interface {
	// Append fails with ErrConflict when the actor already used the
	// idempotency key. Keys are scoped per actor.
	Append(ctx context.Context, t *domain.EscrowTransition) error
	FindByKey(ctx context.Context, actorID, key string) (*domain.EscrowTransition, error)
	ListByEscrow(ctx context.Context, escrowID string) ([]*domain.EscrowTransition, error)
}

// SortedIDs returns a deduplicated, ascending copy of ids. Wallet locks are
// always taken in this order so two settles never wait on each other in a cycle.
func SortedIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// ClampLimit applies the default and maximum page sizes.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
