package memory

import (
	"context"
	"fmt"
	"sort"

	"escrow-service/internal/domain"
	"escrow-service/internal/repository"
	xerrors "escrow-service/shared/utils/errors"
)

// tx stages writes on top of the committed state. Reads see staged rows
// first. Rows are cloned on the way in and out so callers never alias
// committed state.
type tx struct {
	s    *Store
	held []string

	escrows     map[string]*domain.EscrowAgreement
	wallets     map[string]*domain.Wallet
	ledger      []*domain.LedgerEntry
	milestones  map[string]*domain.Milestone
	disputes    map[string]*domain.Dispute
	disputeSeq  []string
	transitions []*domain.EscrowTransition
}

func newTx(s *Store) *tx {
	return &tx{
		s:          s,
		escrows:    make(map[string]*domain.EscrowAgreement),
		wallets:    make(map[string]*domain.Wallet),
		milestones: make(map[string]*domain.Milestone),
		disputes:   make(map[string]*domain.Dispute),
	}
}

var _ repository.Tx = (*tx)(nil)

func (t *tx) Escrows() repository.EscrowRepository { return escrowRepo{t} }
func (t *tx) Wallets() repository.WalletRepository { return walletRepo{t} }
func (t *tx) Ledger() repository.LedgerRepository { return ledgerRepo{t} }
func (t *tx) Milestones() repository.MilestoneRepository { return milestoneRepo{t} }
func (t *tx) Disputes() repository.DisputeRepository { return disputeRepo{t} }
func (t *tx) Transitions() repository.TransitionRepository { return transitionRepo{t} }

func (t *tx) lock(ctx context.Context, key string) error {
	for _, h := range t.held {
		if h == key {
			return nil
		}
	}
	if err := t.s.locks.acquire(ctx, key, t.s.lockTimeout); err != nil {
		return err
	}
	t.held = append(t.held, key)
	return nil
}

func (t *tx) releaseLocks() {
	for i := len(t.held) - 1; i >= 0; i-- {
		t.s.locks.release(t.held[i])
	}
	t.held = nil
}

func (t *tx) disputeOrder() []*domain.Dispute {
	out := make([]*domain.Dispute, 0, len(t.disputeSeq))
	for _, id := range t.disputeSeq {
		out = append(out, t.disputes[id])
	}
	return out
}

// ---- escrows ----

type escrowRepo struct{ t *tx }

func (r escrowRepo) Create(ctx context.Context, e *domain.EscrowAgreement) error {
	if _, err := r.Get(ctx, e.ID); err == nil {
		return fmt.Errorf("escrow %s: %w", e.ID, xerrors.ErrConflict)
	}
	r.t.escrows[e.ID] = stripMilestones(e)
	return nil
}

func (r escrowRepo) Get(_ context.Context, id string) (*domain.EscrowAgreement, error) {
	if e, ok := r.t.escrows[id]; ok {
		return e.Clone(), nil
	}
	r.t.s.mu.RLock()
	defer r.t.s.mu.RUnlock()
	e, ok := r.t.s.st.escrows[id]
	if !ok {
		return nil, fmt.Errorf("escrow %s: %w", id, xerrors.ErrNotFound)
	}
	return e.Clone(), nil
}

func (r escrowRepo) GetForUpdate(ctx context.Context, id string) (*domain.EscrowAgreement, error) {
	if err := r.t.lock(ctx, "escrow:"+id); err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r escrowRepo) Update(ctx context.Context, e *domain.EscrowAgreement) error {
	if _, err := r.Get(ctx, e.ID); err != nil {
		return err
	}
	r.t.escrows[e.ID] = stripMilestones(e)
	return nil
}

func (r escrowRepo) List(_ context.Context, f domain.EscrowFilter) ([]*domain.EscrowAgreement, error) {
	merged := make(map[string]*domain.EscrowAgreement)
	r.t.s.mu.RLock()
	for id, e := range r.t.s.st.escrows {
		merged[id] = e
	}
	r.t.s.mu.RUnlock()
	for id, e := range r.t.escrows {
		merged[id] = e
	}

	out := make([]*domain.EscrowAgreement, 0)
	for _, e := range merged {
		if !f.Matches(e) {
			continue
		}
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return page(out, f.Limit, f.Offset), nil
}

func stripMilestones(e *domain.EscrowAgreement) *domain.EscrowAgreement {
	c := e.Clone()
	c.Milestones = nil
	return c
}

// ---- wallets ----

type walletRepo struct{ t *tx }

func (r walletRepo) Create(ctx context.Context, w *domain.Wallet) error {
	if existing, err := r.GetByOwner(ctx, w.OwnerID); err == nil && existing.ID != w.ID {
		return fmt.Errorf("wallet for owner %s: %w", w.OwnerID, xerrors.ErrConflict)
	}
	r.t.wallets[w.ID] = w.Clone()
	return nil
}

func (r walletRepo) Get(_ context.Context, id string) (*domain.Wallet, error) {
	if w, ok := r.t.wallets[id]; ok {
		return w.Clone(), nil
	}
	r.t.s.mu.RLock()
	defer r.t.s.mu.RUnlock()
	w, ok := r.t.s.st.wallets[id]
	if !ok {
		return nil, fmt.Errorf("wallet %s: %w", id, xerrors.ErrNotFound)
	}
	return w.Clone(), nil
}

func (r walletRepo) GetByOwner(ctx context.Context, ownerID string) (*domain.Wallet, error) {
	for _, w := range r.t.wallets {
		if w.OwnerID == ownerID {
			return w.Clone(), nil
		}
	}
	r.t.s.mu.RLock()
	id, ok := r.t.s.st.walletByOwner[ownerID]
	r.t.s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("wallet for owner %s: %w", ownerID, xerrors.ErrNotFound)
	}
	return r.Get(ctx, id)
}

func (r walletRepo) LockForUpdate(ctx context.Context, ids ...string) (map[string]*domain.Wallet, error) {
	out := make(map[string]*domain.Wallet, len(ids))
	for _, id := range repository.SortedIDs(ids) {
		if err := r.t.lock(ctx, "wallet:"+id); err != nil {
			return nil, err
		}
		w, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = w
	}
	return out, nil
}

func (r walletRepo) Update(ctx context.Context, w *domain.Wallet) error {
	if _, err := r.Get(ctx, w.ID); err != nil {
		return err
	}
	if w.AvailableCents < 0 || w.PendingCents < 0 {
		return fmt.Errorf("wallet %s would go negative: %w", w.ID, xerrors.ErrInvariantViolation)
	}
	r.t.wallets[w.ID] = w.Clone()
	return nil
}

func (r walletRepo) ListIDs(_ context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	r.t.s.mu.RLock()
	for id := range r.t.s.st.wallets {
		seen[id] = struct{}{}
	}
	r.t.s.mu.RUnlock()
	for id := range r.t.wallets {
		seen[id] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// ---- ledger ----

type ledgerRepo struct{ t *tx }

func (r ledgerRepo) Append(_ context.Context, entries ...*domain.LedgerEntry) error {
	for _, e := range entries {
		c := *e
		r.t.ledger = append(r.t.ledger, &c)
	}
	return nil
}

func (r ledgerRepo) entries(walletID string) []*domain.LedgerEntry {
	r.t.s.mu.RLock()
	committed := r.t.s.st.ledger[walletID]
	out := make([]*domain.LedgerEntry, 0, len(committed))
	out = append(out, committed...)
	r.t.s.mu.RUnlock()
	for _, e := range r.t.ledger {
		if e.WalletID == walletID {
			out = append(out, e)
		}
	}
	return out
}

func (r ledgerRepo) SumByWallet(_ context.Context, walletID string) (domain.LedgerSums, error) {
	var sums domain.LedgerSums
	for _, e := range r.entries(walletID) {
		switch e.Bucket {
		case domain.BucketAvailable:
			sums.AvailableCents += e.DeltaCents
		case domain.BucketPending:
			sums.PendingCents += e.DeltaCents
		}
		if e.Reason.IsExternal() {
			sums.ExternalCents += e.DeltaCents
		}
	}
	return sums, nil
}

func (r ledgerRepo) ListByWallet(_ context.Context, walletID string, limit, offset int) ([]*domain.LedgerEntry, error) {
	all := r.entries(walletID)
	// newest first
	out := make([]*domain.LedgerEntry, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		c := *all[i]
		out = append(out, &c)
	}
	return page(out, limit, offset), nil
}

// ---- milestones ----

type milestoneRepo struct{ t *tx }

func (r milestoneRepo) CreateBatch(_ context.Context, ms []*domain.Milestone) error {
	for _, m := range ms {
		r.t.milestones[m.ID] = m.Clone()
	}
	return nil
}

func (r milestoneRepo) ListByEscrow(_ context.Context, escrowID string) ([]*domain.Milestone, error) {
	merged := make(map[string]*domain.Milestone)
	r.t.s.mu.RLock()
	for _, m := range r.t.s.st.milestones[escrowID] {
		merged[m.ID] = m
	}
	r.t.s.mu.RUnlock()
	for id, m := range r.t.milestones {
		if m.EscrowID == escrowID {
			merged[id] = m
		}
	}
	out := make([]*domain.Milestone, 0, len(merged))
	for _, m := range merged {
		out = append(out, m.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (r milestoneRepo) Update(ctx context.Context, m *domain.Milestone) error {
	list, _ := r.ListByEscrow(ctx, m.EscrowID)
	for _, existing := range list {
		if existing.ID == m.ID {
			r.t.milestones[m.ID] = m.Clone()
			return nil
		}
	}
	return fmt.Errorf("milestone %s: %w", m.ID, xerrors.ErrNotFound)
}

// ---- disputes ----

type disputeRepo struct{ t *tx }

func (r disputeRepo) list(escrowID string) []*domain.Dispute {
	r.t.s.mu.RLock()
	committed := r.t.s.st.disputes[escrowID]
	out := make([]*domain.Dispute, 0, len(committed))
	out = append(out, committed...)
	r.t.s.mu.RUnlock()
	for i, d := range out {
		if staged, ok := r.t.disputes[d.ID]; ok {
			out[i] = staged
		}
	}
	for _, id := range r.t.disputeSeq {
		d := r.t.disputes[id]
		if d.EscrowID != escrowID {
			continue
		}
		found := false
		for _, c := range out {
			if c.ID == id {
				found = true
				break
			}
		}
		if !found {
			out = append(out, d)
		}
	}
	return out
}

func (r disputeRepo) stage(d *domain.Dispute) {
	if _, ok := r.t.disputes[d.ID]; !ok {
		r.t.disputeSeq = append(r.t.disputeSeq, d.ID)
	}
	r.t.disputes[d.ID] = d.Clone()
}

func (r disputeRepo) Create(_ context.Context, d *domain.Dispute) error {
	for _, c := range r.list(d.EscrowID) {
		if c.Status == domain.DisputeOpen {
			return fmt.Errorf("open dispute on %s: %w", d.EscrowID, xerrors.ErrConflict)
		}
	}
	r.stage(d)
	return nil
}

func (r disputeRepo) GetLatestByEscrow(_ context.Context, escrowID string) (*domain.Dispute, error) {
	list := r.list(escrowID)
	if len(list) == 0 {
		return nil, fmt.Errorf("dispute for escrow %s: %w", escrowID, xerrors.ErrNotFound)
	}
	return list[len(list)-1].Clone(), nil
}

func (r disputeRepo) Update(_ context.Context, d *domain.Dispute) error {
	for _, c := range r.list(d.EscrowID) {
		if c.ID == d.ID {
			r.stage(d)
			return nil
		}
	}
	return fmt.Errorf("dispute %s: %w", d.ID, xerrors.ErrNotFound)
}

// ---- transitions ----

type transitionRepo struct{ t *tx }

func (r transitionRepo) Append(ctx context.Context, tr *domain.EscrowTransition) error {
	if tr.IdempotencyKey != nil {
		if _, err := r.FindByKey(ctx, tr.ActorID, *tr.IdempotencyKey); err == nil {
			return fmt.Errorf("idempotency key %q: %w", *tr.IdempotencyKey, xerrors.ErrConflict)
		}
	}
	c := *tr
	r.t.transitions = append(r.t.transitions, &c)
	return nil
}

func (r transitionRepo) FindByKey(_ context.Context, actorID, key string) (*domain.EscrowTransition, error) {
	for _, tr := range r.t.transitions {
		if tr.IdempotencyKey != nil && *tr.IdempotencyKey == key && tr.ActorID == actorID {
			c := *tr
			return &c, nil
		}
	}
	r.t.s.mu.RLock()
	defer r.t.s.mu.RUnlock()
	tr, ok := r.t.s.st.transitionKeys[scopedKey(actorID, key)]
	if !ok {
		return nil, fmt.Errorf("transition with key %q: %w", key, xerrors.ErrNotFound)
	}
	c := *tr
	return &c, nil
}

func (r transitionRepo) ListByEscrow(_ context.Context, escrowID string) ([]*domain.EscrowTransition, error) {
	r.t.s.mu.RLock()
	committed := r.t.s.st.transitions[escrowID]
	out := make([]*domain.EscrowTransition, 0, len(committed))
	for _, tr := range committed {
		c := *tr
		out = append(out, &c)
	}
	r.t.s.mu.RUnlock()
	for _, tr := range r.t.transitions {
		if tr.EscrowID == escrowID {
			c := *tr
			out = append(out, &c)
		}
	}
	return out, nil
}

func page[T any](items []T, limit, offset int) []T {
	limit = repository.ClampLimit(limit)
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
