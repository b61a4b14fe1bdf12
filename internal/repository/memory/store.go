package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"escrow-service/internal/domain"
	"escrow-service/internal/repository"
	xerrors "escrow-service/shared/utils/errors"

	"go.uber.org/zap"
)

// Store keeps all rows in process memory. Units of work stage their writes
// and apply them in one step on commit; row locks come from a lock table
// with the same timeout semantics as the postgres lock_timeout.
type Store struct {
	mu          sync.RWMutex
	st          *state
	locks       *lockTable
	lockTimeout time.Duration
	logger      *zap.Logger
}

type state struct {
	escrows        map[string]*domain.EscrowAgreement
	wallets        map[string]*domain.Wallet
	walletByOwner  map[string]string
	ledger         map[string][]*domain.LedgerEntry // by wallet, append order
	milestones     map[string][]*domain.Milestone   // by escrow, position order
	disputes       map[string][]*domain.Dispute     // by escrow, creation order
	transitions    map[string][]*domain.EscrowTransition
	transitionKeys map[string]*domain.EscrowTransition // by scopedKey
}

func scopedKey(actorID, key string) string {
	return actorID + "\x00" + key
}

func NewStore(lockTimeout time.Duration, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if lockTimeout <= 0 {
		lockTimeout = 3 * time.Second
	}
	return &Store{
		st: &state{
			escrows:        make(map[string]*domain.EscrowAgreement),
			wallets:        make(map[string]*domain.Wallet),
			walletByOwner:  make(map[string]string),
			ledger:         make(map[string][]*domain.LedgerEntry),
			milestones:     make(map[string][]*domain.Milestone),
			disputes:       make(map[string][]*domain.Dispute),
			transitions:    make(map[string][]*domain.EscrowTransition),
			transitionKeys: make(map[string]*domain.EscrowTransition),
		},
		locks:       newLockTable(),
		lockTimeout: lockTimeout,
		logger:      logger,
	}
}

var _ repository.Store = (*Store)(nil)

func (s *Store) Close() {}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := newTx(s)
	defer t.releaseLocks()

	if err := fn(ctx, t); err != nil {
		return err
	}
	// commit is not cancellable once started
	return s.commit(t)
}

func (s *Store) commit(t *tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkUnique(t); err != nil {
		return err
	}

	for id, e := range t.escrows {
		s.st.escrows[id] = e
	}
	for id, w := range t.wallets {
		s.st.wallets[id] = w
		s.st.walletByOwner[w.OwnerID] = id
	}
	for _, le := range t.ledger {
		s.st.ledger[le.WalletID] = append(s.st.ledger[le.WalletID], le)
	}
	for _, m := range t.milestones {
		list := s.st.milestones[m.EscrowID]
		replaced := false
		for i := range list {
			if list[i].ID == m.ID {
				list[i] = m
				replaced = true
				break
			}
		}
		if !replaced {
			list = append(list, m)
		}
		sort.SliceStable(list, func(i, j int) bool { return list[i].Position < list[j].Position })
		s.st.milestones[m.EscrowID] = list
	}
	for _, d := range t.disputeOrder() {
		list := s.st.disputes[d.EscrowID]
		replaced := false
		for i := range list {
			if list[i].ID == d.ID {
				list[i] = d
				replaced = true
				break
			}
		}
		if !replaced {
			list = append(list, d)
		}
		s.st.disputes[d.EscrowID] = list
	}
	for _, tr := range t.transitions {
		s.st.transitions[tr.EscrowID] = append(s.st.transitions[tr.EscrowID], tr)
		if tr.IdempotencyKey != nil {
			s.st.transitionKeys[scopedKey(tr.ActorID, *tr.IdempotencyKey)] = tr
		}
	}
	return nil
}

// checkUnique re-validates unique constraints against state committed by
// units that ran concurrently without touching the same locks.
func (s *Store) checkUnique(t *tx) error {
	for id, w := range t.wallets {
		if existing, ok := s.st.walletByOwner[w.OwnerID]; ok && existing != id {
			return fmt.Errorf("wallet for owner %s: %w", w.OwnerID, xerrors.ErrConflict)
		}
	}
	for _, tr := range t.transitions {
		if tr.IdempotencyKey == nil {
			continue
		}
		if _, ok := s.st.transitionKeys[scopedKey(tr.ActorID, *tr.IdempotencyKey)]; ok {
			return fmt.Errorf("idempotency key %q: %w", *tr.IdempotencyKey, xerrors.ErrConflict)
		}
	}
	for _, d := range t.disputes {
		if d.Status != domain.DisputeOpen {
			continue
		}
		for _, c := range s.st.disputes[d.EscrowID] {
			if c.ID != d.ID && c.Status == domain.DisputeOpen {
				return fmt.Errorf("open dispute on %s: %w", d.EscrowID, xerrors.ErrConflict)
			}
		}
	}
	return nil
}
