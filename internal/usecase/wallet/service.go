package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"escrow-service/internal/domain"
	"escrow-service/internal/metrics"
	"escrow-service/internal/pub"
	"escrow-service/internal/repository"
	xerrors "escrow-service/shared/utils/errors"
	"escrow-service/shared/utils/id"

	"go.uber.org/zap"
)

type Config struct {
	Currency        string
	PlatformOwnerID string
}

// Service is the wallet manager. The Hold, Release and Settle primitives run
// inside a caller-owned unit of work so the escrow state change and the
// balance change commit together.
type Service struct {
	store     repository.Store
	cache     Cache
	publisher pub.Publisher
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(store repository.Store, cache Cache, publisher pub.Publisher, cfg Config, logger *zap.Logger) *Service {
	if cache == nil {
		cache = noopCache{}
	}
	if publisher == nil {
		publisher = pub.Discard{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Currency == "" {
		cfg.Currency = "GHS"
	}
	if cfg.PlatformOwnerID == "" {
		cfg.PlatformOwnerID = "platform"
	}
	return &Service{
		store:     store,
		cache:     cache,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Currency() string { return s.cfg.Currency }
func (s *Service) PlatformOwnerID() string { return s.cfg.PlatformOwnerID }

// ===============================
// PRIMITIVES (caller-owned unit of work)
// ===============================

// Hold moves amount from available to pending.
func (s *Service) Hold(ctx context.Context, tx repository.Tx, walletID string, amountCents int64, escrowID string) (err error) {
	defer s.observe("hold", &err)
	if amountCents <= 0 {
		return fmt.Errorf("hold amount %d: %w", amountCents, xerrors.ErrInvalidInput)
	}
	ws, err := tx.Wallets().LockForUpdate(ctx, walletID)
	if err != nil {
		return err
	}
	w := ws[walletID]
	if w.AvailableCents < amountCents {
		return fmt.Errorf("wallet %s has %d available, needs %d: %w", walletID, w.AvailableCents, amountCents, xerrors.ErrInsufficientFunds)
	}

	now := s.now()
	w.AvailableCents -= amountCents
	w.PendingCents += amountCents
	touch(w, now)
	if err := tx.Wallets().Update(ctx, w); err != nil {
		return err
	}
	return tx.Ledger().Append(ctx,
		newEntry(walletID, domain.BucketAvailable, -amountCents, domain.ReasonFundHold, escrowID, "", now),
		newEntry(walletID, domain.BucketPending, amountCents, domain.ReasonFundHold, escrowID, "", now),
	)
}

// Release moves amount from pending back to available (refund path).
func (s *Service) Release(ctx context.Context, tx repository.Tx, walletID string, amountCents int64, escrowID string) (err error) {
	defer s.observe("release", &err)
	if amountCents <= 0 {
		return fmt.Errorf("release amount %d: %w", amountCents, xerrors.ErrInvalidInput)
	}
	ws, err := tx.Wallets().LockForUpdate(ctx, walletID)
	if err != nil {
		return err
	}
	w := ws[walletID]
	if w.PendingCents < amountCents {
		s.logger.Error("pending balance below held amount",
			zap.String("wallet_id", walletID),
			zap.String("escrow_id", escrowID),
			zap.Int64("pending", w.PendingCents),
			zap.Int64("amount", amountCents))
		return fmt.Errorf("wallet %s pending %d < %d: %w", walletID, w.PendingCents, amountCents, xerrors.ErrInvariantViolation)
	}

	now := s.now()
	w.PendingCents -= amountCents
	w.AvailableCents += amountCents
	touch(w, now)
	if err := tx.Wallets().Update(ctx, w); err != nil {
		return err
	}
	return tx.Ledger().Append(ctx,
		newEntry(walletID, domain.BucketPending, -amountCents, domain.ReasonFundRefund, escrowID, "", now),
		newEntry(walletID, domain.BucketAvailable, amountCents, domain.ReasonFundRefund, escrowID, "", now),
	)
}

// Settle takes amount out of from's pending balance, credits amount-fee to
// to's available balance and the fee to the platform wallet. All three
// wallets are locked in ascending id order.
func (s *Service) Settle(ctx context.Context, tx repository.Tx, fromWalletID, toWalletID string, amountCents, feeCents int64, escrowID string) (err error) {
	defer s.observe("settle", &err)
	if amountCents <= 0 || feeCents < 0 || feeCents > amountCents {
		return fmt.Errorf("settle amount %d fee %d: %w", amountCents, feeCents, xerrors.ErrInvalidInput)
	}
	if fromWalletID == toWalletID {
		return fmt.Errorf("settle into the paying wallet: %w", xerrors.ErrInvalidInput)
	}

	ids := []string{fromWalletID, toWalletID}
	var platformID string
	if feeCents > 0 {
		platform, err := tx.Wallets().GetByOwner(ctx, s.cfg.PlatformOwnerID)
		if err != nil {
			return fmt.Errorf("platform wallet: %w", err)
		}
		platformID = platform.ID
		ids = append(ids, platformID)
	}

	ws, err := tx.Wallets().LockForUpdate(ctx, ids...)
	if err != nil {
		return err
	}
	from, to := ws[fromWalletID], ws[toWalletID]
	if from.PendingCents < amountCents {
		s.logger.Error("pending balance below settle amount",
			zap.String("wallet_id", fromWalletID),
			zap.String("escrow_id", escrowID),
			zap.Int64("pending", from.PendingCents),
			zap.Int64("amount", amountCents))
		return fmt.Errorf("wallet %s pending %d < %d: %w", fromWalletID, from.PendingCents, amountCents, xerrors.ErrInvariantViolation)
	}

	now := s.now()
	net := amountCents - feeCents
	from.PendingCents -= amountCents
	to.AvailableCents += net
	entries := []*domain.LedgerEntry{
		newEntry(fromWalletID, domain.BucketPending, -amountCents, domain.ReasonFundRelease, escrowID, "", now),
	}
	if net > 0 {
		entries = append(entries, newEntry(toWalletID, domain.BucketAvailable, net, domain.ReasonFundRelease, escrowID, "", now))
	}
	if feeCents > 0 {
		ws[platformID].AvailableCents += feeCents
		entries = append(entries, newEntry(platformID, domain.BucketAvailable, feeCents, domain.ReasonFeeRevenue, escrowID, "", now))
	}

	for _, w := range ws {
		touch(w, now)
		if err := tx.Wallets().Update(ctx, w); err != nil {
			return err
		}
	}
	return tx.Ledger().Append(ctx, entries...)
}

// ===============================
// STANDALONE OPERATIONS
// ===============================

// GetOrCreate returns the owner's wallet, creating it on first use.
func (s *Service) GetOrCreate(ctx context.Context, ownerID string) (*domain.Wallet, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner id required: %w", xerrors.ErrInvalidInput)
	}
	if wid, ok := s.cache.GetIDByOwner(ctx, ownerID); ok {
		if w, ok := s.cache.Get(ctx, wid); ok {
			return w, nil
		}
	}

	var out *domain.Wallet
	// only a wallet created here has a known generation
	gen := int64(-1)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		w, err := tx.Wallets().GetByOwner(ctx, ownerID)
		if err == nil {
			out = w
			return nil
		}
		if !errors.Is(err, xerrors.ErrNotFound) {
			return err
		}
		now := s.now()
		w = &domain.Wallet{
			ID:        id.GenerateUUID(id.PrefixWallet),
			OwnerID:   ownerID,
			Currency:  s.cfg.Currency,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.Wallets().Create(ctx, w); err != nil {
			return err
		}
		out, gen = w, 0
		return nil
	})
	if errors.Is(err, xerrors.ErrConflict) {
		// lost a creation race; the other writer's row is the wallet
		return s.getByOwner(ctx, ownerID)
	}
	if err != nil {
		return nil, err
	}
	s.cache.Put(ctx, out, gen)
	return out, nil
}

func (s *Service) getByOwner(ctx context.Context, ownerID string) (*domain.Wallet, error) {
	var out *domain.Wallet
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		w, err := tx.Wallets().GetByOwner(ctx, ownerID)
		out = w
		return err
	})
	return out, err
}

func (s *Service) EnsurePlatformWallet(ctx context.Context) (*domain.Wallet, error) {
	return s.GetOrCreate(ctx, s.cfg.PlatformOwnerID)
}

// Get returns a wallet visible to the actor.
func (s *Service) Get(ctx context.Context, actor domain.Actor, walletID string) (*domain.Wallet, error) {
	w, ok := s.cache.Get(ctx, walletID)
	if !ok {
		gen := s.cache.Generation(ctx, walletID)
		err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			var err error
			w, err = tx.Wallets().Get(ctx, walletID)
			return err
		})
		if err != nil {
			return nil, err
		}
		s.cache.Put(ctx, w, gen)
	}
	if w.OwnerID != actor.ID && !actor.IsAdmin() {
		return nil, fmt.Errorf("wallet %s: %w", walletID, xerrors.ErrUnauthorized)
	}
	return w, nil
}

// Deposit credits an external payment to available. Admin only.
func (s *Service) Deposit(ctx context.Context, actor domain.Actor, walletID string, amountCents int64, reference string) (*domain.Wallet, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("deposit: %w", xerrors.ErrUnauthorized)
	}
	return s.external(ctx, actor, walletID, amountCents, reference, domain.ReasonDeposit)
}

// Withdraw debits available to an external rail. Owner only.
func (s *Service) Withdraw(ctx context.Context, actor domain.Actor, walletID string, amountCents int64, reference string) (*domain.Wallet, error) {
	return s.external(ctx, actor, walletID, amountCents, reference, domain.ReasonWithdrawal)
}

func (s *Service) external(ctx context.Context, actor domain.Actor, walletID string, amountCents int64, reference string, reason domain.LedgerReason) (out *domain.Wallet, err error) {
	defer s.observe(string(reason), &err)
	if !domain.ValidAmount(amountCents) {
		return nil, fmt.Errorf("amount %d outside 1..%d: %w", amountCents, domain.MaxAmountCents, xerrors.ErrInvalidInput)
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		ws, err := tx.Wallets().LockForUpdate(ctx, walletID)
		if err != nil {
			return err
		}
		w := ws[walletID]
		delta := amountCents
		if reason == domain.ReasonWithdrawal {
			if w.OwnerID != actor.ID {
				return fmt.Errorf("withdraw from %s: %w", walletID, xerrors.ErrUnauthorized)
			}
			if w.AvailableCents < amountCents {
				return fmt.Errorf("wallet %s has %d available, needs %d: %w", walletID, w.AvailableCents, amountCents, xerrors.ErrInsufficientFunds)
			}
			delta = -amountCents
		} else if w.TotalCents() > domain.MaxBalanceCents-amountCents {
			return fmt.Errorf("wallet %s would exceed the balance limit: %w", walletID, xerrors.ErrInvalidInput)
		}

		now := s.now()
		w.AvailableCents += delta
		touch(w, now)
		if err := tx.Wallets().Update(ctx, w); err != nil {
			return err
		}
		out = w
		return tx.Ledger().Append(ctx, newEntry(walletID, domain.BucketAvailable, delta, reason, "", reference, now))
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, walletID)
	evType := domain.EventWalletDeposited
	if reason == domain.ReasonWithdrawal {
		evType = domain.EventWalletWithdrawn
	}
	ev := domain.NewEvent(evType, actor.ID, s.now())
	ev.WalletID = walletID
	ev.UserIDs = []string{out.OwnerID}
	ev.AmountCents = amountCents
	ev.Currency = out.Currency
	s.publisher.Publish(ev)

	s.logger.Info("external wallet movement",
		zap.String("wallet_id", walletID),
		zap.String("reason", string(reason)),
		zap.Int64("amount", amountCents),
		zap.String("actor_id", actor.ID))
	return out, nil
}

// ListLedger pages the wallet's entries newest first. Owner or admin.
func (s *Service) ListLedger(ctx context.Context, actor domain.Actor, walletID string, limit, offset int) ([]*domain.LedgerEntry, error) {
	if _, err := s.Get(ctx, actor, walletID); err != nil {
		return nil, err
	}
	var out []*domain.LedgerEntry
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		out, err = tx.Ledger().ListByWallet(ctx, walletID, limit, offset)
		return err
	})
	return out, err
}

// Invalidate drops cached rows after a caller-owned unit committed.
func (s *Service) Invalidate(ctx context.Context, walletIDs ...string) {
	s.cache.Invalidate(ctx, walletIDs...)
}

func (s *Service) observe(op string, err *error) {
	kind := xerrors.Kind(*err)
	metrics.WalletOpsTotal.WithLabelValues(op, metrics.Result(kind)).Inc()
	if errors.Is(*err, xerrors.ErrBusy) {
		metrics.LockContention.WithLabelValues(op).Inc()
		s.logger.Warn("wallet lock busy", zap.String("operation", op), zap.Error(*err))
	}
}

func touch(w *domain.Wallet, now time.Time) {
	w.Version++
	w.UpdatedAt = now
}

func newEntry(walletID string, bucket domain.Bucket, delta int64, reason domain.LedgerReason, escrowID, reference string, now time.Time) *domain.LedgerEntry {
	e := &domain.LedgerEntry{
		ID:         id.GenerateUUID(id.PrefixLedger),
		WalletID:   walletID,
		Bucket:     bucket,
		DeltaCents: delta,
		Reason:     reason,
		CreatedAt:  now,
	}
	if escrowID != "" {
		e.RelatedEscrowID = &escrowID
	}
	if reference != "" {
		e.Reference = &reference
	}
	return e
}
