package escrow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"escrow-service/internal/domain"
	"escrow-service/internal/metrics"
	"escrow-service/internal/pub"
	"escrow-service/internal/repository"
	"escrow-service/internal/usecase/wallet"
	xerrors "escrow-service/shared/utils/errors"
	"escrow-service/shared/utils/id"

	"go.uber.org/zap"
)

type Config struct {
	Currency       string
	FeeBasisPoints int64
}

// Service is the escrow state machine. Every transition locks the agreement
// row, checks the actor and the source status, applies the wallet effect and
// persists the new status in one unit of work. Events go out after commit.
type Service struct {
	store     repository.Store
	wallets   *wallet.Service
	publisher pub.Publisher
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(store repository.Store, wallets *wallet.Service, publisher pub.Publisher, cfg Config, logger *zap.Logger) *Service {
	if publisher == nil {
		publisher = pub.Discard{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Currency == "" {
		cfg.Currency = wallets.Currency()
	}
	return &Service{
		store:     store,
		wallets:   wallets,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// step carries one transition through its effect.
type step struct {
	e       *domain.EscrowAgreement
	from    domain.EscrowStatus
	to      domain.EscrowStatus
	amount  int64
	events  []domain.DomainEvent
	touched []string
	// quiet suppresses the default lifecycle event
	quiet bool
}

type effectFn func(ctx context.Context, tx repository.Tx, st *step) error

// transition runs ev against the agreement. A non-empty key makes the call
// idempotent: a repeat of the same event on the same agreement returns the
// current agreement without side effects. Keys are scoped to the actor.
func (s *Service) transition(ctx context.Context, actor domain.Actor, escrowID string, ev domain.Event, key string, effect effectFn) (out *domain.EscrowAgreement, err error) {
	start := time.Now()
	defer func() {
		metrics.TransitionDuration.WithLabelValues(string(ev)).Observe(time.Since(start).Seconds())
		metrics.TransitionsTotal.WithLabelValues(string(ev), metrics.Result(xerrors.Kind(err))).Inc()
		if errors.Is(err, xerrors.ErrBusy) {
			metrics.LockContention.WithLabelValues(string(ev)).Inc()
			s.logger.Warn("escrow busy", zap.String("escrow_id", escrowID), zap.String("event", string(ev)), zap.Error(err))
		}
	}()

	var (
		st       *step
		replayed bool
	)
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		e, err := s.loadForUpdate(ctx, tx, escrowID)
		if err != nil {
			return err
		}
		if !domain.Authorize(actor, ev, e) {
			return fmt.Errorf("%s on escrow %s by %s: %w", ev, escrowID, actor.ID, xerrors.ErrUnauthorized)
		}

		if key != "" {
			prior, err := tx.Transitions().FindByKey(ctx, actor.ID, key)
			switch {
			case err == nil:
				if prior.EscrowID != escrowID || prior.Event != ev {
					return fmt.Errorf("idempotency key %q already used for %s on %s: %w", key, prior.Event, prior.EscrowID, xerrors.ErrConflict)
				}
				replayed = true
				out = e
				return nil
			case !errors.Is(err, xerrors.ErrNotFound):
				return err
			}
		}

		to, ok := domain.Next(e.Status, ev)
		if !ok {
			return fmt.Errorf("cannot %s escrow %s in status %s: %w", ev, escrowID, e.Status, xerrors.ErrInvalidTransition)
		}
		st = &step{e: e, from: e.Status, to: to}
		if effect != nil {
			if err := effect(ctx, tx, st); err != nil {
				return err
			}
		}

		now := s.now()
		e.Stamp(st.to, now)
		if err := tx.Escrows().Update(ctx, e); err != nil {
			return err
		}
		tr := &domain.EscrowTransition{
			ID:         id.GenerateUUID(id.PrefixTransition),
			EscrowID:   escrowID,
			Event:      ev,
			FromStatus: st.from,
			ToStatus:   st.to,
			ActorID:    actor.ID,
			CreatedAt:  now,
		}
		if key != "" {
			tr.IdempotencyKey = &key
		}
		if err := tx.Transitions().Append(ctx, tr); err != nil {
			return err
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	if replayed {
		s.logger.Debug("idempotent replay", zap.String("escrow_id", escrowID), zap.String("event", string(ev)), zap.String("key", key))
		return out, nil
	}

	s.wallets.Invalidate(ctx, st.touched...)
	now := s.now()
	if t, ok := domain.EventTypeFor(ev); ok && !st.quiet {
		s.publisher.Publish(domain.EscrowEvent(t, out, actor.ID, st.amount, now))
	}
	for _, extra := range st.events {
		s.publisher.Publish(extra)
	}
	s.logger.Info("escrow transition",
		zap.String("escrow_id", escrowID),
		zap.String("event", string(ev)),
		zap.String("from", string(st.from)),
		zap.String("to", string(st.to)),
		zap.String("actor_id", actor.ID))
	return out, nil
}

func (s *Service) loadForUpdate(ctx context.Context, tx repository.Tx, escrowID string) (*domain.EscrowAgreement, error) {
	e, err := tx.Escrows().GetForUpdate(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	ms, err := tx.Milestones().ListByEscrow(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	e.Milestones = ms
	return e, nil
}

// walletIDs resolves the buyer and seller wallets. Both exist since Create.
func walletIDs(ctx context.Context, tx repository.Tx, e *domain.EscrowAgreement) (buyer, seller string, err error) {
	bw, err := tx.Wallets().GetByOwner(ctx, e.BuyerID)
	if err != nil {
		return "", "", fmt.Errorf("buyer wallet: %w", err)
	}
	sw, err := tx.Wallets().GetByOwner(ctx, e.SellerID)
	if err != nil {
		return "", "", fmt.Errorf("seller wallet: %w", err)
	}
	return bw.ID, sw.ID, nil
}

// settle pays amount (fee included) from the buyer's pending
// balance to the seller and records it as settled.
func (s *Service) settle(ctx context.Context, tx repository.Tx, st *step, amountCents, feeCents int64) error {
	buyerW, sellerW, err := walletIDs(ctx, tx, st.e)
	if err != nil {
		return err
	}
	if err := s.wallets.Settle(ctx, tx, buyerW, sellerW, amountCents, feeCents, st.e.ID); err != nil {
		return err
	}
	st.e.SettledCents += amountCents
	st.e.SettledFeeCents += feeCents
	st.amount += amountCents - feeCents
	st.touched = append(st.touched, buyerW, sellerW)
	return nil
}

func (s *Service) refund(ctx context.Context, tx repository.Tx, st *step, amountCents int64) error {
	buyerW, _, err := walletIDs(ctx, tx, st.e)
	if err != nil {
		return err
	}
	if err := s.wallets.Release(ctx, tx, buyerW, amountCents, st.e.ID); err != nil {
		return err
	}
	st.amount += amountCents
	st.touched = append(st.touched, buyerW)
	return nil
}

// ===============================
// CREATION AND QUERIES
// ===============================

type CreateInput struct {
	SellerID    string
	AmountCents int64
	Currency    string
	Description string
}

func (s *Service) Create(ctx context.Context, actor domain.Actor, in CreateInput) (*domain.EscrowAgreement, error) {
	in.SellerID = strings.TrimSpace(in.SellerID)
	switch {
	case actor.ID == "":
		return nil, xerrors.ErrUnauthenticated
	case in.SellerID == "":
		return nil, fmt.Errorf("seller is required: %w", xerrors.ErrInvalidInput)
	case in.SellerID == actor.ID:
		return nil, fmt.Errorf("buyer and seller must differ: %w", xerrors.ErrInvalidInput)
	case !domain.ValidAmount(in.AmountCents):
		return nil, fmt.Errorf("amount %d outside 1..%d: %w", in.AmountCents, domain.MaxAmountCents, xerrors.ErrInvalidInput)
	}
	if in.Currency == "" {
		in.Currency = s.cfg.Currency
	}
	if !strings.EqualFold(in.Currency, s.cfg.Currency) {
		return nil, fmt.Errorf("currency %s not supported: %w", in.Currency, xerrors.ErrInvalidInput)
	}

	// wallets are created up front so transitions never insert wallet rows
	for _, owner := range []string{actor.ID, in.SellerID, s.wallets.PlatformOwnerID()} {
		if _, err := s.wallets.GetOrCreate(ctx, owner); err != nil {
			return nil, fmt.Errorf("prepare wallet for %s: %w", owner, err)
		}
	}

	fee := domain.Fee(in.AmountCents, s.cfg.FeeBasisPoints)
	now := s.now()
	e := &domain.EscrowAgreement{
		ID:             id.GenerateUUID(id.PrefixEscrow),
		BuyerID:        actor.ID,
		SellerID:       in.SellerID,
		AmountCents:    in.AmountCents,
		Currency:       s.cfg.Currency,
		FeeCents:       fee,
		NetAmountCents: in.AmountCents - fee,
		Status:         domain.StatusAwaitingFunding,
		Description:    strings.TrimSpace(in.Description),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.Escrows().Create(ctx, e); err != nil {
			return err
		}
		return tx.Transitions().Append(ctx, &domain.EscrowTransition{
			ID:        id.GenerateUUID(id.PrefixTransition),
			EscrowID:  e.ID,
			Event:     domain.EventCreate,
			ToStatus:  domain.StatusAwaitingFunding,
			ActorID:   actor.ID,
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(domain.EscrowEvent(domain.EventEscrowCreated, e, actor.ID, e.AmountCents, now))
	s.logger.Info("escrow created",
		zap.String("escrow_id", e.ID),
		zap.String("buyer_id", e.BuyerID),
		zap.String("seller_id", e.SellerID),
		zap.Int64("amount", e.AmountCents),
		zap.Int64("fee", e.FeeCents))
	return e, nil
}

func (s *Service) Get(ctx context.Context, actor domain.Actor, escrowID string) (*domain.EscrowAgreement, error) {
	var out *domain.EscrowAgreement
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		e, err := tx.Escrows().Get(ctx, escrowID)
		if err != nil {
			return err
		}
		if !domain.CanView(actor, e) {
			return fmt.Errorf("escrow %s: %w", escrowID, xerrors.ErrUnauthorized)
		}
		e.Milestones, err = tx.Milestones().ListByEscrow(ctx, escrowID)
		out = e
		return err
	})
	return out, err
}

type ListInput struct {
	Status         domain.EscrowStatus
	Role           string
	Currency       string
	MinAmountCents int64
	MaxAmountCents int64
	CreatedFrom    time.Time
	CreatedTo      time.Time
	Search         string
	Limit          int
	Offset         int
}

func (in ListInput) validate() error {
	switch {
	case in.Status != "" && !in.Status.Valid():
		return fmt.Errorf("unknown status %q: %w", in.Status, xerrors.ErrInvalidInput)
	case in.Role != "" && in.Role != string(domain.PartyBuyer) && in.Role != string(domain.PartySeller):
		return fmt.Errorf("unknown role %q: %w", in.Role, xerrors.ErrInvalidInput)
	case in.MinAmountCents < 0 || in.MaxAmountCents < 0:
		return fmt.Errorf("amount bounds must not be negative: %w", xerrors.ErrInvalidInput)
	case in.MaxAmountCents > 0 && in.MinAmountCents > in.MaxAmountCents:
		return fmt.Errorf("min amount %d above max %d: %w", in.MinAmountCents, in.MaxAmountCents, xerrors.ErrInvalidInput)
	case !in.CreatedFrom.IsZero() && !in.CreatedTo.IsZero() && !in.CreatedFrom.Before(in.CreatedTo):
		return fmt.Errorf("created range is empty: %w", xerrors.ErrInvalidInput)
	}
	return nil
}

// List returns every agreement for admins and the caller's own otherwise.
func (s *Service) List(ctx context.Context, actor domain.Actor, in ListInput) ([]*domain.EscrowAgreement, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	f := domain.EscrowFilter{
		Status:         in.Status,
		Currency:       strings.ToUpper(strings.TrimSpace(in.Currency)),
		MinAmountCents: in.MinAmountCents,
		MaxAmountCents: in.MaxAmountCents,
		CreatedFrom:    in.CreatedFrom,
		CreatedTo:      in.CreatedTo,
		Search:         strings.TrimSpace(in.Search),
		Limit:          in.Limit,
		Offset:         in.Offset,
	}
	if !actor.IsAdmin() || in.Role != "" {
		f.ParticipantID = actor.ID
		f.Role = in.Role
	}

	var out []*domain.EscrowAgreement
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		out, err = tx.Escrows().List(ctx, f)
		return err
	})
	return out, err
}

// History returns the audit trail of the agreement, oldest first.
func (s *Service) History(ctx context.Context, actor domain.Actor, escrowID string) ([]*domain.EscrowTransition, error) {
	if _, err := s.Get(ctx, actor, escrowID); err != nil {
		return nil, err
	}
	var out []*domain.EscrowTransition
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		out, err = tx.Transitions().ListByEscrow(ctx, escrowID)
		return err
	})
	return out, err
}

// ===============================
// LIFECYCLE TRANSITIONS
// ===============================

// Fund holds the full amount in the buyer's wallet.
func (s *Service) Fund(ctx context.Context, actor domain.Actor, escrowID, key string) (*domain.EscrowAgreement, error) {
	return s.transition(ctx, actor, escrowID, domain.EventFund, key, func(ctx context.Context, tx repository.Tx, st *step) error {
		buyerW, _, err := walletIDs(ctx, tx, st.e)
		if err != nil {
			return err
		}
		if err := s.wallets.Hold(ctx, tx, buyerW, st.e.AmountCents, st.e.ID); err != nil {
			return err
		}
		st.amount = st.e.AmountCents
		st.touched = append(st.touched, buyerW)
		return nil
	})
}

type ShipInput struct {
	TrackingNumber string
	Carrier        string
}

func (s *Service) Ship(ctx context.Context, actor domain.Actor, escrowID string, in ShipInput, key string) (*domain.EscrowAgreement, error) {
	return s.transition(ctx, actor, escrowID, domain.EventShip, key, func(_ context.Context, _ repository.Tx, st *step) error {
		if v := strings.TrimSpace(in.TrackingNumber); v != "" {
			st.e.TrackingNumber = &v
		}
		if v := strings.TrimSpace(in.Carrier); v != "" {
			st.e.Carrier = &v
		}
		return nil
	})
}

func (s *Service) Deliver(ctx context.Context, actor domain.Actor, escrowID, key string) (*domain.EscrowAgreement, error) {
	return s.transition(ctx, actor, escrowID, domain.EventDeliver, key, nil)
}

// Release pays the seller. Agreements with milestones release per milestone.
func (s *Service) Release(ctx context.Context, actor domain.Actor, escrowID, key string) (*domain.EscrowAgreement, error) {
	return s.transition(ctx, actor, escrowID, domain.EventRelease, key, func(ctx context.Context, tx repository.Tx, st *step) error {
		if st.e.HasMilestones() {
			return fmt.Errorf("escrow %s releases through its milestones: %w", st.e.ID, xerrors.ErrInvalidTransition)
		}
		return s.settle(ctx, tx, st, st.e.RemainingCents(), st.e.RemainingFeeCents())
	})
}

// Refund returns the unsettled remainder to the buyer. Admin only.
func (s *Service) Refund(ctx context.Context, actor domain.Actor, escrowID, reason, key string) (*domain.EscrowAgreement, error) {
	return s.transition(ctx, actor, escrowID, domain.EventRefund, key, func(ctx context.Context, tx repository.Tx, st *step) error {
		if v := strings.TrimSpace(reason); v != "" {
			st.e.RefundReason = &v
		}
		return s.refund(ctx, tx, st, st.e.RemainingCents())
	})
}

func (s *Service) Cancel(ctx context.Context, actor domain.Actor, escrowID, key string) (*domain.EscrowAgreement, error) {
	return s.transition(ctx, actor, escrowID, domain.EventCancel, key, nil)
}
