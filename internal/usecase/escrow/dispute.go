package escrow

import (
	"context"
	"fmt"
	"strings"

	"escrow-service/internal/domain"
	"escrow-service/internal/repository"
	xerrors "escrow-service/shared/utils/errors"
	"escrow-service/shared/utils/id"
)

type DisputeInput struct {
	Reason      domain.DisputeReason
	Description string
}

// OpenDispute freezes a funded agreement. Funds stay pending until an admin
// resolves it.
func (s *Service) OpenDispute(ctx context.Context, actor domain.Actor, escrowID string, in DisputeInput, key string) (*domain.EscrowAgreement, error) {
	if !in.Reason.Valid() {
		return nil, fmt.Errorf("unknown dispute reason %q: %w", in.Reason, xerrors.ErrInvalidInput)
	}
	return s.transition(ctx, actor, escrowID, domain.EventDispute, key, func(ctx context.Context, tx repository.Tx, st *step) error {
		d := &domain.Dispute{
			ID:          id.GenerateUUID(id.PrefixDispute),
			EscrowID:    st.e.ID,
			InitiatorID: actor.ID,
			Reason:      in.Reason,
			Description: strings.TrimSpace(in.Description),
			Status:      domain.DisputeOpen,
			PriorStatus: st.from,
			CreatedAt:   s.now(),
		}
		st.amount = st.e.RemainingCents()
		return tx.Disputes().Create(ctx, d)
	})
}

// ResolveDispute closes the open dispute and settles the unsettled remainder
// according to the outcome. Admin only.
func (s *Service) ResolveDispute(ctx context.Context, actor domain.Actor, escrowID string, res domain.Resolution, key string) (*domain.EscrowAgreement, error) {
	var ev domain.Event
	switch res.Outcome {
	case domain.OutcomeRelease:
		ev = domain.EventResolveRelease
	case domain.OutcomeRefund:
		ev = domain.EventResolveRefund
	case domain.OutcomeSplit:
		ev = domain.EventResolveSplit
		if res.BuyerRefundCents < 0 {
			return nil, fmt.Errorf("buyer refund must not be negative: %w", xerrors.ErrInvalidInput)
		}
	default:
		return nil, fmt.Errorf("unknown outcome %q: %w", res.Outcome, xerrors.ErrInvalidInput)
	}

	return s.transition(ctx, actor, escrowID, ev, key, func(ctx context.Context, tx repository.Tx, st *step) error {
		d, err := tx.Disputes().GetLatestByEscrow(ctx, st.e.ID)
		if err != nil {
			return err
		}
		if d.Status != domain.DisputeOpen {
			return fmt.Errorf("dispute %s is %s: %w", d.ID, d.Status, xerrors.ErrInvariantViolation)
		}

		remaining := st.e.RemainingCents()
		remainingFee := st.e.RemainingFeeCents()
		var refundCents int64
		switch res.Outcome {
		case domain.OutcomeRelease:
			if err := s.settle(ctx, tx, st, remaining, remainingFee); err != nil {
				return err
			}
		case domain.OutcomeRefund:
			refundCents = remaining
			if err := s.refund(ctx, tx, st, remaining); err != nil {
				return err
			}
		case domain.OutcomeSplit:
			if res.BuyerRefundCents > remaining {
				return fmt.Errorf("buyer refund %d exceeds remaining %d: %w", res.BuyerRefundCents, remaining, xerrors.ErrInvalidInput)
			}
			refundCents = res.BuyerRefundCents
			sellerPortion := remaining - refundCents
			if sellerPortion > 0 {
				fee := domain.SplitFee(remainingFee, sellerPortion, remaining)
				if err := s.settle(ctx, tx, st, sellerPortion, fee); err != nil {
					return err
				}
			} else {
				st.to = domain.StatusRefunded
			}
			if refundCents > 0 {
				if err := s.refund(ctx, tx, st, refundCents); err != nil {
					return err
				}
			}
		}

		now := s.now()
		outcome := res.Outcome
		resolver := actor.ID
		d.Status = domain.DisputeResolved
		d.Outcome = &outcome
		d.BuyerRefundCents = &refundCents
		d.ResolvedBy = &resolver
		d.ResolvedAt = &now
		if note := strings.TrimSpace(res.Note); note != "" {
			d.ResolutionNote = &note
		}
		return tx.Disputes().Update(ctx, d)
	})
}

// GetDispute returns the latest dispute of the agreement.
func (s *Service) GetDispute(ctx context.Context, actor domain.Actor, escrowID string) (*domain.Dispute, error) {
	if _, err := s.Get(ctx, actor, escrowID); err != nil {
		return nil, err
	}
	var out *domain.Dispute
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		out, err = tx.Disputes().GetLatestByEscrow(ctx, escrowID)
		return err
	})
	return out, err
}
