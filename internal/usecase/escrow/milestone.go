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

// CreateMilestones splits a funded agreement into staged releases. The
// milestone amounts are what the seller receives and must add up to the net
// amount; the fee is spread across them pro rata.
func (s *Service) CreateMilestones(ctx context.Context, actor domain.Actor, escrowID string, inputs []domain.MilestoneInput, key string) (*domain.EscrowAgreement, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("at least one milestone is required: %w", xerrors.ErrInvalidInput)
	}
	amounts := make([]int64, len(inputs))
	var sum int64
	for i, in := range inputs {
		if strings.TrimSpace(in.Name) == "" {
			return nil, fmt.Errorf("milestone %d has no name: %w", i+1, xerrors.ErrInvalidInput)
		}
		if !domain.ValidAmount(in.AmountCents) {
			return nil, fmt.Errorf("milestone %d amount %d outside 1..%d: %w", i+1, in.AmountCents, domain.MaxAmountCents, xerrors.ErrInvalidInput)
		}
		amounts[i] = in.AmountCents
		sum += in.AmountCents
		if sum > domain.MaxAmountCents {
			return nil, fmt.Errorf("milestones total exceeds %d: %w", domain.MaxAmountCents, xerrors.ErrInvalidInput)
		}
	}

	return s.transition(ctx, actor, escrowID, domain.EventCreateMilestones, key, func(ctx context.Context, tx repository.Tx, st *step) error {
		e := st.e
		if e.HasMilestones() {
			return fmt.Errorf("escrow %s already has milestones: %w", e.ID, xerrors.ErrInvalidTransition)
		}
		if sum > e.AmountCents {
			return fmt.Errorf("milestones total %d exceeds amount %d: %w", sum, e.AmountCents, xerrors.ErrInvalidInput)
		}
		if sum != e.NetAmountCents {
			return fmt.Errorf("milestones total %d must equal net amount %d: %w", sum, e.NetAmountCents, xerrors.ErrInvalidInput)
		}

		fees := domain.MilestoneFees(e.FeeCents, e.NetAmountCents, amounts)
		now := s.now()
		ms := make([]*domain.Milestone, len(inputs))
		for i, in := range inputs {
			ms[i] = &domain.Milestone{
				ID:          id.GenerateUUID(id.PrefixMilestone),
				EscrowID:    e.ID,
				Name:        strings.TrimSpace(in.Name),
				Description: strings.TrimSpace(in.Description),
				AmountCents: in.AmountCents,
				FeeCents:    fees[i],
				Position:    i + 1,
				Status:      domain.MilestonePending,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
		}
		if err := tx.Milestones().CreateBatch(ctx, ms); err != nil {
			return err
		}
		e.Milestones = ms

		ev := domain.EscrowEvent(domain.EventMilestonesCreated, e, actor.ID, sum, now)
		st.events = append(st.events, ev)
		return nil
	})
}

func findMilestone(e *domain.EscrowAgreement, milestoneID string) (*domain.Milestone, error) {
	for _, m := range e.Milestones {
		if m.ID == milestoneID {
			return m, nil
		}
	}
	return nil, fmt.Errorf("milestone %s on escrow %s: %w", milestoneID, e.ID, xerrors.ErrNotFound)
}

// CompleteMilestone is the seller's attestation that the work is done. No
// funds move.
func (s *Service) CompleteMilestone(ctx context.Context, actor domain.Actor, escrowID, milestoneID, key string) (*domain.EscrowAgreement, error) {
	return s.transition(ctx, actor, escrowID, domain.EventCompleteMilestone, key, func(ctx context.Context, tx repository.Tx, st *step) error {
		m, err := findMilestone(st.e, milestoneID)
		if err != nil {
			return err
		}
		if m.Status != domain.MilestonePending {
			return fmt.Errorf("milestone %s is %s: %w", m.ID, m.Status, xerrors.ErrInvalidTransition)
		}
		now := s.now()
		m.Status = domain.MilestoneCompleted
		m.CompletedAt = &now
		m.UpdatedAt = now
		if err := tx.Milestones().Update(ctx, m); err != nil {
			return err
		}

		ev := domain.EscrowEvent(domain.EventMilestoneCompleted, st.e, actor.ID, m.AmountCents, now)
		ev.MilestoneID = m.ID
		st.events = append(st.events, ev)
		return nil
	})
}

// ReleaseMilestone settles one completed milestone to the seller. Releasing
// the last one moves the agreement to RELEASED.
func (s *Service) ReleaseMilestone(ctx context.Context, actor domain.Actor, escrowID, milestoneID, key string) (*domain.EscrowAgreement, error) {
	return s.transition(ctx, actor, escrowID, domain.EventReleaseMilestone, key, func(ctx context.Context, tx repository.Tx, st *step) error {
		m, err := findMilestone(st.e, milestoneID)
		if err != nil {
			return err
		}
		if m.Status != domain.MilestoneCompleted {
			return fmt.Errorf("milestone %s is %s, must be completed first: %w", m.ID, m.Status, xerrors.ErrInvalidTransition)
		}
		if err := s.settle(ctx, tx, st, m.GrossCents(), m.FeeCents); err != nil {
			return err
		}

		now := s.now()
		m.Status = domain.MilestoneReleased
		m.ReleasedAt = &now
		m.UpdatedAt = now
		if err := tx.Milestones().Update(ctx, m); err != nil {
			return err
		}

		ev := domain.EscrowEvent(domain.EventMilestoneReleased, st.e, actor.ID, m.AmountCents, now)
		ev.MilestoneID = m.ID
		st.events = append(st.events, ev)

		for _, other := range st.e.Milestones {
			if other.Status != domain.MilestoneReleased {
				return nil
			}
		}
		if st.e.RemainingCents() != 0 {
			return fmt.Errorf("escrow %s has %d unsettled after last milestone: %w", st.e.ID, st.e.RemainingCents(), xerrors.ErrInvariantViolation)
		}
		st.to = domain.StatusReleased
		done := *st.e
		done.Status = domain.StatusReleased
		st.events = append(st.events, domain.EscrowEvent(domain.EventEscrowReleased, &done, actor.ID, st.e.NetAmountCents, now))
		return nil
	})
}

func (s *Service) ListMilestones(ctx context.Context, actor domain.Actor, escrowID string) ([]*domain.Milestone, error) {
	e, err := s.Get(ctx, actor, escrowID)
	if err != nil {
		return nil, err
	}
	return e.Milestones, nil
}
