package domain

import (
	"strings"
	"time"
)

type EscrowStatus string

const (
	StatusAwaitingFunding EscrowStatus = "AWAITING_FUNDING"
	StatusFunded          EscrowStatus = "FUNDED"
	StatusShipped         EscrowStatus = "SHIPPED"
	StatusDelivered       EscrowStatus = "DELIVERED"
	StatusDisputed        EscrowStatus = "DISPUTED"
	StatusReleased        EscrowStatus = "RELEASED"
	StatusRefunded        EscrowStatus = "REFUNDED"
	StatusCancelled       EscrowStatus = "CANCELLED"
)

// IsTerminal reports whether no further transition may leave s.
func (s EscrowStatus) IsTerminal() bool {
	return s == StatusReleased || s == StatusRefunded || s == StatusCancelled
}

// IsOpen reports whether funds are held and the agreement is in flight.
func (s EscrowStatus) IsOpen() bool {
	return s == StatusFunded || s == StatusShipped || s == StatusDelivered
}

func (s EscrowStatus) Valid() bool {
	switch s {
	case StatusAwaitingFunding, StatusFunded, StatusShipped, StatusDelivered,
		StatusDisputed, StatusReleased, StatusRefunded, StatusCancelled:
		return true
	}
	return false
}

// EscrowAgreement holds buyer funds until delivery conditions are met.
// NetAmountCents + FeeCents == AmountCents at all times.
type EscrowAgreement struct {
	ID              string       `json:"id"`
	BuyerID         string       `json:"buyer_id"`
	SellerID        string       `json:"seller_id"`
	AmountCents     int64        `json:"amount_cents"`
	Currency        string       `json:"currency"`
	FeeCents        int64        `json:"fee_cents"`
	NetAmountCents  int64        `json:"net_amount_cents"`
	Status          EscrowStatus `json:"status"`
	Description     string       `json:"description,omitempty"`
	TrackingNumber  *string      `json:"tracking_number,omitempty"`
	Carrier         *string      `json:"carrier,omitempty"`
	RefundReason    *string      `json:"refund_reason,omitempty"`
	SettledCents    int64        `json:"settled_cents"`     // gross already paid out through milestones
	SettledFeeCents int64        `json:"settled_fee_cents"` // fee part of SettledCents
	Version         int64        `json:"version"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	FundedAt    *time.Time `json:"funded_at,omitempty"`
	ShippedAt   *time.Time `json:"shipped_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	DisputedAt  *time.Time `json:"disputed_at,omitempty"`
	ReleasedAt  *time.Time `json:"released_at,omitempty"`
	RefundedAt  *time.Time `json:"refunded_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`

	Milestones []*Milestone `json:"milestones,omitempty"`
}

func (e *EscrowAgreement) IsParticipant(userID string) bool {
	return userID != "" && (userID == e.BuyerID || userID == e.SellerID)
}

// RemainingCents is the part of the held amount not yet settled.
func (e *EscrowAgreement) RemainingCents() int64 {
	return e.AmountCents - e.SettledCents
}

func (e *EscrowAgreement) RemainingFeeCents() int64 {
	return e.FeeCents - e.SettledFeeCents
}

func (e *EscrowAgreement) HasMilestones() bool {
	return len(e.Milestones) > 0
}

// Stamp moves the agreement to status and records the timestamp for it.
// Stamping the current status only bumps the version.
func (e *EscrowAgreement) Stamp(status EscrowStatus, at time.Time) {
	e.UpdatedAt = at
	e.Version++
	if status == e.Status {
		return
	}
	e.Status = status
	t := at
	switch status {
	case StatusFunded:
		e.FundedAt = &t
	case StatusShipped:
		e.ShippedAt = &t
	case StatusDelivered:
		e.DeliveredAt = &t
	case StatusDisputed:
		e.DisputedAt = &t
	case StatusReleased:
		e.ReleasedAt = &t
	case StatusRefunded:
		e.RefundedAt = &t
	case StatusCancelled:
		e.CancelledAt = &t
	}
}

// Clone returns a deep copy safe to mutate.
func (e *EscrowAgreement) Clone() *EscrowAgreement {
	if e == nil {
		return nil
	}
	c := *e
	c.TrackingNumber = cloneString(e.TrackingNumber)
	c.Carrier = cloneString(e.Carrier)
	c.RefundReason = cloneString(e.RefundReason)
	c.FundedAt = cloneTime(e.FundedAt)
	c.ShippedAt = cloneTime(e.ShippedAt)
	c.DeliveredAt = cloneTime(e.DeliveredAt)
	c.DisputedAt = cloneTime(e.DisputedAt)
	c.ReleasedAt = cloneTime(e.ReleasedAt)
	c.RefundedAt = cloneTime(e.RefundedAt)
	c.CancelledAt = cloneTime(e.CancelledAt)
	if e.Milestones != nil {
		c.Milestones = make([]*Milestone, len(e.Milestones))
		for i, m := range e.Milestones {
			c.Milestones[i] = m.Clone()
		}
	}
	return &c
}

// EscrowTransition is the audit row written with every committed transition.
type EscrowTransition struct {
	ID             string       `json:"id"`
	EscrowID       string       `json:"escrow_id"`
	Event          Event        `json:"event"`
	FromStatus     EscrowStatus `json:"from_status"`
	ToStatus       EscrowStatus `json:"to_status"`
	ActorID        string       `json:"actor_id"`
	IdempotencyKey *string      `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

type EscrowFilter struct {
	Status EscrowStatus
	// ParticipantID restricts to agreements where the user is buyer or seller.
	ParticipantID string
	// Role narrows ParticipantID to "buyer" or "seller".
	Role     string
	Currency string
	// Zero bounds are open. Amount bounds are inclusive.
	MinAmountCents int64
	MaxAmountCents int64
	// CreatedFrom is inclusive, CreatedTo exclusive.
	CreatedFrom time.Time
	CreatedTo   time.Time
	// Search matches the id exactly or the description case-insensitively.
	Search string
	Limit  int
	Offset int
}

// Matches applies every filter except paging.
func (f EscrowFilter) Matches(e *EscrowAgreement) bool {
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if f.ParticipantID != "" {
		switch f.Role {
		case string(PartyBuyer):
			if e.BuyerID != f.ParticipantID {
				return false
			}
		case string(PartySeller):
			if e.SellerID != f.ParticipantID {
				return false
			}
		default:
			if !e.IsParticipant(f.ParticipantID) {
				return false
			}
		}
	}
	if f.Currency != "" && e.Currency != f.Currency {
		return false
	}
	if f.MinAmountCents > 0 && e.AmountCents < f.MinAmountCents {
		return false
	}
	if f.MaxAmountCents > 0 && e.AmountCents > f.MaxAmountCents {
		return false
	}
	if !f.CreatedFrom.IsZero() && e.CreatedAt.Before(f.CreatedFrom) {
		return false
	}
	if !f.CreatedTo.IsZero() && !e.CreatedAt.Before(f.CreatedTo) {
		return false
	}
	if f.Search != "" && e.ID != f.Search &&
		!strings.Contains(strings.ToLower(e.Description), strings.ToLower(f.Search)) {
		return false
	}
	return true
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
