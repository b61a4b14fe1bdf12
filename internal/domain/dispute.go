package domain

import "time"

type DisputeStatus string

const (
	DisputeOpen     DisputeStatus = "OPEN"
	DisputeResolved DisputeStatus = "RESOLVED"
)

type DisputeReason string

const (
	ReasonNotReceived DisputeReason = "NOT_RECEIVED"
	ReasonDamaged     DisputeReason = "DAMAGED"
	ReasonWrongItem   DisputeReason = "WRONG_ITEM"
	ReasonOther       DisputeReason = "OTHER"
)

func (r DisputeReason) Valid() bool {
	switch r {
	case ReasonNotReceived, ReasonDamaged, ReasonWrongItem, ReasonOther:
		return true
	}
	return false
}

type DisputeOutcome string

const (
	OutcomeRelease DisputeOutcome = "RELEASE"
	OutcomeRefund  DisputeOutcome = "REFUND"
	OutcomeSplit   DisputeOutcome = "SPLIT"
)

func (o DisputeOutcome) Valid() bool {
	return o == OutcomeRelease || o == OutcomeRefund || o == OutcomeSplit
}

type Dispute struct {
	ID               string          `json:"id"`
	EscrowID         string          `json:"escrow_id"`
	InitiatorID      string          `json:"initiator_id"`
	Reason           DisputeReason   `json:"reason"`
	Description      string          `json:"description,omitempty"`
	Status           DisputeStatus   `json:"status"`
	PriorStatus      EscrowStatus    `json:"prior_status"`
	Outcome          *DisputeOutcome `json:"outcome,omitempty"`
	BuyerRefundCents *int64          `json:"buyer_refund_cents,omitempty"`
	ResolvedBy       *string         `json:"resolved_by,omitempty"`
	ResolutionNote   *string         `json:"resolution_note,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	ResolvedAt       *time.Time      `json:"resolved_at,omitempty"`
}

type Resolution struct {
	Outcome          DisputeOutcome
	BuyerRefundCents int64
	Note             string
}

func (d *Dispute) Clone() *Dispute {
	if d == nil {
		return nil
	}
	c := *d
	if d.Outcome != nil {
		o := *d.Outcome
		c.Outcome = &o
	}
	if d.BuyerRefundCents != nil {
		v := *d.BuyerRefundCents
		c.BuyerRefundCents = &v
	}
	c.ResolvedBy = cloneString(d.ResolvedBy)
	c.ResolutionNote = cloneString(d.ResolutionNote)
	c.ResolvedAt = cloneTime(d.ResolvedAt)
	return &c
}
