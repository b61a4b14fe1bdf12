package domain

import "time"

type MilestoneStatus string

const (
	MilestonePending   MilestoneStatus = "PENDING"
	MilestoneCompleted MilestoneStatus = "COMPLETED"
	MilestoneReleased  MilestoneStatus = "RELEASED"
)

// Milestone is one staged partial release. AmountCents is what the seller
// receives; FeeCents is the platform share settled alongside it.
type Milestone struct {
	ID          string          `json:"id"`
	EscrowID    string          `json:"escrow_id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	AmountCents int64           `json:"amount_cents"`
	FeeCents    int64           `json:"fee_cents"`
	Position    int             `json:"position"`
	Status      MilestoneStatus `json:"status"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	ReleasedAt  *time.Time      `json:"released_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type MilestoneInput struct {
	Name        string
	Description string
	AmountCents int64
}

func (m *Milestone) GrossCents() int64 {
	return m.AmountCents + m.FeeCents
}

func (m *Milestone) Clone() *Milestone {
	if m == nil {
		return nil
	}
	c := *m
	c.CompletedAt = cloneTime(m.CompletedAt)
	c.ReleasedAt = cloneTime(m.ReleasedAt)
	return &c
}
