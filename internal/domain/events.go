package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventEscrowCreated      EventType = "EscrowCreated"
	EventEscrowFunded       EventType = "EscrowFunded"
	EventEscrowShipped      EventType = "EscrowShipped"
	EventEscrowDelivered    EventType = "EscrowDelivered"
	EventEscrowReleased     EventType = "EscrowReleased"
	EventEscrowRefunded     EventType = "EscrowRefunded"
	EventEscrowCancelled    EventType = "EscrowCancelled"
	EventDisputeOpened      EventType = "DisputeOpened"
	EventDisputeResolved    EventType = "DisputeResolved"
	EventMilestonesCreated  EventType = "MilestonesCreated"
	EventMilestoneCompleted EventType = "MilestoneCompleted"
	EventMilestoneReleased  EventType = "MilestoneReleased"
	EventWalletDeposited    EventType = "WalletDeposited"
	EventWalletWithdrawn    EventType = "WalletWithdrawn"
)

// DomainEvent is emitted after a committed change. Delivery is best effort.
type DomainEvent struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	EscrowID    string    `json:"escrow_id,omitempty"`
	WalletID    string    `json:"wallet_id,omitempty"`
	MilestoneID string    `json:"milestone_id,omitempty"`
	ActorID     string    `json:"actor_id"`
	UserIDs     []string  `json:"user_ids"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency,omitempty"`
	Status      string    `json:"status,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

func NewEvent(t EventType, actorID string, at time.Time) DomainEvent {
	return DomainEvent{
		ID:         uuid.NewString(),
		Type:       t,
		ActorID:    actorID,
		OccurredAt: at,
	}
}

// EscrowEvent builds an event addressed to both participants.
func EscrowEvent(t EventType, e *EscrowAgreement, actorID string, amountCents int64, at time.Time) DomainEvent {
	ev := NewEvent(t, actorID, at)
	ev.EscrowID = e.ID
	ev.UserIDs = []string{e.BuyerID, e.SellerID}
	ev.AmountCents = amountCents
	ev.Currency = e.Currency
	ev.Status = string(e.Status)
	return ev
}

var transitionEvents = map[Event]EventType{
	EventFund:           EventEscrowFunded,
	EventShip:           EventEscrowShipped,
	EventDeliver:        EventEscrowDelivered,
	EventRelease:        EventEscrowReleased,
	EventRefund:         EventEscrowRefunded,
	EventCancel:         EventEscrowCancelled,
	EventDispute:        EventDisputeOpened,
	EventResolveRelease: EventDisputeResolved,
	EventResolveRefund:  EventDisputeResolved,
	EventResolveSplit:   EventDisputeResolved,
}

// EventTypeFor maps a lifecycle event to the domain event it publishes.
func EventTypeFor(ev Event) (EventType, bool) {
	t, ok := transitionEvents[ev]
	return t, ok
}
