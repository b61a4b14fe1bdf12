package domain

type Event string

const (
	EventCreate            Event = "create"
	EventFund              Event = "fund"
	EventShip              Event = "ship"
	EventDeliver           Event = "deliver"
	EventRelease           Event = "release"
	EventRefund            Event = "refund"
	EventCancel            Event = "cancel"
	EventDispute           Event = "dispute"
	EventResolveRelease    Event = "resolve_release"
	EventResolveRefund     Event = "resolve_refund"
	EventResolveSplit      Event = "resolve_split"
	EventCreateMilestones  Event = "create_milestones"
	EventCompleteMilestone Event = "complete_milestone"
	EventReleaseMilestone  Event = "release_milestone"
)

type Party string

const (
	PartyBuyer  Party = "buyer"
	PartySeller Party = "seller"
	PartyAdmin  Party = "admin"
)

// Rule is one row of the transition table. An empty To keeps the status.
type Rule struct {
	Event   Event
	From    []EscrowStatus
	Parties []Party
	To      EscrowStatus
}

var openStatuses = []EscrowStatus{StatusFunded, StatusShipped, StatusDelivered}

// Transitions is the full lifecycle policy. EventCreate has no row: it only
// appears in the audit trail. Authorization and state checks
// are both derived from it.
var Transitions = []Rule{
	{EventFund, []EscrowStatus{StatusAwaitingFunding}, []Party{PartyBuyer}, StatusFunded},
	{EventShip, []EscrowStatus{StatusFunded}, []Party{PartySeller}, StatusShipped},
	{EventDeliver, []EscrowStatus{StatusShipped}, []Party{PartyBuyer}, StatusDelivered},
	{EventRelease, []EscrowStatus{StatusDelivered}, []Party{PartyBuyer}, StatusReleased},
	{EventDispute, openStatuses, []Party{PartyBuyer, PartySeller}, StatusDisputed},
	{EventResolveRelease, []EscrowStatus{StatusDisputed}, []Party{PartyAdmin}, StatusReleased},
	{EventResolveRefund, []EscrowStatus{StatusDisputed}, []Party{PartyAdmin}, StatusRefunded},
	{EventResolveSplit, []EscrowStatus{StatusDisputed}, []Party{PartyAdmin}, StatusReleased},
	{EventRefund, openStatuses, []Party{PartyAdmin}, StatusRefunded},
	{EventCancel, []EscrowStatus{StatusAwaitingFunding}, []Party{PartyBuyer, PartySeller}, StatusCancelled},
	{EventCreateMilestones, []EscrowStatus{StatusFunded}, []Party{PartyBuyer, PartySeller}, ""},
	{EventCompleteMilestone, openStatuses, []Party{PartySeller}, ""},
	{EventReleaseMilestone, openStatuses, []Party{PartyBuyer}, ""},
}

func ruleFor(ev Event) (Rule, bool) {
	for _, r := range Transitions {
		if r.Event == ev {
			return r, true
		}
	}
	return Rule{}, false
}

// Next returns the status reached by firing ev from from.
func Next(from EscrowStatus, ev Event) (EscrowStatus, bool) {
	r, ok := ruleFor(ev)
	if !ok {
		return "", false
	}
	for _, s := range r.From {
		if s == from {
			if r.To == "" {
				return from, true
			}
			return r.To, true
		}
	}
	return "", false
}

// PartiesOf lists the roles the actor holds on the agreement.
func PartiesOf(actor Actor, e *EscrowAgreement) []Party {
	var ps []Party
	if actor.ID != "" && actor.ID == e.BuyerID {
		ps = append(ps, PartyBuyer)
	}
	if actor.ID != "" && actor.ID == e.SellerID {
		ps = append(ps, PartySeller)
	}
	if actor.IsAdmin() {
		ps = append(ps, PartyAdmin)
	}
	return ps
}

// Authorize reports whether actor may fire ev on e. It does not look at the
// agreement status; Next does that.
func Authorize(actor Actor, ev Event, e *EscrowAgreement) bool {
	r, ok := ruleFor(ev)
	if !ok || e == nil {
		return false
	}
	for _, have := range PartiesOf(actor, e) {
		for _, want := range r.Parties {
			if have == want {
				return true
			}
		}
	}
	return false
}

// CanView reports whether actor may read e.
func CanView(actor Actor, e *EscrowAgreement) bool {
	return actor.IsAdmin() || e.IsParticipant(actor.ID)
}
