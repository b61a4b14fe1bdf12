package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newAgreement() *EscrowAgreement {
	return &EscrowAgreement{ID: "esc_1", BuyerID: "buyer", SellerID: "seller", Status: StatusAwaitingFunding}
}

func TestNext_LegalTransitions(t *testing.T) {
	cases := []struct {
		from EscrowStatus
		ev   Event
		to   EscrowStatus
	}{
		{StatusAwaitingFunding, EventFund, StatusFunded},
		{StatusFunded, EventShip, StatusShipped},
		{StatusShipped, EventDeliver, StatusDelivered},
		{StatusDelivered, EventRelease, StatusReleased},
		{StatusFunded, EventDispute, StatusDisputed},
		{StatusShipped, EventDispute, StatusDisputed},
		{StatusDelivered, EventDispute, StatusDisputed},
		{StatusDisputed, EventResolveRelease, StatusReleased},
		{StatusDisputed, EventResolveRefund, StatusRefunded},
		{StatusFunded, EventRefund, StatusRefunded},
		{StatusDelivered, EventRefund, StatusRefunded},
		{StatusAwaitingFunding, EventCancel, StatusCancelled},
		{StatusShipped, EventReleaseMilestone, StatusShipped},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"/"+string(tc.ev), func(t *testing.T) {
			to, ok := Next(tc.from, tc.ev)
			assert.True(t, ok)
			assert.Equal(t, tc.to, to)
		})
	}
}

func TestNext_IllegalTransitions(t *testing.T) {
	illegal := []struct {
		from EscrowStatus
		ev   Event
	}{
		{StatusAwaitingFunding, EventShip},
		{StatusFunded, EventRelease},
		{StatusFunded, EventFund},
		{StatusDisputed, EventRelease},
		{StatusDisputed, EventRefund},
		{StatusDisputed, EventReleaseMilestone},
		{StatusFunded, EventCancel},
		{StatusAwaitingFunding, EventDispute},
		{StatusShipped, EventCreateMilestones},
	}
	for _, tc := range illegal {
		_, ok := Next(tc.from, tc.ev)
		assert.False(t, ok, "%s from %s", tc.ev, tc.from)
	}

	// terminal states accept nothing
	for _, s := range []EscrowStatus{StatusReleased, StatusRefunded, StatusCancelled} {
		assert.True(t, s.IsTerminal())
		for _, r := range Transitions {
			_, ok := Next(s, r.Event)
			assert.False(t, ok, "%s from terminal %s", r.Event, s)
		}
	}
}

func TestAuthorize(t *testing.T) {
	e := newAgreement()
	buyer := NewActor("buyer")
	seller := NewActor("seller")
	admin := NewActor("ops", "admin")
	stranger := NewActor("someone")

	assert.True(t, Authorize(buyer, EventFund, e))
	assert.False(t, Authorize(seller, EventFund, e))
	assert.True(t, Authorize(seller, EventShip, e))
	assert.False(t, Authorize(buyer, EventShip, e))
	assert.True(t, Authorize(buyer, EventRelease, e))
	assert.False(t, Authorize(admin, EventRelease, e))
	assert.True(t, Authorize(admin, EventRefund, e))
	assert.False(t, Authorize(buyer, EventRefund, e))
	assert.True(t, Authorize(buyer, EventCancel, e))
	assert.True(t, Authorize(seller, EventCancel, e))
	assert.True(t, Authorize(seller, EventDispute, e))
	assert.False(t, Authorize(stranger, EventDispute, e))
	assert.True(t, Authorize(admin, EventResolveSplit, e))
	assert.False(t, Authorize(buyer, EventResolveRelease, e))
	assert.True(t, Authorize(seller, EventCompleteMilestone, e))
	assert.False(t, Authorize(buyer, EventCompleteMilestone, e))
	assert.False(t, Authorize(stranger, Event("bogus"), e))
}

func TestStamp_SetsTimestampAndVersion(t *testing.T) {
	e := newAgreement()
	e.Stamp(StatusFunded, e.CreatedAt)
	assert.Equal(t, StatusFunded, e.Status)
	assert.NotNil(t, e.FundedAt)
	assert.Equal(t, int64(1), e.Version)

	c := e.Clone()
	c.Stamp(StatusShipped, e.CreatedAt)
	assert.Nil(t, e.ShippedAt)
	assert.Equal(t, StatusFunded, e.Status)
}
