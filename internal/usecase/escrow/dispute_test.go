package escrow

import (
	"context"
	"testing"

	"escrow-service/internal/domain"
	xerrors "escrow-service/shared/utils/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) disputed(t *testing.T, amount int64) *domain.EscrowAgreement {
	t.Helper()
	e := f.funded(t, amount)
	_, err := f.svc.Ship(context.Background(), seller, e.ID, ShipInput{}, "")
	require.NoError(t, err)
	e, err = f.svc.OpenDispute(context.Background(), buyer, e.ID, DisputeInput{Reason: domain.ReasonDamaged, Description: "screen cracked"}, "")
	require.NoError(t, err)
	return e
}

func TestOpenDispute_FreezesLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.disputed(t, 10000)
	assert.Equal(t, domain.StatusDisputed, e.Status)
	assert.NotNil(t, e.DisputedAt)

	_, err := f.svc.Deliver(ctx, buyer, e.ID, "")
	require.ErrorIs(t, err, xerrors.ErrInvalidTransition)
	_, err = f.svc.Refund(ctx, admin, e.ID, "", "")
	require.ErrorIs(t, err, xerrors.ErrInvalidTransition)
	_, err = f.svc.OpenDispute(ctx, seller, e.ID, DisputeInput{Reason: domain.ReasonOther}, "")
	require.ErrorIs(t, err, xerrors.ErrInvalidTransition)

	d, err := f.svc.GetDispute(ctx, seller, e.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DisputeOpen, d.Status)
	assert.Equal(t, domain.StatusShipped, d.PriorStatus)
	assert.Equal(t, buyer.ID, d.InitiatorID)

	assert.Equal(t, int64(10000), f.balance(t, buyer.ID).PendingCents)
}

func TestOpenDispute_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.funded(t, 1000)

	_, err := f.svc.OpenDispute(ctx, buyer, e.ID, DisputeInput{Reason: "BORED"}, "")
	require.ErrorIs(t, err, xerrors.ErrInvalidInput)
	_, err = f.svc.OpenDispute(ctx, stranger, e.ID, DisputeInput{Reason: domain.ReasonOther}, "")
	require.ErrorIs(t, err, xerrors.ErrUnauthorized)

	pending, err := f.svc.Create(ctx, buyer, CreateInput{SellerID: seller.ID, AmountCents: 1000})
	require.NoError(t, err)
	_, err = f.svc.OpenDispute(ctx, buyer, pending.ID, DisputeInput{Reason: domain.ReasonOther}, "")
	require.ErrorIs(t, err, xerrors.ErrInvalidTransition)
}

func TestResolveDispute_Release(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.disputed(t, 100000)

	_, err := f.svc.ResolveDispute(ctx, buyer, e.ID, domain.Resolution{Outcome: domain.OutcomeRefund}, "")
	require.ErrorIs(t, err, xerrors.ErrUnauthorized)

	e, err = f.svc.ResolveDispute(ctx, admin, e.ID, domain.Resolution{Outcome: domain.OutcomeRelease, Note: "tracking confirms delivery"}, "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReleased, e.Status)
	assert.Equal(t, int64(95000), f.balance(t, seller.ID).AvailableCents)
	assert.Equal(t, int64(5000), f.balance(t, "platform").AvailableCents)

	d, err := f.svc.GetDispute(ctx, admin, e.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DisputeResolved, d.Status)
	require.NotNil(t, d.Outcome)
	assert.Equal(t, domain.OutcomeRelease, *d.Outcome)
	require.NotNil(t, d.ResolvedBy)
	assert.Equal(t, admin.ID, *d.ResolvedBy)
	f.reconciled(t)
}

func TestResolveDispute_Refund(t *testing.T) {
	f := newFixture(t)
	e := f.disputed(t, 40000)

	e, err := f.svc.ResolveDispute(context.Background(), admin, e.ID, domain.Resolution{Outcome: domain.OutcomeRefund}, "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRefunded, e.Status)
	assert.Equal(t, int64(40000), f.balance(t, buyer.ID).AvailableCents)
	assert.Equal(t, int64(0), f.balance(t, seller.ID).TotalCents())
	assert.Equal(t, int64(0), f.balance(t, "platform").TotalCents())
	f.reconciled(t)
}

func TestResolveDispute_Split(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.disputed(t, 100000)

	_, err := f.svc.ResolveDispute(ctx, admin, e.ID, domain.Resolution{Outcome: domain.OutcomeSplit, BuyerRefundCents: 100001}, "")
	require.ErrorIs(t, err, xerrors.ErrInvalidInput)
	_, err = f.svc.ResolveDispute(ctx, admin, e.ID, domain.Resolution{Outcome: "COIN_FLIP"}, "")
	require.ErrorIs(t, err, xerrors.ErrInvalidInput)

	e, err = f.svc.ResolveDispute(ctx, admin, e.ID, domain.Resolution{Outcome: domain.OutcomeSplit, BuyerRefundCents: 40000}, "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReleased, e.Status)

	// seller portion 60000 carries floor(5000*60000/100000) = 3000 fee
	assert.Equal(t, int64(40000), f.balance(t, buyer.ID).AvailableCents)
	assert.Equal(t, int64(57000), f.balance(t, seller.ID).AvailableCents)
	assert.Equal(t, int64(3000), f.balance(t, "platform").AvailableCents)
	assert.Equal(t, int64(0), f.balance(t, buyer.ID).PendingCents)
	f.reconciled(t)
}

func TestResolveDispute_SplitFullRefundEndsRefunded(t *testing.T) {
	f := newFixture(t)
	e := f.disputed(t, 5000)

	e, err := f.svc.ResolveDispute(context.Background(), admin, e.ID, domain.Resolution{Outcome: domain.OutcomeSplit, BuyerRefundCents: 5000}, "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRefunded, e.Status)
	assert.NotNil(t, e.RefundedAt)
	assert.Equal(t, int64(5000), f.balance(t, buyer.ID).AvailableCents)
	f.reconciled(t)
}
