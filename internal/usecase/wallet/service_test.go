package wallet

import (
	"context"
	"sync"
	"testing"
	"time"

	"escrow-service/internal/domain"
	"escrow-service/internal/repository"
	"escrow-service/internal/repository/memory"
	xerrors "escrow-service/shared/utils/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var admin = domain.NewActor("ops", domain.RoleAdmin)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore(200*time.Millisecond, nil)
	svc := NewService(store, nil, nil, Config{Currency: "GHS", PlatformOwnerID: "platform"}, nil)
	_, err := svc.EnsurePlatformWallet(context.Background())
	require.NoError(t, err)
	return svc, store
}

func funded(t *testing.T, svc *Service, owner string, cents int64) *domain.Wallet {
	t.Helper()
	w, err := svc.GetOrCreate(context.Background(), owner)
	require.NoError(t, err)
	if cents > 0 {
		w, err = svc.Deposit(context.Background(), admin, w.ID, cents, "seed")
		require.NoError(t, err)
	}
	return w
}

func reload(t *testing.T, svc *Service, walletID string) *domain.Wallet {
	t.Helper()
	w, err := svc.Get(context.Background(), admin, walletID)
	require.NoError(t, err)
	return w
}

func TestHoldRelease_RoundTrip(t *testing.T) {
	svc, store := newTestService(t)
	w := funded(t, svc, "alice", 100000)
	ctx := context.Background()

	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return svc.Hold(ctx, tx, w.ID, 40000, "esc_1")
	}))
	mid := reload(t, svc, w.ID)
	assert.Equal(t, int64(60000), mid.AvailableCents)
	assert.Equal(t, int64(40000), mid.PendingCents)

	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return svc.Release(ctx, tx, w.ID, 40000, "esc_1")
	}))
	after := reload(t, svc, w.ID)
	assert.Equal(t, int64(100000), after.AvailableCents)
	assert.Equal(t, int64(0), after.PendingCents)

	_, err := svc.Reconcile(ctx, w.ID)
	require.NoError(t, err)
}

func TestHold_InsufficientFundsLeavesWalletUnchanged(t *testing.T) {
	svc, store := newTestService(t)
	w := funded(t, svc, "alice", 500)

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		return svc.Hold(ctx, tx, w.ID, 501, "esc_1")
	})
	require.ErrorIs(t, err, xerrors.ErrInsufficientFunds)

	after := reload(t, svc, w.ID)
	assert.Equal(t, int64(500), after.AvailableCents)
	assert.Equal(t, int64(0), after.PendingCents)
}

func TestSettle_CreditsSellerAndPlatform(t *testing.T) {
	svc, store := newTestService(t)
	buyer := funded(t, svc, "buyer", 100000)
	seller := funded(t, svc, "seller", 0)
	ctx := context.Background()

	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := svc.Hold(ctx, tx, buyer.ID, 100000, "esc_1"); err != nil {
			return err
		}
		return svc.Settle(ctx, tx, buyer.ID, seller.ID, 100000, 5000, "esc_1")
	}))

	b := reload(t, svc, buyer.ID)
	s := reload(t, svc, seller.ID)
	p, err := svc.GetOrCreate(ctx, "platform")
	require.NoError(t, err)

	assert.Equal(t, int64(0), b.TotalCents())
	assert.Equal(t, int64(95000), s.AvailableCents)
	assert.Equal(t, int64(5000), p.AvailableCents)

	checked, mismatched, err := svc.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, checked)
	assert.Empty(t, mismatched)
}

func TestSettle_FailureRollsBackBothSides(t *testing.T) {
	svc, store := newTestService(t)
	buyer := funded(t, svc, "buyer", 1000)
	seller := funded(t, svc, "seller", 0)

	// nothing pending, settle must fail and leave everything intact
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		return svc.Settle(ctx, tx, buyer.ID, seller.ID, 1000, 50, "esc_1")
	})
	require.ErrorIs(t, err, xerrors.ErrInvariantViolation)

	assert.Equal(t, int64(1000), reload(t, svc, buyer.ID).AvailableCents)
	assert.Equal(t, int64(0), reload(t, svc, seller.ID).AvailableCents)
}

func TestWithdraw(t *testing.T) {
	svc, _ := newTestService(t)
	w := funded(t, svc, "alice", 1000)
	alice := domain.NewActor("alice")
	ctx := context.Background()

	_, err := svc.Withdraw(ctx, alice, w.ID, 2000, "bank")
	require.ErrorIs(t, err, xerrors.ErrInsufficientFunds)

	_, err = svc.Withdraw(ctx, domain.NewActor("mallory"), w.ID, 10, "bank")
	require.ErrorIs(t, err, xerrors.ErrUnauthorized)

	out, err := svc.Withdraw(ctx, alice, w.ID, 400, "bank")
	require.NoError(t, err)
	assert.Equal(t, int64(600), out.AvailableCents)

	entries, err := svc.ListLedger(ctx, alice, w.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.ReasonWithdrawal, entries[0].Reason)
	assert.Equal(t, int64(-400), entries[0].DeltaCents)

	report, err := svc.Reconcile(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(600), report.Ledger.ExternalCents)
}

func TestDeposit_AdminOnly(t *testing.T) {
	svc, _ := newTestService(t)
	w := funded(t, svc, "alice", 0)

	_, err := svc.Deposit(context.Background(), domain.NewActor("alice"), w.ID, 100, "card")
	require.ErrorIs(t, err, xerrors.ErrUnauthorized)
}

func TestDeposit_RejectsAmountsAboveMaximum(t *testing.T) {
	svc, _ := newTestService(t)
	w := funded(t, svc, "alice", 0)
	ops := domain.NewActor("ops", domain.RoleAdmin)
	ctx := context.Background()

	_, err := svc.Deposit(ctx, ops, w.ID, domain.MaxAmountCents+1, "wire")
	require.ErrorIs(t, err, xerrors.ErrInvalidInput)

	out, err := svc.Deposit(ctx, ops, w.ID, domain.MaxAmountCents, "wire")
	require.NoError(t, err)
	assert.Equal(t, domain.MaxAmountCents, out.AvailableCents)
}

func TestReconcile_DetectsTamperedBalance(t *testing.T) {
	svc, store := newTestService(t)
	w := funded(t, svc, "alice", 1000)

	// bypass the wallet manager to corrupt the row
	require.NoError(t, store.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		row, err := tx.Wallets().Get(ctx, w.ID)
		if err != nil {
			return err
		}
		row.AvailableCents += 1
		return tx.Wallets().Update(ctx, row)
	}))

	report, err := svc.Reconcile(context.Background(), w.ID)
	require.ErrorIs(t, err, xerrors.ErrInvariantViolation)
	assert.False(t, report.Balanced)
	// never auto-corrected
	assert.Equal(t, int64(1001), reload(t, svc, w.ID).AvailableCents)
}

func TestConcurrentHolds_NeverOverdraw(t *testing.T) {
	svc, store := newTestService(t)
	w := funded(t, svc, "alice", 1000)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
				return svc.Hold(ctx, tx, w.ID, 100, "esc_x")
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	after := reload(t, svc, w.ID)
	assert.Equal(t, int64(1000), after.TotalCents())
	assert.Equal(t, int64(succeeded)*100, after.PendingCents)
	assert.LessOrEqual(t, succeeded, 10)
	_, err := svc.Reconcile(context.Background(), w.ID)
	require.NoError(t, err)
}

func TestGetOrCreate_OneWalletPerOwner(t *testing.T) {
	svc, _ := newTestService(t)
	a, err := svc.GetOrCreate(context.Background(), "alice")
	require.NoError(t, err)
	b, err := svc.GetOrCreate(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, "GHS", a.Currency)
}
