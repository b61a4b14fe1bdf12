package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"escrow-service/internal/domain"
	"escrow-service/internal/repository"
	xerrors "escrow-service/shared/utils/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedWallet(t *testing.T, s *Store, id, owner string, available int64) {
	t.Helper()
	err := s.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		return tx.Wallets().Create(ctx, &domain.Wallet{ID: id, OwnerID: owner, Currency: "GHS", AvailableCents: available})
	})
	require.NoError(t, err)
}

func TestWithinTx_RollbackDiscardsStagedWrites(t *testing.T) {
	s := NewStore(time.Second, nil)
	seedWallet(t, s, "w1", "alice", 100)

	boom := errors.New("boom")
	err := s.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		ws, err := tx.Wallets().LockForUpdate(ctx, "w1")
		require.NoError(t, err)
		w := ws["w1"]
		w.AvailableCents = 0
		w.PendingCents = 100
		require.NoError(t, tx.Wallets().Update(ctx, w))
		require.NoError(t, tx.Ledger().Append(ctx, &domain.LedgerEntry{ID: "l1", WalletID: "w1", Bucket: domain.BucketPending, DeltaCents: 100}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_ = s.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		w, err := tx.Wallets().Get(ctx, "w1")
		require.NoError(t, err)
		assert.Equal(t, int64(100), w.AvailableCents)
		assert.Equal(t, int64(0), w.PendingCents)
		sums, err := tx.Ledger().SumByWallet(ctx, "w1")
		require.NoError(t, err)
		assert.Equal(t, int64(0), sums.Total())
		return nil
	})
}

func TestLockForUpdate_TimesOutWithBusy(t *testing.T) {
	s := NewStore(50*time.Millisecond, nil)
	seedWallet(t, s, "w1", "alice", 100)

	locked := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = s.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
			_, err := tx.Wallets().LockForUpdate(ctx, "w1")
			close(locked)
			<-done
			return err
		})
	}()
	<-locked

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		_, err := tx.Wallets().LockForUpdate(ctx, "w1")
		return err
	})
	close(done)
	require.ErrorIs(t, err, xerrors.ErrBusy)
	assert.True(t, xerrors.IsRetryable(err))
}

func TestWithinTx_CancelledBeforeLock(t *testing.T) {
	s := NewStore(time.Second, nil)
	seedWallet(t, s, "w1", "alice", 100)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := s.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestWalletCreate_OwnerIsUnique(t *testing.T) {
	s := NewStore(time.Second, nil)
	seedWallet(t, s, "w1", "alice", 0)

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		return tx.Wallets().Create(ctx, &domain.Wallet{ID: "w2", OwnerID: "alice", Currency: "GHS"})
	})
	require.ErrorIs(t, err, xerrors.ErrConflict)
}

func TestTransitionKey_IsUniquePerActor(t *testing.T) {
	s := NewStore(time.Second, nil)
	key := "k-1"
	appendKey := func(id, actorID string) error {
		return s.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
			return tx.Transitions().Append(ctx, &domain.EscrowTransition{ID: id, EscrowID: "e1", Event: domain.EventFund, ActorID: actorID, IdempotencyKey: &key})
		})
	}
	require.NoError(t, appendKey("t1", "b1"))
	require.ErrorIs(t, appendKey("t2", "b1"), xerrors.ErrConflict)
	require.NoError(t, appendKey("t3", "b2"))

	_ = s.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		tr, err := tx.Transitions().FindByKey(ctx, "b1", key)
		require.NoError(t, err)
		assert.Equal(t, "t1", tr.ID)
		tr, err = tx.Transitions().FindByKey(ctx, "b2", key)
		require.NoError(t, err)
		assert.Equal(t, "t3", tr.ID)
		_, err = tx.Transitions().FindByKey(ctx, "b3", key)
		require.ErrorIs(t, err, xerrors.ErrNotFound)
		return nil
	})
}

func TestDisputes_OneOpenPerEscrow(t *testing.T) {
	s := NewStore(time.Second, nil)
	create := func(id string) error {
		return s.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
			return tx.Disputes().Create(ctx, &domain.Dispute{ID: id, EscrowID: "e1", Status: domain.DisputeOpen})
		})
	}
	require.NoError(t, create("d1"))
	require.ErrorIs(t, create("d2"), xerrors.ErrConflict)

	require.NoError(t, s.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		d, err := tx.Disputes().GetLatestByEscrow(ctx, "e1")
		require.NoError(t, err)
		d.Status = domain.DisputeResolved
		return tx.Disputes().Update(ctx, d)
	}))
	require.NoError(t, create("d3"))
}

func TestEscrowList_FiltersAndPages(t *testing.T) {
	s := NewStore(time.Second, nil)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		for i, seller := range []string{"s1", "s2", "s1"} {
			e := &domain.EscrowAgreement{
				ID: "e" + string(rune('1'+i)), BuyerID: "b1", SellerID: seller,
				AmountCents: int64(100 * (i + 1)), Currency: "GHS", Status: domain.StatusAwaitingFunding,
				Description: []string{"Blue bicycle", "laptop", "bike helmet"}[i],
				CreatedAt:   base.Add(time.Duration(i) * time.Minute),
			}
			if err := tx.Escrows().Create(ctx, e); err != nil {
				return err
			}
		}
		return nil
	}))

	_ = s.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		all, err := tx.Escrows().List(ctx, domain.EscrowFilter{ParticipantID: "b1"})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "e3", all[0].ID)

		s1, err := tx.Escrows().List(ctx, domain.EscrowFilter{ParticipantID: "s1", Role: "seller"})
		require.NoError(t, err)
		assert.Len(t, s1, 2)

		asBuyer, err := tx.Escrows().List(ctx, domain.EscrowFilter{ParticipantID: "s1", Role: "buyer"})
		require.NoError(t, err)
		assert.Empty(t, asBuyer)

		paged, err := tx.Escrows().List(ctx, domain.EscrowFilter{Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, paged, 1)
		assert.Equal(t, "e2", paged[0].ID)

		ranged, err := tx.Escrows().List(ctx, domain.EscrowFilter{MinAmountCents: 200, MaxAmountCents: 300})
		require.NoError(t, err)
		assert.Equal(t, []string{"e3", "e2"}, ids(ranged))

		window, err := tx.Escrows().List(ctx, domain.EscrowFilter{CreatedFrom: base, CreatedTo: base.Add(2 * time.Minute)})
		require.NoError(t, err)
		assert.Equal(t, []string{"e2", "e1"}, ids(window))

		bikes, err := tx.Escrows().List(ctx, domain.EscrowFilter{Search: "BI"})
		require.NoError(t, err)
		assert.Equal(t, []string{"e3", "e1"}, ids(bikes))

		byID, err := tx.Escrows().List(ctx, domain.EscrowFilter{Search: "e2"})
		require.NoError(t, err)
		assert.Equal(t, []string{"e2"}, ids(byID))

		usd, err := tx.Escrows().List(ctx, domain.EscrowFilter{Currency: "USD"})
		require.NoError(t, err)
		assert.Empty(t, usd)
		return nil
	})
}

func ids(es []*domain.EscrowAgreement) []string {
	out := make([]string, 0, len(es))
	for _, e := range es {
		out = append(out, e.ID)
	}
	return out
}
