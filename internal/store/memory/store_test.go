package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"credit-ledger-go/internal/models"
	"credit-ledger-go/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func grant(id, userId string, amount int64, created time.Time, expires *time.Time) *models.Entry {
	remaining := amount
	return &models.Entry{
		Id:              id,
		UserId:          userId,
		Type:            models.EntryTaskReward,
		Amount:          amount,
		RemainingAmount: &remaining,
		ExpirationDate:  expires,
		CreatedAt:       created,
		UpdatedAt:       created,
	}
}

func timePtr(t time.Time) *time.Time { return &t }

func TestWithTxRollsBackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.EnsureBalance(ctx, "u1", t0)
		require.NoError(t, err)
		require.NoError(t, tx.InsertEntry(ctx, grant("e1", "u1", 10, t0, nil)))
		require.NoError(t, tx.UpdateBalance(ctx, "u1", 10, t0))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetBalance(ctx, "u1")
	assert.ErrorIs(t, err, store.ErrBalanceNotFound)
	_, err = s.GetEntry(ctx, "u1", "e1")
	assert.ErrorIs(t, err, store.ErrEntryNotFound)
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	s := New()
	ctx := context.Background()

	assert.Panics(t, func() {
		_ = s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			_, _ = tx.EnsureBalance(ctx, "u1", t0)
			panic("kaboom")
		})
	})

	ids, err := s.ListUserIds(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRollbackRestoresRemainders(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, _ = tx.EnsureBalance(ctx, "u1", t0)
		return tx.InsertEntry(ctx, grant("e1", "u1", 10, t0, nil))
	}))

	_ = s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		require.NoError(t, tx.UpdateRemaining(ctx, "e1", 3, t0))
		return errors.New("abort")
	})

	e, err := s.GetEntry(ctx, "u1", "e1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), e.Remaining())
}

func TestNegativeWritesAreRejected(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, _ = tx.EnsureBalance(ctx, "u1", t0)
		require.NoError(t, tx.InsertEntry(ctx, grant("e1", "u1", 10, t0, nil)))
		assert.Error(t, tx.UpdateRemaining(ctx, "e1", -1, t0))
		assert.Error(t, tx.UpdateBalance(ctx, "u1", -1, t0))
		assert.ErrorIs(t, tx.UpdateBalance(ctx, "nobody", 1, t0), store.ErrBalanceNotFound)
		assert.Error(t, tx.InsertEntry(ctx, grant("e1", "u1", 1, t0, nil)), "duplicate id")
		return nil
	})
	require.NoError(t, err)
}

func TestSpendableAndExpiredEntries(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := t0.Add(48 * time.Hour)

	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, _ = tx.EnsureBalance(ctx, "u1", t0)
		for _, e := range []*models.Entry{
			grant("forever", "u1", 5, t0, nil),
			grant("late", "u1", 5, t0, timePtr(t0.AddDate(0, 0, 30))),
			grant("soon", "u1", 5, t0.Add(time.Minute), timePtr(t0.AddDate(0, 0, 7))),
			grant("gone", "u1", 5, t0, timePtr(t0.Add(time.Hour))),
			grant("other", "u2", 5, t0, timePtr(t0.Add(time.Hour))),
		} {
			require.NoError(t, tx.InsertEntry(ctx, e))
		}
		return nil
	}))

	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		spendable, err := tx.LockSpendableEntries(ctx, "u1", now)
		require.NoError(t, err)
		var ids []string
		for _, e := range spendable {
			ids = append(ids, e.Id)
		}
		assert.Equal(t, []string{"soon", "late", "forever"}, ids)

		expired, err := tx.LockExpiredEntries(ctx, "u1", now)
		require.NoError(t, err)
		require.Len(t, expired, 1)
		assert.Equal(t, "gone", expired[0].Id)

		return tx.MarkExpirationProcessed(ctx, "gone", now)
	}))

	users, err := s.ListUsersWithExpiredCredits(ctx, now, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"u2"}, users)

	sum, err := s.SumOutstanding(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(15), sum)
}

func TestListEntriesNewestFirstWithPaging(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		for i, id := range []string{"a", "b", "c"} {
			require.NoError(t, tx.InsertEntry(ctx, grant(id, "u1", 1, t0.Add(time.Duration(i)*time.Minute), nil)))
		}
		return nil
	}))

	entries, err := s.ListEntries(ctx, "u1", models.EntryFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "c", entries[0].Id)
	assert.Equal(t, "b", entries[1].Id)

	entries, err = s.ListEntries(ctx, "u1", models.EntryFilter{Offset: 2})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].Id)

	entries, err = s.ListEntries(ctx, "u1", models.EntryFilter{Since: t0.Add(time.Minute)})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestReturnedEntriesAreCopies(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertEntry(ctx, grant("e1", "u1", 10, t0, nil))
	}))

	e, err := s.GetEntry(ctx, "u1", "e1")
	require.NoError(t, err)
	*e.RemainingAmount = 0

	again, err := s.GetEntry(ctx, "u1", "e1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), again.Remaining())
}

func TestSetFailure(t *testing.T) {
	s := New()
	ctx := context.Background()
	down := errors.New("down")

	s.SetFailure(down)
	assert.ErrorIs(t, s.Ping(ctx), down)
	_, err := s.GetBalance(ctx, "u1")
	assert.ErrorIs(t, err, down)
	assert.ErrorIs(t, s.WithTx(ctx, func(context.Context, store.Tx) error { return nil }), down)

	s.SetFailure(nil)
	assert.NoError(t, s.Ping(ctx))
}

func TestHasRefundReferencing(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		amount := int64(5)
		require.NoError(t, tx.InsertEntry(ctx, &models.Entry{
			Id: "r1", UserId: "u1", Type: models.EntryRefund, Amount: 5, RemainingAmount: &amount,
			Description: "Refund: failed [original:tx_42]", CreatedAt: t0,
		}))

		found, err := tx.HasRefundReferencing(ctx, "u1", "tx_42")
		require.NoError(t, err)
		assert.True(t, found)

		found, err = tx.HasRefundReferencing(ctx, "u2", "tx_42")
		require.NoError(t, err)
		assert.False(t, found)

		require.NoError(t, tx.InsertEntry(ctx, &models.Entry{
			Id: "r2", UserId: "u1", Type: models.EntryRefund, Amount: 5, RemainingAmount: &amount,
			Description: "Refund: goodwill, see ticket about tx_7", CreatedAt: t0,
		}))
		found, err = tx.HasRefundReferencing(ctx, "u1", "tx_7")
		require.NoError(t, err)
		assert.False(t, found)

		found, err = tx.HasRefundReferencing(ctx, "u1", "tx_4")
		require.NoError(t, err)
		assert.False(t, found)
		return nil
	}))
}
