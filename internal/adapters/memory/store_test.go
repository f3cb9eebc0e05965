package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendeuonline/vendeu-payments/internal/core/domain"
)

func TestChargeStore_CompareAndSwap(t *testing.T) {
	s := NewChargeStore()
	ctx := context.Background()
	require.NoError(t, s.SaveCharge(ctx, &domain.Charge{ID: "pay_1", InternalStatus: domain.StatusPending}))
	require.NoError(t, s.SaveCharge(ctx, &domain.Charge{ID: "pay_1", InternalStatus: domain.StatusPaid}))

	c, err := s.GetCharge(ctx, "pay_1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, c.InternalStatus, "second save is a no-op")

	ok, err := s.UpdateChargeStatus(ctx, "pay_1", domain.StatusOverdue, domain.StatusPaid, "RECEIVED")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.UpdateChargeStatus(ctx, "pay_1", domain.StatusPending, domain.StatusPaid, "RECEIVED")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = s.GetCharge(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestChargeStore_BindSubscriptionOnce(t *testing.T) {
	s := NewChargeStore()
	ctx := context.Background()
	require.NoError(t, s.SaveCharge(ctx, &domain.Charge{ID: "pay_1"}))

	require.NoError(t, s.BindSubscription(ctx, "pay_1", "s1"))
	require.NoError(t, s.BindSubscription(ctx, "pay_1", "s2"))
	c, err := s.GetCharge(ctx, "pay_1")
	require.NoError(t, err)
	assert.Equal(t, "s1", c.SubscriptionID)

	assert.ErrorIs(t, s.BindSubscription(ctx, "nope", "s1"), domain.ErrNotFound)
}

func TestSubscriptionStore_SingleActive(t *testing.T) {
	s := NewSubscriptionStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.CreateSubscription(ctx, &domain.Subscription{ID: "a", UserID: "u", Status: domain.SubscriptionActive, CreatedAt: now}))
	err := s.CreateSubscription(ctx, &domain.Subscription{ID: "b", UserID: "u", Status: domain.SubscriptionActive, CreatedAt: now})
	assert.ErrorIs(t, err, domain.ErrConflict)

	require.NoError(t, s.CreateSubscription(ctx, &domain.Subscription{ID: "p1", UserID: "u", PlanID: "pro", Status: domain.SubscriptionPending, CreatedAt: now}))
	require.NoError(t, s.CreateSubscription(ctx, &domain.Subscription{ID: "p2", UserID: "u", PlanID: "pro", Status: domain.SubscriptionPending, CreatedAt: now.Add(time.Second)}))

	latest, err := s.FindLatestPending(ctx, "u", "pro")
	require.NoError(t, err)
	assert.Equal(t, "p2", latest.ID)

	latest.Status = domain.SubscriptionActive
	assert.ErrorIs(t, s.UpdateSubscription(ctx, latest), domain.ErrConflict)
	assert.Len(t, s.All("u"), 4)
}

func TestIdempotencyStore_Expires(t *testing.T) {
	s := NewIdempotencyStore(time.Minute)
	now := time.Now()
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Remember(ctx, "k"))
	seen, _ := s.Seen(ctx, "k")
	assert.True(t, seen)

	now = now.Add(2 * time.Minute)
	seen, _ = s.Seen(ctx, "k")
	assert.False(t, seen)
}
