package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, time.January, 31, 10, 0, 0, 0, time.UTC)

func TestPeriodEnd(t *testing.T) {
	end, err := PeriodEnd(now, PeriodMonthly)
	require.NoError(t, err)
	assert.Equal(t, now.AddDate(0, 1, 0), end)

	end, err = PeriodEnd(now, PeriodYearly)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, time.January, 31, 10, 0, 0, 0, time.UTC), end)

	end, err = PeriodEnd(now, PeriodLifetime)
	require.NoError(t, err)
	assert.Equal(t, LifetimeEnd, end)

	_, err = PeriodEnd(now, "weekly")
	assert.Error(t, err)
}

func TestSubscriptionLifecycle(t *testing.T) {
	sub := &Subscription{ID: "s1", Status: SubscriptionPending}

	require.NoError(t, sub.Activate(now, PeriodMonthly))
	assert.Equal(t, SubscriptionActive, sub.Status)
	assert.Equal(t, now, sub.StartDate)
	assert.Error(t, sub.Activate(now, PeriodMonthly))

	assert.Error(t, sub.Expire(now), "not past end date")
	require.NoError(t, sub.Expire(sub.EndDate.Add(time.Second)))
	assert.Equal(t, SubscriptionExpired, sub.Status)
	assert.Error(t, sub.Cancel(now))

	active := &Subscription{Status: SubscriptionActive}
	require.NoError(t, active.Cancel(now))
	assert.Equal(t, SubscriptionCancelled, active.Status)
	assert.Error(t, active.Expire(now))
}
