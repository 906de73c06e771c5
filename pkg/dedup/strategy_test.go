package dedup_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/dispatchkit/pkg/dedup"
	"github.com/dmitrymomot/dispatchkit/pkg/notifications"
)

func TestFingerprint(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 12, 0, 30, 0, time.UTC)
	window := time.Minute

	base := func() *notifications.Notification {
		return &notifications.Notification{
			TenantID: "t-1",
			UserID:   "u-1",
			Type:     "invoice",
			Category: "billing",
			Title:    "Invoice ready",
			Message:  "Your invoice is ready",
			Data:     map[string]any{"amount": 10, "currency": "EUR"},
			Channels: []notifications.Channel{notifications.ChannelEmail, notifications.ChannelSMS},
		}
	}

	tests := []struct {
		name     string
		strategy dedup.Strategy
		mutate   func(n *notifications.Notification)
		same     bool
	}{
		{
			name:     "fingerprint ignores channel order",
			strategy: dedup.StrategyFingerprint,
			mutate: func(n *notifications.Notification) {
				n.Channels = []notifications.Channel{notifications.ChannelSMS, notifications.ChannelEmail}
			},
			same: true,
		},
		{
			name:     "fingerprint distinguishes users",
			strategy: dedup.StrategyFingerprint,
			mutate:   func(n *notifications.Notification) { n.UserID = "u-2" },
			same:     false,
		},
		{
			name:     "fingerprint ignores data",
			strategy: dedup.StrategyFingerprint,
			mutate:   func(n *notifications.Notification) { n.Data["amount"] = 20 },
			same:     true,
		},
		{
			name:     "content hash ignores recipients and user",
			strategy: dedup.StrategyContentHash,
			mutate: func(n *notifications.Notification) {
				n.UserID = "u-2"
				n.Recipients = []notifications.Recipient{{ID: "r-9"}}
			},
			same: true,
		},
		{
			name:     "content hash includes data",
			strategy: dedup.StrategyContentHash,
			mutate:   func(n *notifications.Notification) { n.Data["amount"] = 20 },
			same:     false,
		},
		{
			name:     "content hash includes category",
			strategy: dedup.StrategyContentHash,
			mutate:   func(n *notifications.Notification) { n.Category = "other" },
			same:     false,
		},
		{
			name:     "key strategy uses the dedup key only",
			strategy: dedup.StrategyKey,
			mutate: func(n *notifications.Notification) {
				n.Title = "different"
			},
			same: true,
		},
		{
			name:     "key strategy scopes key by tenant",
			strategy: dedup.StrategyKey,
			mutate:   func(n *notifications.Notification) { n.TenantID = "t-2" },
			same:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a := base()
			b := base()
			if tt.strategy == dedup.StrategyKey {
				a.DeduplicationKey = "invoice-7"
				b.DeduplicationKey = "invoice-7"
			}
			tt.mutate(b)

			fa := dedup.Fingerprint(tt.strategy, a, window, now)
			fb := dedup.Fingerprint(tt.strategy, b, window, now)
			assert.Len(t, fa, 32)
			if tt.same {
				assert.Equal(t, fa, fb)
			} else {
				assert.NotEqual(t, fa, fb)
			}
		})
	}

	t.Run("key strategy falls back to content hash", func(t *testing.T) {
		t.Parallel()

		n := base()
		assert.Equal(t,
			dedup.Fingerprint(dedup.StrategyContentHash, n, window, now),
			dedup.Fingerprint(dedup.StrategyKey, n, window, now),
		)
	})

	t.Run("time window buckets are fixed", func(t *testing.T) {
		t.Parallel()

		n := base()
		inBucket := dedup.Fingerprint(dedup.StrategyTimeWindow, n, window, now)
		sameBucket := dedup.Fingerprint(dedup.StrategyTimeWindow, n, window, now.Add(20*time.Second))
		nextBucket := dedup.Fingerprint(dedup.StrategyTimeWindow, n, window, now.Add(40*time.Second))

		assert.Equal(t, inBucket, sameBucket)
		assert.NotEqual(t, inBucket, nextBucket)
	})

	t.Run("strategies do not collide", func(t *testing.T) {
		t.Parallel()

		n := base()
		assert.NotEqual(t,
			dedup.Fingerprint(dedup.StrategyFingerprint, n, window, now),
			dedup.Fingerprint(dedup.StrategyContentHash, n, window, now),
		)
	})
}

func TestStrategy_Valid(t *testing.T) {
	t.Parallel()

	assert.True(t, dedup.StrategyFingerprint.Valid())
	assert.True(t, dedup.StrategyTimeWindow.Valid())
	assert.False(t, dedup.Strategy("sha1").Valid())
}

func TestEngine_TimeWindowStrategy(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	clk := newClock() // 12:00:00, aligned to a minute bucket
	e := dedup.New(
		dedup.WithStrategy(dedup.StrategyTimeWindow),
		dedup.WithWindow(time.Minute),
		dedup.WithClock(clk.Now),
	)

	_, err := e.Record(ctx, alert("n-1"))
	assert.NoError(t, err)

	clk.Advance(30 * time.Second)
	dup, err := e.IsDuplicate(ctx, alert("n-2"))
	assert.NoError(t, err)
	assert.True(t, dup)

	clk.Advance(31 * time.Second)
	dup, err = e.IsDuplicate(ctx, alert("n-3"))
	assert.NoError(t, err)
	assert.False(t, dup, "next bucket is distinct")
}
