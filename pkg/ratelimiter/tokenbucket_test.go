package ratelimiter_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dispatchkit/pkg/ratelimiter"
)

func TestNewBucket(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		config   ratelimiter.Config
		errorMsg string
	}{
		{name: "valid config", config: ratelimiter.Config{Capacity: 100, RefillRate: 10, RefillInterval: time.Second}},
		{name: "zero capacity", config: ratelimiter.Config{RefillRate: 10, RefillInterval: time.Second}, errorMsg: "capacity must be positive"},
		{name: "zero refill rate", config: ratelimiter.Config{Capacity: 100, RefillInterval: time.Second}, errorMsg: "refill rate must be positive"},
		{name: "zero interval", config: ratelimiter.Config{Capacity: 100, RefillRate: 10}, errorMsg: "refill interval must be positive"},
		{name: "per second helper", config: ratelimiter.PerSecond(20)},
		{name: "per second zero", config: ratelimiter.PerSecond(0), errorMsg: "capacity must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := ratelimiter.NewMemoryStore(ratelimiter.WithCleanupInterval(0))
			b, err := ratelimiter.NewBucket(store, tt.config)
			if tt.errorMsg != "" {
				require.ErrorIs(t, err, ratelimiter.ErrInvalidConfig)
				assert.Contains(t, err.Error(), tt.errorMsg)
				assert.Nil(t, b)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, b)
		})
	}
}

func TestBucket_Allow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := ratelimiter.NewMemoryStore(ratelimiter.WithCleanupInterval(0))
	b, err := ratelimiter.NewBucket(store, ratelimiter.Config{Capacity: 3, RefillRate: 1, RefillInterval: time.Hour})
	require.NoError(t, err)

	for i := range 3 {
		res, err := b.Allow(ctx, "k")
		require.NoError(t, err)
		assert.True(t, res.Allowed())
		assert.Equal(t, 2-i, res.Remaining)
		assert.Equal(t, 3, res.Limit)
	}

	res, err := b.Allow(ctx, "k")
	require.NoError(t, err)
	assert.False(t, res.Allowed())
	assert.Equal(t, -1, res.Remaining)
	assert.Greater(t, res.RetryAfter(), time.Duration(0))

	// a different key has its own bucket
	res, err = b.Allow(ctx, "other")
	require.NoError(t, err)
	assert.True(t, res.Allowed())
}

func TestBucket_DeniedDoesNotDeduct(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	store := ratelimiter.NewMemoryStore(ratelimiter.WithCleanupInterval(0), ratelimiter.WithClock(clock))
	b, err := ratelimiter.NewBucket(store, ratelimiter.Config{Capacity: 2, RefillRate: 1, RefillInterval: time.Second})
	require.NoError(t, err)

	for range 2 {
		res, err := b.Allow(ctx, "k")
		require.NoError(t, err)
		require.True(t, res.Allowed())
	}
	for range 5 {
		res, err := b.Allow(ctx, "k")
		require.NoError(t, err)
		assert.False(t, res.Allowed())
	}

	// one refill interval must be enough after any number of denials
	advance(time.Second)
	res, err := b.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, res.Allowed())
	assert.Equal(t, 0, res.Remaining)
}

func TestBucket_AllowN(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b, err := ratelimiter.NewBucket(
		ratelimiter.NewMemoryStore(ratelimiter.WithCleanupInterval(0)),
		ratelimiter.Config{Capacity: 10, RefillRate: 1, RefillInterval: time.Hour},
	)
	require.NoError(t, err)

	_, err = b.AllowN(ctx, "k", 0)
	assert.ErrorIs(t, err, ratelimiter.ErrInvalidTokenCount)
	_, err = b.AllowN(ctx, "k", 11)
	assert.ErrorIs(t, err, ratelimiter.ErrInvalidTokenCount)

	res, err := b.AllowN(ctx, "k", 7)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Remaining)

	res, err = b.AllowN(ctx, "k", 4)
	require.NoError(t, err)
	assert.False(t, res.Allowed())

	status, err := b.Status(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 3, status.Remaining)

	require.NoError(t, b.Reset(ctx, "k"))
	status, err = b.Status(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 10, status.Remaining)
}

func TestBucket_Wait(t *testing.T) {
	t.Parallel()

	b, err := ratelimiter.NewBucket(
		ratelimiter.NewMemoryStore(ratelimiter.WithCleanupInterval(0)),
		ratelimiter.PerSecond(20),
	)
	require.NoError(t, err)

	limiter := b.For("batch")
	start := time.Now()
	// 20 burst + 10 refilled at 50ms each
	for range 30 {
		require.NoError(t, limiter.Wait(context.Background()))
	}
	assert.GreaterOrEqual(t, time.Since(start), 450*time.Millisecond)
}

func TestBucket_WaitCancelled(t *testing.T) {
	t.Parallel()

	b, err := ratelimiter.NewBucket(
		ratelimiter.NewMemoryStore(ratelimiter.WithCleanupInterval(0)),
		ratelimiter.Config{Capacity: 1, RefillRate: 1, RefillInterval: time.Hour},
	)
	require.NoError(t, err)
	require.NoError(t, b.Wait(context.Background(), "k"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err = b.Wait(ctx, "k")
	assert.ErrorIs(t, err, ratelimiter.ErrContextCancelled)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBucket_Concurrent(t *testing.T) {
	t.Parallel()

	b, err := ratelimiter.NewBucket(
		ratelimiter.NewMemoryStore(ratelimiter.WithCleanupInterval(0)),
		ratelimiter.Config{Capacity: 50, RefillRate: 1, RefillInterval: time.Hour},
	)
	require.NoError(t, err)

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := b.Allow(context.Background(), "shared")
			if err == nil && res.Allowed() {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(50), allowed.Load())
}
