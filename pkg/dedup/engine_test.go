package dedup_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dispatchkit/pkg/dedup"
	"github.com/dmitrymomot/dispatchkit/pkg/events"
	"github.com/dmitrymomot/dispatchkit/pkg/notifications"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func alert(id string) *notifications.Notification {
	return &notifications.Notification{
		ID:       id,
		TenantID: "tenant-1",
		UserID:   "user-1",
		Type:     "alert",
		Title:    "Disk full",
		Message:  "Volume /data is at 99%",
		Channels: []notifications.Channel{notifications.ChannelEmail, notifications.ChannelSlack},
	}
}

func TestEngine_Window(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := newClock()
	window := 10 * time.Minute
	e := dedup.New(dedup.WithWindow(window), dedup.WithClock(clk.Now))

	dup, err := e.IsDuplicate(ctx, alert("n-1"))
	require.NoError(t, err)
	assert.False(t, dup, "first occurrence is never a duplicate")

	_, err = e.Record(ctx, alert("n-1"))
	require.NoError(t, err)

	clk.Advance(window / 2)
	dup, err = e.IsDuplicate(ctx, alert("n-2"))
	require.NoError(t, err)
	assert.True(t, dup, "same content inside the window")

	clk.Advance(2 * window)
	dup, err = e.IsDuplicate(ctx, alert("n-3"))
	require.NoError(t, err)
	assert.False(t, dup, "entry expired lazily")
}

func TestEngine_SlidingWindow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := newClock()
	window := time.Minute
	e := dedup.New(dedup.WithWindow(window), dedup.WithClock(clk.Now))

	// Each record within the window pushes expiry forward.
	for i := range 5 {
		_, err := e.Record(ctx, alert(fmt.Sprintf("n-%d", i)))
		require.NoError(t, err)
		clk.Advance(40 * time.Second)
	}

	dup, err := e.IsDuplicate(ctx, alert("n-last"))
	require.NoError(t, err)
	assert.True(t, dup)

	clk.Advance(window)
	dup, err = e.IsDuplicate(ctx, alert("n-after"))
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestEngine_Record(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := newClock()
	e := dedup.New(dedup.WithWindow(time.Minute), dedup.WithClock(clk.Now))

	first, err := e.Record(ctx, alert("n-1"))
	require.NoError(t, err)
	assert.Equal(t, 1, first.Count)
	assert.Equal(t, clk.Now(), first.FirstSeenAt)

	clk.Advance(10 * time.Second)
	second, err := e.Record(ctx, alert("n-2"))
	require.NoError(t, err)
	assert.Equal(t, 2, second.Count)
	assert.Equal(t, first.FirstSeenAt, second.FirstSeenAt)
	assert.Equal(t, clk.Now(), second.LastSeenAt)
	assert.Equal(t, []string{"n-1", "n-2"}, second.NotificationIDs)

	t.Run("expired entry restarts", func(t *testing.T) {
		clk.Advance(2 * time.Minute)
		fresh, err := e.Record(ctx, alert("n-3"))
		require.NoError(t, err)
		assert.Equal(t, 1, fresh.Count)
		assert.Equal(t, []string{"n-3"}, fresh.NotificationIDs)
	})

	t.Run("nil notification", func(t *testing.T) {
		_, err := e.Record(ctx, nil)
		assert.ErrorIs(t, err, dedup.ErrNilNotification)
		_, err = e.IsDuplicate(ctx, nil)
		assert.ErrorIs(t, err, dedup.ErrNilNotification)
	})
}

func TestEngine_Observe(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	bus := events.NewBus()
	t.Cleanup(bus.Close)

	var emitted atomic.Int32
	bus.On(events.NotificationDeduplicated, func(context.Context, events.Event) { emitted.Add(1) })

	e := dedup.New(dedup.WithWindow(time.Minute), dedup.WithBus(bus))

	d1, err := e.Observe(ctx, alert("n-1"))
	require.NoError(t, err)
	assert.False(t, d1.Duplicate)
	assert.Len(t, d1.Fingerprint, 32)

	d2, err := e.Observe(ctx, alert("n-2"))
	require.NoError(t, err)
	assert.True(t, d2.Duplicate)
	assert.Equal(t, d1.Fingerprint, d2.Fingerprint)
	assert.Equal(t, 2, d2.Entry.Count)

	assert.Eventually(t, func() bool { return emitted.Load() == 1 }, time.Second, 10*time.Millisecond)

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats.Checks)
	assert.Equal(t, uint64(1), stats.Duplicates)
	assert.InDelta(t, 0.5, stats.DuplicateRatio, 0.0001)
	assert.Equal(t, 1, stats.Entries)
}

func TestEngine_ObserveConcurrent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := dedup.New(dedup.WithWindow(time.Minute))

	var passed atomic.Int32
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := e.Observe(ctx, alert(fmt.Sprintf("n-%d", i)))
			if err == nil && !d.Duplicate {
				passed.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), passed.Load())
}

func TestEngine_Forget(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("last notification removes the entry", func(t *testing.T) {
		t.Parallel()

		e := dedup.New(dedup.WithWindow(time.Minute))
		n := alert("n-1")
		n.GroupKey = "disk"

		d, err := e.Observe(ctx, n)
		require.NoError(t, err)
		require.NoError(t, e.Forget(ctx, d.Fingerprint, "n-1"))

		dup, err := e.IsDuplicate(ctx, alert("n-2"))
		require.NoError(t, err)
		assert.False(t, dup)

		stats, err := e.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, stats.Entries)
		assert.Equal(t, 0, stats.Groups)
	})

	t.Run("other notifications keep the entry", func(t *testing.T) {
		t.Parallel()

		e := dedup.New(dedup.WithWindow(time.Minute))
		d, err := e.Observe(ctx, alert("n-1"))
		require.NoError(t, err)
		_, err = e.Record(ctx, alert("n-2"))
		require.NoError(t, err)

		require.NoError(t, e.Forget(ctx, d.Fingerprint, "n-2"))

		dup, err := e.IsDuplicate(ctx, alert("n-3"))
		require.NoError(t, err)
		assert.True(t, dup)

		next, err := e.Record(ctx, alert("n-3"))
		require.NoError(t, err)
		assert.Equal(t, 2, next.Count)
		assert.Equal(t, []string{"n-1", "n-3"}, next.NotificationIDs)
	})

	t.Run("unknown fingerprint or id", func(t *testing.T) {
		t.Parallel()

		e := dedup.New(dedup.WithWindow(time.Minute))
		d, err := e.Observe(ctx, alert("n-1"))
		require.NoError(t, err)

		require.NoError(t, e.Forget(ctx, "missing", "n-1"))
		require.NoError(t, e.Forget(ctx, d.Fingerprint, "n-9"))

		dup, err := e.IsDuplicate(ctx, alert("n-2"))
		require.NoError(t, err)
		assert.True(t, dup)
	})
}

func TestEngine_Capacity(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := newClock()
	e := dedup.New(dedup.WithWindow(time.Hour), dedup.WithMaxEntries(2), dedup.WithClock(clk.Now))

	a := alert("a")
	b := alert("b")
	b.Title = "CPU hot"
	c := alert("c")
	c.Title = "Memory low"

	_, err := e.Record(ctx, a)
	require.NoError(t, err)
	clk.Advance(time.Second)
	_, err = e.Record(ctx, b)
	require.NoError(t, err)
	clk.Advance(time.Second)

	// Refresh a so that b becomes the oldest by LastSeenAt.
	_, err = e.Record(ctx, a)
	require.NoError(t, err)
	clk.Advance(time.Second)

	// IsDuplicate must not change recency.
	_, err = e.IsDuplicate(ctx, b)
	require.NoError(t, err)

	_, err = e.Record(ctx, c)
	require.NoError(t, err)

	dupA, err := e.IsDuplicate(ctx, a)
	require.NoError(t, err)
	dupB, err := e.IsDuplicate(ctx, b)
	require.NoError(t, err)
	dupC, err := e.IsDuplicate(ctx, c)
	require.NoError(t, err)

	assert.True(t, dupA)
	assert.False(t, dupB, "oldest entry evicted")
	assert.True(t, dupC)

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Entries)
}

func TestEngine_GetGroup(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := newClock()
	e := dedup.New(dedup.WithWindow(time.Minute), dedup.WithClock(clk.Now))

	for i, title := range []string{"db down", "db down", "api down"} {
		n := alert(fmt.Sprintf("n-%d", i))
		n.Title = title
		n.GroupKey = "incident-42"
		_, err := e.Record(ctx, n)
		require.NoError(t, err)
	}
	ungrouped := alert("n-x")
	_, err := e.Record(ctx, ungrouped)
	require.NoError(t, err)

	g, err := e.GetGroup(ctx, "incident-42")
	require.NoError(t, err)
	assert.Equal(t, "incident-42", g.Key)
	assert.Len(t, g.Fingerprints, 2)
	assert.Equal(t, 3, g.Occurrences)
	assert.ElementsMatch(t, []string{"n-0", "n-1", "n-2"}, g.NotificationIDs)

	clk.Advance(2 * time.Minute)
	g, err = e.GetGroup(ctx, "incident-42")
	require.NoError(t, err)
	assert.Empty(t, g.Fingerprints)
	assert.Zero(t, g.Occurrences)

	empty, err := e.GetGroup(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, empty.Fingerprints)
}

func TestEngine_MarkSent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := newClock()
	window := time.Minute
	e := dedup.New(dedup.WithWindow(window), dedup.WithClock(clk.Now))

	_, err := e.Record(ctx, alert("n-1"))
	require.NoError(t, err)

	clk.Advance(50 * time.Second)
	require.NoError(t, e.MarkSent(ctx, alert("n-1")))

	clk.Advance(50 * time.Second)
	dup, err := e.IsDuplicate(ctx, alert("n-2"))
	require.NoError(t, err)
	assert.True(t, dup, "sent refreshes last seen")

	t.Run("unseen notification creates entry", func(t *testing.T) {
		n := alert("n-new")
		n.Title = "brand new"
		require.NoError(t, e.MarkSent(ctx, n))
		dup, err := e.IsDuplicate(ctx, n)
		require.NoError(t, err)
		assert.True(t, dup)
	})
}

func TestEngine_ClearExpired(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := newClock()
	window := time.Minute
	e := dedup.New(dedup.WithWindow(window), dedup.WithClock(clk.Now))

	old := alert("old")
	old.Title = "old"
	_, err := e.Record(ctx, old)
	require.NoError(t, err)

	clk.Advance(30 * time.Second)
	_, err = e.Record(ctx, alert("fresh"))
	require.NoError(t, err)

	clk.Advance(30 * time.Second)
	removed, err := e.ClearExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed, "entry exactly one window old is expired")

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, uint64(1), stats.Swept)
}

func TestEngine_StartStop(t *testing.T) {
	t.Parallel()

	clk := newClock()
	e := dedup.New(
		dedup.WithWindow(time.Minute),
		dedup.WithSweepInterval(10*time.Millisecond),
		dedup.WithClock(clk.Now),
	)

	_, err := e.Record(context.Background(), alert("n-1"))
	require.NoError(t, err)

	require.NoError(t, e.Start(context.Background()))
	assert.ErrorIs(t, e.Start(context.Background()), dedup.ErrEngineAlreadyStarted)

	clk.Advance(2 * time.Minute)
	assert.Eventually(t, func() bool {
		s, err := e.Stats(context.Background())
		return err == nil && s.Entries == 0
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, e.Stop())
	assert.ErrorIs(t, e.Stop(), dedup.ErrEngineNotStarted)
}

func TestEngine_Run(t *testing.T) {
	t.Parallel()

	e := dedup.New()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(ctx)() }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("run did not return after cancel")
	}
}
