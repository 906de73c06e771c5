package events_test

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dispatchkit/pkg/events"
)

func TestBus_On(t *testing.T) {
	t.Parallel()

	bus := events.NewBus()
	defer bus.Close()

	var got []events.Event
	var mu sync.Mutex
	off := bus.On(events.NotificationSent, func(_ context.Context, e events.Event) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	})

	bus.Emit(context.Background(), events.Event{Type: events.NotificationSent, NotificationID: "n1"})
	bus.Emit(context.Background(), events.Event{Type: events.NotificationFailed, NotificationID: "n2"})

	off()
	bus.Emit(context.Background(), events.Event{Type: events.NotificationSent, NotificationID: "n3"})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, "n1", got[0].NotificationID)
	assert.NotEmpty(t, got[0].ID)
	assert.False(t, got[0].Time.IsZero())
}

func TestBus_OnAll(t *testing.T) {
	t.Parallel()

	bus := events.NewBus()
	var n atomic.Int32
	off := bus.OnAll(func(context.Context, events.Event) { n.Add(1) })
	defer off()

	bus.Emit(context.Background(), events.Event{Type: events.JobCreated})
	bus.Emit(context.Background(), events.Event{Type: events.Error})
	assert.Equal(t, int32(2), n.Load())
}

func TestBus_PanickingListener(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	bus := events.NewBus(events.WithLogger(slog.New(slog.NewTextHandler(buf, nil))))

	var called atomic.Bool
	bus.On(events.DeliverySent, func(context.Context, events.Event) { panic("boom") })
	bus.On(events.DeliverySent, func(context.Context, events.Event) { called.Store(true) })

	assert.NotPanics(t, func() {
		bus.Emit(context.Background(), events.Event{Type: events.DeliverySent})
	})
	assert.True(t, called.Load(), "other listeners must still run")
	assert.Contains(t, buf.String(), "event listener panicked")
}

func TestBus_Subscribe(t *testing.T) {
	t.Parallel()

	bus := events.NewBus()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := bus.Subscribe(ctx, events.JobCompleted, events.JobFailed)
	bus.Emit(ctx, events.Event{Type: events.JobStarted, JobID: "j1"})
	bus.Emit(ctx, events.Event{Type: events.JobCompleted, JobID: "j1"})

	select {
	case e := <-sub.C():
		assert.Equal(t, events.JobCompleted, e.Type)
	case <-time.After(time.Second):
		t.Fatal("expected event")
	}

	select {
	case e := <-sub.C():
		t.Fatalf("unexpected event %s", e.Type)
	default:
	}
}

func TestBus_SlowSubscriberDoesNotBlock(t *testing.T) {
	t.Parallel()

	bus := events.NewBus(events.WithBufferSize(1))
	defer bus.Close()

	slow := bus.Subscribe(context.Background())
	_ = slow

	done := make(chan struct{})
	go func() {
		for range 10 {
			bus.Emit(context.Background(), events.Event{Type: events.NotificationQueued})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emit blocked on a slow subscriber")
	}
	assert.Equal(t, uint64(9), bus.Dropped())
}

func TestBus_Nil(t *testing.T) {
	t.Parallel()

	var bus *events.Bus
	assert.NotPanics(t, func() {
		bus.Emit(context.Background(), events.Event{Type: events.Error})
		bus.Close()
		_ = bus.Dropped()
	})
}
