package metrics_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dispatchkit/pkg/batch"
	"github.com/dmitrymomot/dispatchkit/pkg/dedup"
	"github.com/dmitrymomot/dispatchkit/pkg/dispatch"
	"github.com/dmitrymomot/dispatchkit/pkg/events"
	"github.com/dmitrymomot/dispatchkit/pkg/metrics"
)

type statsFunc func(ctx context.Context) (dispatch.Stats, error)

func (f statsFunc) Stats(ctx context.Context) (dispatch.Stats, error) { return f(ctx) }

type jobStats batch.Stats

func (s jobStats) Stats() batch.Stats { return batch.Stats(s) }

func TestCollector_Events(t *testing.T) {
	t.Parallel()

	col, err := metrics.New("test")
	require.NoError(t, err)

	bus := events.NewBus()
	unsubscribe := col.Attach(bus)

	ctx := context.Background()
	bus.Emit(ctx, events.Event{Type: events.NotificationQueued, Priority: "high"})
	bus.Emit(ctx, events.Event{Type: events.NotificationQueued, Priority: "high"})
	bus.Emit(ctx, events.Event{Type: events.DeliverySent, Channel: "email", Duration: 50 * time.Millisecond})
	bus.Emit(ctx, events.Event{Type: events.DeliveryFailedFinal, Channel: "sms"})
	bus.Emit(ctx, events.Event{Type: events.ReceiptRecorded, Channel: "email", Data: map[string]any{"event": "delivered"}})
	bus.Emit(ctx, events.Event{Type: events.JobCompleted})
	bus.Emit(ctx, events.Event{Type: events.Error, Component: "dispatch"})

	unsubscribe()
	bus.Emit(ctx, events.Event{Type: events.NotificationQueued, Priority: "high"})

	expected := `
# HELP test_notifications_total Notification lifecycle events by type.
# TYPE test_notifications_total counter
test_notifications_total{event="notification:queued",priority="high"} 2
`
	require.NoError(t, testutil.GatherAndCompare(col.Registry(), stringsReader(expected), "test_notifications_total"))

	expected = `
# HELP test_deliveries_total Delivery attempt events by channel and type.
# TYPE test_deliveries_total counter
test_deliveries_total{channel="email",event="delivery:sent"} 1
test_deliveries_total{channel="sms",event="delivery:failed:final"} 1
`
	require.NoError(t, testutil.GatherAndCompare(col.Registry(), stringsReader(expected), "test_deliveries_total"))

	count, err := testutil.GatherAndCount(col.Registry(), "test_delivery_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = testutil.GatherAndCount(col.Registry(), "test_receipts_total", "test_jobs_total", "test_errors_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestCollector_Refresh(t *testing.T) {
	t.Parallel()

	stats := dispatch.Stats{
		Scheduled:  4,
		InFlight:   2,
		ByPriority: map[string]int{"critical": 1, "normal": 7},
		Dedup:      &dedup.Stats{Entries: 12, DuplicateRatio: 0.25},
	}
	col, err := metrics.New("test",
		metrics.WithStatsSource(statsFunc(func(context.Context) (dispatch.Stats, error) { return stats, nil })),
		metrics.WithJobSource(jobStats{Pending: 3, Completed: 5}),
	)
	require.NoError(t, err)

	col.Refresh(context.Background())

	expected := `
# HELP test_queue_depth Notifications waiting in the priority queue.
# TYPE test_queue_depth gauge
test_queue_depth{priority="critical"} 1
test_queue_depth{priority="normal"} 7
# HELP test_in_flight Notifications currently being processed.
# TYPE test_in_flight gauge
test_in_flight 2
# HELP test_dedup_ratio Share of checks that were duplicates.
# TYPE test_dedup_ratio gauge
test_dedup_ratio 0.25
`
	require.NoError(t, testutil.GatherAndCompare(col.Registry(), stringsReader(expected),
		"test_queue_depth", "test_in_flight", "test_dedup_ratio"))

	count, err := testutil.GatherAndCount(col.Registry(), "test_jobs")
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestCollector_RefreshError(t *testing.T) {
	t.Parallel()

	col, err := metrics.New("test",
		metrics.WithStatsSource(statsFunc(func(context.Context) (dispatch.Stats, error) {
			return dispatch.Stats{}, errors.New("store down")
		})),
	)
	require.NoError(t, err)

	assert.NotPanics(t, func() { col.Refresh(context.Background()) })
}

func TestCollector_Handler(t *testing.T) {
	t.Parallel()

	col, err := metrics.New("")
	require.NoError(t, err)
	col.Observe(events.Event{Type: events.JobCreated})

	rec := httptest.NewRecorder()
	col.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `dispatchkit_jobs_total{event="job:created"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestCollector_Run(t *testing.T) {
	t.Parallel()

	polled := make(chan struct{}, 10)
	col, err := metrics.New("test",
		metrics.WithInterval(10*time.Millisecond),
		metrics.WithStatsSource(statsFunc(func(context.Context) (dispatch.Stats, error) {
			select {
			case polled <- struct{}{}:
			default:
			}
			return dispatch.Stats{}, nil
		})),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- col.Run(ctx)() }()

	for range 2 {
		select {
		case <-polled:
		case <-time.After(time.Second):
			t.Fatal("collector did not poll")
		}
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("collector did not stop")
	}
}

func stringsReader(s string) *strings.Reader { return strings.NewReader(s) }
