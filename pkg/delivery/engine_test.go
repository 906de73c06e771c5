package delivery_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dispatchkit/pkg/delivery"
	"github.com/dmitrymomot/dispatchkit/pkg/events"
	"github.com/dmitrymomot/dispatchkit/pkg/notifications"
)

type fakeHandler struct {
	channel notifications.Channel
	calls   atomic.Int32
	fn      func(call int32, r notifications.Recipient) (delivery.Result, error)
}

func (h *fakeHandler) Channel() notifications.Channel { return h.channel }

func (h *fakeHandler) Deliver(_ context.Context, _ *notifications.Notification, r notifications.Recipient) (delivery.Result, error) {
	call := h.calls.Add(1)
	if h.fn == nil {
		return delivery.Result{ExternalID: fmt.Sprintf("%s-%s-%d", h.channel, r.ID, call)}, nil
	}
	return h.fn(call, r)
}

type cancelableHandler struct {
	fakeHandler
	cancelled atomic.Int32
}

func (h *cancelableHandler) Cancel(context.Context, delivery.Attempt) (bool, error) {
	h.cancelled.Add(1)
	return true, nil
}

type healthHandler struct {
	fakeHandler
	healthy atomic.Bool
}

func (h *healthHandler) Healthy(context.Context) bool { return h.healthy.Load() }

type statusHandler struct {
	fakeHandler
	status delivery.Status
}

func (h *statusHandler) Status(context.Context, delivery.Attempt) (delivery.Status, error) {
	return h.status, nil
}

type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) listen(_ context.Context, e events.Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) count(t events.Type) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func newBus(t *testing.T) (*events.Bus, *eventLog) {
	t.Helper()
	bus := events.NewBus()
	t.Cleanup(bus.Close)
	log := &eventLog{}
	bus.OnAll(log.listen)
	return bus, log
}

func notification(channels ...notifications.Channel) *notifications.Notification {
	return &notifications.Notification{
		ID:       "n-1",
		TenantID: "t-1",
		Title:    "Hello",
		Message:  "World",
		Channels: channels,
		Recipients: []notifications.Recipient{
			{ID: "r-1", Address: "one"},
			{ID: "r-2", Address: "two"},
		},
	}
}

func fastRetries(maxRetries int) delivery.Option {
	return func(e *delivery.Engine) {
		delivery.WithMaxRetries(maxRetries)(e)
		delivery.WithRetryDelay(time.Millisecond, 2, 10*time.Millisecond)(e)
	}
}

func TestEngine_FanOut(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := delivery.New()
	email := &fakeHandler{channel: notifications.ChannelEmail}
	sms := &fakeHandler{channel: notifications.ChannelSMS}
	require.NoError(t, e.RegisterHandler(email))
	require.NoError(t, e.RegisterHandler(sms))

	attempts, err := e.Deliver(ctx, notification(notifications.ChannelEmail, notifications.ChannelSMS))
	require.NoError(t, err)
	require.Len(t, attempts, 4)

	assert.Equal(t, notifications.ChannelEmail, attempts[0].Channel)
	assert.Equal(t, "r-1", attempts[0].RecipientID)
	assert.Equal(t, notifications.ChannelSMS, attempts[3].Channel)
	assert.Equal(t, "r-2", attempts[3].RecipientID)

	for _, a := range attempts {
		assert.Equal(t, delivery.StatusSent, a.Status)
		assert.Equal(t, 1, a.AttemptNumber)
		assert.NotEmpty(t, a.ExternalID)
		assert.NotNil(t, a.SentAt)
	}
	assert.Equal(t, int32(2), email.calls.Load())
	assert.Equal(t, int32(2), sms.calls.Load())

	stored, err := e.Attempts(ctx, "n-1")
	require.NoError(t, err)
	assert.Len(t, stored, 4)
}

func TestEngine_PartialSuccess(t *testing.T) {
	t.Parallel()

	bus, log := newBus(t)
	e := delivery.New(fastRetries(1), delivery.WithBus(bus))
	require.NoError(t, e.RegisterHandler(&fakeHandler{channel: notifications.ChannelEmail}))
	require.NoError(t, e.RegisterHandler(&fakeHandler{
		channel: notifications.ChannelSMS,
		fn: func(int32, notifications.Recipient) (delivery.Result, error) {
			return delivery.Result{}, errors.New("carrier rejected")
		},
	}))

	n := notification(notifications.ChannelEmail, notifications.ChannelSMS)
	n.Recipients = n.Recipients[:1]

	attempts, err := e.Deliver(context.Background(), n)
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, delivery.StatusSent, attempts[0].Status)
	assert.Equal(t, delivery.StatusFailed, attempts[1].Status)
	assert.Equal(t, "carrier rejected", attempts[1].Error)

	assert.Eventually(t, func() bool { return log.count(events.DeliveryFailedFinal) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, log.count(events.DeliverySent))
}

func TestEngine_RetryThenSucceed(t *testing.T) {
	t.Parallel()

	e := delivery.New(fastRetries(3))
	h := &fakeHandler{
		channel: notifications.ChannelPush,
		fn: func(call int32, _ notifications.Recipient) (delivery.Result, error) {
			if call < 3 {
				return delivery.Result{}, errors.New("transient")
			}
			return delivery.Result{ExternalID: "push-1"}, nil
		},
	}
	require.NoError(t, e.RegisterHandler(h))

	n := notification(notifications.ChannelPush)
	n.Recipients = n.Recipients[:1]

	attempts, err := e.Deliver(context.Background(), n)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, delivery.StatusSent, attempts[0].Status)
	assert.Equal(t, 3, attempts[0].AttemptNumber)
	assert.Equal(t, "push-1", attempts[0].ExternalID)
	assert.Empty(t, attempts[0].Error)
}

func TestEngine_RetryExhaustion(t *testing.T) {
	t.Parallel()

	bus, log := newBus(t)
	e := delivery.New(fastRetries(3), delivery.WithBus(bus))
	h := &fakeHandler{
		channel: notifications.ChannelWebhook,
		fn: func(int32, notifications.Recipient) (delivery.Result, error) {
			return delivery.Result{}, errors.New("503")
		},
	}
	require.NoError(t, e.RegisterHandler(h))

	n := notification(notifications.ChannelWebhook)
	n.Recipients = n.Recipients[:1]

	attempts, err := e.Deliver(context.Background(), n)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, delivery.StatusFailed, attempts[0].Status)
	assert.Equal(t, 3, attempts[0].AttemptNumber)
	assert.Equal(t, int32(3), h.calls.Load(), "exactly max retries tries")
	assert.NotNil(t, attempts[0].FailedAt)

	assert.Eventually(t, func() bool { return log.count(events.DeliveryFailedFinal) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, log.count(events.DeliveryStarted))
}

func TestEngine_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	e := delivery.New(fastRetries(1), delivery.WithTimeout(20*time.Millisecond))
	require.NoError(t, e.RegisterHandler(&fakeHandler{
		channel: notifications.ChannelEmail,
		fn: func(int32, notifications.Recipient) (delivery.Result, error) {
			<-release
			return delivery.Result{}, nil
		},
	}))

	n := notification(notifications.ChannelEmail)
	n.Recipients = n.Recipients[:1]

	start := time.Now()
	attempts, err := e.Deliver(context.Background(), n)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second, "slow handler is abandoned")
	assert.Equal(t, delivery.StatusFailed, attempts[0].Status)
	assert.Equal(t, delivery.ErrDeliveryTimeout.Error(), attempts[0].Error)

	stats, err := e.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.Timeouts)
	assert.Equal(t, 1, stats.ByStatus[delivery.StatusFailed])
}

func TestEngine_UnhealthyChannel(t *testing.T) {
	t.Parallel()

	e := delivery.New(fastRetries(2))
	h := &healthHandler{fakeHandler: fakeHandler{channel: notifications.ChannelSlack}}
	require.NoError(t, e.RegisterHandler(h))

	n := notification(notifications.ChannelSlack)
	n.Recipients = n.Recipients[:1]

	attempts, err := e.Deliver(context.Background(), n)
	require.NoError(t, err)
	assert.Equal(t, delivery.StatusFailed, attempts[0].Status)
	assert.Equal(t, delivery.ErrChannelUnhealthy.Error(), attempts[0].Error)
	assert.Equal(t, 2, attempts[0].AttemptNumber)
	assert.Zero(t, h.calls.Load())

	h.healthy.Store(true)
	attempts, err = e.Deliver(context.Background(), n)
	require.NoError(t, err)
	assert.Equal(t, delivery.StatusSent, attempts[0].Status)
}

func TestEngine_HandlerPanic(t *testing.T) {
	t.Parallel()

	e := delivery.New(fastRetries(1))
	require.NoError(t, e.RegisterHandler(&fakeHandler{
		channel: notifications.ChannelTeams,
		fn: func(int32, notifications.Recipient) (delivery.Result, error) {
			panic("nil map")
		},
	}))

	n := notification(notifications.ChannelTeams)
	n.Recipients = n.Recipients[:1]

	attempts, err := e.Deliver(context.Background(), n)
	require.NoError(t, err)
	assert.Equal(t, delivery.StatusFailed, attempts[0].Status)
	assert.Contains(t, attempts[0].Error, "nil map")
}

func TestEngine_MissingHandler(t *testing.T) {
	t.Parallel()

	e := delivery.New()
	attempts, err := e.Deliver(context.Background(), notification(notifications.ChannelInApp))
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	for _, a := range attempts {
		assert.Equal(t, delivery.StatusFailed, a.Status)
		assert.Equal(t, delivery.ErrNoHandler.Error(), a.Error)
	}
}

func TestEngine_DeliverErrors(t *testing.T) {
	t.Parallel()

	e := delivery.New()
	_, err := e.Deliver(context.Background(), nil)
	assert.ErrorIs(t, err, delivery.ErrNilNotification)

	n := notification(notifications.ChannelEmail)
	n.Recipients = []notifications.Recipient{{ID: "r", Channel: notifications.ChannelSMS}}
	_, err = e.Deliver(context.Background(), n)
	assert.ErrorIs(t, err, delivery.ErrNoDeliveryTargets)

	assert.ErrorIs(t, e.RegisterHandler(nil), delivery.ErrNilHandler)
}

func TestEngine_CancelDelivery(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	bus, log := newBus(t)
	e := delivery.New(
		delivery.WithMaxRetries(5),
		delivery.WithRetryDelay(time.Hour, 2, time.Hour),
		delivery.WithBus(bus),
	)
	h := &cancelableHandler{fakeHandler: fakeHandler{
		channel: notifications.ChannelEmail,
		fn: func(int32, notifications.Recipient) (delivery.Result, error) {
			return delivery.Result{}, errors.New("mailbox busy")
		},
	}}
	require.NoError(t, e.RegisterHandler(h))

	n := notification(notifications.ChannelEmail)
	n.Recipients = n.Recipients[:1]

	type out struct {
		attempts []delivery.Attempt
		err      error
	}
	done := make(chan out, 1)
	go func() {
		a, err := e.Deliver(ctx, n)
		done <- out{a, err}
	}()

	var attemptID string
	require.Eventually(t, func() bool {
		as, err := e.Attempts(ctx, n.ID)
		if err != nil || len(as) != 1 || as[0].Error == "" {
			return false
		}
		attemptID = as[0].ID
		return true
	}, time.Second, 5*time.Millisecond)

	ok, err := e.CancelDelivery(ctx, attemptID)
	require.NoError(t, err)
	assert.True(t, ok)

	select {
	case res := <-done:
		require.NoError(t, res.err)
		require.Len(t, res.attempts, 1)
		assert.Equal(t, delivery.StatusCancelled, res.attempts[0].Status)
	case <-time.After(time.Second):
		t.Fatal("deliver did not return after cancel")
	}

	assert.Equal(t, int32(1), h.calls.Load(), "cancelled attempt is not retried")
	assert.Equal(t, int32(1), h.cancelled.Load())

	got, err := e.GetDeliveryStatus(ctx, attemptID)
	require.NoError(t, err)
	assert.Equal(t, delivery.StatusCancelled, got.Status)

	ok, err = e.CancelDelivery(ctx, attemptID)
	require.NoError(t, err)
	assert.False(t, ok, "terminal attempt cannot be cancelled")

	assert.Eventually(t, func() bool { return log.count(events.DeliveryCancelled) == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, log.count(events.DeliveryFailedFinal))
}

func TestEngine_CancelNotSupported(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := delivery.New(delivery.WithMaxRetries(2), delivery.WithRetryDelay(200*time.Millisecond, 1, 0))
	require.NoError(t, e.RegisterHandler(&fakeHandler{
		channel: notifications.ChannelSMS,
		fn: func(int32, notifications.Recipient) (delivery.Result, error) {
			return delivery.Result{}, errors.New("nope")
		},
	}))

	n := notification(notifications.ChannelSMS)
	n.Recipients = n.Recipients[:1]

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = e.Deliver(ctx, n)
	}()

	var attemptID string
	require.Eventually(t, func() bool {
		as, err := e.Attempts(ctx, n.ID)
		if err != nil || len(as) != 1 || as[0].Error == "" || as[0].Status != delivery.StatusPending {
			return false
		}
		attemptID = as[0].ID
		return true
	}, time.Second, time.Millisecond)

	_, err := e.CancelDelivery(ctx, attemptID)
	assert.ErrorIs(t, err, delivery.ErrCancelNotSupported)
	<-done

	_, err = e.CancelDelivery(ctx, "missing")
	assert.ErrorIs(t, err, delivery.ErrAttemptNotFound)
}

func TestEngine_ChannelRateLimit(t *testing.T) {
	t.Parallel()

	e := delivery.New(delivery.WithChannelRateLimit(notifications.ChannelEmail, 10, 1))
	require.NoError(t, e.RegisterHandler(&fakeHandler{channel: notifications.ChannelEmail}))

	n := notification(notifications.ChannelEmail)
	n.Recipients = append(n.Recipients, notifications.Recipient{ID: "r-3"})

	start := time.Now()
	attempts, err := e.Deliver(context.Background(), n)
	require.NoError(t, err)
	require.Len(t, attempts, 3)
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestEngine_Registry(t *testing.T) {
	t.Parallel()

	e := delivery.New()
	require.NoError(t, e.RegisterHandler(&fakeHandler{channel: notifications.ChannelSMS}))
	require.NoError(t, e.RegisterHandler(delivery.HandlerFunc{
		Name: notifications.ChannelEmail,
		Fn: func(context.Context, *notifications.Notification, notifications.Recipient) (delivery.Result, error) {
			return delivery.Result{}, nil
		},
	}))

	assert.True(t, e.HasHandler(notifications.ChannelEmail))
	assert.False(t, e.HasHandler(notifications.ChannelPush))
	assert.Equal(t, []notifications.Channel{notifications.ChannelEmail, notifications.ChannelSMS}, e.Channels())

	stats, err := e.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Handlers)
}

func TestStatus_Transitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to delivery.Status
		want     bool
	}{
		{delivery.StatusPending, delivery.StatusSent, true},
		{delivery.StatusPending, delivery.StatusFailed, true},
		{delivery.StatusPending, delivery.StatusCancelled, true},
		{delivery.StatusPending, delivery.StatusDelivered, false},
		{delivery.StatusSent, delivery.StatusDelivered, true},
		{delivery.StatusSent, delivery.StatusBounced, true},
		{delivery.StatusSent, delivery.StatusFailed, true},
		{delivery.StatusSent, delivery.StatusCancelled, false},
		{delivery.StatusDelivered, delivery.StatusBounced, false},
		{delivery.StatusFailed, delivery.StatusSent, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s to %s", tt.from, tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}

	assert.True(t, delivery.StatusDelivered.IsTerminal())
	assert.True(t, delivery.StatusCancelled.IsTerminal())
	assert.False(t, delivery.StatusSent.IsTerminal())
}
