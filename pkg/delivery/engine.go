package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/dmitrymomot/dispatchkit/pkg/backoff"
	"github.com/dmitrymomot/dispatchkit/pkg/events"
	"github.com/dmitrymomot/dispatchkit/pkg/logger"
	"github.com/dmitrymomot/dispatchkit/pkg/notifications"
)

// Engine fans a notification out over channels × recipients and tracks each
// cell as an Attempt with its own retry timeline.
type Engine struct {
	store               AttemptStore
	timeout             time.Duration
	maxRetries          int
	retryDelay          time.Duration
	retryBackoff        float64
	maxRetryDelay       time.Duration
	maxParallel         int
	receiptTimeout      time.Duration
	historyRetention    time.Duration
	maintenanceInterval time.Duration
	limiters            map[notifications.Channel]*rate.Limiter
	logger              *slog.Logger
	bus                 *events.Bus
	now                 func() time.Time

	mu       sync.RWMutex
	handlers map[notifications.Channel]Handler

	// stateMu serialises status changes of attempts.
	stateMu sync.Mutex
	live    map[string]*liveAttempt

	tries    atomic.Uint64
	timeouts atomic.Uint64

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// liveAttempt is the in-process state of an attempt owned by a running Deliver call.
type liveAttempt struct {
	inflight  bool
	cancelled bool
	wake      chan struct{}
}

type cell struct {
	attempt   Attempt
	recipient notifications.Recipient
}

// New creates an engine with an in-memory attempt store.
func New(opts ...Option) *Engine {
	e := &Engine{
		store:               NewMemoryAttemptStore(),
		timeout:             30 * time.Second,
		maxRetries:          3,
		retryDelay:          time.Second,
		retryBackoff:        2,
		maxRetryDelay:       5 * time.Minute,
		maxParallel:         16,
		maintenanceInterval: time.Minute,
		limiters:            make(map[notifications.Channel]*rate.Limiter),
		logger:              slog.Default(),
		now:                 time.Now,
		handlers:            make(map[notifications.Channel]Handler),
		live:                make(map[string]*liveAttempt),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RegisterHandler installs h for its channel, replacing any previous handler.
func (e *Engine) RegisterHandler(h Handler) error {
	if h == nil {
		return ErrNilHandler
	}

	e.mu.Lock()
	e.handlers[h.Channel()] = h
	e.mu.Unlock()

	e.logger.Info("delivery handler registered", logger.Channel(h.Channel()))
	return nil
}

// Handler returns the handler registered for ch.
func (e *Engine) Handler(ch notifications.Channel) (Handler, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	h, ok := e.handlers[ch]
	return h, ok
}

// HasHandler reports whether ch has a registered handler.
func (e *Engine) HasHandler(ch notifications.Channel) bool {
	_, ok := e.Handler(ch)
	return ok
}

// Channels returns the registered channels in name order.
func (e *Engine) Channels() []notifications.Channel {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return slices.Sorted(maps.Keys(e.handlers))
}

// Deliver sends n to every recipient on every requested channel and blocks until
// each attempt is sent or terminally failed. Attempts are returned in
// channel × recipient order. Cells run concurrently and never affect each other.
func (e *Engine) Deliver(ctx context.Context, n *notifications.Notification) ([]Attempt, error) {
	if n == nil {
		return nil, ErrNilNotification
	}

	snapshot := n.Clone()
	now := e.now()

	var cells []cell
	for _, ch := range snapshot.Channels {
		for _, r := range snapshot.RecipientsFor(ch) {
			cells = append(cells, cell{
				recipient: r,
				attempt: Attempt{
					ID:             uuid.NewString(),
					NotificationID: snapshot.ID,
					TenantID:       snapshot.TenantID,
					Channel:        ch,
					RecipientID:    r.ID,
					Address:        r.Address,
					Status:         StatusPending,
					NextAttemptAt:  &now,
					CreatedAt:      now,
					UpdatedAt:      now,
				},
			})
		}
	}
	if len(cells) == 0 {
		return nil, ErrNoDeliveryTargets
	}

	e.stateMu.Lock()
	for _, c := range cells {
		if err := e.store.SaveAttempt(ctx, c.attempt); err != nil {
			e.stateMu.Unlock()
			return nil, err
		}
		e.live[c.attempt.ID] = &liveAttempt{wake: make(chan struct{})}
	}
	e.stateMu.Unlock()

	results := make([]Attempt, len(cells))
	var g errgroup.Group
	g.SetLimit(e.maxParallel)
	for i := range cells {
		g.Go(func() error {
			results[i] = e.run(ctx, snapshot, cells[i])
			return nil
		})
	}
	_ = g.Wait()

	e.stateMu.Lock()
	for _, c := range cells {
		delete(e.live, c.attempt.ID)
	}
	e.stateMu.Unlock()

	return results, nil
}

// run drives one attempt until it is sent, terminally failed or cancelled.
func (e *Engine) run(ctx context.Context, n *notifications.Notification, c cell) Attempt {
	a := c.attempt
	h, ok := e.Handler(a.Channel)
	if !ok {
		a.AttemptNumber = 1
		return e.fail(ctx, a, ErrNoHandler, true)
	}

	for {
		if !e.begin(a.ID) {
			return e.current(ctx, a)
		}

		a.AttemptNumber++
		started := e.now()
		res, err := e.try(ctx, h, n, c.recipient, a)
		e.end(a.ID)

		if err == nil {
			return e.sent(ctx, a, res, e.now().Sub(started))
		}
		if a.AttemptNumber >= e.maxRetries || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return e.fail(ctx, a, err, true)
		}

		delay := backoff.Pow(e.retryDelay, e.retryBackoff, a.AttemptNumber, e.maxRetryDelay)
		next := e.now().Add(delay)
		a.NextAttemptAt = &next
		a.Error = err.Error()
		a.UpdatedAt = e.now()
		if !e.save(ctx, a) {
			return e.current(ctx, a)
		}

		e.logger.LogAttrs(ctx, slog.LevelWarn, "delivery try failed, retrying",
			logger.AttemptID(a.ID),
			logger.NotificationID(a.NotificationID),
			logger.Channel(a.Channel),
			logger.RetryCount(a.AttemptNumber),
			logger.Duration(delay),
			logger.Error(err),
		)
		e.emit(ctx, events.DeliveryFailed, a, err)

		if !e.wait(ctx, a.ID, delay) {
			if ctx.Err() != nil {
				return e.fail(ctx, a, ctx.Err(), true)
			}
			return e.current(ctx, a)
		}
	}
}

// try performs one handler call raced against the timeout. A timed-out call is
// abandoned: the handler keeps running with a context that is never cancelled
// and the provider may still deliver the message.
func (e *Engine) try(ctx context.Context, h Handler, n *notifications.Notification, r notifications.Recipient, a Attempt) (Result, error) {
	e.tries.Add(1)

	if l := e.limiters[a.Channel]; l != nil {
		if err := l.Wait(ctx); err != nil {
			return Result{}, err
		}
	}
	if hc, ok := h.(HealthChecker); ok && !hc.Healthy(ctx) {
		return Result{}, ErrChannelUnhealthy
	}

	e.emit(ctx, events.DeliveryStarted, a, nil)

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	callCtx := context.WithoutCancel(ctx)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: fmt.Errorf("%w: %v", ErrHandlerPanicked, rec)}
			}
		}()
		res, err := h.Deliver(callCtx, n, r)
		done <- outcome{res: res, err: err}
	}()

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	select {
	case o := <-done:
		return o.res, o.err
	case <-timer.C:
		e.timeouts.Add(1)
		return Result{}, ErrDeliveryTimeout
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (e *Engine) sent(ctx context.Context, a Attempt, res Result, took time.Duration) Attempt {
	now := e.now()
	a.Status = StatusSent
	a.SentAt = &now
	a.NextAttemptAt = nil
	a.ExternalID = res.ExternalID
	a.Response = res.Response
	a.Error = ""
	a.UpdatedAt = now
	if !e.save(ctx, a) {
		return e.current(ctx, a)
	}

	e.logger.LogAttrs(ctx, slog.LevelDebug, "delivery sent",
		logger.AttemptID(a.ID),
		logger.NotificationID(a.NotificationID),
		logger.Channel(a.Channel),
		logger.Duration(took),
	)
	ev := e.event(events.DeliverySent, a, nil)
	ev.Duration = took
	e.bus.Emit(ctx, ev)
	return a
}

func (e *Engine) fail(ctx context.Context, a Attempt, err error, final bool) Attempt {
	now := e.now()
	a.Status = StatusFailed
	a.FailedAt = &now
	a.NextAttemptAt = nil
	a.Error = err.Error()
	a.UpdatedAt = now
	if !e.save(ctx, a) {
		return e.current(ctx, a)
	}

	e.logger.LogAttrs(ctx, slog.LevelError, "delivery failed",
		logger.AttemptID(a.ID),
		logger.NotificationID(a.NotificationID),
		logger.Channel(a.Channel),
		logger.RetryCount(a.AttemptNumber),
		logger.Error(err),
	)
	e.emit(ctx, events.DeliveryFailed, a, err)
	if final {
		e.emit(ctx, events.DeliveryFailedFinal, a, err)
	}
	return a
}

// begin marks the attempt in flight. It returns false when the attempt was cancelled.
func (e *Engine) begin(id string) bool {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	la, ok := e.live[id]
	if !ok || la.cancelled {
		return false
	}
	la.inflight = true
	return true
}

func (e *Engine) end(id string) {
	e.stateMu.Lock()
	if la, ok := e.live[id]; ok {
		la.inflight = false
	}
	e.stateMu.Unlock()
}

// save persists a unless the attempt was cancelled concurrently.
func (e *Engine) save(ctx context.Context, a Attempt) bool {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	if la, ok := e.live[a.ID]; ok && la.cancelled {
		return false
	}
	if err := e.store.SaveAttempt(ctx, a); err != nil {
		e.logger.LogAttrs(ctx, slog.LevelError, "failed to save delivery attempt",
			logger.AttemptID(a.ID),
			logger.Error(err),
		)
	}
	return true
}

// current reloads the stored attempt, falling back to a.
func (e *Engine) current(ctx context.Context, a Attempt) Attempt {
	stored, err := e.store.GetAttempt(ctx, a.ID)
	if err != nil {
		return a
	}
	return stored
}

// wait sleeps until the retry is due. It returns false on cancellation.
func (e *Engine) wait(ctx context.Context, id string, d time.Duration) bool {
	e.stateMu.Lock()
	la, ok := e.live[id]
	e.stateMu.Unlock()
	if !ok {
		return false
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-la.wake:
		return false
	case <-timer.C:
		return true
	}
}

// CancelDelivery cancels a pending attempt through the channel's Canceler.
// Attempts whose handler call is in flight cannot be cancelled.
func (e *Engine) CancelDelivery(ctx context.Context, attemptID string) (bool, error) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	a, err := e.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return false, err
	}
	if a.Status != StatusPending {
		return false, nil
	}
	la := e.live[attemptID]
	if la != nil && la.inflight {
		return false, nil
	}

	h, ok := e.Handler(a.Channel)
	if !ok {
		return false, ErrNoHandler
	}
	c, ok := h.(Canceler)
	if !ok {
		return false, ErrCancelNotSupported
	}
	cancelled, err := c.Cancel(ctx, a)
	if err != nil || !cancelled {
		return false, err
	}

	a.Status = StatusCancelled
	a.NextAttemptAt = nil
	a.UpdatedAt = e.now()
	if err := e.store.SaveAttempt(ctx, a); err != nil {
		return false, err
	}
	if la != nil {
		la.cancelled = true
		close(la.wake)
	}

	e.logger.LogAttrs(ctx, slog.LevelInfo, "delivery cancelled",
		logger.AttemptID(a.ID),
		logger.NotificationID(a.NotificationID),
		logger.Channel(a.Channel),
	)
	e.emit(ctx, events.DeliveryCancelled, a, nil)
	return true, nil
}

// GetDeliveryStatus returns the current state of an attempt.
func (e *Engine) GetDeliveryStatus(ctx context.Context, attemptID string) (Attempt, error) {
	return e.store.GetAttempt(ctx, attemptID)
}

// Attempts returns every attempt made for a notification.
func (e *Engine) Attempts(ctx context.Context, notificationID string) ([]Attempt, error) {
	return e.store.ListAttempts(ctx, notificationID)
}

// Receipts returns the receipt log of an attempt.
func (e *Engine) Receipts(ctx context.Context, attemptID string) ([]Receipt, error) {
	return e.store.Receipts(ctx, attemptID)
}

// TrimHistory deletes finished attempts last updated more than olderThan ago.
func (e *Engine) TrimHistory(ctx context.Context, olderThan time.Duration) (int, error) {
	n, err := e.store.DeleteOlderThan(ctx, e.now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		e.logger.LogAttrs(ctx, slog.LevelInfo, "delivery history trimmed", slog.Int("count", n))
	}
	return n, nil
}

// Stats returns attempt counts by status and try counters.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	byStatus, err := e.store.CountByStatus(ctx)
	if err != nil {
		return Stats{}, err
	}

	e.mu.RLock()
	handlers := len(e.handlers)
	e.mu.RUnlock()

	return Stats{
		ByStatus: byStatus,
		Tries:    e.tries.Load(),
		Timeouts: e.timeouts.Load(),
		Handlers: handlers,
	}, nil
}

// Start launches the maintenance tick that resolves stale attempts and trims history.
func (e *Engine) Start(ctx context.Context) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	if e.cancel != nil {
		return ErrAlreadyStarted
	}

	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	go e.maintain(ctx, e.done)
	return nil
}

// Stop halts the maintenance tick.
func (e *Engine) Stop() error {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	if e.cancel == nil {
		return ErrNotStarted
	}
	e.cancel()
	<-e.done
	e.cancel = nil
	return nil
}

// Run starts maintenance and returns a function suitable for errgroup.
func (e *Engine) Run(ctx context.Context) func() error {
	return func() error {
		if err := e.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return e.Stop()
	}
}

func (e *Engine) maintain(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(e.maintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.ResolveStale(ctx); err != nil && ctx.Err() == nil {
				e.logger.LogAttrs(ctx, slog.LevelError, "failed to resolve stale deliveries", logger.Error(err))
			}
			if e.historyRetention > 0 {
				if _, err := e.TrimHistory(ctx, e.historyRetention); err != nil && ctx.Err() == nil {
					e.logger.LogAttrs(ctx, slog.LevelError, "failed to trim delivery history", logger.Error(err))
				}
			}
		}
	}
}

func (e *Engine) emit(ctx context.Context, t events.Type, a Attempt, err error) {
	e.bus.Emit(ctx, e.event(t, a, err))
}

func (e *Engine) event(t events.Type, a Attempt, err error) events.Event {
	ev := events.Event{
		Type:           t,
		Component:      "delivery",
		NotificationID: a.NotificationID,
		TenantID:       a.TenantID,
		AttemptID:      a.ID,
		Channel:        string(a.Channel),
		RecipientID:    a.RecipientID,
		Attempt:        a.AttemptNumber,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}
