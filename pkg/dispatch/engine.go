package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrymomot/dispatchkit/pkg/backoff"
	"github.com/dmitrymomot/dispatchkit/pkg/dedup"
	"github.com/dmitrymomot/dispatchkit/pkg/delivery"
	"github.com/dmitrymomot/dispatchkit/pkg/events"
	"github.com/dmitrymomot/dispatchkit/pkg/logger"
	"github.com/dmitrymomot/dispatchkit/pkg/notifications"
	"github.com/dmitrymomot/dispatchkit/pkg/priorityqueue"
)

// Engine is the public entry point of the pipeline. It validates and
// deduplicates requests, queues them by priority and drains the queue into
// the delivery engine under a global concurrency cap.
type Engine struct {
	storage  notifications.Storage
	delivery *delivery.Engine
	dedup    *dedup.Engine
	noDedup  bool
	queue    *priorityqueue.Queue[*notifications.Notification]

	maxConcurrent int
	drainInterval time.Duration
	queueSize     int
	maxAttempts   int
	retryDelay    time.Duration
	retryBackoff  float64
	maxRetryDelay time.Duration
	maxRecipients int

	logger *slog.Logger
	bus    *events.Bus
	now    func() time.Time

	sem      chan struct{}
	wg       sync.WaitGroup
	stopMu   sync.Mutex
	stopping atomic.Bool
	workCtx  context.Context

	runMu    sync.Mutex
	cancel   context.CancelFunc
	loopDone chan struct{}

	accepted     atomic.Uint64
	deduplicated atomic.Uint64
	sent         atomic.Uint64
	retried      atomic.Uint64
	failed       atomic.Uint64
	expired      atomic.Uint64
	cancelled    atomic.Uint64
}

// Stats is a point-in-time view of the engine and its collaborators.
type Stats struct {
	Queued       int            `json:"queued"`
	Scheduled    int            `json:"scheduled"`
	ByPriority   map[string]int `json:"by_priority"`
	InFlight     int            `json:"in_flight"`
	Accepted     uint64         `json:"accepted"`
	Deduplicated uint64         `json:"deduplicated"`
	Sent         uint64         `json:"sent"`
	Retried      uint64         `json:"retried"`
	Failed       uint64         `json:"failed"`
	Expired      uint64         `json:"expired"`
	Cancelled    uint64         `json:"cancelled"`
	Delivery     delivery.Stats `json:"delivery"`
	Dedup        *dedup.Stats   `json:"dedup,omitempty"`
}

// New creates an engine. Missing collaborators default to in-memory ones
// sharing the engine's logger, bus and clock.
func New(opts ...Option) *Engine {
	e := &Engine{
		maxConcurrent: 10,
		drainInterval: 100 * time.Millisecond,
		maxAttempts:   3,
		retryDelay:    5 * time.Second,
		retryBackoff:  2,
		maxRetryDelay: 10 * time.Minute,
		maxRecipients: 1000,
		logger:        slog.Default(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.storage == nil {
		e.storage = notifications.NewMemoryStorage()
	}
	if e.delivery == nil {
		e.delivery = delivery.New(
			delivery.WithLogger(e.logger),
			delivery.WithBus(e.bus),
			delivery.WithClock(e.now),
		)
	}
	if e.dedup == nil && !e.noDedup {
		e.dedup = dedup.New(
			dedup.WithLogger(e.logger),
			dedup.WithBus(e.bus),
			dedup.WithClock(e.now),
		)
	}

	e.queue = priorityqueue.New[*notifications.Notification](
		priorityqueue.WithMaxSize(e.queueSize),
		priorityqueue.WithClock(e.now),
	)
	e.sem = make(chan struct{}, e.maxConcurrent)
	return e
}

// Delivery returns the delivery engine, for receipt ingress and attempt queries.
func (e *Engine) Delivery() *delivery.Engine { return e.delivery }

// Dedup returns the deduplication engine, or nil when suppression is off.
func (e *Engine) Dedup() *dedup.Engine { return e.dedup }

// RegisterChannel installs a delivery handler. Requests naming a channel
// without a handler are rejected.
func (e *Engine) RegisterChannel(h delivery.Handler) error {
	return e.delivery.RegisterHandler(h)
}

// Channels returns the channels that currently accept notifications.
func (e *Engine) Channels() []notifications.Channel {
	return e.delivery.Channels()
}

// Send validates req and enqueues it. A duplicate inside the dedup window is
// not an error: the result carries a Rejection instead of a notification.
func (e *Engine) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	priority, perr := notifications.ParsePriority(req.Priority)
	if err := e.validate(req, perr); err != nil {
		return SendResult{}, errors.Join(ErrInvalidRequest, err)
	}

	if req.ID != "" {
		if _, err := e.storage.Get(ctx, req.ID); err == nil {
			return SendResult{}, fmt.Errorf("notification %s: %w", req.ID, ErrAlreadyExists)
		} else if !errors.Is(err, notifications.ErrNotificationNotFound) {
			return SendResult{}, err
		}
	}

	n := req.notification(priority, e.maxAttempts, e.now())

	var fingerprint string
	if e.dedup != nil {
		decision, err := e.dedup.Observe(ctx, n)
		if err != nil {
			return SendResult{}, fmt.Errorf("dedup check: %w", err)
		}
		if decision.Duplicate {
			e.deduplicated.Add(1)
			return SendResult{Rejection: &Rejection{
				Reason:      RejectDuplicate,
				Fingerprint: decision.Fingerprint,
				Count:       decision.Entry.Count,
			}}, nil
		}
		fingerprint = decision.Fingerprint
	}

	if err := e.storage.Save(ctx, n); err != nil {
		e.forget(ctx, fingerprint, n.ID)
		return SendResult{}, fmt.Errorf("failed to store notification: %w", err)
	}

	// n belongs to the queue once enqueued.
	snapshot := n.Clone()
	var at time.Time
	if n.ScheduledFor != nil {
		at = *n.ScheduledFor
	}
	if err := e.enqueue(n, at); err != nil {
		_ = e.storage.Delete(ctx, n.ID)
		e.forget(ctx, fingerprint, snapshot.ID)
		return SendResult{}, err
	}

	e.accepted.Add(1)
	e.logger.LogAttrs(ctx, slog.LevelDebug, "notification queued",
		logger.NotificationID(snapshot.ID),
		logger.TenantID(snapshot.TenantID),
		logger.Priority(snapshot.Priority),
	)
	e.emit(ctx, events.NotificationQueued, snapshot, nil, nil)

	return SendResult{Notification: snapshot}, nil
}

// SendBatch sends each request independently. One failing item never affects the others.
func (e *Engine) SendBatch(ctx context.Context, reqs []SendRequest) []BatchResult {
	out := make([]BatchResult, len(reqs))
	for i, req := range reqs {
		res, err := e.Send(ctx, req)
		out[i] = BatchResult{Index: i, Result: res, Err: err}
	}
	return out
}

// ProcessRequest is a batch.ProcessFunc over SendRequest. Duplicates are
// reported as ErrDuplicate so they show up in the job's item errors.
func (e *Engine) ProcessRequest(ctx context.Context, req SendRequest) error {
	res, err := e.Send(ctx, req)
	if err != nil {
		return err
	}
	if !res.Accepted() {
		return fmt.Errorf("%w: fingerprint %s", ErrDuplicate, res.Rejection.Fingerprint)
	}
	return nil
}

// Cancel removes a notification that is still waiting in the queue.
// It returns false once the notification has been picked up for processing.
// A cancelled notification releases its dedup entry so it can be sent again.
func (e *Engine) Cancel(ctx context.Context, id string) (bool, error) {
	item, queued := e.queue.Find(id)
	if !queued || !e.queue.Remove(id) {
		if _, err := e.storage.Get(ctx, id); errors.Is(err, notifications.ErrNotificationNotFound) {
			return false, ErrNotFound
		} else if err != nil {
			return false, err
		}
		return false, nil
	}

	n, err := e.storage.Get(ctx, id)
	if err != nil {
		n = item.Value.Clone()
	}
	n.Status = notifications.StatusCancelled
	n.UpdatedAt = e.now()
	e.save(ctx, n)
	if e.dedup != nil {
		e.forget(ctx, e.dedup.Fingerprint(n), id)
	}

	e.cancelled.Add(1)
	e.logger.LogAttrs(ctx, slog.LevelInfo, "notification cancelled", logger.NotificationID(id))
	e.emit(ctx, events.NotificationCancelled, n, nil, nil)
	return true, nil
}

// forget releases the dedup entry of a notification that never made it into
// the queue, so the caller can resubmit it.
func (e *Engine) forget(ctx context.Context, fp, id string) {
	if e.dedup == nil || fp == "" {
		return
	}
	if err := e.dedup.Forget(ctx, fp, id); err != nil {
		e.logger.LogAttrs(ctx, slog.LevelWarn, "failed to release dedup entry",
			logger.NotificationID(id),
			logger.Fingerprint(fp),
			logger.Error(err),
		)
	}
}

// Get returns the stored notification.
func (e *Engine) Get(ctx context.Context, id string) (*notifications.Notification, error) {
	n, err := e.storage.Get(ctx, id)
	if errors.Is(err, notifications.ErrNotificationNotFound) {
		return nil, ErrNotFound
	}
	return n, err
}

// List returns stored notifications matching opts.
func (e *Engine) List(ctx context.Context, opts notifications.ListOptions) ([]*notifications.Notification, error) {
	return e.storage.List(ctx, opts)
}

// Attempts returns the delivery attempts recorded for a notification.
func (e *Engine) Attempts(ctx context.Context, id string) ([]delivery.Attempt, error) {
	return e.delivery.Attempts(ctx, id)
}

// Stats reports queue depth, in-flight work and collaborator statistics.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	byPriority := make(map[string]int, len(notifications.Priorities()))
	for p, n := range e.queue.Sizes() {
		byPriority[p.String()] = n
	}

	scheduled := e.queue.ScheduledLen()
	s := Stats{
		Queued:       max(e.queue.Len()-scheduled, 0),
		Scheduled:    scheduled,
		ByPriority:   byPriority,
		InFlight:     len(e.sem),
		Accepted:     e.accepted.Load(),
		Deduplicated: e.deduplicated.Load(),
		Sent:         e.sent.Load(),
		Retried:      e.retried.Load(),
		Failed:       e.failed.Load(),
		Expired:      e.expired.Load(),
		Cancelled:    e.cancelled.Load(),
	}

	ds, err := e.delivery.Stats(ctx)
	if err != nil {
		return s, fmt.Errorf("delivery stats: %w", err)
	}
	s.Delivery = ds

	if e.dedup != nil {
		dd, err := e.dedup.Stats(ctx)
		if err != nil {
			return s, fmt.Errorf("dedup stats: %w", err)
		}
		s.Dedup = &dd
	}
	return s, nil
}

// Start launches the drain loop.
func (e *Engine) Start(ctx context.Context) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	if e.cancel != nil {
		return ErrAlreadyStarted
	}

	// Dequeued notifications finish processing even after shutdown begins.
	e.workCtx = context.WithoutCancel(ctx)

	var loopCtx context.Context
	loopCtx, e.cancel = context.WithCancel(ctx)
	e.loopDone = make(chan struct{})
	e.stopping.Store(false)

	go e.loop(loopCtx, e.loopDone)

	e.logger.Info("dispatch engine started",
		slog.Int("max_concurrent", e.maxConcurrent),
		slog.Duration("drain_interval", e.drainInterval),
	)
	return nil
}

// Stop halts the drain loop and waits for in-flight notifications.
// Queued notifications stay queued.
func (e *Engine) Stop() error {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	if e.cancel == nil {
		return ErrNotStarted
	}

	e.stopMu.Lock()
	e.stopping.Store(true)
	e.stopMu.Unlock()

	e.cancel()
	<-e.loopDone

	e.logger.Info("dispatch engine stopping, waiting for in-flight notifications")
	e.wg.Wait()
	e.cancel = nil

	e.logger.Info("dispatch engine stopped")
	return nil
}

// Run starts the engine and returns a function suitable for errgroup.
func (e *Engine) Run(ctx context.Context) func() error {
	return func() error {
		if err := e.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return e.Stop()
	}
}

func (e *Engine) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(e.drainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.drain(ctx)
		}
	}
}

// drain dequeues while slots are free. A panic is turned into an error event.
func (e *Engine) drain(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("dispatch drain tick panicked: %v", r)
			e.logger.LogAttrs(ctx, slog.LevelError, "dispatch tick panicked", logger.Error(err))
			e.bus.Emit(ctx, events.Event{Type: events.Error, Component: "dispatch", Error: err.Error()})
		}
	}()

	for {
		select {
		case e.sem <- struct{}{}:
		default:
			return
		}

		e.stopMu.Lock()
		if e.stopping.Load() {
			e.stopMu.Unlock()
			<-e.sem
			return
		}
		item, ok := e.queue.Dequeue()
		if !ok {
			e.stopMu.Unlock()
			<-e.sem
			return
		}
		e.wg.Add(1)
		e.stopMu.Unlock()

		go e.process(e.workCtx, item.Value)
	}
}

func (e *Engine) process(ctx context.Context, n *notifications.Notification) {
	defer e.wg.Done()
	defer func() { <-e.sem }()
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("processing notification %s panicked: %v", n.ID, r)
			e.logger.LogAttrs(ctx, slog.LevelError, "notification processing panicked",
				logger.NotificationID(n.ID),
				logger.Error(err),
			)
			e.bus.Emit(ctx, events.Event{
				Type:           events.Error,
				Component:      "dispatch",
				NotificationID: n.ID,
				TenantID:       n.TenantID,
				Error:          err.Error(),
			})
			e.markFailed(ctx, n, err.Error())
		}
	}()

	now := e.now()
	if n.IsScheduled(now) {
		if err := e.enqueue(n, *n.ScheduledFor); err != nil {
			e.markFailed(ctx, n, err.Error())
		}
		return
	}
	if n.IsExpired(now) {
		e.markExpired(ctx, n)
		return
	}

	n.Status = notifications.StatusProcessing
	n.UpdatedAt = now
	e.save(ctx, n)
	e.emit(ctx, events.NotificationProcessing, n, nil, nil)

	attempts, err := e.delivery.Deliver(ctx, n)
	n.Attempts++

	if err == nil && anySucceeded(attempts) {
		e.markSent(ctx, n, attempts)
		return
	}

	reason := summarize(attempts)
	if err != nil {
		reason = err.Error()
	}
	if n.Attempts >= n.MaxAttempts || errors.Is(err, delivery.ErrNoDeliveryTargets) {
		e.markFailed(ctx, n, reason)
		return
	}
	e.scheduleRetry(ctx, n, reason)
}

func (e *Engine) markSent(ctx context.Context, n *notifications.Notification, attempts []delivery.Attempt) {
	now := e.now()
	n.Status = notifications.StatusSent
	n.SentAt = &now
	n.UpdatedAt = now
	n.LastError = ""
	e.save(ctx, n)

	if e.dedup != nil {
		if err := e.dedup.MarkSent(ctx, n); err != nil {
			e.logger.LogAttrs(ctx, slog.LevelWarn, "failed to mark notification sent in dedup",
				logger.NotificationID(n.ID),
				logger.Error(err),
			)
		}
	}

	succeeded := 0
	for _, a := range attempts {
		if a.Status.Succeeded() {
			succeeded++
		}
	}

	e.sent.Add(1)
	e.logger.LogAttrs(ctx, slog.LevelInfo, "notification sent",
		logger.NotificationID(n.ID),
		logger.TenantID(n.TenantID),
		slog.Int("attempts", len(attempts)),
		slog.Int("succeeded", succeeded),
	)
	e.emit(ctx, events.NotificationSent, n, nil, map[string]any{
		"attempts":  len(attempts),
		"succeeded": succeeded,
	})
}

func (e *Engine) markFailed(ctx context.Context, n *notifications.Notification, reason string) {
	now := e.now()
	n.Status = notifications.StatusFailed
	n.FailedAt = &now
	n.UpdatedAt = now
	n.LastError = reason
	e.save(ctx, n)

	e.failed.Add(1)
	e.logger.LogAttrs(ctx, slog.LevelWarn, "notification failed",
		logger.NotificationID(n.ID),
		logger.TenantID(n.TenantID),
		logger.RetryCount(n.Attempts),
		slog.String("reason", reason),
	)
	e.emit(ctx, events.NotificationFailed, n, errors.New(reason), nil)
}

func (e *Engine) markExpired(ctx context.Context, n *notifications.Notification) {
	e.expired.Add(1)
	e.emit(ctx, events.NotificationExpired, n, nil, map[string]any{"expires_at": n.ExpiresAt})
	e.markFailed(ctx, n, "notification expired")
}

func (e *Engine) scheduleRetry(ctx context.Context, n *notifications.Notification, reason string) {
	delay := backoff.Pow(e.retryDelay, e.retryBackoff, n.Attempts-1, e.maxRetryDelay)
	now := e.now()
	next := now.Add(delay)

	n.Status = notifications.StatusPending
	n.UpdatedAt = now
	n.LastError = reason
	e.save(ctx, n)

	snapshot := n.Clone()
	if err := e.enqueue(n, next); err != nil {
		e.markFailed(ctx, n, fmt.Sprintf("%s; retry not scheduled: %v", reason, err))
		return
	}

	e.retried.Add(1)
	e.logger.LogAttrs(ctx, slog.LevelInfo, "notification retry scheduled",
		logger.NotificationID(snapshot.ID),
		logger.RetryCount(snapshot.Attempts),
		logger.Duration(delay),
	)
	e.emit(ctx, events.NotificationRetry, snapshot, errors.New(reason), map[string]any{
		"delay":           delay.String(),
		"next_attempt_at": next,
	})
}

func (e *Engine) enqueue(n *notifications.Notification, at time.Time) error {
	err := e.queue.Enqueue(priorityqueue.Item[*notifications.Notification]{
		ID:           n.ID,
		Priority:     n.Priority,
		Value:        n,
		ScheduledFor: at,
		Attempts:     n.Attempts,
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, priorityqueue.ErrQueueFull):
		return ErrQueueFull
	case errors.Is(err, priorityqueue.ErrDuplicateItem):
		return fmt.Errorf("notification %s: %w", n.ID, ErrAlreadyExists)
	default:
		return err
	}
}

// save persists n. Storage failures after acceptance are logged, not returned.
func (e *Engine) save(ctx context.Context, n *notifications.Notification) {
	if err := e.storage.Save(ctx, n); err != nil {
		e.logger.LogAttrs(ctx, slog.LevelError, "failed to save notification",
			logger.NotificationID(n.ID),
			logger.Error(err),
		)
	}
}

func (e *Engine) emit(ctx context.Context, t events.Type, n *notifications.Notification, err error, data map[string]any) {
	ev := events.Event{
		Type:           t,
		Component:      "dispatch",
		NotificationID: n.ID,
		TenantID:       n.TenantID,
		Priority:       n.Priority.String(),
		Attempt:        n.Attempts,
		Data:           data,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	e.bus.Emit(ctx, ev)
}

func anySucceeded(attempts []delivery.Attempt) bool {
	for _, a := range attempts {
		if a.Status.Succeeded() {
			return true
		}
	}
	return false
}

// summarize renders the failed cells as "channel/recipient: error".
func summarize(attempts []delivery.Attempt) string {
	parts := make([]string, 0, len(attempts))
	for _, a := range attempts {
		if a.Error == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s/%s: %s", a.Channel, a.RecipientID, a.Error))
	}
	if len(parts) == 0 {
		return "all delivery attempts failed"
	}
	return strings.Join(parts, "; ")
}
