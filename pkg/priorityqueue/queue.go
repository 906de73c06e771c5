package priorityqueue

import (
	"container/list"
	"sync"
	"time"

	"github.com/dmitrymomot/dispatchkit/pkg/notifications"
)

// Item is a queued value plus its scheduling metadata.
// Items are copied in and out of the queue; the queue never hands out its own entries.
type Item[T any] struct {
	ID           string
	Priority     notifications.Priority
	Value        T
	ScheduledFor time.Time
	Attempts     int
	NextRetryAt  time.Time
	EnqueuedAt   time.Time
}

type entry[T any] struct {
	item  Item[T]
	elem  *list.Element // set while live
	timer *time.Timer   // set while scheduled
}

// Queue is a five-class strict priority queue with FIFO order inside each class.
// Items with a future ScheduledFor wait in a scheduled set until their timer promotes them.
// All methods are safe for concurrent use.
type Queue[T any] struct {
	mu      sync.Mutex
	classes map[notifications.Priority]*list.List
	entries map[string]*entry[T]
	live    int
	closed  bool
	opts    options
}

// New creates an empty queue.
func New[T any](opts ...Option) *Queue[T] {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	q := &Queue[T]{
		classes: make(map[notifications.Priority]*list.List, len(notifications.Priorities())),
		entries: make(map[string]*entry[T]),
		opts:    o,
	}
	for _, p := range notifications.Priorities() {
		q.classes[p] = list.New()
	}
	return q
}

// Enqueue adds the item to its class, or to the scheduled set when ScheduledFor is in the future.
// The queue rejects rather than evicts when it is full.
func (q *Queue[T]) Enqueue(item Item[T]) error {
	if item.ID == "" {
		return ErrMissingID
	}
	if !item.Priority.Valid() {
		return ErrInvalidPriority
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if _, ok := q.entries[item.ID]; ok {
		return ErrDuplicateItem
	}
	if q.opts.maxSize > 0 && len(q.entries) >= q.opts.maxSize {
		return ErrQueueFull
	}

	now := q.opts.now()
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = now
	}

	e := &entry[T]{item: item}
	q.entries[item.ID] = e
	if item.ScheduledFor.After(now) {
		q.schedule(e, item.ScheduledFor.Sub(now))
	} else {
		q.push(e)
	}
	return nil
}

// Dequeue removes and returns the oldest item of the highest non-empty class.
func (q *Queue[T]) Dequeue() (Item[T], bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.pop()
}

// Peek returns the item Dequeue would return without removing it.
func (q *Queue[T]) Peek() (Item[T], bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, p := range notifications.Priorities() {
		if front := q.classes[p].Front(); front != nil {
			return front.Value.(*entry[T]).item, true
		}
	}
	return Item[T]{}, false
}

// DequeueBatch removes up to max items in dequeue order.
func (q *Queue[T]) DequeueBatch(max int) []Item[T] {
	if max <= 0 {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Item[T], 0, min(max, q.live))
	for len(out) < max {
		item, ok := q.pop()
		if !ok {
			break
		}
		out = append(out, item)
	}
	return out
}

// Remove drops a live or scheduled item. It reports whether the item was present.
func (q *Queue[T]) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[id]
	if !ok {
		return false
	}
	q.detach(e)
	delete(q.entries, id)
	return true
}

// Find returns a copy of a live or scheduled item.
func (q *Queue[T]) Find(id string) (Item[T], bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[id]
	if !ok {
		return Item[T]{}, false
	}
	return e.item, true
}

// UpdatePriority moves a live item to the tail of its new class.
// Scheduled items keep their timer and land in the new class when promoted.
func (q *Queue[T]) UpdatePriority(id string, p notifications.Priority) error {
	if !p.Valid() {
		return ErrInvalidPriority
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[id]
	if !ok {
		return ErrItemNotFound
	}
	if e.item.Priority == p {
		return nil
	}
	if e.elem != nil {
		q.classes[e.item.Priority].Remove(e.elem)
		e.item.Priority = p
		e.elem = q.classes[p].PushBack(e)
		return nil
	}
	e.item.Priority = p
	return nil
}

// Retry re-admits a dequeued item after an exponential delay.
// It returns ErrMaxRetriesExceeded once Attempts passes the configured max retries;
// the caller must then treat the item as terminal.
func (q *Queue[T]) Retry(item Item[T]) (Item[T], error) {
	item.Attempts++
	if item.Attempts > q.opts.maxRetries {
		return item, ErrMaxRetriesExceeded
	}

	now := q.opts.now()
	item.NextRetryAt = now.Add(q.opts.backoff.NextInterval(item.Attempts))
	item.ScheduledFor = item.NextRetryAt
	if err := q.Enqueue(item); err != nil {
		return item, err
	}
	return item, nil
}

// Clear drops every live and scheduled item and returns how many were removed.
func (q *Queue[T]) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.entries)
	for _, e := range q.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
	for _, l := range q.classes {
		l.Init()
	}
	q.entries = make(map[string]*entry[T])
	q.live = 0
	return n
}

// Len returns the number of live plus scheduled items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// ScheduledLen returns the number of items waiting for their scheduled time.
func (q *Queue[T]) ScheduledLen() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries) - q.live
}

// Sizes returns the number of live items per priority class.
func (q *Queue[T]) Sizes() map[notifications.Priority]int {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make(map[notifications.Priority]int, len(q.classes))
	for p, l := range q.classes {
		out[p] = l.Len()
	}
	return out
}

// Close stops all scheduling timers and rejects further enqueues.
// Items already queued stay readable.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	for _, e := range q.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
}

func (q *Queue[T]) push(e *entry[T]) {
	e.timer = nil
	e.elem = q.classes[e.item.Priority].PushBack(e)
	q.live++
}

func (q *Queue[T]) pop() (Item[T], bool) {
	for _, p := range notifications.Priorities() {
		l := q.classes[p]
		front := l.Front()
		if front == nil {
			continue
		}
		e := l.Remove(front).(*entry[T])
		e.elem = nil
		q.live--
		delete(q.entries, e.item.ID)
		return e.item, true
	}
	return Item[T]{}, false
}

func (q *Queue[T]) detach(e *entry[T]) {
	if e.elem != nil {
		q.classes[e.item.Priority].Remove(e.elem)
		e.elem = nil
		q.live--
	}
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

func (q *Queue[T]) schedule(e *entry[T], delay time.Duration) {
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		q.mu.Lock()
		defer q.mu.Unlock()

		// the entry may have been removed or rescheduled since the timer was armed
		cur, ok := q.entries[e.item.ID]
		if !ok || cur != e || e.timer != t || q.closed {
			return
		}
		q.push(e)
	})
	e.timer = t
}
