package events

import (
	"context"
	"sync"
	"sync/atomic"
)

// Subscription is a buffered stream of values from a Broadcaster.
type Subscription[T any] struct {
	ch     chan T
	quit   chan struct{}
	filter func(T) bool
	once   sync.Once
	mu     sync.RWMutex
	closed bool
	owner  *Broadcaster[T]
}

// C returns the receive channel. It is closed when the subscription ends.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// Close ends the subscription. Idempotent.
func (s *Subscription[T]) Close() {
	if s.owner != nil {
		s.owner.remove(s)
	}
	s.shutdown()
}

func (s *Subscription[T]) shutdown() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		close(s.quit)
		s.mu.Unlock()
	})
}

func (s *Subscription[T]) offer(v T) bool {
	if s.filter != nil && !s.filter(v) {
		return true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return true
	}

	select {
	case s.ch <- v:
		return true
	default:
		return false
	}
}

// Broadcaster fans values out to subscribers without ever blocking the publisher.
// A subscriber whose buffer is full misses the value; the drop is counted.
// All methods are safe for concurrent use.
type Broadcaster[T any] struct {
	mu         sync.RWMutex
	subs       map[*Subscription[T]]struct{}
	bufferSize int
	closed     bool
	dropped    atomic.Uint64
}

// NewBroadcaster creates a broadcaster with the given per-subscriber buffer (minimum 1).
func NewBroadcaster[T any](bufferSize int) *Broadcaster[T] {
	return &Broadcaster[T]{
		subs:       make(map[*Subscription[T]]struct{}),
		bufferSize: max(bufferSize, 1),
	}
}

// Subscribe registers a new subscriber. A nil filter accepts every value.
// The subscription ends when ctx is cancelled, Close is called, or the broadcaster closes.
func (b *Broadcaster[T]) Subscribe(ctx context.Context, filter func(T) bool) *Subscription[T] {
	sub := &Subscription[T]{
		ch:     make(chan T, b.bufferSize),
		quit:   make(chan struct{}),
		filter: filter,
		owner:  b,
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.shutdown()
		return sub
	}
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				sub.Close()
			case <-sub.quit:
			}
		}()
	}
	return sub
}

// Publish offers v to every subscriber and returns how many accepted it.
func (b *Broadcaster[T]) Publish(v T) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0
	}

	n := 0
	for sub := range b.subs {
		if sub.offer(v) {
			n++
		} else {
			b.dropped.Add(1)
		}
	}
	return n
}

// Len returns the number of active subscribers.
func (b *Broadcaster[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many values were lost to full subscriber buffers.
func (b *Broadcaster[T]) Dropped() uint64 {
	return b.dropped.Load()
}

// Close ends every subscription. Later Subscribe calls get closed subscriptions.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[*Subscription[T]]struct{})
	b.mu.Unlock()

	for sub := range subs {
		sub.shutdown()
	}
}

func (b *Broadcaster[T]) remove(sub *Subscription[T]) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
}
