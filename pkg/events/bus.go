package events

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/dispatchkit/pkg/logger"
)

// Listener handles an event synchronously inside Emit.
// Listeners must be fast; slow consumers should use Subscribe instead.
type Listener func(ctx context.Context, e Event)

// Bus distributes lifecycle events to registered listeners and channel subscribers.
// A panicking listener is recovered and logged; it never stops delivery to the others.
// A nil *Bus is valid and discards every event.
type Bus struct {
	mu        sync.RWMutex
	seq       uint64
	listeners map[Type]map[uint64]Listener
	wildcard  map[uint64]Listener
	stream    *Broadcaster[Event]
	logger    *slog.Logger
	now       func() time.Time
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithLogger sets the logger used to report listener panics.
func WithLogger(l *slog.Logger) BusOption {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithBufferSize sets the per-subscriber channel buffer.
func WithBufferSize(n int) BusOption {
	return func(b *Bus) {
		b.stream = NewBroadcaster[Event](n)
	}
}

// WithClock overrides the time source used to stamp events.
func WithClock(now func() time.Time) BusOption {
	return func(b *Bus) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBus creates an event bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		listeners: make(map[Type]map[uint64]Listener),
		wildcard:  make(map[uint64]Listener),
		stream:    NewBroadcaster[Event](256),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// On registers fn for one event type and returns a function that removes it.
func (b *Bus) On(t Type, fn Listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	id := b.seq
	if b.listeners[t] == nil {
		b.listeners[t] = make(map[uint64]Listener)
	}
	b.listeners[t][id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners[t], id)
	}
}

// OnAll registers fn for every event type and returns a function that removes it.
func (b *Bus) OnAll(fn Listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	id := b.seq
	b.wildcard[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.wildcard, id)
	}
}

// Subscribe returns a buffered event stream limited to the given types
// (all types when none are given). Events are dropped for a full buffer.
func (b *Bus) Subscribe(ctx context.Context, types ...Type) *Subscription[Event] {
	var filter func(Event) bool
	if len(types) > 0 {
		types = slices.Clone(types)
		filter = func(e Event) bool { return slices.Contains(types, e.Type) }
	}
	return b.stream.Subscribe(ctx, filter)
}

// Emit stamps and distributes e. It never blocks on channel subscribers.
func (b *Bus) Emit(ctx context.Context, e Event) {
	if b == nil {
		return
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Time.IsZero() {
		e.Time = b.now()
	}

	b.mu.RLock()
	fns := make([]Listener, 0, len(b.listeners[e.Type])+len(b.wildcard))
	for _, fn := range b.listeners[e.Type] {
		fns = append(fns, fn)
	}
	for _, fn := range b.wildcard {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		b.call(ctx, fn, e)
	}
	b.stream.Publish(e)
}

// Dropped returns how many events subscribers missed because their buffers were full.
func (b *Bus) Dropped() uint64 {
	if b == nil {
		return 0
	}
	return b.stream.Dropped()
}

// Close ends every channel subscription.
func (b *Bus) Close() {
	if b == nil {
		return
	}
	b.stream.Close()
}

func (b *Bus) call(ctx context.Context, fn Listener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.LogAttrs(ctx, slog.LevelError, "event listener panicked",
				logger.Component("events"),
				logger.Event(e.Type),
				logger.Error(fmt.Errorf("panic: %v", r)),
			)
		}
	}()
	fn(ctx, e)
}
