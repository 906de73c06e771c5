package dedup

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/dispatchkit/pkg/events"
)

// Option configures an Engine.
type Option func(*Engine)

// WithStore replaces the default in-memory store.
func WithStore(s Store) Option {
	return func(e *Engine) {
		if s != nil {
			e.store = s
		}
	}
}

// WithStrategy selects how fingerprints are derived. Unknown values are ignored.
func WithStrategy(s Strategy) Option {
	return func(e *Engine) {
		if s.Valid() {
			e.strategy = s
		}
	}
}

// WithWindow sets how long a fingerprint suppresses duplicates after it was last seen.
func WithWindow(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.window = d
		}
	}
}

// WithMaxEntries caps the default in-memory store.
func WithMaxEntries(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxEntries = n
		}
	}
}

// WithSweepInterval sets how often expired entries are purged by Run.
func WithSweepInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.sweepInterval = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithBus publishes notification:deduplicated events on the bus.
func WithBus(b *events.Bus) Option {
	return func(e *Engine) {
		e.bus = b
	}
}
