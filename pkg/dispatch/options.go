package dispatch

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/dispatchkit/pkg/dedup"
	"github.com/dmitrymomot/dispatchkit/pkg/delivery"
	"github.com/dmitrymomot/dispatchkit/pkg/events"
	"github.com/dmitrymomot/dispatchkit/pkg/notifications"
)

// Option configures an Engine.
type Option func(*Engine)

// WithStorage sets where notification records are persisted.
func WithStorage(s notifications.Storage) Option {
	return func(e *Engine) {
		if s != nil {
			e.storage = s
		}
	}
}

// WithDelivery sets the delivery engine used for fan-out.
func WithDelivery(d *delivery.Engine) Option {
	return func(e *Engine) {
		if d != nil {
			e.delivery = d
		}
	}
}

// WithDedup sets the deduplication engine consulted on Send.
func WithDedup(d *dedup.Engine) Option {
	return func(e *Engine) {
		if d != nil {
			e.dedup = d
		}
	}
}

// WithoutDedup turns duplicate suppression off.
func WithoutDedup() Option {
	return func(e *Engine) {
		e.dedup = nil
		e.noDedup = true
	}
}

// WithMaxConcurrent caps how many notifications are processed at once.
func WithMaxConcurrent(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxConcurrent = n
		}
	}
}

// WithDrainInterval sets the queue drain tick.
func WithDrainInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.drainInterval = d
		}
	}
}

// WithQueueSize caps queued plus scheduled notifications. Zero means unbounded.
func WithQueueSize(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.queueSize = n
		}
	}
}

// WithMaxAttempts sets the default per-notification attempt budget.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// WithRetryDelay sets the wholesale retry policy: delay·backoff^(attempts-1), capped at maxDelay.
func WithRetryDelay(delay time.Duration, backoff float64, maxDelay time.Duration) Option {
	return func(e *Engine) {
		if delay > 0 {
			e.retryDelay = delay
		}
		if backoff >= 1 {
			e.retryBackoff = backoff
		}
		if maxDelay > 0 {
			e.maxRetryDelay = maxDelay
		}
	}
}

// WithMaxRecipients limits recipients per request. Zero disables the check.
func WithMaxRecipients(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.maxRecipients = n
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

// WithBus sets the bus that receives notification lifecycle events.
func WithBus(b *events.Bus) Option {
	return func(e *Engine) {
		e.bus = b
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}
