package delivery

import (
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/dmitrymomot/dispatchkit/pkg/events"
	"github.com/dmitrymomot/dispatchkit/pkg/notifications"
)

// Option configures an Engine.
type Option func(*Engine)

// WithStore replaces the in-memory attempt store.
func WithStore(s AttemptStore) Option {
	return func(e *Engine) {
		if s != nil {
			e.store = s
		}
	}
}

// WithTimeout bounds each handler call.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithMaxRetries sets the total number of tries per attempt.
func WithMaxRetries(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxRetries = n
		}
	}
}

// WithRetryDelay sets the backoff: delay·backoff^attemptNumber, capped at maxDelay.
func WithRetryDelay(delay time.Duration, backoff float64, maxDelay time.Duration) Option {
	return func(e *Engine) {
		if delay >= 0 {
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

// WithMaxParallel caps concurrent cells of a single Deliver call.
func WithMaxParallel(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxParallel = n
		}
	}
}

// WithReceiptTimeout enables ResolveStale for attempts left in sent longer than d.
func WithReceiptTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.receiptTimeout = d
		}
	}
}

// WithHistoryRetention trims finished attempts older than d during maintenance.
func WithHistoryRetention(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.historyRetention = d
		}
	}
}

// WithMaintenanceInterval sets how often Run resolves stale attempts and trims history.
func WithMaintenanceInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.maintenanceInterval = d
		}
	}
}

// WithChannelRateLimit throttles tries on one channel to perSecond with the given burst.
func WithChannelRateLimit(ch notifications.Channel, perSecond float64, burst int) Option {
	return func(e *Engine) {
		if perSecond <= 0 {
			return
		}
		e.limiters[ch] = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
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

// WithBus publishes delivery events.
func WithBus(b *events.Bus) Option {
	return func(e *Engine) {
		e.bus = b
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
