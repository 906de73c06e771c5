package priorityqueue

import (
	"time"

	"github.com/dmitrymomot/dispatchkit/pkg/backoff"
)

// Option configures a Queue.
type Option func(*options)

type options struct {
	maxSize    int
	maxRetries int
	backoff    backoff.Strategy
	now        func() time.Time
}

func defaultOptions() options {
	return options{
		maxRetries: 3,
		backoff:    backoff.Default(),
		now:        time.Now,
	}
}

// WithMaxSize bounds the number of live plus scheduled items.
// Zero means unbounded.
func WithMaxSize(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.maxSize = n
		}
	}
}

// WithMaxRetries sets how many times Retry accepts an item.
func WithMaxRetries(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}

// WithBackoff replaces the retry delay strategy.
// The default yields min(30s, 2^attempts seconds).
func WithBackoff(b backoff.Strategy) Option {
	return func(o *options) {
		if b != nil {
			o.backoff = b
		}
	}
}

// WithClock overrides the time source used to stamp items and compute delays.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
