package batch

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/dispatchkit/pkg/events"
	"github.com/dmitrymomot/dispatchkit/pkg/ratelimiter"
)

type options struct {
	maxBatchSize       int
	maxConcurrent      int
	processingInterval time.Duration
	autoFlushInterval  time.Duration
	maxPendingJobs     int
	jobRetention       time.Duration
	limiter            Limiter
	logger             *slog.Logger
	bus                *events.Bus
	now                func() time.Time
}

func defaultOptions() options {
	return options{
		maxBatchSize:       100,
		maxConcurrent:      5,
		processingInterval: 100 * time.Millisecond,
		autoFlushInterval:  5 * time.Second,
		maxPendingJobs:     10000,
		jobRetention:       time.Hour,
		logger:             slog.Default(),
		now:                time.Now,
	}
}

// Option configures a Processor.
type Option func(*options)

// WithMaxBatchSize sets the buffer size at which a batch is flushed into a job.
func WithMaxBatchSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxBatchSize = n
		}
	}
}

// WithMaxConcurrent caps the number of jobs processing at once.
func WithMaxConcurrent(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxConcurrent = n
		}
	}
}

// WithProcessingInterval sets how often pending jobs are started.
func WithProcessingInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.processingInterval = d
		}
	}
}

// WithAutoFlushInterval sets how often every buffered batch is flushed.
func WithAutoFlushInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.autoFlushInterval = d
		}
	}
}

// WithMaxPendingJobs caps the number of jobs waiting to start.
func WithMaxPendingJobs(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxPendingJobs = n
		}
	}
}

// WithJobRetention sets how long finished jobs stay queryable. Zero keeps them forever.
func WithJobRetention(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.jobRetention = d
		}
	}
}

// WithRateLimit throttles processing to perSecond items across all jobs
// using an in-memory token bucket.
func WithRateLimit(perSecond int) Option {
	return func(o *options) {
		if perSecond <= 0 {
			return
		}
		bucket, err := ratelimiter.NewBucket(
			ratelimiter.NewMemoryStore(ratelimiter.WithCleanupInterval(0)),
			ratelimiter.PerSecond(perSecond),
		)
		if err != nil {
			return
		}
		o.limiter = bucket.For("batch")
	}
}

// WithLimiter sets a custom limiter, e.g. a shared redis-backed bucket or a *rate.Limiter.
func WithLimiter(l Limiter) Option {
	return func(o *options) {
		o.limiter = l
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithBus publishes job lifecycle events.
func WithBus(b *events.Bus) Option {
	return func(o *options) {
		o.bus = b
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
