package batch

import "time"

// Config holds the batch processor settings loaded from the environment.
type Config struct {
	MaxBatchSize       int           `env:"BATCH_MAX_SIZE" envDefault:"100"`
	MaxConcurrent      int           `env:"BATCH_MAX_CONCURRENT" envDefault:"5"`
	ProcessingInterval time.Duration `env:"BATCH_PROCESSING_INTERVAL" envDefault:"100ms"`
	AutoFlushInterval  time.Duration `env:"BATCH_AUTO_FLUSH_INTERVAL" envDefault:"5s"`
	RateLimit          int           `env:"BATCH_RATE_LIMIT" envDefault:"0"` // items per second, 0 disables
	MaxPendingJobs     int           `env:"BATCH_MAX_PENDING_JOBS" envDefault:"10000"`
	JobRetention       time.Duration `env:"BATCH_JOB_RETENTION" envDefault:"1h"`
}

// Options converts the config into processor options.
func (c Config) Options() []Option {
	opts := []Option{
		WithMaxBatchSize(c.MaxBatchSize),
		WithMaxConcurrent(c.MaxConcurrent),
		WithProcessingInterval(c.ProcessingInterval),
		WithAutoFlushInterval(c.AutoFlushInterval),
		WithMaxPendingJobs(c.MaxPendingJobs),
		WithJobRetention(c.JobRetention),
	}
	if c.RateLimit > 0 {
		opts = append(opts, WithRateLimit(c.RateLimit))
	}
	return opts
}
