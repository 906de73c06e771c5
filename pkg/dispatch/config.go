package dispatch

import "time"

// Config holds the dispatch engine settings loaded from the environment.
type Config struct {
	MaxConcurrent int           `env:"DISPATCH_MAX_CONCURRENT" envDefault:"10"`
	DrainInterval time.Duration `env:"DISPATCH_DRAIN_INTERVAL" envDefault:"100ms"`
	QueueSize     int           `env:"DISPATCH_QUEUE_SIZE" envDefault:"100000"`
	MaxAttempts   int           `env:"DISPATCH_MAX_ATTEMPTS" envDefault:"3"`
	RetryDelay    time.Duration `env:"DISPATCH_RETRY_DELAY" envDefault:"5s"`
	RetryBackoff  float64       `env:"DISPATCH_RETRY_BACKOFF" envDefault:"2"`
	MaxRetryDelay time.Duration `env:"DISPATCH_MAX_RETRY_DELAY" envDefault:"10m"`
	MaxRecipients int           `env:"DISPATCH_MAX_RECIPIENTS" envDefault:"1000"`
	Dedup         bool          `env:"DISPATCH_DEDUP_ENABLED" envDefault:"true"`
}

// Options converts the config into engine options.
// Stores and collaborators are wired separately.
func (c Config) Options() []Option {
	opts := []Option{
		WithMaxConcurrent(c.MaxConcurrent),
		WithDrainInterval(c.DrainInterval),
		WithQueueSize(c.QueueSize),
		WithMaxAttempts(c.MaxAttempts),
		WithRetryDelay(c.RetryDelay, c.RetryBackoff, c.MaxRetryDelay),
		WithMaxRecipients(c.MaxRecipients),
	}
	if !c.Dedup {
		opts = append(opts, WithoutDedup())
	}
	return opts
}
