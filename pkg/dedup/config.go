package dedup

import "time"

// Config holds the dedup settings loaded from the environment.
type Config struct {
	Strategy      Strategy      `env:"DEDUP_STRATEGY" envDefault:"fingerprint"`
	Window        time.Duration `env:"DEDUP_WINDOW" envDefault:"5m"`
	MaxEntries    int           `env:"DEDUP_MAX_ENTRIES" envDefault:"10000"`
	SweepInterval time.Duration `env:"DEDUP_SWEEP_INTERVAL" envDefault:"1m"`
	Backend       string        `env:"DEDUP_BACKEND" envDefault:"memory"` // memory or redis
}

// Options converts the config into engine options.
func (c Config) Options() []Option {
	return []Option{
		WithStrategy(c.Strategy),
		WithWindow(c.Window),
		WithMaxEntries(c.MaxEntries),
		WithSweepInterval(c.SweepInterval),
	}
}
