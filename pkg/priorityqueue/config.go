package priorityqueue

// Config holds the queue limits.
type Config struct {
	MaxSize    int `env:"QUEUE_MAX_SIZE" envDefault:"10000"`
	MaxRetries int `env:"QUEUE_MAX_RETRIES" envDefault:"3"`
}

// Options converts the config into queue options.
func (c Config) Options() []Option {
	return []Option{WithMaxSize(c.MaxSize), WithMaxRetries(c.MaxRetries)}
}
