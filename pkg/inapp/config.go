package inapp

// Config holds in-app channel configuration.
type Config struct {
	MaxUsers    int `env:"INAPP_MAX_USERS" envDefault:"10000"`
	BufferSize  int `env:"INAPP_BUFFER_SIZE" envDefault:"32"`
	HistorySize int `env:"INAPP_HISTORY_SIZE" envDefault:"50"`
}

// Options converts the config into channel options.
func (c Config) Options() []Option {
	return []Option{
		WithMaxUsers(c.MaxUsers),
		WithBufferSize(c.BufferSize),
		WithHistorySize(c.HistorySize),
	}
}
