package delivery

import (
	"time"

	"github.com/dmitrymomot/dispatchkit/pkg/notifications"
)

// Config holds the delivery engine settings loaded from the environment.
type Config struct {
	Timeout             time.Duration `env:"DELIVERY_TIMEOUT" envDefault:"30s"`
	MaxRetries          int           `env:"DELIVERY_MAX_RETRIES" envDefault:"3"`
	RetryDelay          time.Duration `env:"DELIVERY_RETRY_DELAY" envDefault:"1s"`
	RetryBackoff        float64       `env:"DELIVERY_RETRY_BACKOFF" envDefault:"2"`
	MaxRetryDelay       time.Duration `env:"DELIVERY_MAX_RETRY_DELAY" envDefault:"5m"`
	MaxParallel         int           `env:"DELIVERY_MAX_PARALLEL" envDefault:"16"`
	ReceiptTimeout      time.Duration `env:"DELIVERY_RECEIPT_TIMEOUT" envDefault:"0s"`
	HistoryRetention    time.Duration `env:"DELIVERY_HISTORY_RETENTION" envDefault:"0s"`
	MaintenanceInterval time.Duration `env:"DELIVERY_MAINTENANCE_INTERVAL" envDefault:"1m"`
	Backend             string        `env:"DELIVERY_BACKEND" envDefault:"memory"` // memory or postgres

	// ChannelRates caps tries per second per channel, e.g. "email:10,sms:1".
	ChannelRates map[string]float64 `env:"DELIVERY_CHANNEL_RATES" envSeparator:"," envKeyValSeparator:":"`
}

// Options converts the config into engine options.
func (c Config) Options() []Option {
	opts := []Option{
		WithTimeout(c.Timeout),
		WithMaxRetries(c.MaxRetries),
		WithRetryDelay(c.RetryDelay, c.RetryBackoff, c.MaxRetryDelay),
		WithMaxParallel(c.MaxParallel),
		WithReceiptTimeout(c.ReceiptTimeout),
		WithHistoryRetention(c.HistoryRetention),
		WithMaintenanceInterval(c.MaintenanceInterval),
	}
	for ch, perSecond := range c.ChannelRates {
		if perSecond > 0 {
			opts = append(opts, WithChannelRateLimit(notifications.Channel(ch), perSecond, max(int(perSecond), 1)))
		}
	}
	return opts
}
