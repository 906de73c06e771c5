package webhook

import (
	"slices"
	"time"

	"github.com/dmitrymomot/dispatchkit/pkg/notifications"
)

// Config holds webhook channel configuration.
// Slack and Teams channels are only registered when their URLs are set.
type Config struct {
	Secret           string        `env:"WEBHOOK_SECRET"`
	Timeout          time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"10s"`
	FailureThreshold int           `env:"WEBHOOK_CB_FAILURES" envDefault:"5"`
	SuccessThreshold int           `env:"WEBHOOK_CB_SUCCESSES" envDefault:"2"`
	RecoveryTimeout  time.Duration `env:"WEBHOOK_CB_RECOVERY" envDefault:"30s"`
	SlackURL         string        `env:"SLACK_WEBHOOK_URL"`
	TeamsURL         string        `env:"TEAMS_WEBHOOK_URL"`
}

// Options converts the config into channel options.
func (c Config) Options() []Option {
	return []Option{
		WithSecret(c.Secret),
		WithTimeout(c.Timeout),
		WithCircuitBreaker(c.FailureThreshold, c.SuccessThreshold, c.RecoveryTimeout),
	}
}

// Channels builds the generic webhook channel plus Slack and Teams when configured.
func (c Config) Channels(opts ...Option) []*Channel {
	base := slices.Concat(c.Options(), opts)

	out := []*Channel{NewChannel(notifications.ChannelWebhook, base...)}
	if c.SlackURL != "" {
		out = append(out, NewChannel(notifications.ChannelSlack,
			slices.Concat(base, []Option{WithEndpoint(c.SlackURL), WithPayload(SlackPayload)})...))
	}
	if c.TeamsURL != "" {
		out = append(out, NewChannel(notifications.ChannelTeams,
			slices.Concat(base, []Option{WithEndpoint(c.TeamsURL), WithPayload(TeamsPayload)})...))
	}
	return out
}
