package delivery

import (
	"context"

	"github.com/dmitrymomot/dispatchkit/pkg/notifications"
)

// Result is what a handler reports after the provider accepted a message.
type Result struct {
	// ExternalID is the provider-assigned id used to correlate receipts.
	ExternalID string
	// Response is the raw provider response, kept for diagnostics.
	Response string
}

// Handler delivers notifications over one channel.
// A nil error means the provider accepted the message.
type Handler interface {
	Channel() notifications.Channel
	Deliver(ctx context.Context, n *notifications.Notification, r notifications.Recipient) (Result, error)
}

// Canceler is implemented by handlers that can cancel a delivery before it is sent.
type Canceler interface {
	Cancel(ctx context.Context, a Attempt) (bool, error)
}

// StatusChecker is implemented by handlers that can be polled for the
// provider-side status of a sent attempt.
type StatusChecker interface {
	Status(ctx context.Context, a Attempt) (Status, error)
}

// HealthChecker is implemented by handlers that can report channel health.
// Tries on an unhealthy channel fail without calling Deliver.
type HealthChecker interface {
	Healthy(ctx context.Context) bool
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc struct {
	Name notifications.Channel
	Fn   func(ctx context.Context, n *notifications.Notification, r notifications.Recipient) (Result, error)
}

func (h HandlerFunc) Channel() notifications.Channel { return h.Name }

func (h HandlerFunc) Deliver(ctx context.Context, n *notifications.Notification, r notifications.Recipient) (Result, error) {
	return h.Fn(ctx, n, r)
}
