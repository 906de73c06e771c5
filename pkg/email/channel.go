package email

import (
	"context"
	"html"
	"strings"

	"github.com/dmitrymomot/dispatchkit/pkg/delivery"
	"github.com/dmitrymomot/dispatchkit/pkg/notifications"
)

// Channel delivers notifications as email through an EmailSender.
type Channel struct {
	sender EmailSender
}

// NewChannel wraps sender as a delivery handler for the email channel.
func NewChannel(sender EmailSender) *Channel {
	return &Channel{sender: sender}
}

// NewChannelFromConfig picks Postmark when credentials are set and DevSender otherwise.
func NewChannelFromConfig(cfg Config) (*Channel, error) {
	if !cfg.Production() {
		return NewChannel(NewDevSender(cfg.DevDir)), nil
	}
	sender, err := NewPostmarkClient(cfg)
	if err != nil {
		return nil, err
	}
	return NewChannel(sender), nil
}

func (c *Channel) Channel() notifications.Channel { return notifications.ChannelEmail }

// Deliver renders n for r and returns the provider message id as ExternalID.
func (c *Channel) Deliver(ctx context.Context, n *notifications.Notification, r notifications.Recipient) (delivery.Result, error) {
	if r.Address == "" {
		return delivery.Result{}, ErrNoAddress
	}

	id, err := c.sender.SendEmail(ctx, Params(n, r))
	if err != nil {
		return delivery.Result{}, err
	}
	return delivery.Result{ExternalID: id, Response: "accepted"}, nil
}

// Params maps a notification onto email parameters.
// The subject falls back to the first line of the message.
func Params(n *notifications.Notification, r notifications.Recipient) SendEmailParams {
	subject := n.Title
	if subject == "" {
		subject, _, _ = strings.Cut(n.Message, "\n")
	}

	body := n.HTML
	if body == "" && n.Message != "" {
		body = "<p>" + strings.ReplaceAll(html.EscapeString(n.Message), "\n", "<br>") + "</p>"
	}

	tag := n.Category
	if tag == "" {
		tag = n.Type
	}

	return SendEmailParams{
		SendTo:   r.Address,
		Subject:  subject,
		BodyHTML: body,
		BodyText: n.Message,
		Tag:      tag,
		Metadata: map[string]string{
			"notification_id": n.ID,
			"tenant_id":       n.TenantID,
			"recipient_id":    r.ID,
		},
	}
}
