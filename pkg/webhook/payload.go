package webhook

import (
	"strings"
	"time"

	"github.com/dmitrymomot/dispatchkit/pkg/notifications"
)

// Event is the body DefaultPayload posts.
type Event struct {
	Type           string         `json:"type"`
	NotificationID string         `json:"notification_id"`
	TenantID       string         `json:"tenant_id"`
	RecipientID    string         `json:"recipient_id"`
	Category       string         `json:"category,omitempty"`
	Priority       string         `json:"priority"`
	Title          string         `json:"title,omitempty"`
	Message        string         `json:"message,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// DefaultPayload posts the notification as an Event.
func DefaultPayload(n *notifications.Notification, r notifications.Recipient) any {
	typ := n.Type
	if typ == "" {
		typ = "notification"
	}
	return Event{
		Type:           typ,
		NotificationID: n.ID,
		TenantID:       n.TenantID,
		RecipientID:    r.ID,
		Category:       n.Category,
		Priority:       n.Priority.String(),
		Title:          n.Title,
		Message:        n.Message,
		Data:           n.Data,
		CreatedAt:      n.CreatedAt,
	}
}

// SlackPayload renders an incoming-webhook message.
func SlackPayload(n *notifications.Notification, _ notifications.Recipient) any {
	return map[string]string{"text": chatText(n, "*")}
}

// TeamsPayload renders a legacy connector MessageCard.
func TeamsPayload(n *notifications.Notification, _ notifications.Recipient) any {
	card := map[string]any{
		"@type":    "MessageCard",
		"@context": "https://schema.org/extensions",
		"summary":  summary(n),
		"text":     n.Message,
	}
	if n.Title != "" {
		card["title"] = n.Title
	}
	if n.Priority >= notifications.PriorityHigh {
		card["themeColor"] = "D70000"
	}
	return card
}

func chatText(n *notifications.Notification, bold string) string {
	var b strings.Builder
	if n.Title != "" {
		b.WriteString(bold + n.Title + bold)
		if n.Message != "" {
			b.WriteString("\n")
		}
	}
	b.WriteString(n.Message)
	return b.String()
}

func summary(n *notifications.Notification) string {
	if n.Title != "" {
		return n.Title
	}
	s, _, _ := strings.Cut(n.Message, "\n")
	return s
}
