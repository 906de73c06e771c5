package dispatch

import (
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/dispatchkit/pkg/notifications"
)

// SendRequest is the caller-facing shape of a notification.
// Zero values are filled with engine defaults.
type SendRequest struct {
	ID               string                    `json:"id,omitempty"`
	TenantID         string                    `json:"tenant_id"`
	UserID           string                    `json:"user_id,omitempty"`
	Type             string                    `json:"type,omitempty"`
	Category         string                    `json:"category,omitempty"`
	Priority         string                    `json:"priority,omitempty"` // empty means normal
	Title            string                    `json:"title,omitempty"`
	Message          string                    `json:"message,omitempty"`
	HTML             string                    `json:"html,omitempty"`
	Data             map[string]any            `json:"data,omitempty"`
	Channels         []notifications.Channel   `json:"channels"`
	Recipients       []notifications.Recipient `json:"recipients"`
	ScheduledFor     *time.Time                `json:"scheduled_for,omitempty"`
	ExpiresAt        *time.Time                `json:"expires_at,omitempty"`
	MaxAttempts      int                       `json:"max_attempts,omitempty"`
	DeduplicationKey string                    `json:"deduplication_key,omitempty"`
	GroupKey         string                    `json:"group_key,omitempty"`
}

// RejectReason names why an otherwise valid request was not accepted.
type RejectReason string

const (
	RejectDuplicate RejectReason = "duplicate"
)

// Rejection describes a request that was not enqueued.
type Rejection struct {
	Reason      RejectReason `json:"reason"`
	Fingerprint string       `json:"fingerprint,omitempty"`
	// Count is how many times the fingerprint has been seen in the window.
	Count int `json:"count,omitempty"`
}

// SendResult is either an accepted notification or a rejection, never both.
type SendResult struct {
	Notification *notifications.Notification `json:"notification,omitempty"`
	Rejection    *Rejection                  `json:"rejection,omitempty"`
}

// Accepted reports whether the notification was enqueued.
func (r SendResult) Accepted() bool {
	return r.Rejection == nil && r.Notification != nil
}

// BatchResult is the per-item outcome of SendBatch.
type BatchResult struct {
	Index  int        `json:"index"`
	Result SendResult `json:"result"`
	Err    error      `json:"-"`
}

// notification builds the canonical record. Priority must already be parsed.
func (r SendRequest) notification(p notifications.Priority, maxAttempts int, now time.Time) *notifications.Notification {
	id := r.ID
	if id == "" {
		id = uuid.NewString()
	}
	if r.MaxAttempts > 0 {
		maxAttempts = r.MaxAttempts
	}

	n := &notifications.Notification{
		ID:               id,
		TenantID:         r.TenantID,
		UserID:           r.UserID,
		Type:             r.Type,
		Category:         r.Category,
		Priority:         p,
		Status:           notifications.StatusPending,
		Title:            r.Title,
		Message:          r.Message,
		HTML:             r.HTML,
		Data:             maps.Clone(r.Data),
		Channels:         uniqueChannels(r.Channels),
		Recipients:       slices.Clone(r.Recipients),
		MaxAttempts:      maxAttempts,
		DeduplicationKey: r.DeduplicationKey,
		GroupKey:         r.GroupKey,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if r.ScheduledFor != nil {
		t := *r.ScheduledFor
		n.ScheduledFor = &t
	}
	if r.ExpiresAt != nil {
		t := *r.ExpiresAt
		n.ExpiresAt = &t
	}
	return n
}

// uniqueChannels drops repeated channels, keeping first occurrence order.
func uniqueChannels(in []notifications.Channel) []notifications.Channel {
	out := make([]notifications.Channel, 0, len(in))
	for _, ch := range in {
		if !slices.Contains(out, ch) {
			out = append(out, ch)
		}
	}
	return out
}
