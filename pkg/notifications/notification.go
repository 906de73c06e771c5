package notifications

import (
	"maps"
	"slices"
	"strings"
	"time"
)

// Priority represents the notification priority level.
// Higher values are dispatched first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent
	PriorityCritical
)

// Priorities returns every priority class, highest first.
func Priorities() []Priority {
	return []Priority{PriorityCritical, PriorityUrgent, PriorityHigh, PriorityNormal, PriorityLow}
}

// Valid reports whether p is one of the five known classes.
func (p Priority) Valid() bool {
	return p >= PriorityLow && p <= PriorityCritical
}

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ParsePriority converts a priority name into a Priority.
// Empty input maps to PriorityNormal.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return PriorityNormal, nil
	case "low":
		return PriorityLow, nil
	case "normal":
		return PriorityNormal, nil
	case "high":
		return PriorityHigh, nil
	case "urgent":
		return PriorityUrgent, nil
	case "critical":
		return PriorityCritical, nil
	default:
		return PriorityNormal, ErrUnknownPriority
	}
}

// MarshalText encodes the priority by name.
func (p Priority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a priority name.
func (p *Priority) UnmarshalText(text []byte) error {
	v, err := ParsePriority(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Status represents the lifecycle state of a notification.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusDelivered  Status = "delivered"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// IsTerminal reports whether no further dispatch will happen for this status.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSent, StatusDelivered, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Channel names a delivery transport.
type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelSMS     Channel = "sms"
	ChannelPush    Channel = "push"
	ChannelWebhook Channel = "webhook"
	ChannelSlack   Channel = "slack"
	ChannelTeams   Channel = "teams"
	ChannelInApp   Channel = "in_app"
	ChannelKafka   Channel = "kafka"
)

// Recipient is an opaque recipient id plus its channel-specific address.
// An empty Channel makes the recipient eligible on every requested channel.
type Recipient struct {
	ID      string  `json:"id" bson:"id"`
	Channel Channel `json:"channel,omitempty" bson:"channel,omitempty"`
	Address string  `json:"address" bson:"address"`
}

// Notification is the unit of work moved through the dispatch pipeline.
type Notification struct {
	ID               string         `json:"id" bson:"_id"`
	TenantID         string         `json:"tenant_id" bson:"tenant_id"`
	UserID           string         `json:"user_id,omitempty" bson:"user_id,omitempty"`
	Type             string         `json:"type,omitempty" bson:"type,omitempty"`
	Category         string         `json:"category,omitempty" bson:"category,omitempty"`
	Priority         Priority       `json:"priority" bson:"priority"`
	Status           Status         `json:"status" bson:"status"`
	Title            string         `json:"title,omitempty" bson:"title,omitempty"`
	Message          string         `json:"message,omitempty" bson:"message,omitempty"`
	HTML             string         `json:"html,omitempty" bson:"html,omitempty"`
	Data             map[string]any `json:"data,omitempty" bson:"data,omitempty"`
	Channels         []Channel      `json:"channels" bson:"channels"`
	Recipients       []Recipient    `json:"recipients" bson:"recipients"`
	ScheduledFor     *time.Time     `json:"scheduled_for,omitempty" bson:"scheduled_for,omitempty"`
	ExpiresAt        *time.Time     `json:"expires_at,omitempty" bson:"expires_at,omitempty"`
	Attempts         int            `json:"attempts" bson:"attempts"`
	MaxAttempts      int            `json:"max_attempts" bson:"max_attempts"`
	DeduplicationKey string         `json:"deduplication_key,omitempty" bson:"deduplication_key,omitempty"`
	GroupKey         string         `json:"group_key,omitempty" bson:"group_key,omitempty"`
	LastError        string         `json:"last_error,omitempty" bson:"last_error,omitempty"`
	CreatedAt        time.Time      `json:"created_at" bson:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at" bson:"updated_at"`
	SentAt           *time.Time     `json:"sent_at,omitempty" bson:"sent_at,omitempty"`
	FailedAt         *time.Time     `json:"failed_at,omitempty" bson:"failed_at,omitempty"`
}

// IsExpired returns true if the notification has an expiry at or before now.
func (n *Notification) IsExpired(now time.Time) bool {
	if n.ExpiresAt == nil {
		return false
	}
	return !now.Before(*n.ExpiresAt)
}

// IsScheduled returns true if delivery is deferred past now.
func (n *Notification) IsScheduled(now time.Time) bool {
	return n.ScheduledFor != nil && n.ScheduledFor.After(now)
}

// HasChannel reports whether ch is one of the requested channels.
func (n *Notification) HasChannel(ch Channel) bool {
	return slices.Contains(n.Channels, ch)
}

// RecipientsFor returns the recipients addressed on the given channel.
func (n *Notification) RecipientsFor(ch Channel) []Recipient {
	out := make([]Recipient, 0, len(n.Recipients))
	for _, r := range n.Recipients {
		if r.Channel == "" || r.Channel == ch {
			out = append(out, r)
		}
	}
	return out
}

// Clone returns a copy that shares no mutable state with n.
func (n *Notification) Clone() *Notification {
	if n == nil {
		return nil
	}
	c := *n
	c.Data = maps.Clone(n.Data)
	c.Channels = slices.Clone(n.Channels)
	c.Recipients = slices.Clone(n.Recipients)
	c.ScheduledFor = cloneTime(n.ScheduledFor)
	c.ExpiresAt = cloneTime(n.ExpiresAt)
	c.SentAt = cloneTime(n.SentAt)
	c.FailedAt = cloneTime(n.FailedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
