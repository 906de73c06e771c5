package delivery

import (
	"maps"
	"slices"
	"time"

	"github.com/dmitrymomot/dispatchkit/pkg/notifications"
)

// Status is the state of a single delivery attempt.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusBounced   Status = "bounced"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusPending: {StatusSent, StatusFailed, StatusCancelled},
	StatusSent:    {StatusDelivered, StatusBounced, StatusFailed},
}

// CanTransition reports whether an attempt may move from s to next.
func (s Status) CanTransition(next Status) bool {
	return slices.Contains(transitions[s], next)
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	_, ok := transitions[s]
	return !ok
}

// Succeeded reports whether the provider accepted the message.
func (s Status) Succeeded() bool {
	return s == StatusSent || s == StatusDelivered
}

// Attempt tracks the delivery of one notification to one recipient on one channel.
// Retries reuse the attempt and bump AttemptNumber.
type Attempt struct {
	ID             string                `json:"id"`
	NotificationID string                `json:"notification_id"`
	TenantID       string                `json:"tenant_id,omitempty"`
	Channel        notifications.Channel `json:"channel"`
	RecipientID    string                `json:"recipient_id"`
	Address        string                `json:"address,omitempty"`
	Status         Status                `json:"status"`
	AttemptNumber  int                   `json:"attempt_number"`
	NextAttemptAt  *time.Time            `json:"next_attempt_at,omitempty"`
	SentAt         *time.Time            `json:"sent_at,omitempty"`
	DeliveredAt    *time.Time            `json:"delivered_at,omitempty"`
	FailedAt       *time.Time            `json:"failed_at,omitempty"`
	ExternalID     string                `json:"external_id,omitempty"`
	Response       string                `json:"response,omitempty"`
	Error          string                `json:"error,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// ReceiptEvent is the kind of out-of-band provider signal.
type ReceiptEvent string

const (
	ReceiptDelivered ReceiptEvent = "delivered"
	ReceiptBounced   ReceiptEvent = "bounced"
	ReceiptFailed    ReceiptEvent = "failed"
	ReceiptRead      ReceiptEvent = "read"
	ReceiptClicked   ReceiptEvent = "clicked"
)

// Valid reports whether e is a known receipt event.
func (e ReceiptEvent) Valid() bool {
	switch e {
	case ReceiptDelivered, ReceiptBounced, ReceiptFailed, ReceiptRead, ReceiptClicked:
		return true
	}
	return false
}

// Target returns the attempt status the event moves a sent attempt to.
// Read and clicked imply delivery.
func (e ReceiptEvent) Target() Status {
	switch e {
	case ReceiptBounced:
		return StatusBounced
	case ReceiptFailed:
		return StatusFailed
	default:
		return StatusDelivered
	}
}

// Receipt is an asynchronous provider signal about an attempt.
// Receipts are append-only.
type Receipt struct {
	ID                string                `json:"id"`
	NotificationID    string                `json:"notification_id,omitempty"`
	DeliveryAttemptID string                `json:"delivery_attempt_id,omitempty"`
	ExternalID        string                `json:"external_id,omitempty"`
	Channel           notifications.Channel `json:"channel,omitempty"`
	Event             ReceiptEvent          `json:"event"`
	Timestamp         time.Time             `json:"timestamp"`
	Metadata          map[string]any        `json:"metadata,omitempty"`
}

func (r Receipt) clone() Receipt {
	r.Metadata = maps.Clone(r.Metadata)
	return r
}

// Stats summarises delivery outcomes.
type Stats struct {
	ByStatus map[Status]int `json:"by_status"`
	Tries    uint64         `json:"tries"`
	Timeouts uint64         `json:"timeouts"`
	Handlers int            `json:"handlers"`
}
