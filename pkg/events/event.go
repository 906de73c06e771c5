package events

import "time"

// Type names a lifecycle event.
type Type string

const (
	NotificationQueued       Type = "notification:queued"
	NotificationProcessing   Type = "notification:processing"
	NotificationSent         Type = "notification:sent"
	NotificationRetry        Type = "notification:retry"
	NotificationFailed       Type = "notification:failed"
	NotificationDeduplicated Type = "notification:deduplicated"
	NotificationExpired      Type = "notification:expired"
	NotificationCancelled    Type = "notification:cancelled"

	DeliveryStarted     Type = "delivery:started"
	DeliverySent        Type = "delivery:sent"
	DeliveryFailed      Type = "delivery:failed"
	DeliveryFailedFinal Type = "delivery:failed:final"
	DeliveryCancelled   Type = "delivery:cancelled"
	DeliveryDelivered   Type = "delivery:delivered"
	DeliveryBounced     Type = "delivery:bounced"

	JobCreated   Type = "job:created"
	JobStarted   Type = "job:started"
	JobProgress  Type = "job:progress"
	JobCompleted Type = "job:completed"
	JobFailed    Type = "job:failed"
	JobCancelled Type = "job:cancelled"

	ReceiptRecorded Type = "receipt:recorded"

	// Error reports an unexpected failure caught at a tick boundary.
	Error Type = "error"
)

// Event is a single lifecycle signal. Only the identifiers relevant to the
// event type are set.
type Event struct {
	ID             string         `json:"id"`
	Type           Type           `json:"type"`
	Time           time.Time      `json:"time"`
	Component      string         `json:"component,omitempty"`
	NotificationID string         `json:"notification_id,omitempty"`
	TenantID       string         `json:"tenant_id,omitempty"`
	AttemptID      string         `json:"attempt_id,omitempty"`
	JobID          string         `json:"job_id,omitempty"`
	Channel        string         `json:"channel,omitempty"`
	RecipientID    string         `json:"recipient_id,omitempty"`
	Priority       string         `json:"priority,omitempty"`
	Attempt        int            `json:"attempt,omitempty"`
	Duration       time.Duration  `json:"duration,omitempty"`
	Error          string         `json:"error,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
}
