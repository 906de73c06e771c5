package email

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrymomot/dispatchkit/pkg/delivery"
	"github.com/dmitrymomot/dispatchkit/pkg/notifications"
)

// postmarkEvent is the subset of a Postmark webhook payload used for receipts.
type postmarkEvent struct {
	RecordType  string            `json:"RecordType"`
	MessageID   string            `json:"MessageID"`
	Recipient   string            `json:"Recipient"`
	Type        string            `json:"Type"`
	DeliveredAt time.Time         `json:"DeliveredAt"`
	BouncedAt   time.Time         `json:"BouncedAt"`
	ReceivedAt  time.Time         `json:"ReceivedAt"`
	Details     string            `json:"Details"`
	Metadata    map[string]string `json:"Metadata"`
}

// ParsePostmarkWebhook converts a Postmark delivery, bounce, open or click
// webhook into a receipt correlated by the Postmark message id.
func ParsePostmarkWebhook(body []byte) (delivery.Receipt, error) {
	var ev postmarkEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return delivery.Receipt{}, fmt.Errorf("decode postmark webhook: %w", err)
	}
	if ev.MessageID == "" {
		return delivery.Receipt{}, fmt.Errorf("%w: missing MessageID", ErrUnknownWebhook)
	}

	r := delivery.Receipt{
		ExternalID:     ev.MessageID,
		NotificationID: ev.Metadata["notification_id"],
		Channel:        notifications.ChannelEmail,
		Metadata: map[string]any{
			"record_type": ev.RecordType,
			"recipient":   ev.Recipient,
		},
	}

	switch ev.RecordType {
	case "Delivery":
		r.Event, r.Timestamp = delivery.ReceiptDelivered, ev.DeliveredAt
	case "Bounce":
		r.Event, r.Timestamp = delivery.ReceiptBounced, ev.BouncedAt
		r.Metadata["bounce_type"] = ev.Type
		r.Metadata["details"] = ev.Details
	case "SpamComplaint":
		r.Event, r.Timestamp = delivery.ReceiptFailed, ev.BouncedAt
	case "Open":
		r.Event, r.Timestamp = delivery.ReceiptRead, ev.ReceivedAt
	case "Click":
		r.Event, r.Timestamp = delivery.ReceiptClicked, ev.ReceivedAt
	default:
		return delivery.Receipt{}, fmt.Errorf("%w: %q", ErrUnknownWebhook, ev.RecordType)
	}
	return r, nil
}
