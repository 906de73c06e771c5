package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/dmitrymomot/dispatchkit/pkg/delivery"
	"github.com/dmitrymomot/dispatchkit/pkg/notifications"
)

// Writer is the subset of *kafkago.Writer the channel needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Envelope is the JSON value of every published message.
type Envelope struct {
	ID             string         `json:"id"`
	NotificationID string         `json:"notification_id"`
	TenantID       string         `json:"tenant_id"`
	RecipientID    string         `json:"recipient_id"`
	Type           string         `json:"type,omitempty"`
	Category       string         `json:"category,omitempty"`
	Priority       string         `json:"priority"`
	Title          string         `json:"title,omitempty"`
	Message        string         `json:"message,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
	PublishedAt    time.Time      `json:"published_at"`
}

// Channel publishes notifications to Kafka. The recipient address overrides
// the default topic; messages are keyed by tenant and recipient so each
// recipient's messages stay on one partition.
type Channel struct {
	writer Writer
	topic  string
	now    func() time.Time
}

// Option configures a Channel.
type Option func(*Channel)

// WithTopic sets the default topic.
func WithTopic(topic string) Option {
	return func(c *Channel) { c.topic = topic }
}

func WithClock(now func() time.Time) Option {
	return func(c *Channel) {
		if now != nil {
			c.now = now
		}
	}
}

func NewChannel(w Writer, opts ...Option) *Channel {
	c := &Channel{writer: w, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewWriter builds a kafka-go writer for cfg. Messages carry their own topic.
func NewWriter(cfg Config) (*kafkago.Writer, error) {
	if !cfg.Enabled() {
		return nil, ErrNoBrokers
	}
	return &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.Brokers...),
		Balancer:               &kafkago.Hash{},
		BatchTimeout:           cfg.BatchTimeout,
		WriteTimeout:           cfg.WriteTimeout,
		RequiredAcks:           kafkago.RequiredAcks(cfg.RequiredAcks),
		AllowAutoTopicCreation: true,
	}, nil
}

// NewChannelFromConfig connects a writer and wraps it in a channel.
func NewChannelFromConfig(cfg Config) (*Channel, error) {
	w, err := NewWriter(cfg)
	if err != nil {
		return nil, err
	}
	return NewChannel(w, WithTopic(cfg.Topic)), nil
}

func (c *Channel) Channel() notifications.Channel { return notifications.ChannelKafka }

func (c *Channel) Deliver(ctx context.Context, n *notifications.Notification, r notifications.Recipient) (delivery.Result, error) {
	topic := r.Address
	if topic == "" {
		topic = c.topic
	}
	if topic == "" {
		return delivery.Result{}, ErrNoTopic
	}

	env := Envelope{
		ID:             uuid.NewString(),
		NotificationID: n.ID,
		TenantID:       n.TenantID,
		RecipientID:    r.ID,
		Type:           n.Type,
		Category:       n.Category,
		Priority:       n.Priority.String(),
		Title:          n.Title,
		Message:        n.Message,
		Data:           n.Data,
		PublishedAt:    c.now(),
	}
	value, err := json.Marshal(env)
	if err != nil {
		return delivery.Result{}, fmt.Errorf("kafka: marshal envelope: %w", err)
	}

	msg := kafkago.Message{
		Topic: topic,
		Key:   []byte(n.TenantID + ":" + r.ID),
		Value: value,
		Headers: []kafkago.Header{
			{Key: "message_id", Value: []byte(env.ID)},
			{Key: "notification_id", Value: []byte(n.ID)},
			{Key: "priority", Value: []byte(env.Priority)},
		},
		Time: env.PublishedAt,
	}
	if err := c.writer.WriteMessages(ctx, msg); err != nil {
		return delivery.Result{}, fmt.Errorf("%w: %w", ErrPublish, err)
	}
	return delivery.Result{ExternalID: env.ID, Response: topic}, nil
}

// Close flushes pending messages and closes the writer.
func (c *Channel) Close() error {
	return c.writer.Close()
}
