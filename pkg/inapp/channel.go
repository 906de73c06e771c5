package inapp

import (
	"context"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/dispatchkit/pkg/cache"
	"github.com/dmitrymomot/dispatchkit/pkg/delivery"
	"github.com/dmitrymomot/dispatchkit/pkg/events"
	"github.com/dmitrymomot/dispatchkit/pkg/notifications"
)

// Channel streams notifications to connected users and keeps a short history
// for users who connect later. Inboxes live in an LRU; evicting one closes its
// live subscriptions.
type Channel struct {
	users       *cache.LRU[string, *inbox]
	bufferSize  int
	historySize int
	now         func() time.Time
}

type settings struct {
	maxUsers    int
	bufferSize  int
	historySize int
	now         func() time.Time
}

// Option configures a Channel.
type Option func(*settings)

// WithMaxUsers bounds the number of inboxes kept in memory.
func WithMaxUsers(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxUsers = n
		}
	}
}

// WithBufferSize sets the per-subscriber buffer. Slow subscribers miss messages beyond it.
func WithBufferSize(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.bufferSize = n
		}
	}
}

// WithHistorySize sets how many messages each inbox remembers. Zero disables history.
func WithHistorySize(n int) Option {
	return func(s *settings) {
		if n >= 0 {
			s.historySize = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

func NewChannel(opts ...Option) *Channel {
	s := settings{
		maxUsers:    10000,
		bufferSize:  32,
		historySize: 50,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(&s)
	}

	return &Channel{
		users: cache.NewLRU[string, *inbox](s.maxUsers, cache.WithEvictCallback(func(_ string, b *inbox) {
			b.stream.Close()
		})),
		bufferSize:  s.bufferSize,
		historySize: s.historySize,
		now:         s.now,
	}
}

func (c *Channel) Channel() notifications.Channel { return notifications.ChannelInApp }

// Deliver publishes the notification to the user's inbox. The message id is the ExternalID.
func (c *Channel) Deliver(_ context.Context, n *notifications.Notification, r notifications.Recipient) (delivery.Result, error) {
	user := userKey(r.ID, r.Address)
	if user == "" {
		return delivery.Result{}, ErrNoUser
	}

	m := c.inbox(user).push(Message{
		ID:             uuid.NewString(),
		NotificationID: n.ID,
		TenantID:       n.TenantID,
		UserID:         user,
		Type:           n.Type,
		Category:       n.Category,
		Priority:       n.Priority.String(),
		Title:          n.Title,
		Message:        n.Message,
		Data:           maps.Clone(n.Data),
		CreatedAt:      c.now(),
	})

	resp := "stored"
	if m.Received {
		resp = "streamed"
	}
	return delivery.Result{ExternalID: m.ID, Response: resp}, nil
}

// Status reports delivered once a live subscriber received the message or the
// user read it. Messages pushed out of history stay sent.
func (c *Channel) Status(_ context.Context, a delivery.Attempt) (delivery.Status, error) {
	b, ok := c.users.Peek(userKey(a.RecipientID, a.Address))
	if !ok {
		return delivery.StatusSent, nil
	}
	m, ok := b.find(a.ExternalID)
	if !ok {
		return delivery.StatusSent, nil
	}
	if m.Received || m.ReadAt != nil {
		return delivery.StatusDelivered, nil
	}
	return delivery.StatusSent, nil
}

// Subscribe streams new messages for user until ctx is done or the subscription is closed.
func (c *Channel) Subscribe(ctx context.Context, user string) *events.Subscription[Message] {
	return c.inbox(user).stream.Subscribe(ctx, nil)
}

// Recent returns the user's remembered messages, oldest first.
func (c *Channel) Recent(user string) []Message {
	b, ok := c.users.Peek(user)
	if !ok {
		return nil
	}
	return b.recent()
}

func (c *Channel) Unread(user string) []Message {
	b, ok := c.users.Peek(user)
	if !ok {
		return nil
	}
	return b.unread()
}

// MarkRead flags a message as read and returns the receipt to record with the
// delivery engine. Reading twice keeps the first timestamp.
func (c *Channel) MarkRead(user, messageID string) (delivery.Receipt, error) {
	b, ok := c.users.Peek(user)
	if !ok {
		return delivery.Receipt{}, ErrMessageNotFound
	}

	now := c.now()
	m, ok := b.update(messageID, func(m *Message) {
		if m.ReadAt == nil {
			m.ReadAt = &now
		}
	})
	if !ok {
		return delivery.Receipt{}, ErrMessageNotFound
	}

	return delivery.Receipt{
		NotificationID: m.NotificationID,
		ExternalID:     m.ID,
		Channel:        notifications.ChannelInApp,
		Event:          delivery.ReceiptRead,
		Timestamp:      *m.ReadAt,
		Metadata:       map[string]any{"user_id": user},
	}, nil
}

// Users returns the number of inboxes in memory.
func (c *Channel) Users() int {
	return c.users.Len()
}

// Close ends every subscription and drops all inboxes.
func (c *Channel) Close() {
	c.users.Clear()
}

func (c *Channel) inbox(user string) *inbox {
	b, _ := c.users.GetOrPut(user, func() *inbox {
		return newInbox(c.bufferSize, c.historySize)
	})
	return b
}

func userKey(id, address string) string {
	if address != "" {
		return address
	}
	return id
}
