package inapp

import (
	"slices"
	"sync"
	"time"

	"github.com/dmitrymomot/dispatchkit/pkg/events"
)

// Message is one in-app notification as streamed to the user.
type Message struct {
	ID             string         `json:"id"`
	NotificationID string         `json:"notification_id"`
	TenantID       string         `json:"tenant_id"`
	UserID         string         `json:"user_id"`
	Type           string         `json:"type,omitempty"`
	Category       string         `json:"category,omitempty"`
	Priority       string         `json:"priority"`
	Title          string         `json:"title,omitempty"`
	Message        string         `json:"message,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	Received       bool           `json:"received"`
	ReadAt         *time.Time     `json:"read_at,omitempty"`
}

// inbox is the live stream and bounded history of one user.
type inbox struct {
	stream *events.Broadcaster[Message]

	mu      sync.Mutex
	history []Message // oldest first
	limit   int
}

func newInbox(bufferSize, historySize int) *inbox {
	return &inbox{
		stream: events.NewBroadcaster[Message](bufferSize),
		limit:  historySize,
	}
}

// push publishes m and records it, marking it received when a live subscriber took it.
func (b *inbox) push(m Message) Message {
	m.Received = b.stream.Publish(m) > 0

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.limit > 0 {
		b.history = append(b.history, m)
		if over := len(b.history) - b.limit; over > 0 {
			b.history = slices.Delete(b.history, 0, over)
		}
	}
	return m
}

func (b *inbox) find(id string) (Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, m := range b.history {
		if m.ID == id {
			return m, true
		}
	}
	return Message{}, false
}

func (b *inbox) update(id string, fn func(m *Message)) (Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.history {
		if b.history[i].ID == id {
			fn(&b.history[i])
			return b.history[i], true
		}
	}
	return Message{}, false
}

func (b *inbox) recent() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.history)
}

func (b *inbox) unread() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Message
	for _, m := range b.history {
		if m.ReadAt == nil {
			out = append(out, m)
		}
	}
	return out
}
