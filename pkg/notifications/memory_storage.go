package notifications

import (
	"context"
	"slices"
	"sync"
)

// MemoryStorage is an in-memory implementation of the Storage interface.
// Suitable for development and testing.
type MemoryStorage struct {
	notifications map[string]*Notification
	mu            sync.RWMutex
}

// NewMemoryStorage creates a new in-memory notification storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		notifications: make(map[string]*Notification),
	}
}

func (s *MemoryStorage) Save(ctx context.Context, notif *Notification) error {
	if notif == nil {
		return ErrNilNotification
	}
	if notif.ID == "" {
		return ErrMissingID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy so callers can keep mutating their own instance
	s.notifications[notif.ID] = notif.Clone()
	return nil
}

func (s *MemoryStorage) Get(ctx context.Context, id string) (*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.notifications[id]
	if !ok {
		return nil, ErrNotificationNotFound
	}
	return n.Clone(), nil
}

func (s *MemoryStorage) List(ctx context.Context, opts ListOptions) ([]*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	filtered := make([]*Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		if opts.TenantID != "" && n.TenantID != opts.TenantID {
			continue
		}
		if opts.UserID != "" && n.UserID != opts.UserID {
			continue
		}
		if len(opts.Statuses) > 0 && !slices.Contains(opts.Statuses, n.Status) {
			continue
		}
		if opts.Since != nil && n.CreatedAt.Before(*opts.Since) {
			continue
		}
		filtered = append(filtered, n.Clone())
	}

	// Newest first, ID as a stable tie-breaker
	slices.SortFunc(filtered, func(a, b *Notification) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})

	start := opts.Offset
	if start > len(filtered) {
		return []*Notification{}, nil
	}

	end := start + opts.Limit
	if opts.Limit == 0 || end > len(filtered) {
		end = len(filtered)
	}

	return filtered[start:end], nil
}

func (s *MemoryStorage) Delete(ctx context.Context, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		delete(s.notifications, id)
	}
	return nil
}
