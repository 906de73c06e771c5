package delivery

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dmitrymomot/dispatchkit/pkg/notifications"
)

// MemoryAttemptStore keeps attempts in process memory.
type MemoryAttemptStore struct {
	mu       sync.RWMutex
	attempts map[string]Attempt
	receipts map[string][]Receipt
}

// NewMemoryAttemptStore creates an empty store.
func NewMemoryAttemptStore() *MemoryAttemptStore {
	return &MemoryAttemptStore{
		attempts: make(map[string]Attempt),
		receipts: make(map[string][]Receipt),
	}
}

func (s *MemoryAttemptStore) SaveAttempt(_ context.Context, a Attempt) error {
	s.mu.Lock()
	s.attempts[a.ID] = a
	s.mu.Unlock()
	return nil
}

func (s *MemoryAttemptStore) GetAttempt(_ context.Context, id string) (Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.attempts[id]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	return a, nil
}

func (s *MemoryAttemptStore) FindByExternalID(_ context.Context, channel notifications.Channel, externalID string) (Attempt, error) {
	if externalID == "" {
		return Attempt{}, ErrAttemptNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.attempts {
		if a.ExternalID == externalID && (channel == "" || a.Channel == channel) {
			return a, nil
		}
	}
	return Attempt{}, ErrAttemptNotFound
}

func (s *MemoryAttemptStore) ListAttempts(_ context.Context, notificationID string) ([]Attempt, error) {
	s.mu.RLock()
	out := make([]Attempt, 0)
	for _, a := range s.attempts {
		if a.NotificationID == notificationID {
			out = append(out, a)
		}
	}
	s.mu.RUnlock()

	sortAttempts(out)
	return out, nil
}

func (s *MemoryAttemptStore) ListStale(_ context.Context, status Status, cutoff time.Time, limit int) ([]Attempt, error) {
	s.mu.RLock()
	out := make([]Attempt, 0)
	for _, a := range s.attempts {
		if a.Status == status && a.UpdatedAt.Before(cutoff) {
			out = append(out, a)
		}
	}
	s.mu.RUnlock()

	sortAttempts(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryAttemptStore) AppendReceipt(_ context.Context, r Receipt) error {
	s.mu.Lock()
	s.receipts[r.DeliveryAttemptID] = append(s.receipts[r.DeliveryAttemptID], r.clone())
	s.mu.Unlock()
	return nil
}

func (s *MemoryAttemptStore) Receipts(_ context.Context, attemptID string) ([]Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.receipts[attemptID]
	out := make([]Receipt, 0, len(src))
	for _, r := range src {
		out = append(out, r.clone())
	}
	return out, nil
}

func (s *MemoryAttemptStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, a := range s.attempts {
		if a.Status != StatusPending && a.UpdatedAt.Before(cutoff) {
			delete(s.attempts, id)
			delete(s.receipts, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryAttemptStore) CountByStatus(context.Context) (map[Status]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[Status]int)
	for _, a := range s.attempts {
		out[a.Status]++
	}
	return out, nil
}

func sortAttempts(as []Attempt) {
	slices.SortFunc(as, func(a, b Attempt) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
