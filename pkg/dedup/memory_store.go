package dedup

import (
	"context"
	"time"

	"github.com/dmitrymomot/dispatchkit/pkg/cache"
)

// MemoryStore keeps entries in an LRU ordered by LastSeenAt.
// Get peeks without promoting, so the eviction victim is always the entry
// with the oldest LastSeenAt.
type MemoryStore struct {
	lru *cache.LRU[string, Entry]
}

// NewMemoryStore creates a store holding at most maxEntries fingerprints.
func NewMemoryStore(maxEntries int) *MemoryStore {
	return &MemoryStore{lru: cache.NewLRU[string, Entry](max(maxEntries, 1))}
}

func (s *MemoryStore) Get(_ context.Context, fp string) (Entry, bool, error) {
	e, ok := s.lru.Peek(fp)
	if !ok {
		return Entry{}, false, nil
	}
	return e.clone(), true, nil
}

func (s *MemoryStore) Save(_ context.Context, e Entry) error {
	s.lru.Put(e.Fingerprint, e.clone())
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, fp string) error {
	s.lru.Remove(fp)
	return nil
}

func (s *MemoryStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	return s.lru.RemoveOldestWhile(func(_ string, e Entry) bool {
		return e.LastSeenAt.Before(cutoff)
	}), nil
}

func (s *MemoryStore) Len(context.Context) (int, error) {
	return s.lru.Len(), nil
}
