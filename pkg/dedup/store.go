package dedup

import (
	"context"
	"time"
)

// Store persists dedup entries keyed by fingerprint.
// Implementations enforce their own capacity by dropping the entry with the
// oldest LastSeenAt first.
type Store interface {
	// Get returns the entry for fp. The bool is false when no entry exists.
	Get(ctx context.Context, fp string) (Entry, bool, error)
	// Save inserts or replaces the entry.
	Save(ctx context.Context, e Entry) error
	// Delete removes the entry for fp. A missing entry is not an error.
	Delete(ctx context.Context, fp string) error
	// DeleteOlderThan removes entries whose LastSeenAt is before cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
	// Len returns the number of stored entries.
	Len(ctx context.Context) (int, error)
}
