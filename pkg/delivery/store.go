package delivery

import (
	"context"
	"time"

	"github.com/dmitrymomot/dispatchkit/pkg/notifications"
)

// AttemptStore persists delivery attempts and their receipt log.
type AttemptStore interface {
	SaveAttempt(ctx context.Context, a Attempt) error
	GetAttempt(ctx context.Context, id string) (Attempt, error)
	// FindByExternalID looks an attempt up by provider id. An empty channel matches any.
	FindByExternalID(ctx context.Context, channel notifications.Channel, externalID string) (Attempt, error)
	// ListAttempts returns the attempts of a notification ordered by creation.
	ListAttempts(ctx context.Context, notificationID string) ([]Attempt, error)
	// ListStale returns attempts in status whose UpdatedAt is before cutoff.
	ListStale(ctx context.Context, status Status, cutoff time.Time, limit int) ([]Attempt, error)
	AppendReceipt(ctx context.Context, r Receipt) error
	Receipts(ctx context.Context, attemptID string) ([]Receipt, error)
	// DeleteOlderThan removes non-pending attempts last updated before cutoff, with their receipts.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
}
