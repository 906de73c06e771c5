package notifications

import (
	"context"
	"time"
)

// Storage handles notification persistence and retrieval.
type Storage interface {
	// Save inserts or replaces a notification by ID.
	Save(ctx context.Context, notif *Notification) error

	// Get retrieves a single notification.
	Get(ctx context.Context, id string) (*Notification, error)

	// List returns notifications matching the options, newest first.
	List(ctx context.Context, opts ListOptions) ([]*Notification, error)

	// Delete removes notification(s).
	Delete(ctx context.Context, ids ...string) error
}

// ListOptions provides filtering and pagination options for listing notifications.
type ListOptions struct {
	TenantID string     // If specified, only return notifications of this tenant
	UserID   string     // If specified, only return notifications of this user
	Statuses []Status   // If specified, only return notifications in these statuses
	Since    *time.Time // If specified, only return notifications created after this time
	Limit    int        // Maximum number of notifications to return (0 = no limit)
	Offset   int        // Number of notifications to skip for pagination
}
