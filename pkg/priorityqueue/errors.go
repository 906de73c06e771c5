package priorityqueue

import "errors"

var (
	// ErrQueueFull is returned when an enqueue would exceed the configured max size.
	ErrQueueFull = errors.New("priority queue is full")

	// ErrDuplicateItem is returned when an item with the same ID is already queued.
	ErrDuplicateItem = errors.New("item already queued")

	// ErrMissingID is returned when an item without ID is enqueued.
	ErrMissingID = errors.New("item ID is required")

	// ErrInvalidPriority is returned for priorities outside the five known classes.
	ErrInvalidPriority = errors.New("invalid item priority")

	// ErrMaxRetriesExceeded is returned by Retry once the item used up its retries.
	// Callers must treat the item as terminally failed.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")

	// ErrItemNotFound is returned when an operation targets an item that is not queued.
	ErrItemNotFound = errors.New("item not found in queue")

	// ErrQueueClosed is returned when enqueueing into a closed queue.
	ErrQueueClosed = errors.New("priority queue is closed")
)
