package dispatch

import "errors"

var (
	// ErrInvalidRequest wraps validator.ValidationErrors for a rejected request.
	ErrInvalidRequest = errors.New("invalid notification request")

	// ErrDuplicate is returned by ProcessRequest when the notification was suppressed.
	ErrDuplicate = errors.New("duplicate notification")

	// ErrNotFound is returned when a notification id is unknown.
	ErrNotFound = errors.New("notification not found")

	// ErrAlreadyExists is returned when a request reuses the id of a known notification.
	ErrAlreadyExists = errors.New("notification already exists")

	// ErrQueueFull is returned when the dispatch queue is at capacity.
	ErrQueueFull = errors.New("dispatch queue is full")

	// ErrAlreadyStarted is returned by Start on a running engine.
	ErrAlreadyStarted = errors.New("dispatch engine already started")

	// ErrNotStarted is returned by Stop on an engine that is not running.
	ErrNotStarted = errors.New("dispatch engine not started")
)
