package batch

import "errors"

var (
	// ErrNoProcessor is returned by Start when no process function was set.
	ErrNoProcessor = errors.New("batch processor function is not set")

	// ErrEmptyJob is returned when a job is created without items.
	ErrEmptyJob = errors.New("job must contain at least one item")

	// ErrJobNotFound is returned when a job ID is unknown.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobNotPending is returned when cancelling a job that already started or finished.
	ErrJobNotPending = errors.New("job is not pending")

	// ErrTooManyPendingJobs is returned when the pending job queue is full.
	ErrTooManyPendingJobs = errors.New("too many pending jobs")

	// ErrAlreadyStarted is returned when Start is called on a running processor.
	ErrAlreadyStarted = errors.New("batch processor already started")

	// ErrNotStarted is returned when Stop is called before Start.
	ErrNotStarted = errors.New("batch processor not started")

	// ErrItemPanicked wraps a panic raised by the process function.
	ErrItemPanicked = errors.New("item processing panicked")
)
