package batch

import (
	"context"
	"slices"
	"time"

	"github.com/dmitrymomot/dispatchkit/pkg/notifications"
)

// DefaultKey is the batch key used when none is given.
const DefaultKey = "default"

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// IsTerminal reports whether the job will not change any more.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// ProcessFunc handles a single item. Returned errors and panics are recorded
// on the job; they never abort it.
type ProcessFunc[T any] func(ctx context.Context, item T) error

// Limiter throttles item processing. Both ratelimiter.KeyLimiter and
// golang.org/x/time/rate.Limiter satisfy it.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Progress counts per-item outcomes.
type Progress struct {
	Total      int `json:"total"`
	Processed  int `json:"processed"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// ItemError records one failed item.
type ItemError[T any] struct {
	Index int    `json:"index"`
	Item  T      `json:"item"`
	Error string `json:"error"`
}

// Job is a snapshot of a unit of batch work.
type Job[T any] struct {
	ID          string                 `json:"id"`
	BatchKey    string                 `json:"batch_key,omitempty"`
	Priority    notifications.Priority `json:"priority"`
	Status      JobStatus              `json:"status"`
	Items       []T                    `json:"items"`
	Progress    Progress               `json:"progress"`
	Errors      []ItemError[T]         `json:"errors,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}

func (j *Job[T]) snapshot() Job[T] {
	out := *j
	out.Items = slices.Clone(j.Items)
	out.Errors = slices.Clone(j.Errors)
	if j.StartedAt != nil {
		t := *j.StartedAt
		out.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// Stats is a point-in-time view of the processor.
type Stats struct {
	Buffered   int `json:"buffered"`
	Batches    int `json:"batches"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
}
