package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/dispatchkit/pkg/batch"
	"github.com/dmitrymomot/dispatchkit/pkg/dispatch"
	"github.com/dmitrymomot/dispatchkit/pkg/notifications"
)

type bulkRequest struct {
	Priority      string                 `json:"priority,omitempty"`
	Notifications []dispatch.SendRequest `json:"notifications"`
}

type jobError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// jobView omits the items so large jobs stay cheap to poll.
type jobView struct {
	ID          string                 `json:"id"`
	Priority    notifications.Priority `json:"priority"`
	Status      batch.JobStatus        `json:"status"`
	Progress    batch.Progress         `json:"progress"`
	Errors      []jobError             `json:"errors,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}

func newJobView(j batch.Job[dispatch.SendRequest]) jobView {
	v := jobView{
		ID:          j.ID,
		Priority:    j.Priority,
		Status:      j.Status,
		Progress:    j.Progress,
		CreatedAt:   j.CreatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
	for _, e := range j.Errors {
		v.Errors = append(v.Errors, jobError{Index: e.Index, Error: e.Error})
	}
	return v
}

func (h *Handler) createJob(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		respondError(w, r, h.logger, ErrJobsDisabled)
		return
	}

	var req bulkRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	priority, err := notifications.ParsePriority(req.Priority)
	if err != nil {
		respondError(w, r, h.logger, fmt.Errorf("%w: %w", dispatch.ErrInvalidRequest, err))
		return
	}

	job, err := h.jobs.CreateJob(r.Context(), req.Notifications, priority)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respond(w, http.StatusAccepted, newJobView(job))
}

func (h *Handler) job(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		respondError(w, r, h.logger, ErrJobsDisabled)
		return
	}
	job, err := h.jobs.GetJob(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respond(w, http.StatusOK, newJobView(job))
}

func (h *Handler) cancelJob(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		respondError(w, r, h.logger, ErrJobsDisabled)
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.jobs.CancelJob(r.Context(), id); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	job, err := h.jobs.GetJob(id)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respond(w, http.StatusOK, newJobView(job))
}
