package api

import (
	"fmt"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/dispatchkit/pkg/dispatch"
	"github.com/dmitrymomot/dispatchkit/pkg/notifications"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type batchRequest struct {
	Notifications []dispatch.SendRequest `json:"notifications"`
}

type batchItem struct {
	Index int `json:"index"`
	dispatch.SendResult
	Error string `json:"error,omitempty"`
}

// send accepts one notification. Duplicates are not errors: they answer 200
// with a rejection instead of 202.
func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	var req dispatch.SendRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	res, err := h.engine.Send(r.Context(), req)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if !res.Accepted() {
		respond(w, http.StatusOK, res)
		return
	}
	respond(w, http.StatusAccepted, res)
}

func (h *Handler) sendBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if len(req.Notifications) == 0 {
		respondError(w, r, h.logger, fmt.Errorf("%w: notifications cannot be empty", dispatch.ErrInvalidRequest))
		return
	}

	results := h.engine.SendBatch(r.Context(), req.Notifications)
	items := make([]batchItem, len(results))
	var accepted, rejected, failed int
	for i, res := range results {
		items[i] = batchItem{Index: res.Index, SendResult: res.Result}
		switch {
		case res.Err != nil:
			items[i].Error = res.Err.Error()
			failed++
		case res.Result.Accepted():
			accepted++
		default:
			rejected++
		}
	}

	respondMeta(w, http.StatusOK, items, map[string]any{
		"accepted": accepted,
		"rejected": rejected,
		"failed":   failed,
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	opts, err := listOptions(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	items, err := h.engine.List(r.Context(), opts)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if items == nil {
		items = []*notifications.Notification{}
	}
	respondMeta(w, http.StatusOK, items, map[string]any{
		"limit":  opts.Limit,
		"offset": opts.Offset,
		"count":  len(items),
	})
}

func listOptions(r *http.Request) (notifications.ListOptions, error) {
	opts := notifications.ListOptions{
		TenantID: r.URL.Query().Get("tenant_id"),
		UserID:   r.URL.Query().Get("user_id"),
	}

	var err error
	if opts.Limit, err = queryInt(r, "limit", defaultListLimit, maxListLimit); err != nil {
		return opts, err
	}
	if opts.Offset, err = queryInt(r, "offset", 0, 0); err != nil {
		return opts, err
	}
	if opts.Since, err = queryTime(r, "since"); err != nil {
		return opts, err
	}

	known := []notifications.Status{
		notifications.StatusPending,
		notifications.StatusProcessing,
		notifications.StatusSent,
		notifications.StatusDelivered,
		notifications.StatusFailed,
		notifications.StatusCancelled,
	}
	for _, s := range queryList(r, "status") {
		st := notifications.Status(s)
		if !slices.Contains(known, st) {
			return opts, fmt.Errorf("%w: unknown status %q", ErrInvalidQuery, s)
		}
		opts.Statuses = append(opts.Statuses, st)
	}
	return opts, nil
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	n, err := h.engine.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respond(w, http.StatusOK, n)
}

// cancel answers 409 when the notification already left the queue.
func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ok, err := h.engine.Cancel(r.Context(), id)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if !ok {
		respondError(w, r, h.logger, NewHTTPError(http.StatusConflict, "not_cancellable",
			"notification is no longer queued"))
		return
	}
	respond(w, http.StatusOK, map[string]any{"id": id, "cancelled": true})
}

func (h *Handler) attempts(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.engine.Get(r.Context(), id); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	attempts, err := h.engine.Attempts(r.Context(), id)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respond(w, http.StatusOK, attempts)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	s, err := h.engine.Stats(r.Context())
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	body := map[string]any{"engine": s}
	if h.jobs != nil {
		body["jobs"] = h.jobs.Stats()
	}
	if h.inbox != nil {
		body["inbox_users"] = h.inbox.Users()
	}
	respond(w, http.StatusOK, body)
}
