package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/dispatchkit/pkg/batch"
	"github.com/dmitrymomot/dispatchkit/pkg/delivery"
	"github.com/dmitrymomot/dispatchkit/pkg/dispatch"
	"github.com/dmitrymomot/dispatchkit/pkg/email"
	"github.com/dmitrymomot/dispatchkit/pkg/inapp"
	"github.com/dmitrymomot/dispatchkit/pkg/logger"
	"github.com/dmitrymomot/dispatchkit/pkg/validator"
	"github.com/dmitrymomot/dispatchkit/pkg/webhook"
)

// Envelope is the body of every JSON response.
type Envelope struct {
	Data  any            `json:"data,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
	Error *ErrorDetail   `json:"error,omitempty"`
}

// ErrorDetail describes a failed request. Details lists validation messages per field.
type ErrorDetail struct {
	Code      string              `json:"code"`
	Message   string              `json:"message"`
	Details   map[string][]string `json:"details,omitempty"`
	RequestID string              `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respond(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Envelope{Data: data})
}

func respondMeta(w http.ResponseWriter, status int, data any, meta map[string]any) {
	writeJSON(w, status, Envelope{Data: data, Meta: meta})
}

// respondError maps err onto a status and logs server-side failures.
func respondError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	status, detail := classify(err)
	detail.RequestID = RequestIDFromContext(r.Context())

	if status >= http.StatusInternalServerError {
		log.LogAttrs(r.Context(), slog.LevelError, "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			logger.Error(err),
		)
	}
	writeJSON(w, status, Envelope{Error: detail})
}

func classify(err error) (int, *ErrorDetail) {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		key := httpErr.Key
		if key == "" {
			key = "http_error"
		}
		return httpErr.Code, &ErrorDetail{Code: key, Message: httpErr.Error()}
	}

	if verrs := validator.ExtractValidationErrors(err); verrs != nil {
		details := make(map[string][]string, len(verrs))
		for _, f := range verrs.Fields() {
			details[f] = verrs.Get(f)
		}
		return http.StatusUnprocessableEntity, &ErrorDetail{
			Code:    "validation_error",
			Message: "request validation failed",
			Details: details,
		}
	}

	type mapping struct {
		target error
		status int
		code   string
	}
	for _, m := range []mapping{
		{ErrMissingContentType, http.StatusUnsupportedMediaType, "unsupported_media_type"},
		{ErrUnsupportedMediaType, http.StatusUnsupportedMediaType, "unsupported_media_type"},
		{ErrInvalidJSON, http.StatusBadRequest, "invalid_json"},
		{ErrInvalidQuery, http.StatusBadRequest, "invalid_query"},
		{dispatch.ErrInvalidRequest, http.StatusUnprocessableEntity, "invalid_request"},
		{delivery.ErrInvalidReceipt, http.StatusUnprocessableEntity, "invalid_receipt"},
		{email.ErrUnknownWebhook, http.StatusUnprocessableEntity, "unknown_webhook"},
		{batch.ErrEmptyJob, http.StatusUnprocessableEntity, "empty_job"},
		{webhook.ErrInvalidSignature, http.StatusUnauthorized, "invalid_signature"},
		{dispatch.ErrNotFound, http.StatusNotFound, "not_found"},
		{delivery.ErrAttemptNotFound, http.StatusNotFound, "not_found"},
		{batch.ErrJobNotFound, http.StatusNotFound, "not_found"},
		{inapp.ErrMessageNotFound, http.StatusNotFound, "not_found"},
		{dispatch.ErrAlreadyExists, http.StatusConflict, "already_exists"},
		{batch.ErrJobNotPending, http.StatusConflict, "job_not_pending"},
		{delivery.ErrCancelNotSupported, http.StatusConflict, "cancel_not_supported"},
		{dispatch.ErrQueueFull, http.StatusServiceUnavailable, "queue_full"},
		{batch.ErrTooManyPendingJobs, http.StatusServiceUnavailable, "too_many_jobs"},
		{ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{ErrInboxDisabled, http.StatusNotImplemented, "not_configured"},
		{ErrJobsDisabled, http.StatusNotImplemented, "not_configured"},
	} {
		if errors.Is(err, m.target) {
			return m.status, &ErrorDetail{Code: m.code, Message: err.Error()}
		}
	}

	return http.StatusInternalServerError, &ErrorDetail{
		Code:    "internal_error",
		Message: http.StatusText(http.StatusInternalServerError),
	}
}
