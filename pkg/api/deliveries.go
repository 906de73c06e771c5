package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/dispatchkit/pkg/delivery"
	"github.com/dmitrymomot/dispatchkit/pkg/email"
	"github.com/dmitrymomot/dispatchkit/pkg/logger"
	"github.com/dmitrymomot/dispatchkit/pkg/webhook"
)

type receiptResult struct {
	Attempt delivery.Attempt `json:"attempt"`
	Changed bool             `json:"changed"`
}

func (h *Handler) attempt(w http.ResponseWriter, r *http.Request) {
	a, err := h.engine.Delivery().GetDeliveryStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respond(w, http.StatusOK, a)
}

func (h *Handler) cancelAttempt(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ok, err := h.engine.Delivery().CancelDelivery(r.Context(), id)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if !ok {
		respondError(w, r, h.logger, NewHTTPError(http.StatusConflict, "not_cancellable",
			"attempt is not pending or already in flight"))
		return
	}
	respond(w, http.StatusOK, map[string]any{"id": id, "cancelled": true})
}

func (h *Handler) receipts(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.engine.Delivery().GetDeliveryStatus(r.Context(), id); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	list, err := h.engine.Delivery().Receipts(r.Context(), id)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if list == nil {
		list = []delivery.Receipt{}
	}
	respond(w, http.StatusOK, list)
}

// receipt ingests a provider receipt in the native format. When a secret is
// configured the body must carry a valid webhook signature.
func (h *Handler) receipt(w http.ResponseWriter, r *http.Request) {
	if err := requireJSON(r); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	body, err := readBody(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	if h.secret != "" {
		sig, err := webhook.ExtractSignatureHeaders(r.Header)
		if err == nil {
			err = webhook.VerifySignature(h.secret, body, sig, h.maxAge, h.now())
		}
		if err != nil {
			h.logger.LogAttrs(r.Context(), slog.LevelWarn, "receipt signature rejected", logger.Error(err))
			respondError(w, r, h.logger, err)
			return
		}
	}

	var rc delivery.Receipt
	if err := decodeBytes(body, &rc); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	h.record(w, r, rc)
}

func (h *Handler) postmarkReceipt(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if !json.Valid(body) {
		respondError(w, r, h.logger, fmt.Errorf("%w: malformed postmark payload", ErrInvalidJSON))
		return
	}
	rc, err := email.ParsePostmarkWebhook(body)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	h.record(w, r, rc)
}

func (h *Handler) record(w http.ResponseWriter, r *http.Request, rc delivery.Receipt) {
	a, changed, err := h.engine.Delivery().RecordReceipt(r.Context(), rc)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respond(w, http.StatusOK, receiptResult{Attempt: a, Changed: changed})
}
