package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/dispatchkit/pkg/inapp"
	"github.com/dmitrymomot/dispatchkit/pkg/logger"
)

func (h *Handler) inboxList(w http.ResponseWriter, r *http.Request) {
	if h.inbox == nil {
		respondError(w, r, h.logger, ErrInboxDisabled)
		return
	}

	user := chi.URLParam(r, "user")
	var msgs []inapp.Message
	if r.URL.Query().Get("unread") == "true" {
		msgs = h.inbox.Unread(user)
	} else {
		msgs = h.inbox.Recent(user)
	}
	if msgs == nil {
		msgs = []inapp.Message{}
	}
	respondMeta(w, http.StatusOK, msgs, map[string]any{"count": len(msgs)})
}

// inboxRead marks a message read and feeds the read receipt back into delivery tracking.
func (h *Handler) inboxRead(w http.ResponseWriter, r *http.Request) {
	if h.inbox == nil {
		respondError(w, r, h.logger, ErrInboxDisabled)
		return
	}

	rc, err := h.inbox.MarkRead(chi.URLParam(r, "user"), chi.URLParam(r, "message"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	h.record(w, r, rc)
}

// inboxStream pushes new messages as server-sent events until the client goes away.
func (h *Handler) inboxStream(w http.ResponseWriter, r *http.Request) {
	if h.inbox == nil {
		respondError(w, r, h.logger, ErrInboxDisabled)
		return
	}

	rc := http.NewResponseController(w)
	user := chi.URLParam(r, "user")
	sub := h.inbox.Subscribe(r.Context(), user)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.logger.LogAttrs(r.Context(), slog.LevelWarn, "inbox stream not flushable",
			logger.UserID(user), logger.Error(err))
		return
	}

	ping := time.NewTicker(h.keepAlive)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case m, ok := <-sub.C():
			if !ok {
				return
			}
			data, err := json.Marshal(m)
			if err != nil {
				h.logger.LogAttrs(r.Context(), slog.LevelError, "encode inbox message",
					logger.UserID(user), logger.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %s\nevent: message\ndata: %s\n\n", m.ID, data); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
