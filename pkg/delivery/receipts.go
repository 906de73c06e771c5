package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dmitrymomot/dispatchkit/pkg/events"
	"github.com/dmitrymomot/dispatchkit/pkg/logger"
)

const staleBatchSize = 500

// RecordReceipt appends r to the receipt log and applies at most one status
// transition to the correlated attempt. Correlation uses DeliveryAttemptID, or
// the provider ExternalID when the attempt ID is empty. Only sent attempts move;
// the bool reports whether the status changed.
func (e *Engine) RecordReceipt(ctx context.Context, r Receipt) (Attempt, bool, error) {
	if !r.Event.Valid() {
		return Attempt{}, false, fmt.Errorf("%w: unknown event %q", ErrInvalidReceipt, r.Event)
	}
	if r.DeliveryAttemptID == "" && r.ExternalID == "" {
		return Attempt{}, false, fmt.Errorf("%w: attempt id or external id is required", ErrInvalidReceipt)
	}

	e.stateMu.Lock()

	var (
		a   Attempt
		err error
	)
	if r.DeliveryAttemptID != "" {
		a, err = e.store.GetAttempt(ctx, r.DeliveryAttemptID)
	} else {
		a, err = e.store.FindByExternalID(ctx, r.Channel, r.ExternalID)
	}
	if err != nil {
		e.stateMu.Unlock()
		return Attempt{}, false, err
	}

	now := e.now()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = now
	}
	r.DeliveryAttemptID = a.ID
	r.NotificationID = a.NotificationID
	r.Channel = a.Channel
	if r.ExternalID == "" {
		r.ExternalID = a.ExternalID
	}

	if err := e.store.AppendReceipt(ctx, r); err != nil {
		e.stateMu.Unlock()
		return Attempt{}, false, err
	}

	target := r.Event.Target()
	changed := a.Status == StatusSent && a.Status.CanTransition(target)
	if changed {
		a.Status = target
		a.UpdatedAt = now
		switch target {
		case StatusDelivered:
			ts := r.Timestamp
			a.DeliveredAt = &ts
		case StatusBounced, StatusFailed:
			ts := r.Timestamp
			a.FailedAt = &ts
			if reason, ok := r.Metadata["reason"].(string); ok {
				a.Error = reason
			}
		}
		if err := e.store.SaveAttempt(ctx, a); err != nil {
			e.stateMu.Unlock()
			return Attempt{}, false, err
		}
	}
	e.stateMu.Unlock()

	e.logger.LogAttrs(ctx, slog.LevelDebug, "delivery receipt recorded",
		logger.AttemptID(a.ID),
		logger.NotificationID(a.NotificationID),
		logger.Event(r.Event),
		slog.Bool("transitioned", changed),
	)
	e.bus.Emit(ctx, events.Event{
		Type:           events.ReceiptRecorded,
		Component:      "delivery",
		NotificationID: a.NotificationID,
		TenantID:       a.TenantID,
		AttemptID:      a.ID,
		Channel:        string(a.Channel),
		RecipientID:    a.RecipientID,
		Data:           map[string]any{"event": string(r.Event), "external_id": r.ExternalID},
	})
	if changed {
		switch a.Status {
		case StatusDelivered:
			e.emit(ctx, events.DeliveryDelivered, a, nil)
		case StatusBounced:
			e.emit(ctx, events.DeliveryBounced, a, nil)
		case StatusFailed:
			e.emit(ctx, events.DeliveryFailed, a, errors.New(a.Error))
		}
	}

	return a, changed, nil
}

// ResolveStale polls handlers implementing StatusChecker for attempts left in
// sent longer than the receipt timeout and records the reported outcome as a
// receipt. Attempts on fire-and-forget channels stay sent. It is a no-op while
// the receipt timeout is zero.
func (e *Engine) ResolveStale(ctx context.Context) (int, error) {
	if e.receiptTimeout <= 0 {
		return 0, nil
	}

	stale, err := e.store.ListStale(ctx, StatusSent, e.now().Add(-e.receiptTimeout), staleBatchSize)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, a := range stale {
		h, ok := e.Handler(a.Channel)
		if !ok {
			continue
		}
		sc, ok := h.(StatusChecker)
		if !ok {
			continue
		}

		status, err := sc.Status(ctx, a)
		if err != nil {
			e.logger.LogAttrs(ctx, slog.LevelWarn, "delivery status check failed",
				logger.AttemptID(a.ID),
				logger.Channel(a.Channel),
				logger.Error(err),
			)
			continue
		}

		var ev ReceiptEvent
		switch status {
		case StatusDelivered:
			ev = ReceiptDelivered
		case StatusBounced:
			ev = ReceiptBounced
		case StatusFailed:
			ev = ReceiptFailed
		default:
			continue
		}

		_, changed, err := e.RecordReceipt(ctx, Receipt{
			DeliveryAttemptID: a.ID,
			Event:             ev,
			Metadata:          map[string]any{"source": "status_check"},
		})
		if err != nil {
			return resolved, err
		}
		if changed {
			resolved++
		}
	}
	return resolved, nil
}
