package dispatch

import (
	"fmt"
	"strings"

	"github.com/dmitrymomot/dispatchkit/pkg/validator"
)

// validate rejects requests that can never be delivered. perr is the result
// of parsing req.Priority.
func (e *Engine) validate(req SendRequest, perr error) error {
	rules := []validator.Rule{
		validator.RequiredString("tenant_id", req.TenantID),
		validator.Custom("message", "title or message is required", "validation.title_or_message", func() bool {
			return strings.TrimSpace(req.Title) != "" || strings.TrimSpace(req.Message) != ""
		}),
		validator.RequiredSlice("recipients", req.Recipients),
		validator.RequiredSlice("channels", req.Channels),
		validator.Custom("priority", fmt.Sprintf("unknown priority %q", req.Priority), "validation.priority", func() bool {
			return perr == nil
		}),
		validator.MinNum("max_attempts", req.MaxAttempts, 0),
	}

	if e.maxRecipients > 0 {
		rules = append(rules, validator.MaxItems("recipients", req.Recipients, e.maxRecipients))
	}
	if req.ScheduledFor != nil {
		rules = append(rules, validator.TimeAfter("expires_at", req.ExpiresAt, *req.ScheduledFor, "scheduled_for"))
	}

	for i, ch := range req.Channels {
		rules = append(rules, validator.Custom(
			fmt.Sprintf("channels[%d]", i),
			fmt.Sprintf("no handler registered for channel %q", ch),
			"validation.channel_unregistered",
			func() bool { return e.delivery.HasHandler(ch) },
		))
	}

	for i, r := range req.Recipients {
		rules = append(rules, validator.RequiredString(fmt.Sprintf("recipients[%d].id", i), r.ID))
		if r.Channel != "" {
			rules = append(rules, validator.InList(fmt.Sprintf("recipients[%d].channel", i), r.Channel, req.Channels))
		}
	}

	return validator.Apply(rules...)
}
