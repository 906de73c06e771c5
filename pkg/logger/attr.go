package logger

import (
	"log/slog"
	"strconv"
	"time"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Errors groups multiple non-nil errors under the key "errors".
// If all errors are nil, it returns an empty Attr.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// NotificationID records the notification identifier under "notification_id".
func NotificationID(id string) slog.Attr {
	return optionalString("notification_id", id)
}

// AttemptID records the delivery attempt identifier under "attempt_id".
func AttemptID(id string) slog.Attr {
	return optionalString("attempt_id", id)
}

// JobID records the batch job identifier under "job_id".
func JobID(id string) slog.Attr {
	return optionalString("job_id", id)
}

// TenantID records the owning tenant under "tenant_id".
func TenantID(id string) slog.Attr {
	return optionalString("tenant_id", id)
}

// UserID records the user identifier under "user_id".
func UserID(id string) slog.Attr {
	return optionalString("user_id", id)
}

// Channel records the delivery channel under "channel".
func Channel[T ~string](ch T) slog.Attr {
	return optionalString("channel", string(ch))
}

// Priority records a priority under "priority" using its String form.
func Priority(p interface{ String() string }) slog.Attr {
	return slog.String("priority", p.String())
}

// Fingerprint records a deduplication fingerprint under "fingerprint".
func Fingerprint(fp string) slog.Attr {
	return optionalString("fingerprint", fp)
}

// RequestID records the request identifier under "request_id".
func RequestID(id string) slog.Attr {
	return optionalString("request_id", id)
}

// RetryCount records the retry count under the key "retry_count".
func RetryCount(count int) slog.Attr {
	return slog.Int("retry_count", count)
}

// Duration records a duration under the key "duration".
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Event records the event name under the key "event".
func Event[T ~string](name T) slog.Attr {
	return slog.String("event", string(name))
}

func optionalString(key, v string) slog.Attr {
	if v == "" {
		return slog.Attr{}
	}
	return slog.String(key, v)
}
