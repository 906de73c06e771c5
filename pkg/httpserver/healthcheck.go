package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/dispatchkit/pkg/logger"
)

// Check is a named readiness probe.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// HealthReport is the body written by HealthCheckHandler.
type HealthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HealthCheckHandler serves liveness without checks and readiness with them.
// Every check runs with timeout; any failure turns the response into 503.
func HealthCheckHandler(log *slog.Logger, timeout time.Duration, checks ...Check) http.HandlerFunc {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return func(w http.ResponseWriter, r *http.Request) {
		report := HealthReport{Status: "alive"}
		code := http.StatusOK

		if len(checks) > 0 {
			report.Status = "ready"
			report.Checks = make(map[string]string, len(checks))

			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			for _, c := range checks {
				if err := c.Fn(ctx); err != nil {
					log.LogAttrs(ctx, slog.LevelError, "readiness check failed",
						slog.String("check", c.Name),
						logger.Error(err),
					)
					report.Checks[c.Name] = err.Error()
					report.Status = "not_ready"
					code = http.StatusServiceUnavailable
					continue
				}
				report.Checks[c.Name] = "ok"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(report)
	}
}
