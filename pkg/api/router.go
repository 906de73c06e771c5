package api

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/dispatchkit/pkg/batch"
	"github.com/dmitrymomot/dispatchkit/pkg/dispatch"
	"github.com/dmitrymomot/dispatchkit/pkg/httpserver"
	"github.com/dmitrymomot/dispatchkit/pkg/inapp"
	"github.com/dmitrymomot/dispatchkit/pkg/ratelimiter"
)

// TenantHeader identifies the calling tenant for rate limiting.
const TenantHeader = "X-Tenant-ID"

// Config holds HTTP API settings.
type Config struct {
	ReceiptSecret   string        `env:"RECEIPT_WEBHOOK_SECRET"`
	ReceiptMaxAge   time.Duration `env:"RECEIPT_WEBHOOK_MAX_AGE" envDefault:"5m"`
	MaxBodyBytes    int64         `env:"API_MAX_BODY_BYTES" envDefault:"1048576"`
	HealthTimeout   time.Duration `env:"API_HEALTH_TIMEOUT" envDefault:"2s"`
	StreamKeepAlive time.Duration `env:"API_STREAM_KEEPALIVE" envDefault:"15s"`
	TenantRate      int           `env:"API_TENANT_RATE" envDefault:"0"` // requests per second, 0 disables
}

// Handler serves the dispatch HTTP API.
type Handler struct {
	engine *dispatch.Engine
	jobs   *batch.Processor[dispatch.SendRequest]
	inbox  *inapp.Channel
	logger *slog.Logger

	metrics   http.Handler
	limiter   *ratelimiter.Bucket
	checks    []httpserver.Check
	secret    string
	maxAge    time.Duration
	maxBody   int64
	timeout   time.Duration
	keepAlive time.Duration
	now       func() time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithJobs enables the bulk endpoints backed by p.
func WithJobs(p *batch.Processor[dispatch.SendRequest]) Option {
	return func(h *Handler) { h.jobs = p }
}

// WithInbox enables the in-app inbox endpoints.
func WithInbox(ch *inapp.Channel) Option {
	return func(h *Handler) { h.inbox = ch }
}

// WithMetrics mounts a Prometheus handler at /metrics.
func WithMetrics(m http.Handler) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithRateLimiter limits requests per tenant header.
func WithRateLimiter(b *ratelimiter.Bucket) Option {
	return func(h *Handler) { h.limiter = b }
}

// WithReadinessChecks registers probes served at /readyz.
func WithReadinessChecks(checks ...httpserver.Check) Option {
	return func(h *Handler) { h.checks = append(h.checks, checks...) }
}

// WithReceiptSecret requires HMAC-signed receipt webhooks.
func WithReceiptSecret(secret string, maxAge time.Duration) Option {
	return func(h *Handler) {
		h.secret = secret
		h.maxAge = maxAge
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBody = n
		}
	}
}

func WithStreamKeepAlive(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.keepAlive = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// Options converts the config into handler options.
func (c Config) Options() []Option {
	return []Option{
		WithReceiptSecret(c.ReceiptSecret, c.ReceiptMaxAge),
		WithMaxBodyBytes(c.MaxBodyBytes),
		WithStreamKeepAlive(c.StreamKeepAlive),
		func(h *Handler) {
			if c.HealthTimeout > 0 {
				h.timeout = c.HealthTimeout
			}
		},
	}
}

// New builds the router.
func New(engine *dispatch.Engine, opts ...Option) http.Handler {
	h := &Handler{
		engine:    engine,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxBody:   1 << 20,
		timeout:   2 * time.Second,
		keepAlive: 15 * time.Second,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h.routes()
}

func (h *Handler) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(middleware.RealIP)
	r.Use(AccessLog(h.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", httpserver.HealthCheckHandler(h.logger, h.timeout))
	r.Get("/readyz", httpserver.HealthCheckHandler(h.logger, h.timeout, h.checks...))
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(MaxBody(h.maxBody))
		if h.limiter != nil {
			r.Use(ratelimiter.Middleware(h.limiter, ratelimiter.HeaderKey(TenantHeader),
				ratelimiter.WithDeniedHandler(func(w http.ResponseWriter, r *http.Request, _ time.Duration) {
					respondError(w, r, h.logger, ErrRateLimited)
				}),
				ratelimiter.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
					respondError(w, r, h.logger, err)
				}),
			))
		}

		r.Route("/notifications", func(r chi.Router) {
			r.Post("/", h.send)
			r.Get("/", h.list)
			r.Post("/batch", h.sendBatch)
			r.Post("/bulk", h.createJob)
			r.Get("/{id}", h.get)
			r.Delete("/{id}", h.cancel)
			r.Get("/{id}/attempts", h.attempts)
		})

		r.Route("/attempts/{id}", func(r chi.Router) {
			r.Get("/", h.attempt)
			r.Delete("/", h.cancelAttempt)
			r.Get("/receipts", h.receipts)
		})

		r.Route("/receipts", func(r chi.Router) {
			r.Post("/", h.receipt)
			r.Post("/postmark", h.postmarkReceipt)
		})

		r.Route("/jobs/{id}", func(r chi.Router) {
			r.Get("/", h.job)
			r.Delete("/", h.cancelJob)
		})

		r.Route("/inbox/{user}", func(r chi.Router) {
			r.Get("/", h.inboxList)
			r.Get("/stream", h.inboxStream)
			r.Post("/{message}/read", h.inboxRead)
		})

		r.Get("/stats", h.stats)
	})

	return r
}
