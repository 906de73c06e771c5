package ratelimiter

import (
	"math"
	"net/http"
	"strconv"
	"time"
)

// KeyFunc extracts a rate limit key from the request.
// An empty key leaves the request unlimited.
type KeyFunc func(r *http.Request) string

// HeaderKey keys requests by a header value, e.g. the tenant id.
func HeaderKey(name string) KeyFunc {
	return func(r *http.Request) string {
		return r.Header.Get(name)
	}
}

// DeniedFunc writes the response for a request over its limit.
type DeniedFunc func(w http.ResponseWriter, r *http.Request, retryAfter time.Duration)

// ErrorFunc writes the response when the bucket store fails.
type ErrorFunc func(w http.ResponseWriter, r *http.Request, err error)

type middlewareConfig struct {
	denied  DeniedFunc
	onError ErrorFunc
}

// MiddlewareOption configures Middleware.
type MiddlewareOption func(*middlewareConfig)

// WithDeniedHandler replaces the plain-text 429 response.
func WithDeniedHandler(fn DeniedFunc) MiddlewareOption {
	return func(c *middlewareConfig) {
		if fn != nil {
			c.denied = fn
		}
	}
}

// WithErrorHandler replaces the plain-text 500 response.
func WithErrorHandler(fn ErrorFunc) MiddlewareOption {
	return func(c *middlewareConfig) {
		if fn != nil {
			c.onError = fn
		}
	}
}

// Middleware limits requests per key. X-RateLimit-* headers are set on every
// limited request and Retry-After on denials.
func Middleware(tb *Bucket, keyFunc KeyFunc, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := middlewareConfig{
		denied: func(w http.ResponseWriter, _ *http.Request, _ time.Duration) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		},
		onError: func(w http.ResponseWriter, _ *http.Request, _ error) {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			result, err := tb.Allow(r.Context(), key)
			if err != nil {
				cfg.onError(w, r, err)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(max(0, result.Remaining)))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			if !result.Allowed() {
				wait := result.RetryAfter()
				h.Set("Retry-After", strconv.Itoa(max(int(math.Ceil(wait.Seconds())), 1)))
				cfg.denied(w, r, wait)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
