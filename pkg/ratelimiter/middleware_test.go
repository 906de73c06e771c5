package ratelimiter_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dispatchkit/pkg/ratelimiter"
)

func TestMiddleware(t *testing.T) {
	t.Parallel()

	b, err := ratelimiter.NewBucket(
		ratelimiter.NewMemoryStore(ratelimiter.WithCleanupInterval(0)),
		ratelimiter.Config{Capacity: 2, RefillRate: 1, RefillInterval: time.Hour},
	)
	require.NoError(t, err)

	h := ratelimiter.Middleware(b, ratelimiter.HeaderKey("X-Tenant-ID"))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusAccepted) }),
	)

	do := func(tenant string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/notifications", nil)
		if tenant != "" {
			req.Header.Set("X-Tenant-ID", tenant)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusAccepted, do("t1").Code)
	rec := do("t1")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = do("t1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusAccepted, do("t2").Code)

	// no key, no limit
	for range 5 {
		assert.Equal(t, http.StatusAccepted, do("").Code)
	}
}

func TestMiddleware_CustomHandlers(t *testing.T) {
	t.Parallel()

	b, err := ratelimiter.NewBucket(
		ratelimiter.NewMemoryStore(ratelimiter.WithCleanupInterval(0)),
		ratelimiter.Config{Capacity: 1, RefillRate: 1, RefillInterval: time.Minute},
	)
	require.NoError(t, err)

	var waited time.Duration
	h := ratelimiter.Middleware(b, ratelimiter.HeaderKey("X-Tenant-ID"),
		ratelimiter.WithDeniedHandler(func(w http.ResponseWriter, _ *http.Request, retryAfter time.Duration) {
			waited = retryAfter
			w.WriteHeader(http.StatusTeapot)
		}),
	)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Tenant-ID", "t1")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Positive(t, waited)
	assert.LessOrEqual(t, waited, time.Minute)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}
