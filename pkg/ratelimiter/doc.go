// Package ratelimiter implements a token bucket rate limiter with pluggable storage.
//
// A Bucket holds Capacity tokens and adds RefillRate tokens every
// RefillInterval. Each permitted operation takes one token. A request that
// finds too few tokens is denied without touching the bucket, so callers may
// retry as soon as the next refill lands.
//
// Allow and AllowN answer immediately. Wait and WaitN suspend until a token is
// available or the context ends; this is what the batch processor uses to
// throttle outbound calls:
//
//	b, err := ratelimiter.NewBucket(ratelimiter.NewMemoryStore(), ratelimiter.PerSecond(50))
//	if err != nil {
//	    return err
//	}
//	limiter := b.For("batch")
//	if err := limiter.Wait(ctx); err != nil {
//	    return err
//	}
//
// # Storage
//
// MemoryStore keeps buckets in process memory and removes stale ones
// periodically. RedisStore runs the same algorithm in a Lua script so several
// dispatcher instances share one limit.
//
// # HTTP
//
// Middleware limits inbound requests by a KeyFunc such as HeaderKey and sets
// X-RateLimit-* and Retry-After headers. WithDeniedHandler and
// WithErrorHandler let the caller render its own error bodies.
package ratelimiter
