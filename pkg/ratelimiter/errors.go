package ratelimiter

import "errors"

var (
	ErrInvalidConfig     = errors.New("invalid bucket config")
	ErrInvalidTokenCount = errors.New("invalid token count")
	ErrContextCancelled  = errors.New("rate limit wait cancelled")
	ErrStoreUnavailable  = errors.New("bucket store unavailable")
)
