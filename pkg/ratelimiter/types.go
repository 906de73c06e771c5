package ratelimiter

import "time"

// Result contains the result of a rate limit check.
type Result struct {
	Limit     int       // Maximum tokens (bucket capacity)
	Remaining int       // Tokens left after the call; negative means the request was denied
	ResetAt   time.Time // Time when the next refill happens
}

// Allowed returns whether the request is allowed based on remaining tokens.
func (r *Result) Allowed() bool {
	return r.Remaining >= 0
}

// RetryAfter returns how long to wait before the next request.
// Returns 0 if the request was allowed.
func (r *Result) RetryAfter() time.Duration {
	if r.Allowed() {
		return 0
	}
	return max(time.Until(r.ResetAt), 0)
}

// Config defines the token bucket configuration.
type Config struct {
	Capacity       int           // Maximum tokens the bucket can hold (burst limit)
	RefillRate     int           // Number of tokens added per refill interval
	RefillInterval time.Duration // How often tokens are added
}

// PerSecond returns a config refilling n tokens per second, one token at a time,
// with a burst of n.
func PerSecond(n int) Config {
	if n <= 0 {
		return Config{}
	}
	return Config{
		Capacity:       n,
		RefillRate:     1,
		RefillInterval: time.Second / time.Duration(n),
	}
}
