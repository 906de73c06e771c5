package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy calculates retry delays.
// Implementations should be safe for concurrent use.
type Strategy interface {
	// NextInterval returns the delay before the given retry.
	// Attempt starts at 1 for the first retry.
	NextInterval(attempt int) time.Duration
}

// Exponential grows the delay geometrically with an upper bound.
// Formula: min(Initial * Multiplier^(attempt-1) * (1 ± Jitter), Max)
type Exponential struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

// NextInterval implements Strategy.
func (e Exponential) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	initial := e.Initial
	if initial == 0 {
		initial = time.Second
	}
	multiplier := e.Multiplier
	if multiplier == 0 {
		multiplier = 2
	}

	d := Pow(initial, multiplier, attempt-1, 0)
	if e.Jitter > 0 {
		d = time.Duration(float64(d) * (1 + (rand.Float64()*2-1)*e.Jitter))
	}
	if e.Max > 0 && d > e.Max {
		d = e.Max
	}
	return d
}

// Pow returns base * multiplier^exp, capped at limit when limit is positive.
// Negative exponents are treated as zero.
func Pow(base time.Duration, multiplier float64, exp int, limit time.Duration) time.Duration {
	if exp < 0 {
		exp = 0
	}
	v := float64(base) * math.Pow(multiplier, float64(exp))

	d := time.Duration(math.MaxInt64)
	if v < math.MaxInt64 {
		d = time.Duration(v)
	}
	if limit > 0 && d > limit {
		d = limit
	}
	return d
}

// Fixed returns the same delay for every attempt.
type Fixed time.Duration

// NextInterval implements Strategy.
func (f Fixed) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return time.Duration(f)
}

// Default returns the backoff used for queue retries: 2s, 4s, 8s ... capped at 30s.
func Default() Strategy {
	return Exponential{
		Initial:    2 * time.Second,
		Max:        30 * time.Second,
		Multiplier: 2,
	}
}
