// Package backoff provides retry delay strategies shared by the queue,
// delivery and dispatch packages.
//
// Every strategy maps a 1-based retry number to a delay. Exponential is the
// workhorse; Pow exposes the raw base*multiplier^n formula for callers that
// count attempts from zero.
//
//	b := backoff.Exponential{Initial: time.Second, Multiplier: 2, Max: 30 * time.Second}
//	b.NextInterval(1) // 1s
//	b.NextInterval(3) // 4s
package backoff
