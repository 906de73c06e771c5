package dedup

import "errors"

var (
	// ErrNilNotification is returned when a nil notification is checked or recorded.
	ErrNilNotification = errors.New("notification cannot be nil")

	// ErrUnknownStrategy is returned for an unsupported fingerprint strategy.
	ErrUnknownStrategy = errors.New("unknown strategy")

	// ErrStoreFailure wraps errors returned by the entry store.
	ErrStoreFailure = errors.New("store failure")

	// ErrEngineAlreadyStarted is returned when Start is called twice.
	ErrEngineAlreadyStarted = errors.New("sweeper already started")

	// ErrEngineNotStarted is returned when Stop is called before Start.
	ErrEngineNotStarted = errors.New("sweeper not started")

	// ErrRedisNotReady is returned when redis did not answer within the retry budget.
	ErrRedisNotReady = errors.New("redis did not become ready")

	// ErrFailedToParseRedisURL is returned for a malformed REDIS_URL.
	ErrFailedToParseRedisURL = errors.New("failed to parse redis connection string")

	// ErrRedisHealthcheckFailed is returned by the redis readiness probe.
	ErrRedisHealthcheckFailed = errors.New("redis healthcheck failed")
)
