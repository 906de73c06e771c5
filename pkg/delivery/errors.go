package delivery

import "errors"

var (
	// ErrNilNotification is returned when Deliver is called with nil.
	ErrNilNotification = errors.New("notification cannot be nil")

	// ErrNoDeliveryTargets is returned when a notification has no channel × recipient pair.
	ErrNoDeliveryTargets = errors.New("notification has no delivery targets")

	// ErrNoHandler is recorded on attempts whose channel has no registered handler.
	ErrNoHandler = errors.New("no handler registered for channel")

	// ErrNilHandler is returned when registering a nil handler.
	ErrNilHandler = errors.New("handler cannot be nil")

	// ErrDeliveryTimeout is recorded when a handler does not answer within the timeout.
	// The abandoned call may still complete at the provider.
	ErrDeliveryTimeout = errors.New("delivery timed out")

	// ErrChannelUnhealthy is recorded when the handler reports itself unhealthy before a try.
	ErrChannelUnhealthy = errors.New("channel is unhealthy")

	// ErrHandlerPanicked wraps a panic raised inside a handler.
	ErrHandlerPanicked = errors.New("handler panicked")

	// ErrAttemptNotFound is returned when an attempt cannot be found.
	ErrAttemptNotFound = errors.New("delivery attempt not found")

	// ErrInvalidTransition is returned when a status change is not allowed.
	ErrInvalidTransition = errors.New("invalid delivery status transition")

	// ErrCancelNotSupported is returned when the channel handler cannot cancel deliveries.
	ErrCancelNotSupported = errors.New("channel does not support cancellation")

	// ErrInvalidReceipt is returned for receipts missing both attempt ID and external ID,
	// or carrying an unknown event.
	ErrInvalidReceipt = errors.New("invalid delivery receipt")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("delivery maintenance already started")

	// ErrNotStarted is returned when Stop is called before Start.
	ErrNotStarted = errors.New("delivery maintenance not started")

	// ErrFailedToConnectToPostgres is returned when the pool cannot be opened.
	ErrFailedToConnectToPostgres = errors.New("failed to connect to postgres")

	// ErrFailedToApplyMigrations is returned when the schema migration fails.
	ErrFailedToApplyMigrations = errors.New("failed to apply delivery migrations")

	// ErrPostgresHealthcheckFailed is returned by the readiness probe.
	ErrPostgresHealthcheckFailed = errors.New("postgres healthcheck failed")
)
