package notifications

import "errors"

var (
	// ErrNotificationNotFound is returned when a notification is not found.
	ErrNotificationNotFound = errors.New("notification not found")

	// ErrNilNotification is returned when a nil notification is passed to storage.
	ErrNilNotification = errors.New("notification cannot be nil")

	// ErrMissingID is returned when a notification without an ID is stored.
	ErrMissingID = errors.New("notification ID is required")

	// ErrUnknownPriority is returned when a priority name is not recognized.
	ErrUnknownPriority = errors.New("unknown notification priority")

	// ErrFailedToConnectToMongo is returned when the mongo client cannot be established.
	ErrFailedToConnectToMongo = errors.New("failed to connect to mongo")

	// ErrMongoHealthcheckFailed is returned when the mongo ping fails.
	ErrMongoHealthcheckFailed = errors.New("mongo healthcheck failed")
)
