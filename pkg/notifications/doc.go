// Package notifications defines the notification record moved through the
// dispatch pipeline together with its persistence contract.
//
// The package is deliberately free of delivery logic: it only knows what a
// notification is (priority ladder, lifecycle status, channels, recipients)
// and how to store it. Queueing, deduplication and delivery live in their own
// packages and exchange *Notification values by copy.
//
// # Priority Levels
//
// Five strict priority classes are provided, highest first:
//   - PriorityCritical
//   - PriorityUrgent
//   - PriorityHigh
//   - PriorityNormal
//   - PriorityLow
//
// Priorities encode to JSON by name ("critical", "urgent", ...).
//
// # Storage Implementations
//
// MemoryStorage keeps notifications in a map and is meant for development and
// tests. MongoStorage persists them in a MongoDB collection:
//
//	client, err := notifications.ConnectMongo(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	storage := notifications.NewMongoStorage(client.Database(cfg.Database).Collection(cfg.Collection))
//	if err := storage.EnsureIndexes(ctx); err != nil {
//	    return err
//	}
//
// Any other database can be used by implementing the Storage interface.
package notifications
