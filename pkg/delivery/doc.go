// Package delivery sends notifications through channel handlers and tracks
// every (notification, channel, recipient) cell as an Attempt.
//
// Deliver fans a notification out over its channels and recipients. Cells run
// concurrently, each with its own retry timeline: a failed try is retried after
// RetryDelay·RetryBackoff^AttemptNumber (capped by MaxRetryDelay) until
// MaxRetries tries were made, after which the attempt fails terminally and a
// delivery:failed:final event is emitted.
//
// Each try races the handler against Timeout. A timed-out call is abandoned,
// not cancelled: the handler keeps its context and the provider may still
// deliver the message after the attempt was recorded as failed.
//
// Attempt statuses move along a fixed table:
//
//	pending -> sent | failed | cancelled
//	sent    -> delivered | bounced | failed
//
// Only receipts move a sent attempt further. RecordReceipt correlates by
// attempt ID or provider external ID and appends every receipt to a log.
// When WithReceiptTimeout is set, ResolveStale polls handlers implementing
// StatusChecker for attempts stuck in sent; other channels stay sent.
//
// Attempts are kept in an AttemptStore. MemoryAttemptStore serves tests and
// single-process setups; PostgresAttemptStore persists them:
//
//	pool, err := delivery.ConnectPostgres(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	if err := delivery.MigratePostgres(ctx, pool, cfg, log); err != nil {
//	    return err
//	}
//	engine := delivery.New(delivery.WithStore(delivery.NewPostgresAttemptStore(pool)))
package delivery
