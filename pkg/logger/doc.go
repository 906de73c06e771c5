// Package logger provides a context-aware wrapper around log/slog with
// functional options and attribute helpers for the dispatch domain.
//
// New creates a *slog.Logger configured by Option functions: output format
// (text or json), minimum level, static attributes and ContextExtractor
// callbacks that pull request-scoped values (for example a request id) out of
// context.Context on every Handle call. NewFromConfig does the same from the
// env-driven Config used by cmd/dispatcher.
//
// Attribute helpers keep key names consistent across packages:
//
//	log.LogAttrs(ctx, slog.LevelWarn, "delivery attempt failed",
//	    logger.NotificationID(n.ID),
//	    logger.AttemptID(a.ID),
//	    logger.Channel(a.Channel),
//	    logger.RetryCount(a.AttemptNumber),
//	    logger.Error(err),
//	)
//
// Helpers for optional identifiers and Error return an empty Attr for zero
// values, so callers never need a nil check.
package logger
