// Package config loads typed configuration from environment variables.
//
// It wraps github.com/joho/godotenv for .env files and
// github.com/caarlos0/env/v11 for struct-tag parsing. Every component package
// of dispatchkit exposes a Config struct tagged for this loader:
//
//	var qc priorityqueue.Config
//	config.MustLoad(&qc)
//	q := priorityqueue.New[*notifications.Notification](qc.Options()...)
//
// Parsed configs are cached per type for the lifetime of the process.
// ResetCache clears the cache, which is handy in tests.
package config
