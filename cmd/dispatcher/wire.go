package main

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/dispatchkit/pkg/dedup"
	"github.com/dmitrymomot/dispatchkit/pkg/delivery"
	"github.com/dmitrymomot/dispatchkit/pkg/email"
	"github.com/dmitrymomot/dispatchkit/pkg/events"
	"github.com/dmitrymomot/dispatchkit/pkg/httpserver"
	"github.com/dmitrymomot/dispatchkit/pkg/inapp"
	"github.com/dmitrymomot/dispatchkit/pkg/kafka"
	"github.com/dmitrymomot/dispatchkit/pkg/logger"
	"github.com/dmitrymomot/dispatchkit/pkg/notifications"
	"github.com/dmitrymomot/dispatchkit/pkg/ratelimiter"
)

// resources tracks readiness probes and cleanup for external connections.
type resources struct {
	log     *slog.Logger
	checks  []httpserver.Check
	closers []func(context.Context) error
	redis   *redis.Client
}

func (r *resources) onClose(fn func(context.Context) error) {
	r.closers = append(r.closers, fn)
}

// close runs cleanups in reverse order of registration.
func (r *resources) close(ctx context.Context) {
	for _, fn := range slices.Backward(r.closers) {
		if err := fn(ctx); err != nil {
			r.log.LogAttrs(ctx, slog.LevelWarn, "cleanup failed", logger.Error(err))
		}
	}
}

func (r *resources) notificationStorage(ctx context.Context, s settings) (notifications.Storage, error) {
	if s.Mongo == nil {
		return notifications.NewMemoryStorage(), nil
	}

	client, err := notifications.ConnectMongo(ctx, *s.Mongo)
	if err != nil {
		return nil, err
	}
	r.onClose(client.Disconnect)
	r.checks = append(r.checks, httpserver.Check{Name: "mongo", Fn: notifications.MongoHealthcheck(client)})

	store := notifications.NewMongoStorage(client.Database(s.Mongo.Database).Collection(s.Mongo.Collection))
	if err := store.EnsureIndexes(ctx); err != nil {
		return nil, err
	}
	r.log.Info("notification storage ready", slog.String("backend", "mongo"))
	return store, nil
}

func (r *resources) attemptStore(ctx context.Context, s settings) (delivery.AttemptStore, error) {
	if s.Postgres == nil {
		return delivery.NewMemoryAttemptStore(), nil
	}

	pool, err := delivery.ConnectPostgres(ctx, *s.Postgres)
	if err != nil {
		return nil, err
	}
	r.onClose(func(context.Context) error { pool.Close(); return nil })
	r.checks = append(r.checks, httpserver.Check{Name: "postgres", Fn: delivery.PostgresHealthcheck(pool)})

	if err := delivery.MigratePostgres(ctx, pool, *s.Postgres, r.log); err != nil {
		return nil, err
	}
	r.log.Info("attempt store ready", slog.String("backend", "postgres"))
	return delivery.NewPostgresAttemptStore(pool), nil
}

func (r *resources) dedupStore(ctx context.Context, s settings) (dedup.Store, error) {
	if s.Redis == nil {
		return dedup.NewMemoryStore(s.Dedup.MaxEntries), nil
	}

	client, err := dedup.ConnectRedis(ctx, *s.Redis)
	if err != nil {
		return nil, err
	}
	r.redis = client
	r.onClose(func(context.Context) error { return client.Close() })
	r.checks = append(r.checks, httpserver.Check{Name: "redis", Fn: dedup.RedisHealthcheck(client)})

	r.log.Info("dedup store ready", slog.String("backend", "redis"))
	return dedup.NewRedisStore(client,
		dedup.WithRedisKeyPrefix(s.Redis.KeyPrefix),
		dedup.WithRedisMaxEntries(s.Dedup.MaxEntries),
		dedup.WithRedisTTL(s.Dedup.Window),
	), nil
}

// rateLimitStore shares the dedup redis connection when there is one.
func (r *resources) rateLimitStore() ratelimiter.Store {
	if r.redis != nil {
		return ratelimiter.NewRedisStore(r.redis, ratelimiter.WithKeyPrefix("api:tenant:"))
	}
	store := ratelimiter.NewMemoryStore()
	r.onClose(func(context.Context) error { store.Close(); return nil })
	return store
}

// channels builds every configured delivery handler. The in-app channel is
// returned separately for the inbox endpoints.
func (r *resources) channels(s settings) ([]delivery.Handler, *inapp.Channel, error) {
	var out []delivery.Handler

	if s.Email != nil {
		ch, err := email.NewChannelFromConfig(*s.Email)
		if err != nil {
			return nil, nil, err
		}
		if !s.Email.Production() {
			r.log.Warn("postmark not configured, emails are written to disk", slog.String("dir", s.Email.DevDir))
		}
		out = append(out, ch)
	}

	for _, ch := range s.Webhook.Channels() {
		out = append(out, ch)
	}

	var inbox *inapp.Channel
	if s.App.InAppEnabled {
		inbox = inapp.NewChannel(s.InApp.Options()...)
		r.onClose(func(context.Context) error { inbox.Close(); return nil })
		out = append(out, inbox)
	}

	if s.Kafka.Enabled() {
		ch, err := kafka.NewChannelFromConfig(s.Kafka)
		if err != nil {
			return nil, nil, err
		}
		r.onClose(func(context.Context) error { return ch.Close() })
		out = append(out, ch)
	}

	return out, inbox, nil
}

// logEvents writes failures and terminal outcomes from the bus to the log.
func logEvents(log *slog.Logger) events.Listener {
	return func(ctx context.Context, e events.Event) {
		level := slog.LevelDebug
		switch e.Type {
		case events.NotificationFailed, events.DeliveryFailedFinal, events.DeliveryBounced, events.Error:
			level = slog.LevelWarn
		case events.NotificationExpired, events.JobFailed:
			level = slog.LevelInfo
		}
		if !log.Enabled(ctx, level) {
			return
		}

		log.LogAttrs(ctx, level, "event",
			logger.Event(e.Type),
			logger.Component(e.Component),
			logger.NotificationID(e.NotificationID),
			logger.AttemptID(e.AttemptID),
			logger.JobID(e.JobID),
			logger.Channel(e.Channel),
			logger.Error(eventError(e)),
		)
	}
}

func eventError(e events.Event) error {
	if e.Error == "" {
		return nil
	}
	return errors.New(e.Error)
}
