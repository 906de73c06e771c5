package main

import (
	"errors"

	"github.com/dmitrymomot/dispatchkit/pkg/api"
	"github.com/dmitrymomot/dispatchkit/pkg/batch"
	"github.com/dmitrymomot/dispatchkit/pkg/config"
	"github.com/dmitrymomot/dispatchkit/pkg/dedup"
	"github.com/dmitrymomot/dispatchkit/pkg/delivery"
	"github.com/dmitrymomot/dispatchkit/pkg/dispatch"
	"github.com/dmitrymomot/dispatchkit/pkg/email"
	"github.com/dmitrymomot/dispatchkit/pkg/httpserver"
	"github.com/dmitrymomot/dispatchkit/pkg/inapp"
	"github.com/dmitrymomot/dispatchkit/pkg/kafka"
	"github.com/dmitrymomot/dispatchkit/pkg/logger"
	"github.com/dmitrymomot/dispatchkit/pkg/notifications"
	"github.com/dmitrymomot/dispatchkit/pkg/webhook"
)

// appConfig selects backends and optional components.
type appConfig struct {
	StorageBackend   string `env:"STORAGE_BACKEND" envDefault:"memory"` // memory or mongo
	EmailEnabled     bool   `env:"EMAIL_ENABLED" envDefault:"true"`
	InAppEnabled     bool   `env:"INAPP_ENABLED" envDefault:"true"`
	MetricsNamespace string `env:"METRICS_NAMESPACE" envDefault:"dispatchkit"`
}

// settings aggregates every component config. Backend-specific configs with
// required fields are only loaded when that backend is selected.
type settings struct {
	App      appConfig
	Log      logger.Config
	HTTP     httpserver.Config
	API      api.Config
	Dispatch dispatch.Config
	Delivery delivery.Config
	Dedup    dedup.Config
	Batch    batch.Config
	Webhook  webhook.Config
	InApp    inapp.Config
	Kafka    kafka.Config

	Email    *email.Config
	Mongo    *notifications.MongoConfig
	Postgres *delivery.PostgresConfig
	Redis    *dedup.RedisConfig
}

func loadSettings() (settings, error) {
	var s settings
	err := errors.Join(
		config.Load(&s.App),
		config.Load(&s.Log),
		config.Load(&s.HTTP),
		config.Load(&s.API),
		config.Load(&s.Dispatch),
		config.Load(&s.Delivery),
		config.Load(&s.Dedup),
		config.Load(&s.Batch),
		config.Load(&s.Webhook),
		config.Load(&s.InApp),
		config.Load(&s.Kafka),
	)
	if err != nil {
		return s, err
	}

	if s.App.EmailEnabled {
		s.Email = new(email.Config)
		if err := config.Load(s.Email); err != nil {
			return s, err
		}
	}
	if s.App.StorageBackend == "mongo" {
		s.Mongo = new(notifications.MongoConfig)
		if err := config.Load(s.Mongo); err != nil {
			return s, err
		}
	}
	if s.Delivery.Backend == "postgres" {
		s.Postgres = new(delivery.PostgresConfig)
		if err := config.Load(s.Postgres); err != nil {
			return s, err
		}
	}
	if s.Dedup.Backend == "redis" {
		s.Redis = new(dedup.RedisConfig)
		if err := config.Load(s.Redis); err != nil {
			return s, err
		}
	}
	return s, nil
}
