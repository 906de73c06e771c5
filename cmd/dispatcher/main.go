// Command dispatcher runs the notification pipeline behind its HTTP API.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/dispatchkit/pkg/api"
	"github.com/dmitrymomot/dispatchkit/pkg/batch"
	"github.com/dmitrymomot/dispatchkit/pkg/dedup"
	"github.com/dmitrymomot/dispatchkit/pkg/delivery"
	"github.com/dmitrymomot/dispatchkit/pkg/dispatch"
	"github.com/dmitrymomot/dispatchkit/pkg/events"
	"github.com/dmitrymomot/dispatchkit/pkg/httpserver"
	"github.com/dmitrymomot/dispatchkit/pkg/logger"
	"github.com/dmitrymomot/dispatchkit/pkg/metrics"
	"github.com/dmitrymomot/dispatchkit/pkg/ratelimiter"
)

const cleanupTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := loadSettings()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.NewFromConfig(cfg.Log, logger.WithContextExtractors(api.RequestIDExtractor()))
	logger.SetAsDefault(log)

	res := &resources{log: log}
	defer func() {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()
		res.close(cctx)
	}()

	bus := events.NewBus(events.WithLogger(log))
	defer bus.Close()
	defer bus.OnAll(logEvents(log))()

	storage, err := res.notificationStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("notification storage: %w", err)
	}
	attempts, err := res.attemptStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("attempt store: %w", err)
	}

	deliveryEngine := delivery.New(append(cfg.Delivery.Options(),
		delivery.WithStore(attempts),
		delivery.WithLogger(log),
		delivery.WithBus(bus),
	)...)

	opts := append(cfg.Dispatch.Options(),
		dispatch.WithStorage(storage),
		dispatch.WithDelivery(deliveryEngine),
		dispatch.WithLogger(log),
		dispatch.WithBus(bus),
	)
	var dedupEngine *dedup.Engine
	if cfg.Dispatch.Dedup {
		store, err := res.dedupStore(ctx, cfg)
		if err != nil {
			return fmt.Errorf("dedup store: %w", err)
		}
		dedupEngine = dedup.New(append(cfg.Dedup.Options(),
			dedup.WithStore(store),
			dedup.WithLogger(log),
			dedup.WithBus(bus),
		)...)
		opts = append(opts, dispatch.WithDedup(dedupEngine))
	}
	engine := dispatch.New(opts...)

	handlers, inbox, err := res.channels(cfg)
	if err != nil {
		return fmt.Errorf("channels: %w", err)
	}
	for _, h := range handlers {
		if err := engine.RegisterChannel(h); err != nil {
			return fmt.Errorf("register channel %s: %w", h.Channel(), err)
		}
	}
	log.Info("channels registered", slog.Any("channels", engine.Channels()))

	jobs := batch.New[dispatch.SendRequest](engine.ProcessRequest, append(cfg.Batch.Options(),
		batch.WithLogger(log),
		batch.WithBus(bus),
	)...)

	collector, err := metrics.New(cfg.App.MetricsNamespace,
		metrics.WithStatsSource(engine),
		metrics.WithJobSource(jobs),
		metrics.WithLogger(log),
	)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	defer collector.Attach(bus)()

	apiOpts := append(cfg.API.Options(),
		api.WithLogger(log),
		api.WithJobs(jobs),
		api.WithMetrics(collector.Handler()),
		api.WithReadinessChecks(res.checks...),
	)
	if inbox != nil {
		apiOpts = append(apiOpts, api.WithInbox(inbox))
	}
	if cfg.API.TenantRate > 0 {
		bucket, err := ratelimiter.NewBucket(res.rateLimitStore(), ratelimiter.PerSecond(cfg.API.TenantRate))
		if err != nil {
			return fmt.Errorf("tenant rate limit: %w", err)
		}
		apiOpts = append(apiOpts, api.WithRateLimiter(bucket))
	}

	server := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(deliveryEngine.Run(gctx))
	if dedupEngine != nil {
		g.Go(dedupEngine.Run(gctx))
	}
	g.Go(engine.Run(gctx))
	g.Go(jobs.Run(gctx))
	g.Go(collector.Run(gctx))
	g.Go(server.Serve(gctx, api.New(engine, apiOpts...)))

	if err := g.Wait(); err != nil {
		log.Error("dispatcher stopped with error", logger.Error(err))
		return err
	}
	log.Info("dispatcher stopped")
	return nil
}
