package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/dispatchkit/pkg/batch"
	"github.com/dmitrymomot/dispatchkit/pkg/dispatch"
	"github.com/dmitrymomot/dispatchkit/pkg/events"
	"github.com/dmitrymomot/dispatchkit/pkg/logger"
)

// StatsSource reports pipeline gauges. *dispatch.Engine satisfies it.
type StatsSource interface {
	Stats(ctx context.Context) (dispatch.Stats, error)
}

// JobSource reports batch gauges. *batch.Processor satisfies it.
type JobSource interface {
	Stats() batch.Stats
}

// Collector turns lifecycle events into Prometheus counters and polls
// engine stats into gauges. It owns its registry.
type Collector struct {
	registry *prometheus.Registry
	logger   *slog.Logger
	interval time.Duration

	stats StatsSource
	jobs  JobSource

	notifications *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
	sendDuration  *prometheus.HistogramVec
	receipts      *prometheus.CounterVec
	jobEvents     *prometheus.CounterVec
	errors        *prometheus.CounterVec

	queueDepth   *prometheus.GaugeVec
	scheduled    prometheus.Gauge
	inFlight     prometheus.Gauge
	dedupEntries prometheus.Gauge
	dedupRatio   prometheus.Gauge
	jobsByState  *prometheus.GaugeVec
}

// Option configures a Collector.
type Option func(*Collector)

// WithStatsSource enables polling of queue and dedup gauges.
func WithStatsSource(s StatsSource) Option {
	return func(c *Collector) { c.stats = s }
}

// WithJobSource enables polling of batch job gauges.
func WithJobSource(s JobSource) Option {
	return func(c *Collector) { c.jobs = s }
}

func WithInterval(d time.Duration) Option {
	return func(c *Collector) {
		if d > 0 {
			c.interval = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Collector) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a collector registering every metric under namespace.
// Go runtime and process collectors are included.
func New(namespace string, opts ...Option) (*Collector, error) {
	if namespace == "" {
		namespace = "dispatchkit"
	}

	c := &Collector{
		registry: prometheus.NewRegistry(),
		logger:   slog.Default(),
		interval: 5 * time.Second,

		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification lifecycle events by type.",
		}, []string{"event", "priority"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Delivery attempt events by channel and type.",
		}, []string{"channel", "event"}),
		sendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_duration_seconds",
			Help:      "Time taken by channel handlers for successful sends.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"channel"}),
		receipts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receipts_total",
			Help:      "Delivery receipts recorded by channel and event.",
		}, []string{"channel", "event"}),
		jobEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Batch job lifecycle events by type.",
		}, []string{"event"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Unexpected failures recovered at tick boundaries.",
		}, []string{"component"}),

		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Notifications waiting in the priority queue.",
		}, []string{"priority"}),
		scheduled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_scheduled",
			Help:      "Notifications parked until their scheduled time.",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "in_flight",
			Help:      "Notifications currently being processed.",
		}),
		dedupEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dedup_entries",
			Help:      "Fingerprints held by the deduplication engine.",
		}),
		dedupRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dedup_ratio",
			Help:      "Share of checks that were duplicates.",
		}),
		jobsByState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs",
			Help:      "Batch jobs by state.",
		}, []string{"state"}),
	}
	for _, opt := range opts {
		opt(c)
	}

	collectors := []prometheus.Collector{
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		c.notifications, c.deliveries, c.sendDuration, c.receipts, c.jobEvents, c.errors,
		c.queueDepth, c.scheduled, c.inFlight, c.dedupEntries, c.dedupRatio, c.jobsByState,
	}
	for _, col := range collectors {
		if err := c.registry.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Attach subscribes the collector to bus and returns the unsubscribe func.
func (c *Collector) Attach(bus *events.Bus) func() {
	return bus.OnAll(func(_ context.Context, e events.Event) {
		c.Observe(e)
	})
}

// Observe counts a single event.
func (c *Collector) Observe(e events.Event) {
	switch e.Type {
	case events.NotificationQueued, events.NotificationProcessing, events.NotificationSent,
		events.NotificationRetry, events.NotificationFailed, events.NotificationDeduplicated,
		events.NotificationExpired, events.NotificationCancelled:
		c.notifications.WithLabelValues(string(e.Type), e.Priority).Inc()

	case events.DeliveryStarted, events.DeliverySent, events.DeliveryFailed, events.DeliveryFailedFinal,
		events.DeliveryCancelled, events.DeliveryDelivered, events.DeliveryBounced:
		c.deliveries.WithLabelValues(e.Channel, string(e.Type)).Inc()
		if e.Type == events.DeliverySent && e.Duration > 0 {
			c.sendDuration.WithLabelValues(e.Channel).Observe(e.Duration.Seconds())
		}

	case events.JobCreated, events.JobStarted, events.JobCompleted, events.JobFailed, events.JobCancelled:
		c.jobEvents.WithLabelValues(string(e.Type)).Inc()

	case events.ReceiptRecorded:
		ev, _ := e.Data["event"].(string)
		c.receipts.WithLabelValues(e.Channel, ev).Inc()

	case events.Error:
		c.errors.WithLabelValues(e.Component).Inc()
	}
}

// Refresh polls the configured sources once.
func (c *Collector) Refresh(ctx context.Context) {
	if c.stats != nil {
		s, err := c.stats.Stats(ctx)
		if err != nil {
			c.logger.LogAttrs(ctx, slog.LevelWarn, "metrics stats poll failed", logger.Error(err))
		} else {
			for p, n := range s.ByPriority {
				c.queueDepth.WithLabelValues(p).Set(float64(n))
			}
			c.scheduled.Set(float64(s.Scheduled))
			c.inFlight.Set(float64(s.InFlight))
			if s.Dedup != nil {
				c.dedupEntries.Set(float64(s.Dedup.Entries))
				c.dedupRatio.Set(s.Dedup.DuplicateRatio)
			}
		}
	}

	if c.jobs != nil {
		s := c.jobs.Stats()
		c.jobsByState.WithLabelValues("pending").Set(float64(s.Pending))
		c.jobsByState.WithLabelValues("processing").Set(float64(s.Processing))
		c.jobsByState.WithLabelValues("completed").Set(float64(s.Completed))
		c.jobsByState.WithLabelValues("failed").Set(float64(s.Failed))
		c.jobsByState.WithLabelValues("cancelled").Set(float64(s.Cancelled))
	}
}

// Run polls the sources every interval until ctx is done. Compatible with errgroup.
func (c *Collector) Run(ctx context.Context) func() error {
	return func() error {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		c.Refresh(ctx)
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				c.Refresh(ctx)
			}
		}
	}
}
