// Package dispatchkit is a notification dispatch pipeline.
//
// Notifications are accepted by a single engine, validated, deduplicated,
// queued by priority and delivered over pluggable channels with per-recipient
// retries and receipt tracking. The building blocks live under pkg/:
//
//   - pkg/notifications: data model and storage (memory, MongoDB)
//   - pkg/priorityqueue: five-class priority queue with scheduled items
//   - pkg/dedup: fingerprinting, windows and grouping (memory, Redis)
//   - pkg/batch: buffered batching and bulk jobs with rate limiting
//   - pkg/delivery: fan-out, timeouts, retries and receipts (memory, PostgreSQL)
//   - pkg/dispatch: the engine tying the pieces together
//   - pkg/email, pkg/webhook, pkg/inapp, pkg/kafka: channel handlers
//   - pkg/events: lifecycle event bus
//   - pkg/api, pkg/httpserver, pkg/metrics: HTTP ingress and observability
//
// cmd/dispatcher wires everything from environment configuration.
//
// Minimal embedded use:
//
//	engine := dispatch.New()
//	_ = engine.RegisterChannel(webhook.NewChannel(notifications.ChannelWebhook))
//
//	g, ctx := errgroup.WithContext(ctx)
//	g.Go(engine.Run(ctx))
//
//	res, err := engine.Send(ctx, dispatch.SendRequest{
//		TenantID:   "acme",
//		Title:      "Build finished",
//		Channels:   []notifications.Channel{notifications.ChannelWebhook},
//		Recipients: []notifications.Recipient{{ID: "ci", Address: "https://example.com/hooks/ci"}},
//	})
package dispatchkit
