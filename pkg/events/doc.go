// Package events carries lifecycle signals out of the dispatch pipeline.
//
// Components emit Event values on a shared Bus; logging, metrics and in-app
// delivery consume them. Two consumption styles are offered:
//
//   - On / OnAll register synchronous listeners. Each call is wrapped in a
//     recover, so one faulty listener cannot crash the emitter or starve the
//     listeners after it.
//   - Subscribe returns a buffered channel fed by a Broadcaster. Publishing
//     never blocks; a subscriber with a full buffer misses events and the drop
//     is counted.
//
// Broadcaster is generic and also backs per-user in-app streams.
//
//	bus := events.NewBus(events.WithLogger(log))
//	off := bus.On(events.NotificationSent, func(ctx context.Context, e events.Event) {
//	    log.InfoContext(ctx, "sent", logger.NotificationID(e.NotificationID))
//	})
//	defer off()
package events
