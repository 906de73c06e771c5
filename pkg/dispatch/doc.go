// Package dispatch is the entry point of the notification pipeline.
//
// An Engine turns a SendRequest into a notification record, rejects invalid
// requests synchronously, suppresses duplicates through the dedup engine and
// queues the rest by priority. A drain loop pulls from the highest non-empty
// priority class while fewer than MaxConcurrent notifications are in flight
// and hands each one to the delivery engine.
//
// Processing rules for a dequeued notification:
//   - a ScheduledFor in the future puts it back in the queue
//   - a passed ExpiresAt marks it failed without any delivery
//   - one successful channel attempt marks it sent
//   - when every attempt fails it is retried with exponential backoff until
//     MaxAttempts, then marked failed
//
// Everything after acceptance is reported through the event bus and the stored
// status; Send only returns input errors.
//
// # Usage
//
//	engine := dispatch.New(
//	    dispatch.WithDelivery(deliveryEngine),
//	    dispatch.WithDedup(dedupEngine),
//	    dispatch.WithBus(bus),
//	)
//	_ = engine.RegisterChannel(emailChannel)
//
//	g, ctx := errgroup.WithContext(ctx)
//	g.Go(engine.Run(ctx))
//
//	res, err := engine.Send(ctx, dispatch.SendRequest{
//	    TenantID:   "acme",
//	    Title:      "Invoice ready",
//	    Channels:   []notifications.Channel{notifications.ChannelEmail},
//	    Recipients: []notifications.Recipient{{ID: "u-1", Address: "u1@example.com"}},
//	})
//	switch {
//	case err != nil:
//	    // validation or storage problem
//	case !res.Accepted():
//	    // duplicate, see res.Rejection
//	}
//
// Bulk ingress wraps ProcessRequest in a batch.Processor.
package dispatch
