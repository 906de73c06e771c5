// Package inapp implements the in-app delivery channel.
//
// Every user has an inbox: a non-blocking events.Broadcaster for live
// subscribers plus a bounded history for users who connect later. Inboxes are
// kept in a cache.LRU so memory stays bounded by WithMaxUsers.
//
// A message received by a live subscriber, or later marked read, reports
// delivered through Status, so the delivery engine's ResolveStale can advance
// in-app attempts without provider webhooks. MarkRead returns a read receipt
// for delivery.Engine.RecordReceipt.
//
//	ch := inapp.NewChannel(cfg.Options()...)
//	_ = engine.RegisterChannel(ch)
//
//	sub := ch.Subscribe(r.Context(), userID)
//	defer sub.Close()
//	for m := range sub.C() {
//	    // write m to the client
//	}
package inapp
