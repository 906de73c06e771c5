// Package priorityqueue implements the in-memory work queue used by the dispatch
// engine and the batch processor.
//
// Items are ordered by the five notification priority classes (critical,
// urgent, high, normal, low). Dequeue always returns the oldest item of the
// highest non-empty class: strict priority across classes, FIFO within one.
// Lower classes get no aging or starvation protection.
//
// Items whose ScheduledFor lies in the future are held in a scheduled set and
// promoted into their class by a timer at the scheduled instant, never earlier.
// Retry uses the same path with an exponential delay of min(30s, 2^attempts s).
//
// Capacity counts live and scheduled items. A full queue rejects Enqueue with
// ErrQueueFull instead of evicting, so backpressure always reaches the caller.
//
// Basic usage:
//
//	q := priorityqueue.New[*notifications.Notification](
//	    priorityqueue.WithMaxSize(10000),
//	    priorityqueue.WithMaxRetries(3),
//	)
//	defer q.Close()
//
//	err := q.Enqueue(priorityqueue.Item[*notifications.Notification]{
//	    ID:       n.ID,
//	    Priority: n.Priority,
//	    Value:    n,
//	})
//
//	item, ok := q.Dequeue()
package priorityqueue
