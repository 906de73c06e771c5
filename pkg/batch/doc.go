// Package batch groups items into jobs and processes them with bounded concurrency.
//
// Items are buffered per batch key (DefaultKey when empty). A batch becomes a
// job as soon as it reaches MaxBatchSize, and every batch is flushed on the
// AutoFlushInterval tick so no item waits longer than one interval. Pending
// jobs start in priority order on the ProcessingInterval tick while fewer than
// MaxConcurrent jobs are running.
//
// Items of a job run one after another. A failing or panicking item is recorded
// in Job.Errors and the job moves on; the job ends completed only when no item
// failed. An optional Limiter blocks before every item:
//
//	p := batch.New(func(ctx context.Context, n *notifications.Notification) error {
//	    return mailer.Deliver(ctx, n)
//	}, batch.WithMaxConcurrent(4), batch.WithRateLimit(50))
//
//	g.Go(p.Run(ctx))
//
// Stop waits until running jobs drain; it never interrupts an item.
package batch
