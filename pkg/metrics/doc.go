// Package metrics exposes pipeline metrics in the Prometheus format.
//
// A Collector owns a private registry. Attach subscribes it to the event bus,
// turning lifecycle events into counters; Run polls the dispatch engine and
// batch processor for gauges such as queue depth and in-flight count.
//
//	col, err := metrics.New("dispatchkit",
//	    metrics.WithStatsSource(engine),
//	    metrics.WithJobSource(jobs),
//	)
//	if err != nil {
//	    return err
//	}
//	defer col.Attach(bus)()
//	g.Go(col.Run(ctx))
//	router.Handle("/metrics", col.Handler())
package metrics
