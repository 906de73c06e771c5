// Package httpserver wraps net/http with context-driven graceful shutdown and
// JSON health checks.
//
// Run blocks until its context is cancelled, then calls http.Server.Shutdown
// with the configured deadline. Serve adapts Run for errgroup:
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	g.Go(srv.Serve(ctx, router))
//
// Signal handling is left to the caller, typically signal.NotifyContext in main.
//
// HealthCheckHandler serves liveness when given no checks and readiness
// otherwise, reporting every named check in the response body.
package httpserver
