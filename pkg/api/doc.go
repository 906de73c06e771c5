// Package api exposes the dispatch engine over HTTP.
//
// The router is built with chi and speaks JSON. Every response is wrapped in
// an Envelope carrying either data (plus optional meta) or an error with a
// machine-readable code and the request id.
//
// Routes:
//
//	POST   /v1/notifications                  send one notification (202, or 200 with a rejection for duplicates)
//	POST   /v1/notifications/batch            send many, each independently
//	POST   /v1/notifications/bulk             create a batch job (requires WithJobs)
//	GET    /v1/notifications                  list by tenant_id, user_id, status, since, limit, offset
//	GET    /v1/notifications/{id}             fetch one notification
//	DELETE /v1/notifications/{id}             cancel while still queued
//	GET    /v1/notifications/{id}/attempts    delivery attempts
//	GET    /v1/attempts/{id}                  one attempt
//	DELETE /v1/attempts/{id}                  cancel a pending attempt
//	GET    /v1/attempts/{id}/receipts         receipt log of an attempt
//	POST   /v1/receipts                       ingest a receipt, HMAC-verified when a secret is set
//	POST   /v1/receipts/postmark              ingest a Postmark webhook
//	GET    /v1/jobs/{id}                      job progress
//	DELETE /v1/jobs/{id}                      cancel a pending job
//	GET    /v1/inbox/{user}                   in-app history, ?unread=true for unread only
//	GET    /v1/inbox/{user}/stream            in-app messages as server-sent events
//	POST   /v1/inbox/{user}/{message}/read    mark read and record the read receipt
//	GET    /v1/stats                          engine, job and inbox statistics
//	GET    /healthz, /readyz, /metrics
//
// Usage:
//
//	engine := dispatch.New(dispatch.WithLogger(log))
//	h := api.New(engine,
//		api.WithLogger(log),
//		api.WithInbox(inbox),
//		api.WithJobs(jobs),
//		api.WithMetrics(collector.Handler()),
//	)
//	srv := httpserver.New(httpserver.WithAddr(":8080"))
//	g.Go(srv.Serve(ctx, h))
//
// Log records written with the request context carry the request id once the
// logger is built with RequestIDExtractor.
package api
