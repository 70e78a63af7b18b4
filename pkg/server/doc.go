// Package server runs the broker's HTTP server.
//
// It mounts the broker, discovery and request lookup endpoints together
// with the health and metrics endpoints of the telemetry package, and
// wraps them in the middleware chain:
//
//	recovery → request id → client ip → access log → trace context → body limit → mux
//
// Every API route is instrumented with per-route request count and latency
// metrics.
//
// # Lifecycle
//
//	srv := server.NewServer(cfg.Server, server.Deps{...})
//	err := srv.Start(ctx) // blocks until ctx is done or SIGINT/SIGTERM
//
// Shutdown first flips readiness to draining so load balancers stop sending
// traffic, then stops the listener and waits for in-flight HTTP requests,
// then waits for accepted async requests to finish. All three steps share
// server.shutdown_timeout.
//
// With server.tls.enabled the listener serves HTTPS using a certificate
// that is reloaded from disk when the files change.
package server
