// Package health serves the broker's liveness, readiness and version
// endpoints.
//
// Components register checks as critical or optional:
//
//	checker := health.New(2 * time.Second)
//	checker.RegisterCheck("counters", store.Ping, true)
//	checker.RegisterCheck("request_log", logStorage.Ping, false)
//	health.Mount(mux, checker, version, commit, buildTime)
//
// /ready reports ready when every check passes, degraded (still 200) when
// only optional checks fail, and unhealthy (503) when a critical check
// fails. During shutdown SetDraining(true) turns readiness to draining (503)
// so load balancers stop routing before the listener closes. In Go 1.22
// ServeMux patterns, "GET /health" also matches HEAD.
package health
