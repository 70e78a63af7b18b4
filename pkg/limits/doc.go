// Package limits implements admission control for the broker.
//
// # Overview
//
// Every request carries a scope chain: the caller's API key, the target
// service and optionally one of its endpoints. Each scope may enable
// throttling and set per-minute, per-hour and per-day limits.
//
//   - Resolver picks one effective limit per window. Windows are resolved
//     independently, walking the limit priority (API key, endpoint, service
//     by default) and taking the first scope with throttling on and a limit
//     set for that window.
//   - KeySelector picks the scope that owns the usage counters, using a
//     second priority list (endpoint, service, API key, client IP by default).
//   - Engine combines both with a storage.Store. Windows are checked minute,
//     hour, day; the first exhausted window denies the request. An admitted
//     request increments every configured window.
//
// Windows are fixed buckets aligned to the server clock: a denial's reset
// time is the start of the next bucket, not now plus the window length.
//
// # Usage
//
//	engine, err := limits.NewEngine(limits.EngineConfig{
//	    Store:    storage.NewMemoryStore(),
//	    FailOpen: true,
//	})
//
//	decision, err := engine.Decide(ctx, limits.Scopes{
//	    APIKey:  key,
//	    Service: svc,
//	})
//	if !decision.Allowed {
//	    // 429 with decision.Headers()
//	}
//
// # Failure Handling
//
// When the counter store cannot be consulted the engine either admits the
// request (FailOpen, logged at WARN and counted) or returns an error wrapping
// ErrStoreUnavailable.
package limits
