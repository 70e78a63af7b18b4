package limits

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mercator-hq/broker/pkg/limits/storage"
)

// EngineConfig configures an admission Engine.
type EngineConfig struct {
	// Store holds the usage counters. Required.
	Store storage.Store

	// LimitPriority orders scopes for limit resolution.
	// Default: DefaultLimitPriority
	LimitPriority []ScopeKind

	// CounterPriority orders scopes for counter ownership.
	// Default: DefaultCounterPriority
	CounterPriority []ScopeKind

	// Disabled admits every request without consulting any scope.
	Disabled bool

	// FailOpen admits requests when the counter store fails. When false
	// the store error is returned to the caller.
	FailOpen bool

	// Metrics is optional.
	Metrics *Metrics

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Now defaults to time.Now. Windows are computed in the location of the
	// returned time.
	Now func() time.Time
}

// Engine decides whether a request may proceed under its resolved limits.
//
// The engine holds no lock across store calls; per-key atomicity is the
// store's job.
type Engine struct {
	store    storage.Store
	resolver *Resolver
	keys     *KeySelector
	disabled bool
	failOpen bool
	metrics  *Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewEngine creates an admission engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("limits: store is required")
	}

	resolver, err := NewResolver(cfg.LimitPriority)
	if err != nil {
		return nil, err
	}
	keys, err := NewKeySelector(cfg.CounterPriority)
	if err != nil {
		return nil, err
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Engine{
		store:    cfg.Store,
		resolver: resolver,
		keys:     keys,
		disabled: cfg.Disabled,
		failOpen: cfg.FailOpen,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger.With("component", "limits.engine"),
		now:      cfg.Now,
	}, nil
}

// windowUsage is the post-increment state of one configured window.
type windowUsage struct {
	window Window
	limit  ResolvedLimit
	count  int64
}

// Decide checks the request's scope chain against its limits. On allow, the
// counter of every configured window is incremented.
//
// The only error returned is a counter store failure with fail-open
// disabled. Denials are reported through Decision.Allowed.
func (e *Engine) Decide(ctx context.Context, s Scopes) (*Decision, error) {
	start := time.Now()
	defer func() { e.metrics.observeCheck(time.Since(start).Seconds()) }()

	if e.disabled || !s.ThrottleEnabled() {
		e.metrics.recordDecision("unthrottled")
		return &Decision{Allowed: true}, nil
	}

	resolved := e.resolver.Resolve(s)
	if resolved.Unlimited() {
		e.metrics.recordDecision("unthrottled")
		return &Decision{Allowed: true}, nil
	}

	key, ok := e.keys.Select(s)
	if !ok {
		return e.storeFailure("select", ErrNoScopeKey)
	}
	scope := key.String()
	now := e.now()

	// Shortest window first: a tight minute limit surfaces before a looser
	// day limit even when both would reject.
	var usage []windowUsage
	for _, w := range Windows {
		rl := resolved.For(w)
		if rl == nil {
			continue
		}
		c, err := e.store.GetOrCreate(ctx, counterKey(scope, w, now))
		if err != nil {
			return e.storeFailure("get_or_create", err)
		}
		if c.Count >= rl.Value {
			e.metrics.recordDecision("denied")
			e.metrics.recordDenial(w, rl.Source)
			e.logger.Debug("request denied",
				"scope", scope,
				"window", w,
				"limit", rl.Value,
				"count", c.Count,
				"source", rl.Source,
			)
			return &Decision{
				Allowed:   false,
				Limited:   true,
				LimitType: w,
				Limit:     rl.Value,
				Remaining: 0,
				ResetAt:   w.Next(now),
				Source:    rl.Source,
				ScopeKey:  scope,
			}, nil
		}
		usage = append(usage, windowUsage{window: w, limit: *rl, count: c.Count})
	}

	// Increment failures never abort an admitted request. The count read
	// above plus one stands in for the lost value.
	for i := range usage {
		n, err := e.store.Increment(ctx, counterKey(scope, usage[i].window, now))
		if err != nil {
			e.metrics.recordStoreError("increment")
			e.logger.Warn("usage counter increment failed",
				"scope", scope,
				"window", usage[i].window,
				"error", err,
			)
			usage[i].count++
			continue
		}
		usage[i].count = n
	}

	e.metrics.recordDecision("allowed")
	d := effective(usage, now)
	d.ScopeKey = scope
	return d, nil
}

// effective reports the most restrictive window by a sequential comparison:
// the first configured window is the baseline, and each later window replaces
// it only if its remaining count is strictly smaller than the running value.
// Ties therefore go to the shorter window.
func effective(usage []windowUsage, now time.Time) *Decision {
	d := &Decision{Allowed: true, Limited: true}
	for i, u := range usage {
		remaining := u.limit.Value - u.count
		if remaining < 0 {
			remaining = 0
		}
		if i > 0 && remaining >= d.Remaining {
			continue
		}
		d.LimitType = u.window
		d.Limit = u.limit.Value
		d.Remaining = remaining
		d.ResetAt = u.window.Next(now)
		d.Source = u.limit.Source
	}
	return d
}

// storeFailure applies the fail-open policy.
func (e *Engine) storeFailure(op string, err error) (*Decision, error) {
	e.metrics.recordStoreError(op)
	if !e.failOpen {
		e.metrics.recordDecision("error")
		return nil, fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
	}

	e.metrics.recordFailOpen()
	e.metrics.recordDecision("fail_open")
	e.logger.Warn("admission state unavailable, failing open",
		"operation", op,
		"error", err,
	)
	return &Decision{Allowed: true, FailOpen: true}, nil
}

func counterKey(scope string, w Window, now time.Time) storage.Key {
	return storage.Key{
		Scope:       scope,
		Window:      string(w),
		WindowStart: w.Start(now),
	}
}
