package limits

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"mercator-hq/broker/pkg/directory"
	"mercator-hq/broker/pkg/limits/storage"
)

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// countingStore records every store call and can be told to fail.
type countingStore struct {
	*storage.MemoryStore
	reads          atomic.Int64
	increments     atomic.Int64
	failReads      atomic.Bool
	failIncrements atomic.Bool
}

var errStoreDown = errors.New("store down")

func (s *countingStore) GetOrCreate(ctx context.Context, key storage.Key) (*storage.Counter, error) {
	s.reads.Add(1)
	if s.failReads.Load() {
		return nil, errStoreDown
	}
	return s.MemoryStore.GetOrCreate(ctx, key)
}

func (s *countingStore) Increment(ctx context.Context, key storage.Key) (int64, error) {
	s.increments.Add(1)
	if s.failIncrements.Load() {
		return 0, errStoreDown
	}
	return s.MemoryStore.Increment(ctx, key)
}

func newTestEngine(t *testing.T, mutate func(*EngineConfig)) (*Engine, *countingStore, *fakeClock) {
	t.Helper()

	store := &countingStore{MemoryStore: storage.NewMemoryStore()}
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 30, 10, 0, time.UTC)}
	cfg := EngineConfig{
		Store:    store,
		FailOpen: true,
		Metrics:  NewMetrics(prometheus.NewRegistry()),
		Now:      clock.Now,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	e, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return e, store, clock
}

func serviceScopes(l directory.Limits) Scopes {
	return Scopes{
		APIKey:  &directory.APIKey{ID: "key-1", Active: true},
		Service: &directory.Service{ID: "billing", Name: "billing", Active: true, ThrottleEnabled: true, Limits: l},
	}
}

func TestEngine_WindowIsolation(t *testing.T) {
	e, _, clock := newTestEngine(t, nil)
	ctx := context.Background()
	scopes := serviceScopes(directory.Limits{PerMinute: limit(3)})

	for i := 1; i <= 3; i++ {
		d, err := e.Decide(ctx, scopes)
		if err != nil {
			t.Fatalf("Decide failed: %v", err)
		}
		if !d.Allowed {
			t.Fatalf("request %d denied, want allowed", i)
		}
	}

	d, err := e.Decide(ctx, scopes)
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if d.Allowed {
		t.Fatal("4th request allowed, want denied")
	}
	if d.LimitType != WindowMinute || d.Limit != 3 || d.Remaining != 0 {
		t.Errorf("denial = %+v, want minute/3/0", d)
	}

	clock.Set(clock.Now().Add(time.Minute))
	d, err = e.Decide(ctx, scopes)
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if !d.Allowed {
		t.Error("request in the next minute denied, want allowed")
	}
}

func TestEngine_PriorityOverride(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	ctx := context.Background()
	scopes := Scopes{
		APIKey:  &directory.APIKey{ID: "key-1", ThrottleEnabled: true, Limits: directory.Limits{PerMinute: limit(5)}},
		Service: &directory.Service{ID: "billing", ThrottleEnabled: true, Limits: directory.Limits{PerMinute: limit(1)}},
	}

	allowed := 0
	for i := 0; i < 10; i++ {
		d, err := e.Decide(ctx, scopes)
		if err != nil {
			t.Fatalf("Decide failed: %v", err)
		}
		if d.Allowed {
			allowed++
		}
	}
	if allowed != 5 {
		t.Errorf("allowed %d requests, want 5 (api key limit wins)", allowed)
	}
}

func TestEngine_UnlimitedFastPath(t *testing.T) {
	e, store, _ := newTestEngine(t, nil)
	ctx := context.Background()

	// Limits are set but no scope has throttling enabled.
	scopes := Scopes{
		APIKey:  &directory.APIKey{ID: "key-1", Limits: directory.Limits{PerMinute: limit(1)}},
		Service: &directory.Service{ID: "billing", Limits: directory.Limits{PerMinute: limit(1)}},
	}

	for i := 0; i < 10000; i++ {
		d, err := e.Decide(ctx, scopes)
		if err != nil {
			t.Fatalf("Decide failed: %v", err)
		}
		if !d.Allowed {
			t.Fatalf("request %d denied", i)
		}
	}

	if n := store.reads.Load() + store.increments.Load(); n != 0 {
		t.Errorf("store touched %d times, want 0", n)
	}
	if store.Len() != 0 {
		t.Errorf("store holds %d counters, want 0", store.Len())
	}
}

func TestEngine_ThrottleOnWithoutLimitsSkipsStore(t *testing.T) {
	e, store, _ := newTestEngine(t, nil)

	d, err := e.Decide(context.Background(), serviceScopes(directory.Limits{}))
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if !d.Allowed || d.Limited {
		t.Errorf("decision = %+v, want allowed and unlimited", d)
	}
	if store.reads.Load() != 0 {
		t.Error("store consulted for an unlimited chain")
	}
}

func TestEngine_ResetAtIsNextWindowBoundary(t *testing.T) {
	e, _, clock := newTestEngine(t, nil)
	ctx := context.Background()
	clock.Set(time.Date(2026, 3, 1, 12, 47, 13, 0, time.UTC))
	scopes := serviceScopes(directory.Limits{PerHour: limit(1)})

	if d, _ := e.Decide(ctx, scopes); !d.Allowed {
		t.Fatal("first request denied")
	}
	d, err := e.Decide(ctx, scopes)
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if d.Allowed {
		t.Fatal("second request allowed")
	}

	want := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)
	if !d.ResetAt.Equal(want) {
		t.Errorf("ResetAt = %v, want %v", d.ResetAt, want)
	}
	if d.ResetAt.Equal(clock.Now().Add(time.Hour)) {
		t.Error("ResetAt computed as now + 1h")
	}
}

func TestEngine_MinuteDenialSurfacesFirst(t *testing.T) {
	e, store, _ := newTestEngine(t, nil)
	ctx := context.Background()
	scopes := serviceScopes(directory.Limits{PerMinute: limit(1), PerDay: limit(1)})

	if d, _ := e.Decide(ctx, scopes); !d.Allowed {
		t.Fatal("first request denied")
	}

	readsBefore := store.reads.Load()
	d, _ := e.Decide(ctx, scopes)
	if d.Allowed || d.LimitType != WindowMinute {
		t.Errorf("decision = %+v, want minute denial", d)
	}
	if got := store.reads.Load() - readsBefore; got != 1 {
		t.Errorf("denial read %d counters, want 1 (day not evaluated)", got)
	}
}

func TestEngine_DenialDoesNotIncrement(t *testing.T) {
	e, store, _ := newTestEngine(t, nil)
	ctx := context.Background()
	scopes := serviceScopes(directory.Limits{PerMinute: limit(1)})

	for i := 0; i < 5; i++ {
		_, _ = e.Decide(ctx, scopes)
	}
	if got := store.increments.Load(); got != 1 {
		t.Errorf("increments = %d, want 1", got)
	}
}

func TestEngine_IncrementsEveryConfiguredWindow(t *testing.T) {
	e, store, clock := newTestEngine(t, nil)
	ctx := context.Background()
	scopes := serviceScopes(directory.Limits{PerMinute: limit(10), PerDay: limit(10)})

	if _, err := e.Decide(ctx, scopes); err != nil {
		t.Fatalf("Decide failed: %v", err)
	}

	now := clock.Now()
	for _, w := range []Window{WindowMinute, WindowDay} {
		c, _ := store.MemoryStore.GetOrCreate(ctx, counterKey("service:billing", w, now))
		if c.Count != 1 {
			t.Errorf("%s counter = %d, want 1", w, c.Count)
		}
	}
	if store.Len() != 2 {
		t.Errorf("store holds %d counters, want 2 (no hour counter)", store.Len())
	}
}

func TestEngine_ScopeKeyConsistency(t *testing.T) {
	svc := &directory.Service{ID: "billing", ThrottleEnabled: true, Limits: directory.Limits{PerMinute: limit(100)}}
	invoice := &directory.Endpoint{ID: "billing/invoice@v1", ServiceID: "billing"}
	refund := &directory.Endpoint{ID: "billing/refund@v1", ServiceID: "billing"}
	alice := &directory.APIKey{ID: "alice"}
	bob := &directory.APIKey{ID: "bob"}

	t.Run("same endpoint different keys share a counter", func(t *testing.T) {
		e, _, _ := newTestEngine(t, nil)
		ctx := context.Background()

		d1, _ := e.Decide(ctx, Scopes{APIKey: alice, Service: svc, Endpoint: invoice})
		d2, _ := e.Decide(ctx, Scopes{APIKey: bob, Service: svc, Endpoint: invoice})
		if d1.ScopeKey != d2.ScopeKey {
			t.Fatalf("scope keys differ: %s vs %s", d1.ScopeKey, d2.ScopeKey)
		}
		if d2.Remaining != 98 {
			t.Errorf("Remaining = %d, want 98", d2.Remaining)
		}
	})

	t.Run("endpoint key separates endpoints", func(t *testing.T) {
		e, _, _ := newTestEngine(t, nil)
		ctx := context.Background()

		d1, _ := e.Decide(ctx, Scopes{APIKey: alice, Service: svc, Endpoint: invoice})
		d2, _ := e.Decide(ctx, Scopes{APIKey: alice, Service: svc, Endpoint: refund})
		if d1.ScopeKey == d2.ScopeKey {
			t.Fatalf("endpoints share scope key %s", d1.ScopeKey)
		}
		if d2.Remaining != 99 {
			t.Errorf("Remaining = %d, want 99", d2.Remaining)
		}
	})

	t.Run("service key joins endpoints", func(t *testing.T) {
		e, _, _ := newTestEngine(t, func(c *EngineConfig) {
			c.CounterPriority = []ScopeKind{ScopeService, ScopeAPIKey, ScopeClientIP}
		})
		ctx := context.Background()

		d1, _ := e.Decide(ctx, Scopes{APIKey: alice, Service: svc, Endpoint: invoice})
		d2, _ := e.Decide(ctx, Scopes{APIKey: alice, Service: svc, Endpoint: refund})
		if d1.ScopeKey != "service:billing" || d2.ScopeKey != "service:billing" {
			t.Fatalf("scope keys = %s, %s; want service:billing", d1.ScopeKey, d2.ScopeKey)
		}
		if d2.Remaining != 98 {
			t.Errorf("Remaining = %d, want 98", d2.Remaining)
		}
	})
}

func TestEngine_EffectiveRemaining(t *testing.T) {
	tests := []struct {
		name          string
		limits        directory.Limits
		wantWindow    Window
		wantRemaining int64
	}{
		{"minute only", directory.Limits{PerMinute: limit(10)}, WindowMinute, 9},
		{"hour stricter than minute", directory.Limits{PerMinute: limit(10), PerHour: limit(5)}, WindowHour, 4},
		{"tie keeps minute", directory.Limits{PerMinute: limit(5), PerHour: limit(5)}, WindowMinute, 4},
		{"day stricter than both", directory.Limits{PerMinute: limit(10), PerHour: limit(8), PerDay: limit(3)}, WindowDay, 2},
		{"day looser than hour", directory.Limits{PerMinute: limit(10), PerHour: limit(2), PerDay: limit(3)}, WindowHour, 1},
		{"hour baseline without minute", directory.Limits{PerHour: limit(7), PerDay: limit(100)}, WindowHour, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _, clock := newTestEngine(t, nil)
			d, err := e.Decide(context.Background(), serviceScopes(tt.limits))
			if err != nil {
				t.Fatalf("Decide failed: %v", err)
			}
			if !d.Allowed || !d.Limited {
				t.Fatalf("decision = %+v, want allowed and limited", d)
			}
			if d.LimitType != tt.wantWindow || d.Remaining != tt.wantRemaining {
				t.Errorf("effective = %s/%d, want %s/%d", d.LimitType, d.Remaining, tt.wantWindow, tt.wantRemaining)
			}
			if want := tt.wantWindow.Next(clock.Now()); !d.ResetAt.Equal(want) {
				t.Errorf("ResetAt = %v, want %v", d.ResetAt, want)
			}
		})
	}
}

func TestEngine_FailOpen(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	e, store, _ := newTestEngine(t, func(c *EngineConfig) { c.Metrics = metrics })
	store.failReads.Store(true)

	d, err := e.Decide(context.Background(), serviceScopes(directory.Limits{PerMinute: limit(1)}))
	if err != nil {
		t.Fatalf("Decide returned error with fail-open: %v", err)
	}
	if !d.Allowed || !d.FailOpen {
		t.Errorf("decision = %+v, want allowed fail-open", d)
	}
	if d.Headers() != nil {
		t.Error("fail-open decision produced rate limit headers")
	}
	if got := testutil.ToFloat64(metrics.failOpen); got != 1 {
		t.Errorf("fail_open_total = %v, want 1", got)
	}
}

func TestEngine_FailClosed(t *testing.T) {
	e, store, _ := newTestEngine(t, func(c *EngineConfig) { c.FailOpen = false })
	store.failReads.Store(true)

	_, err := e.Decide(context.Background(), serviceScopes(directory.Limits{PerMinute: limit(1)}))
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Decide error = %v, want ErrStoreUnavailable", err)
	}
	if !errors.Is(err, errStoreDown) {
		t.Errorf("Decide error = %v, want wrapped store error", err)
	}
}

func TestEngine_IncrementFailureDoesNotAbort(t *testing.T) {
	e, store, _ := newTestEngine(t, func(c *EngineConfig) { c.FailOpen = false })
	store.failIncrements.Store(true)

	d, err := e.Decide(context.Background(), serviceScopes(directory.Limits{PerMinute: limit(5)}))
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if !d.Allowed || d.Remaining != 4 {
		t.Errorf("decision = %+v, want allowed with 4 remaining", d)
	}
}

func TestEngine_Disabled(t *testing.T) {
	e, store, _ := newTestEngine(t, func(c *EngineConfig) { c.Disabled = true })

	for i := 0; i < 5; i++ {
		d, _ := e.Decide(context.Background(), serviceScopes(directory.Limits{PerMinute: limit(1)}))
		if !d.Allowed {
			t.Fatal("disabled engine denied a request")
		}
	}
	if store.reads.Load() != 0 {
		t.Error("disabled engine touched the store")
	}
}

func TestEngine_ConcurrentAdmissionsCountExactly(t *testing.T) {
	e, store, clock := newTestEngine(t, nil)
	ctx := context.Background()
	scopes := serviceScopes(directory.Limits{PerMinute: limit(1000)})

	var (
		wg      sync.WaitGroup
		allowed atomic.Int64
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if d, err := e.Decide(ctx, scopes); err == nil && d.Allowed {
					allowed.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	c, _ := store.MemoryStore.GetOrCreate(ctx, counterKey("service:billing", WindowMinute, clock.Now()))
	if c.Count != allowed.Load() {
		t.Errorf("counter = %d, allowed = %d; increments lost", c.Count, allowed.Load())
	}
	if allowed.Load() != 500 {
		t.Errorf("allowed = %d, want 500", allowed.Load())
	}
}

func TestDecision_Headers(t *testing.T) {
	d := &Decision{
		Allowed:   false,
		Limited:   true,
		Limit:     3,
		Remaining: 0,
		ResetAt:   time.Unix(1772368260, 0),
	}
	h := d.Headers()
	if h["X-RateLimit-Limit"] != "3" || h["X-RateLimit-Remaining"] != "0" || h["X-RateLimit-Reset"] != "1772368260" {
		t.Errorf("Headers() = %v", h)
	}

	if (&Decision{Allowed: true}).Headers() != nil {
		t.Error("unlimited decision produced headers")
	}
}
