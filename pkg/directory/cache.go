package directory

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

const (
	// DefaultCacheTTL is used when Cached is created with a zero TTL.
	DefaultCacheTTL = 30 * time.Second

	// DefaultCacheCapacity bounds each record cache of NewCached. The least
	// recently used record is evicted first.
	DefaultCacheCapacity = 10000
)

// Cached is a read-through cache in front of a Directory. Misses (nil records)
// are cached as well so unknown tokens do not reach the backing source on
// every request. Errors are never cached.
type Cached struct {
	next Directory

	keys      *ttlcache.Cache[string, *APIKey]
	services  *ttlcache.Cache[string, *Service]
	endpoints *ttlcache.Cache[string, *Endpoint]
}

// NewCached wraps next with a TTL cache of DefaultCacheCapacity records per
// kind. Call Stop to release the expiration goroutines.
func NewCached(next Directory, ttl time.Duration) *Cached {
	return NewCachedWithCapacity(next, ttl, DefaultCacheCapacity)
}

// NewCachedWithCapacity is NewCached with an explicit per-kind capacity.
// Cached misses count against it, so unknown tokens cannot grow the cache
// without bound.
func NewCachedWithCapacity(next Directory, ttl time.Duration, capacity uint64) *Cached {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if capacity == 0 {
		capacity = DefaultCacheCapacity
	}

	c := &Cached{
		next: next,
		keys: ttlcache.New[string, *APIKey](
			ttlcache.WithTTL[string, *APIKey](ttl),
			ttlcache.WithCapacity[string, *APIKey](capacity),
			ttlcache.WithDisableTouchOnHit[string, *APIKey](),
		),
		services: ttlcache.New[string, *Service](
			ttlcache.WithTTL[string, *Service](ttl),
			ttlcache.WithCapacity[string, *Service](capacity),
			ttlcache.WithDisableTouchOnHit[string, *Service](),
		),
		endpoints: ttlcache.New[string, *Endpoint](
			ttlcache.WithTTL[string, *Endpoint](ttl),
			ttlcache.WithCapacity[string, *Endpoint](capacity),
			ttlcache.WithDisableTouchOnHit[string, *Endpoint](),
		),
	}
	go c.keys.Start()
	go c.services.Start()
	go c.endpoints.Start()
	return c
}

// FindAPIKey implements Directory.
func (c *Cached) FindAPIKey(ctx context.Context, token string) (*APIKey, error) {
	if item := c.keys.Get(token); item != nil {
		return copyKey(item.Value()), nil
	}
	k, err := c.next.FindAPIKey(ctx, token)
	if err != nil {
		return nil, err
	}
	c.keys.Set(token, copyKey(k), ttlcache.DefaultTTL)
	return k, nil
}

// FindService implements Directory.
func (c *Cached) FindService(ctx context.Context, name string) (*Service, error) {
	if item := c.services.Get(name); item != nil {
		return copyService(item.Value()), nil
	}
	svc, err := c.next.FindService(ctx, name)
	if err != nil {
		return nil, err
	}
	c.services.Set(name, copyService(svc), ttlcache.DefaultTTL)
	return svc, nil
}

// FindEndpoint implements Directory.
func (c *Cached) FindEndpoint(ctx context.Context, serviceID, name string) (*Endpoint, error) {
	key := serviceID + "\x00" + name
	if item := c.endpoints.Get(key); item != nil {
		return copyEndpoint(item.Value()), nil
	}
	e, err := c.next.FindEndpoint(ctx, serviceID, name)
	if err != nil {
		return nil, err
	}
	c.endpoints.Set(key, copyEndpoint(e), ttlcache.DefaultTTL)
	return e, nil
}

// ListServices passes through when the wrapped directory is a Lister.
func (c *Cached) ListServices(ctx context.Context) ([]*Service, error) {
	if l, ok := c.next.(Lister); ok {
		return l.ListServices(ctx)
	}
	return nil, nil
}

// ListEndpoints passes through when the wrapped directory is a Lister.
func (c *Cached) ListEndpoints(ctx context.Context, serviceID string) ([]*Endpoint, error) {
	if l, ok := c.next.(Lister); ok {
		return l.ListEndpoints(ctx, serviceID)
	}
	return nil, nil
}

// Invalidate drops every cached record. The watcher calls it after a reload.
// A lookup that missed before the reload and stores its result after
// Invalidate leaves that pre-reload record cached until its TTL expires.
func (c *Cached) Invalidate() {
	c.keys.DeleteAll()
	c.services.DeleteAll()
	c.endpoints.DeleteAll()
}

// Stop halts the cache expiration loops.
func (c *Cached) Stop() {
	c.keys.Stop()
	c.services.Stop()
	c.endpoints.Stop()
}

func copyKey(k *APIKey) *APIKey {
	if k == nil {
		return nil
	}
	out := *k
	return &out
}

func copyService(s *Service) *Service {
	if s == nil {
		return nil
	}
	out := *s
	return &out
}

func copyEndpoint(e *Endpoint) *Endpoint {
	if e == nil {
		return nil
	}
	out := *e
	return &out
}
