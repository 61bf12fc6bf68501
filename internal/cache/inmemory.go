package cache

import (
	"context"
	"strings"
	"time"

	goCache "github.com/patrickmn/go-cache"
)

// DefaultExpiration bounds how long a request scoped entry may live
const DefaultExpiration = 5 * time.Minute

// InMemoryCache implements the Cache interface using github.com/patrickmn/go-cache.
// Instances are scoped to a single request; there is no process wide cache.
type InMemoryCache struct {
	cache *goCache.Cache
}

// NewInMemoryCache creates a new InMemoryCache instance. Expired entries are
// dropped on read, no janitor goroutine is started.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		cache: goCache.New(DefaultExpiration, 0),
	}
}

// Get retrieves a value from the cache
func (c *InMemoryCache) Get(_ context.Context, key string) (interface{}, bool) {
	return c.cache.Get(key)
}

// Set adds a value to the cache with the specified expiration
func (c *InMemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) {
	if expiration == 0 {
		expiration = goCache.DefaultExpiration
	}
	c.cache.Set(key, value, expiration)
}

// Delete removes a key from the cache
func (c *InMemoryCache) Delete(_ context.Context, key string) {
	c.cache.Delete(key)
}

// DeleteByPrefix removes all keys with the given prefix
func (c *InMemoryCache) DeleteByPrefix(_ context.Context, prefix string) {
	for k := range c.cache.Items() {
		if strings.HasPrefix(k, prefix) {
			c.cache.Delete(k)
		}
	}
}

// Flush removes all items from the cache
func (c *InMemoryCache) Flush(_ context.Context) {
	c.cache.Flush()
}

type ctxKey struct{}

// WithRequestCache attaches a fresh cache to ctx. Everything cached through
// it is discarded with the request.
func WithRequestCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, NewInMemoryCache())
}

// FromContext returns the request cache attached to ctx, or a cache that
// stores nothing when none is attached
func FromContext(ctx context.Context) Cache {
	if c, ok := ctx.Value(ctxKey{}).(*InMemoryCache); ok {
		return c
	}
	return noopCache{}
}

type noopCache struct{}

func (noopCache) Get(context.Context, string) (interface{}, bool) { return nil, false }

func (noopCache) Set(context.Context, string, interface{}, time.Duration) {}

func (noopCache) Delete(context.Context, string) {}

func (noopCache) DeleteByPrefix(context.Context, string) {}

func (noopCache) Flush(context.Context) {}
