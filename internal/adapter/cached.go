package adapter

import (
	"context"
	"time"

	"trendaggr/internal/cache"
	"trendaggr/internal/trend"
)

func init() {
	cache.RegisterType([]trend.RawTrend{})
}

// Cached wraps an Adapter with a TTL-bound memoization layer over the
// Cache Layer, so a misbehaving or slow origin can't be hit more often
// than ttl regardless of how often the Refresh Controller's ticker or
// refresh_now() fires.
type Cached struct {
	Adapter
	store cache.Store
	ttl   time.Duration
}

// WithCache returns a under TTL-bound memoization via store, or a
// unchanged if store is nil (caching disabled).
func WithCache(a Adapter, store cache.Store, ttl time.Duration) Adapter {
	if store == nil {
		return a
	}
	return &Cached{Adapter: a, store: store, ttl: ttl}
}

func (c *Cached) Fetch(ctx context.Context, limit int) ([]trend.RawTrend, error) {
	fn := cache.Cached(c.store, "adapter."+c.Adapter.Name(), c.ttl, func(args ...any) ([]trend.RawTrend, error) {
		return c.Adapter.Fetch(ctx, limit)
	})
	return fn(limit)
}
