package portainer

import (
	"context"
	"time"

	"github.com/harborwatch/harborwatch-monitor/internal/cache"
)

// DefaultEndpointTTL bounds how stale a cached endpoint list may be.
// Endpoint inventory changes rarely compared to how often the metric
// and execution paths ask for it.
const DefaultEndpointTTL = 30 * time.Second

const endpointsKey = "endpoints"

// CachedClient wraps a Client and caches the endpoint list. All other
// calls pass through untouched; container state is too volatile to
// cache.
type CachedClient struct {
	Client
	cache *cache.TTLCache
	ttl   time.Duration
}

// NewCachedClient wraps client with an endpoint-list cache. A zero ttl
// uses DefaultEndpointTTL.
func NewCachedClient(client Client, ttl time.Duration) *CachedClient {
	if ttl <= 0 {
		ttl = DefaultEndpointTTL
	}
	return &CachedClient{
		Client: client,
		cache:  cache.New(),
		ttl:    ttl,
	}
}

// ListEndpoints returns the cached endpoint list when fresh, refreshing
// it from upstream otherwise. Upstream errors are never cached.
func (c *CachedClient) ListEndpoints(ctx context.Context) ([]Endpoint, error) {
	if v, ok := c.cache.Get(endpointsKey); ok {
		cached := v.([]Endpoint)
		out := make([]Endpoint, len(cached))
		copy(out, cached)
		return out, nil
	}

	endpoints, err := c.Client.ListEndpoints(ctx)
	if err != nil {
		return nil, err
	}

	stored := make([]Endpoint, len(endpoints))
	copy(stored, endpoints)
	c.cache.Set(endpointsKey, stored, c.ttl)

	return endpoints, nil
}

// InvalidateEndpoints forces the next ListEndpoints to hit upstream.
func (c *CachedClient) InvalidateEndpoints() {
	c.cache.Delete(endpointsKey)
}
