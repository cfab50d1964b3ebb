package pod

import (
	"context"
	"time"

	"github.com/bertrandchenal/lakota/pkg/lakotaerrs"
	"github.com/bertrandchenal/lakota/pkg/metrics"
)

// Cache composes a fast pod in front of a slow, durable one. Reads check
// fast first and backfill it on a slow hit; writes go to both. Lists come
// from slow, so a key removed from the authoritative store disappears even
// while its blob lingers in the fast tier.
type Cache struct {
	fast Pod
	slow Pod
}

// NewCache returns a Pod that serves from fast, falling back to and
// backfilling from slow.
func NewCache(fast, slow Pod) *Cache {
	return &Cache{fast: fast, slow: slow}
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.fast.Get(ctx, key)
	if err == nil {
		metrics.PodCacheHitsTotal.Inc()
		return data, nil
	}
	if !lakotaerrs.IsNotFound(err) {
		return nil, err
	}
	metrics.PodCacheMissesTotal.Inc()

	data, err = c.slow.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if putErr := c.fast.Put(ctx, key, data); putErr != nil {
		// Backfill failures don't invalidate a successful read.
		return data, nil
	}
	return data, nil
}

func (c *Cache) Put(ctx context.Context, key string, content []byte) error {
	if err := c.slow.Put(ctx, key, content); err != nil {
		return err
	}
	return c.fast.Put(ctx, key, content)
}

func (c *Cache) List(ctx context.Context, prefix string) ([]string, error) {
	return c.slow.List(ctx, prefix)
}

func (c *Cache) Walk(ctx context.Context, prefix string) ([]string, error) {
	return c.slow.Walk(ctx, prefix)
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.slow.Delete(ctx, key); err != nil {
		return err
	}
	return c.fast.Delete(ctx, key)
}

func (c *Cache) Stat(ctx context.Context, key string) (time.Time, error) {
	return c.slow.Stat(ctx, key)
}

func (c *Cache) String() string {
	return c.fast.String() + "+" + c.slow.String()
}
