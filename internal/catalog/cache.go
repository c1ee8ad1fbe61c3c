package catalog

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisCommands is the slice of the redis client the cache needs.
// *redis.Client satisfies it; tests use a fake.
type redisCommands interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	SetEx(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Cache is a read-through decorator over a Lookup. Hits come from Redis;
// misses load from the inner lookup and populate the cache with a TTL.
// Redis failures degrade to the inner lookup, never to request failures.
type Cache struct {
	redis redisCommands
	inner Lookup
	ttl   time.Duration
}

// NewCache wraps inner with a Redis read-through cache.
func NewCache(rdb redisCommands, inner Lookup, ttl time.Duration) *Cache {
	return &Cache{redis: rdb, inner: inner, ttl: ttl}
}

func cacheKey(productID string) string { return "product:" + productID }

// Product implements Lookup.
func (c *Cache) Product(ctx context.Context, productID string) (*Product, error) {
	data, err := c.redis.Get(ctx, cacheKey(productID)).Result()
	if err == nil {
		var p Product
		if json.Unmarshal([]byte(data), &p) == nil {
			return &p, nil
		}
	} else if err != redis.Nil {
		slog.Warn("catalog cache read failed", "product_id", productID, "err", err)
	}

	p, err := c.inner.Product(ctx, productID)
	if err != nil || p == nil {
		return p, err
	}

	if encoded, err := json.Marshal(p); err == nil {
		if err := c.redis.SetEx(ctx, cacheKey(productID), encoded, c.ttl).Err(); err != nil {
			slog.Warn("catalog cache write failed", "product_id", productID, "err", err)
		}
	}
	return p, nil
}
