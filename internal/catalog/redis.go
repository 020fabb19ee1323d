package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultCacheKey is the Redis key holding the catalog snapshot.
const DefaultCacheKey = "ifcoins:catalog:v1"

// RedisCache keeps the snapshot as one JSON value with a TTL.
type RedisCache struct {
	rdb redis.Cmdable
	key string
	ttl time.Duration
}

// NewRedisCache constructs a cache; ttl bounds staleness when an invalidation is lost.
func NewRedisCache(rdb redis.Cmdable, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, key: DefaultCacheKey, ttl: ttl}
}

// Load implements Cache.
func (r *RedisCache) Load(ctx context.Context) (*Snapshot, error) {
	data, err := r.rdb.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Store implements Cache.
func (r *RedisCache) Store(ctx context.Context, s Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, r.key, data, r.ttl).Err()
}

// Invalidate implements Cache.
func (r *RedisCache) Invalidate(ctx context.Context) error {
	return r.rdb.Del(ctx, r.key).Err()
}
