// Package limiter implements fixed-window request budgets for mutating calls.
package limiter

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces limiter counters in Redis.
const DefaultPrefix = "ifcoins:rl:"

// Limiter controls how often a caller may perform mutating operations.
type Limiter interface {
	// Allow consumes one unit of key's budget. When the budget is spent it reports false and the
	// time left until the window resets.
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
}

// Redis is a fixed-window limiter: INCR a per-key counter, set its expiry on the first hit.
type Redis struct {
	rdb    redis.Cmdable
	limit  int64
	window time.Duration
	prefix string
}

var _ Limiter = (*Redis)(nil)

// NewRedis constructs a limiter allowing limit calls per window and key.
func NewRedis(rdb redis.Cmdable, limit int, window time.Duration) *Redis {
	return &Redis{rdb: rdb, limit: int64(limit), window: window, prefix: DefaultPrefix}
}

// Allow implements Limiter.
func (l *Redis) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	k := l.prefix + key
	n, err := l.rdb.Incr(ctx, k).Result()
	if err != nil {
		return false, 0, err
	}
	if n == 1 {
		if err := l.rdb.Expire(ctx, k, l.window).Err(); err != nil {
			return false, 0, err
		}
	}
	if n <= l.limit {
		return true, 0, nil
	}

	ttl, err := l.rdb.TTL(ctx, k).Result()
	if err != nil {
		return false, 0, err
	}
	if ttl < 0 {
		// counter lost its expiry (crash between INCR and EXPIRE)
		if err := l.rdb.Expire(ctx, k, l.window).Err(); err != nil {
			return false, 0, err
		}
		ttl = l.window
	}
	return false, ttl, nil
}
