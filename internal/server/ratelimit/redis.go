package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counter is the part of a Redis client the limiter needs.
type Counter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// Redis counts requests with INCR; the first hit of a window sets the TTL.
type Redis struct {
	rdb    Counter
	prefix string
	limit  int64
	window time.Duration
	now    func() time.Time
}

func NewRedis(rdb Counter, limit int, window time.Duration) *Redis {
	return &Redis{
		rdb:    rdb,
		prefix: "tgfs:rl:",
		limit:  int64(limit),
		window: window,
		now:    time.Now,
	}
}

// NewRedisClient connects to addr and pings it.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	k := r.prefix + windowKey(key, r.window, r.now())

	n, err := r.rdb.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("redis incr: %w", err)
	}
	if n == 1 {
		if err := r.rdb.Expire(ctx, k, r.window).Err(); err != nil {
			return false, fmt.Errorf("redis expire: %w", err)
		}
	}
	return n <= r.limit, nil
}
