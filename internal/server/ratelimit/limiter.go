// Package ratelimit implements fixed-window request counters keyed by
// client, either in process memory or in Redis when several server
// instances share one budget.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
)

// Limiter decides whether one more request for key fits in the current
// window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// windowKey buckets key into the fixed window containing now.
func windowKey(key string, window time.Duration, now time.Time) string {
	return key + ":" + strconv.FormatInt(now.UnixNano()/int64(window), 10)
}

const addAttempts = 3

// Memory counts requests in a go-cache map. Entries expire with their window.
type Memory struct {
	limit  int64
	window time.Duration
	c      *cache.Cache
	now    func() time.Time
}

func NewMemory(limit int, window time.Duration) *Memory {
	return &Memory{
		limit:  int64(limit),
		window: window,
		c:      cache.New(window, window),
		now:    time.Now,
	}
}

func (m *Memory) Allow(_ context.Context, key string) (bool, error) {
	k := windowKey(key, m.window, m.now())

	// Add fails when the counter exists, in which case it is incremented
	// atomically instead. An entry that expires between the two calls is
	// retried with Add so a concurrent first hit is never overwritten.
	for range addAttempts {
		if err := m.c.Add(k, int64(1), m.window); err == nil {
			return m.limit >= 1, nil
		}
		if n, err := m.c.IncrementInt64(k, 1); err == nil {
			return n <= m.limit, nil
		}
	}
	return false, fmt.Errorf("ratelimit: counter %s unavailable after %d attempts", k, addAttempts)
}
