package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/showjihyun/agentrag-v1-sub018/internal/core/ports"
)

// localTTLCap keeps the in-process tier fresher than the shared tier so
// instances converge on shared state quickly after a write elsewhere.
const localTTLCap = 5 * time.Minute

// MultiLevel layers the in-process LRU over the shared redis tier. A
// shared-tier failure degrades to local-only behavior: lookups read as
// misses and writes are dropped with a warning, never an error.
type MultiLevel struct {
	local  *Memory
	shared *Redis
}

// NewMultiLevel builds the cache; shared may be nil for single-instance
// deployments, leaving the local tier on its own.
func NewMultiLevel(local *Memory, shared *Redis) *MultiLevel {
	return &MultiLevel{local: local, shared: shared}
}

var _ ports.ResponseCache = (*MultiLevel)(nil)

func (c *MultiLevel) Get(ctx context.Context, key string) (string, bool) {
	if value, ok := c.local.Get(key); ok {
		return value, true
	}
	if c.shared == nil {
		return "", false
	}

	value, remaining, err := c.shared.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			slog.Warn("cache_shared_get_degraded", "key", key, "error", err)
		}
		return "", false
	}

	// Adopt the shared entry locally for its remaining lifetime.
	c.local.Set(key, value, capLocalTTL(remaining))
	return value, true
}

func (c *MultiLevel) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.local.Set(key, value, capLocalTTL(ttl))
	if c.shared == nil {
		return
	}
	if err := c.shared.Set(ctx, key, value, ttl); err != nil {
		slog.Warn("cache_shared_set_degraded", "key", key, "error", err)
	}
}

func capLocalTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > localTTLCap {
		return localTTLCap
	}
	return ttl
}
