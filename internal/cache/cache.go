// Package cache provides the TTL-bounded key/value store the Aggregator
// publishes snapshots and spread lists to and the Detector reads them
// back from, grounded on data/cache/cache.go: an in-memory default with
// an optional Redis backing so the same interface works single-process
// in tests and multi-process in production.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a TTL key/value store. Values round-trip through JSON so
// callers can Put/Get typed structs directly.
type Cache interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string, out any) (bool, error)
	Close() error
}

type memoryEntry struct {
	data []byte
	exp  time.Time
}

// MemoryCache is an in-process TTL cache; the zero-dependency default
// when REDIS_URL is unset.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewMemoryCache constructs an in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry)}
}

func (c *MemoryCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	e := memoryEntry{data: data}
	if ttl > 0 {
		e.exp = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Get(_ context.Context, key string, out any) (bool, error) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && !e.exp.IsZero() && time.Now().After(e.exp) {
		delete(c.entries, key)
		ok = false
	}
	c.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(e.data, out); err != nil {
		return false, err
	}
	return true, nil
}

func (c *MemoryCache) Close() error { return nil }

// RedisCache backs Cache with a Redis client, used whenever REDIS_URL is
// configured so the snapshot/spread cache survives process restarts and
// is shared across service instances.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to addr.
func NewRedisCache(addr string) *RedisCache {
	return &RedisCache{client: redis.NewClient(&redis.Options{Addr: addr})}
}

func (r *RedisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.client.Set(ctx, key, data, ttl).Err()
}

func (r *RedisCache) Get(ctx context.Context, key string, out any) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	data, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func (r *RedisCache) Close() error { return r.client.Close() }

// New picks RedisCache when addr is non-empty, MemoryCache otherwise.
func New(addr string) Cache {
	if addr != "" {
		return NewRedisCache(addr)
	}
	return NewMemoryCache()
}

// Well-known cache keys used by the Aggregator / Detector / Position
// Manager.
const (
	KeyUnifiedSnapshot       = "nexus:snapshot:unified"
	KeySpreadList            = "nexus:spreads:top"
	KeyReconciliationReport  = "nexus:reconciliation:report"
)

// SpreadCacheTTL is the TTL on the cached spread list.
const SpreadCacheTTL = 60 * time.Second
