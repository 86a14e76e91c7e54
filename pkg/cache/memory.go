package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lborres/folio/core"
)

var _ core.CacheWithStats = (*InMemoryCache)(nil)

// InMemoryCache implements core.DurableCache in process memory. It does not
// survive restarts; use FileCache or the redis adapter for that.
type InMemoryCache struct {
	cache   map[string]*cachedRecord
	mu      sync.RWMutex
	ttl     time.Duration
	maxSize int

	// counters
	hits      int64
	misses    int64
	sets      int64
	deletes   int64
	evictions int64
}

type cachedRecord struct {
	value    string
	cachedAt time.Time
}

// NewInMemoryCache creates a new in-memory cache. A zero TTL keeps entries
// until they are deleted; a zero MaxSize defaults to 500.
func NewInMemoryCache(c core.CacheConfig) *InMemoryCache {
	if c.MaxSize == 0 {
		c.MaxSize = 500
	}

	return &InMemoryCache{
		cache:   make(map[string]*cachedRecord),
		ttl:     c.TTL,
		maxSize: c.MaxSize,
	}
}

func (c *InMemoryCache) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c.mu.RLock()
	record, exists := c.cache[key]
	c.mu.RUnlock()

	if !exists {
		atomic.AddInt64(&c.misses, 1)
		return "", core.ErrCacheNotFound
	}

	if c.ttl > 0 && time.Since(record.cachedAt) > c.ttl {
		atomic.AddInt64(&c.misses, 1)
		c.mu.Lock()
		// re-check: a Set may have replaced the record meanwhile
		if current, ok := c.cache[key]; ok && current == record {
			delete(c.cache, key)
			atomic.AddInt64(&c.evictions, 1)
		}
		c.mu.Unlock()
		return "", core.ErrCacheNotFound
	}

	atomic.AddInt64(&c.hits, 1)
	return record.value, nil
}

func (c *InMemoryCache) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Simple eviction if full
	if _, replacing := c.cache[key]; !replacing && len(c.cache) >= c.maxSize {
		for k := range c.cache {
			delete(c.cache, k)
			atomic.AddInt64(&c.evictions, 1)
			break
		}
	}

	c.cache[key] = &cachedRecord{
		value:    value,
		cachedAt: time.Now(),
	}

	atomic.AddInt64(&c.sets, 1)
	return nil
}

func (c *InMemoryCache) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, existed := c.cache[key]; existed {
		delete(c.cache, key)
		atomic.AddInt64(&c.deletes, 1)
	}
	return nil
}

func (c *InMemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]*cachedRecord)
}

func (c *InMemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

func (c *InMemoryCache) Stats() core.CacheStats {
	return core.CacheStats{
		Hits:      atomic.LoadInt64(&c.hits),
		Misses:    atomic.LoadInt64(&c.misses),
		Sets:      atomic.LoadInt64(&c.sets),
		Deletes:   atomic.LoadInt64(&c.deletes),
		Evictions: atomic.LoadInt64(&c.evictions),
		Size:      c.Len(),
		TTL:       c.ttl,
	}
}
