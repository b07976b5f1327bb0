package embedcache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// lruEntry pairs a cached vector with its insertion time, so a read past
// TTL can be treated as a miss and evicted (§3's LRU entry lifecycle).
type lruEntry struct {
	vector []float32
	ts     time.Time
}

// TTLCache is a capacity-bounded, TTL-expiring cache of embedding
// vectors. It guards the underlying LRU with a single mutex per §9's
// design note ("a proper LRU-with-TTL structure, guarded by a lock per
// cache; reads on stale entries must evict").
type TTLCache struct {
	mu    sync.Mutex
	cache *lru.Cache[string, lruEntry]
	ttl   time.Duration
}

// NewTTLCache builds a cache of the given capacity and TTL.
func NewTTLCache(capacity int, ttl time.Duration) *TTLCache {
	c, err := lru.New[string, lruEntry](capacity)
	if err != nil {
		// capacity <= 0 is a programmer error; fall back to 1 so the
		// cache still behaves rather than panicking at call sites.
		c, _ = lru.New[string, lruEntry](1)
	}
	return &TTLCache{cache: c, ttl: ttl}
}

// Get returns the cached vector for key, promoting it to
// most-recently-used. A hit older than the TTL is evicted and reported as
// a miss.
func (c *TTLCache) Get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	if time.Since(entry.ts) > c.ttl {
		c.cache.Remove(key)
		return nil, false
	}
	return entry.vector, true
}

// Put inserts or replaces the cached vector for key with the current
// time as its insertion timestamp.
func (c *TTLCache) Put(key string, vector []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Add(key, lruEntry{vector: vector, ts: time.Now()})
}

// Len reports the current number of entries, including any not yet
// evicted for having gone stale.
func (c *TTLCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len()
}
