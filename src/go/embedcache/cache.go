package embedcache

import (
	"context"
	"time"

	"github.com/kortix-ai/kb-fusion/src/go/types"
)

const (
	// DocCacheCapacity and DocCacheTTL bound the in-memory tier for
	// document vectors (§4.4).
	DocCacheCapacity = 8192
	DocCacheTTL      = 3600 * time.Second

	// QueryCacheCapacity and QueryCacheTTL bound the in-memory tier for
	// query vectors.
	QueryCacheCapacity = 512
	QueryCacheTTL      = 900 * time.Second
)

// Cache coordinates the persistent store and the two in-memory LRU-TTL
// tiers (document and query vectors) behind the single lookup policy of
// §4.4: persistent first, then LRU, then miss.
type Cache struct {
	store      *Store
	docLRU     *TTLCache
	queryLRU   *TTLCache
	model      string
	dim        int
	versionKey string
}

// NewCache wires a persistent Store to fresh document/query LRU tiers for
// the given provider identity (model, dim, versionKey).
func NewCache(store *Store, model string, dim int, versionKey string) *Cache {
	return &Cache{
		store:      store,
		docLRU:     NewTTLCache(DocCacheCapacity, DocCacheTTL),
		queryLRU:   NewTTLCache(QueryCacheCapacity, QueryCacheTTL),
		model:      model,
		dim:        dim,
		versionKey: versionKey,
	}
}

// LookupDocs resolves vectors for a set of content hashes. It returns a
// map of hash->vector for everything found (persistent store first, LRU
// second) and the subset of hashes still missing, in the original order.
func (c *Cache) LookupDocs(ctx context.Context, hashes [][]byte) (map[string][]float32, [][]byte, error) {
	found := make(map[string][]float32, len(hashes))
	var missing [][]byte

	persisted, err := c.store.Lookup(ctx, hashes, c.model, c.dim, c.versionKey)
	if err != nil {
		return nil, nil, err
	}
	for _, h := range hashes {
		if v, ok := persisted[string(h)]; ok {
			found[string(h)] = v
			c.docLRU.Put(string(h), v)
			continue
		}
		if v, ok := c.docLRU.Get(string(h)); ok {
			found[string(h)] = v
			continue
		}
		missing = append(missing, h)
	}

	return found, missing, nil
}

// PutDocs writes newly embedded document vectors to both tiers in one
// atomic persistent batch.
func (c *Cache) PutDocs(ctx context.Context, hashes [][]byte, vectors [][]float32, ts float64) error {
	records := make([]types.CacheRecord, len(hashes))
	for i, h := range hashes {
		vecBytes := EncodeVector(vectors[i])
		records[i] = types.CacheRecord{
			ContentHash: h,
			Model:       c.model,
			Dim:         c.dim,
			VersionKey:  c.versionKey,
			Vector:      vecBytes,
			Timestamp:   ts,
		}
		c.docLRU.Put(string(h), vectors[i])
	}
	return c.store.Put(ctx, records)
}

// LookupQuery checks only the in-memory query tier — queries are never
// written to the persistent store, since they are not content-addressed
// passages (§4.4 describes the persistent tier as keyed by content_hash of
// indexed text).
func (c *Cache) LookupQuery(key string) ([]float32, bool) {
	return c.queryLRU.Get(key)
}

// PutQuery caches a query vector in the in-memory tier only.
func (c *Cache) PutQuery(key string, vector []float32) {
	c.queryLRU.Put(key, vector)
}
