package resolution

import (
	"sync"
	"sync/atomic"

	"github.com/aristath/depgraph/internal/function"
	"github.com/aristath/depgraph/internal/value"
)

// CacheKey is the memoization key of a requirement resolved under an exclusion context.
func CacheKey(requirement value.ValueRequirement, exclusions function.ExclusionContext) string {
	return requirement.Key() + "|" + exclusions.Signature()
}

// CacheStats are cumulative cache counters.
type CacheStats struct {
	Hits   int64
	Misses int64
	Stores int64
}

// Cache is the batch-scoped resolution cache shared between concurrent checks. An entry is
// published once; later stores of the same key return the published entry. Lookups of
// unrelated keys never wait on each other.
type Cache struct {
	entries sync.Map // key -> *FullRequirementResolution

	hits   atomic.Int64
	misses atomic.Int64
	stores atomic.Int64
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{}
}

// Get returns the resolution published under key.
func (c *Cache) Get(key string) (*FullRequirementResolution, bool) {
	v, ok := c.entries.Load(key)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return v.(*FullRequirementResolution), true
}

// LoadOrStore publishes r under key unless an entry already exists. It returns the entry now in
// the cache and whether it was already there.
func (c *Cache) LoadOrStore(key string, r *FullRequirementResolution) (*FullRequirementResolution, bool) {
	v, loaded := c.entries.LoadOrStore(key, r)
	if !loaded {
		c.stores.Add(1)
	}
	return v.(*FullRequirementResolution), loaded
}

// Len counts the entries.
func (c *Cache) Len() int {
	n := 0
	c.entries.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

// Stats returns the counters.
func (c *Cache) Stats() CacheStats {
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load(), Stores: c.stores.Load()}
}

// Reset discards every entry, e.g. when the catalog or the available market data changes.
func (c *Cache) Reset() {
	c.entries.Range(func(key, _ interface{}) bool {
		c.entries.Delete(key)
		return true
	})
}
