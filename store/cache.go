package store

import (
	"container/list"
	"sync/atomic"
)

// ResultCache memoizes search results by predicate key. It keeps at most
// capacity entries and evicts the least recently used one beyond that. A
// capacity of zero or less means unbounded.
//
// The cache is coarse grained: any write to the collection clears it
// entirely. It is not safe for concurrent use.
type ResultCache struct {
	capacity  int
	items     map[string]*list.Element
	evictList *list.List

	hits   atomic.Int64
	misses atomic.Int64
}

type cacheEntry struct {
	key  string
	docs []Document
}

// NewResultCache creates a cache holding up to capacity results.
func NewResultCache(capacity int) *ResultCache {
	return &ResultCache{
		capacity:  capacity,
		items:     make(map[string]*list.Element),
		evictList: list.New(),
	}
}

// Get returns the cached result for key.
func (c *ResultCache) Get(key string) ([]Document, bool) {
	if ent, ok := c.items[key]; ok {
		c.hits.Add(1)
		c.evictList.MoveToFront(ent)
		return ent.Value.(*cacheEntry).docs, true
	}
	c.misses.Add(1)
	return nil, false
}

// Put stores docs as the result for key.
func (c *ResultCache) Put(key string, docs []Document) {
	if ent, ok := c.items[key]; ok {
		c.evictList.MoveToFront(ent)
		ent.Value.(*cacheEntry).docs = docs
		return
	}

	c.items[key] = c.evictList.PushFront(&cacheEntry{key: key, docs: docs})

	for c.capacity > 0 && c.evictList.Len() > c.capacity {
		oldest := c.evictList.Back()
		c.evictList.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).key)
	}
}

// Clear drops every cached result.
func (c *ResultCache) Clear() {
	clear(c.items)
	c.evictList.Init()
}

// Len returns the number of cached results.
func (c *ResultCache) Len() int {
	return c.evictList.Len()
}

// Stats returns the hit and miss counters.
func (c *ResultCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
