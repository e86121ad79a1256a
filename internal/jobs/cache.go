package jobs

import (
	"container/list"
	"sync"
	"time"

	"rserv/internal/query"
)

// resultCacheEntry is one LRU node's payload.
type resultCacheEntry struct {
	key       string
	results   []query.Row
	expiresAt time.Time
}

// ResultCache is the LRU+TTL cache of completed graph-query results, keyed
// by canonicalised query string, per §4.9. Any write through the document
// store evicts every entry (the conservative policy the spec accepts at
// prototyping scale) via InvalidateAll, which also satisfies
// internal/store's Invalidator interface.
type ResultCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	order    *list.List
	index    map[string]*list.Element
}

// NewResultCache builds a cache holding at most capacity entries, each
// valid for ttl after insertion.
func NewResultCache(capacity int, ttl time.Duration) *ResultCache {
	return &ResultCache{
		capacity: capacity,
		ttl:      ttl,
		order:    list.New(),
		index:    make(map[string]*list.Element),
	}
}

// Get returns the cached results for key, if present and unexpired.
func (c *ResultCache) Get(key string) ([]query.Row, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*resultCacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.order.Remove(el)
		delete(c.index, key)
		return nil, false
	}
	c.order.MoveToFront(el)
	return entry.results, true
}

// Put stores results under key, evicting the least-recently-used entry if
// the cache is at capacity.
func (c *ResultCache) Put(key string, results []query.Row) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[key]; ok {
		entry := el.Value.(*resultCacheEntry)
		entry.results = results
		entry.expiresAt = time.Now().Add(c.ttl)
		c.order.MoveToFront(el)
		return
	}

	entry := &resultCacheEntry{key: key, results: results, expiresAt: time.Now().Add(c.ttl)}
	el := c.order.PushFront(entry)
	c.index[key] = el

	if c.capacity > 0 && c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.index, oldest.Value.(*resultCacheEntry).key)
		}
	}
}

// InvalidateAll evicts every cached result, per §4.9's conservative
// write-time invalidation policy.
func (c *ResultCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.index = make(map[string]*list.Element)
}
