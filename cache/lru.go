// Package cache provides a size-bounded LRU cache used to keep decoded
// partitions resident across queries.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
)

// LRU is a size-bounded LRU cache. It is safe for concurrent use.
//
// Values are treated as immutable: callers must not mutate a value after
// inserting it or after retrieving it.
type LRU[K comparable, V any] struct {
	mu        sync.Mutex
	capacity  int64
	size      int64
	items     map[K]*list.Element
	evictList *list.List
	sizeOf    func(V) int64

	hits   atomic.Int64
	misses atomic.Int64
}

type entry[K comparable, V any] struct {
	key   K
	value V
	size  int64
}

// NewLRU creates an LRU with the given capacity. sizeOf reports the cost of
// one value in capacity units (bytes, rows, or simply 1 for a count bound).
func NewLRU[K comparable, V any](capacity int64, sizeOf func(V) int64) *LRU[K, V] {
	if sizeOf == nil {
		sizeOf = func(V) int64 { return 1 }
	}
	return &LRU[K, V]{
		capacity:  capacity,
		items:     make(map[K]*list.Element),
		evictList: list.New(),
		sizeOf:    sizeOf,
	}
}

// Get returns a cached value.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.hits.Add(1)
		c.evictList.MoveToFront(el)
		return el.Value.(*entry[K, V]).value, true
	}
	c.misses.Add(1)
	var zero V
	return zero, false
}

// Set caches a value, evicting least-recently-used entries as needed.
// Values larger than the whole capacity are not cached.
func (c *LRU[K, V]) Set(key K, value V) {
	cost := c.sizeOf(value)
	if cost > c.capacity {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		ent := el.Value.(*entry[K, V])
		c.size += cost - ent.size
		ent.value = value
		ent.size = cost
		c.evictList.MoveToFront(el)
	} else {
		el := c.evictList.PushFront(&entry[K, V]{key: key, value: value, size: cost})
		c.items[key] = el
		c.size += cost
	}

	for c.size > c.capacity {
		back := c.evictList.Back()
		if back == nil {
			break
		}
		c.removeElement(back)
	}
}

// Remove drops a key from the cache.
func (c *LRU[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}
}

// Len returns the number of cached entries.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictList.Len()
}

// Stats returns cumulative hit and miss counts.
func (c *LRU[K, V]) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *LRU[K, V]) removeElement(el *list.Element) {
	ent := el.Value.(*entry[K, V])
	c.evictList.Remove(el)
	delete(c.items, ent.key)
	c.size -= ent.size
}
