// Package entitycache bounds redundant rate-limited lookups with a small
// TTL-aware LRU.
//
// Entries expire a fixed TTL after insertion regardless of access; expired
// entries are treated as absent and evicted on the next Get. Eviction beyond
// capacity follows access recency, not insertion order.
package entitycache

import (
	"container/list"
	"sync"
	"time"
)

const (
	DefaultCapacity = 800
	DefaultTTL      = 6 * time.Hour
)

type entry[V any] struct {
	key        string
	val        V
	insertedAt time.Time
}

type Cache[V any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	order    *list.List // front = most recently used
	items    map[string]*list.Element

	now func() time.Time
}

func New[V any](capacity int, ttl time.Duration) *Cache[V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache[V]{
		capacity: capacity,
		ttl:      ttl,
		order:    list.New(),
		items:    make(map[string]*list.Element, capacity),
		now:      time.Now,
	}
}

// Get returns the cached value and promotes it to most recently used.
// Entries older than the TTL are evicted and reported absent.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return zero, false
	}
	e := el.Value.(*entry[V])
	if c.now().Sub(e.insertedAt) >= c.ttl {
		c.order.Remove(el)
		delete(c.items, key)
		return zero, false
	}
	c.order.MoveToFront(el)
	return e.val, true
}

// Set inserts or overwrites key. Overwriting resets the entry's age.
// If the cache grows past capacity the least recently used entry is evicted.
func (c *Cache[V]) Set(key string, val V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry[V])
		e.val = val
		e.insertedAt = c.now()
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&entry[V]{key: key, val: val, insertedAt: c.now()})
	c.items[key] = el

	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*entry[V]).key)
		}
	}
}

func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
