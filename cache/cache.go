// Package cache implements a bounded LRU cache with per-entry TTL.
//
// Expiry is lazy: entries are checked against their deadline when read and
// removed at that point. There is no background sweeper goroutine, so an
// idle cache costs nothing and tests need no teardown.
package cache

import (
	"sync"
	"time"
)

// Stats holds cumulative cache counters.
type Stats struct {
	Hits        uint64
	Misses      uint64
	Evictions   uint64
	Expirations uint64
}

type entry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
	prev      *entry[V]
	next      *entry[V]
}

// Cache is a fixed-capacity LRU map with a uniform TTL per instance.
// All methods are safe for concurrent use.
type Cache[V any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	entries  map[string]*entry[V]
	head     *entry[V] // most recently used
	tail     *entry[V] // least recently used
	stats    Stats
}

// New creates a cache holding at most capacity entries, each valid for ttl
// after its last Set. A capacity below 1 is treated as 1.
func New[V any](capacity int, ttl time.Duration) *Cache[V] {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache[V]{
		capacity: capacity,
		ttl:      ttl,
		entries:  make(map[string]*entry[V], capacity),
	}
}

// Get returns the value for key if it is present and unexpired. A hit moves
// the entry to the most-recently-used position. An expired entry is removed
// and reported as a miss.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return zero, false
	}
	if time.Now().After(e.expiresAt) {
		c.remove(e)
		c.stats.Expirations++
		c.stats.Misses++
		return zero, false
	}
	c.moveToFront(e)
	c.stats.Hits++
	return e.value, true
}

// Set stores value under key, refreshing the TTL. When the cache is full the
// least-recently-used entry is evicted first.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		e.expiresAt = time.Now().Add(c.ttl)
		c.moveToFront(e)
		return
	}

	if len(c.entries) >= c.capacity {
		if c.tail != nil {
			c.remove(c.tail)
			c.stats.Evictions++
		}
	}

	e := &entry[V]{key: key, value: value, expiresAt: time.Now().Add(c.ttl)}
	c.entries[key] = e
	c.pushFront(e)
}

// Delete removes key if present.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.remove(e)
	}
}

// Len reports the number of stored entries, including any that have expired
// but have not been read since.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a copy of the cumulative counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Cache[V]) pushFront(e *entry[V]) {
	e.prev = nil
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *Cache[V]) moveToFront(e *entry[V]) {
	if c.head == e {
		return
	}
	c.unlink(e)
	c.pushFront(e)
}

func (c *Cache[V]) remove(e *entry[V]) {
	c.unlink(e)
	delete(c.entries, e.key)
}

func (c *Cache[V]) unlink(e *entry[V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else if c.head == e {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else if c.tail == e {
		c.tail = e.prev
	}
	e.prev = nil
	e.next = nil
}
