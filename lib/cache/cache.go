// Package cache provides a generic time-bounded cache that wraps producer functions.
//
// A value produced for a key is served until its ttl elapses, after which the next
// read runs the producer again. Producer failures are never stored.
//
// The check-then-store is not atomic: two callers missing the same key at the
// same time will both run the producer and the last one to finish wins. This
// only costs a wasted fetch.
//
// Entries expire lazily on read, a TTL owns no goroutines and needs no closing.
package cache

import (
	"math"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// Producer produces the value for a cache miss.
type Producer[V any] func() (V, error)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTL is a time-bounded cache holding at most MaxEntries values (0 means unbounded),
// evicting the least recently used entry on overflow.
type TTL[K comparable, V any] struct {
	ttl     time.Duration
	now     func() time.Time
	mutex   sync.Mutex
	entries *simplelru.LRU[K, entry[V]]
}

func NewTTL[K comparable, V any](maxEntries int, ttl time.Duration) *TTL[K, V] {
	if maxEntries <= 0 {
		maxEntries = math.MaxInt
	}
	entries, err := simplelru.NewLRU[K, entry[V]](maxEntries, nil)
	if err != nil {
		panic(err)
	}
	return &TTL[K, V]{
		ttl:     ttl,
		now:     time.Now,
		entries: entries,
	}
}

// Get returns the cached value for key if it has not expired.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	ent, ok := c.entries.Get(key)
	if !ok {
		var zero V
		return zero, false
	}
	if c.ttl > 0 && !c.now().Before(ent.expiresAt) {
		c.entries.Remove(key)
		var zero V
		return zero, false
	}
	return ent.value, true
}

// Set stores a value for key, expiring ttl from now.
func (c *TTL[K, V]) Set(key K, value V) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.entries.Add(key, entry[V]{value: value, expiresAt: c.now().Add(c.ttl)})
}

// GetOrCompute returns the cached value for key, or runs produce, stores its
// result and returns it.
func (c *TTL[K, V]) GetOrCompute(key K, produce Producer[V]) (V, error) {
	if value, ok := c.Get(key); ok {
		return value, nil
	}
	value, err := produce()
	if err != nil {
		var zero V
		return zero, err
	}
	c.Set(key, value)
	return value, nil
}

// Invalidate removes key immediately.
func (c *TTL[K, V]) Invalidate(key K) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.entries.Remove(key)
}

// Clear removes every entry.
func (c *TTL[K, V]) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.entries.Purge()
}

// Len returns the number of entries that have not expired.
func (c *TTL[K, V]) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.ttl > 0 {
		now := c.now()
		for _, key := range c.entries.Keys() {
			ent, ok := c.entries.Peek(key)
			if ok && !now.Before(ent.expiresAt) {
				c.entries.Remove(key)
			}
		}
	}
	return c.entries.Len()
}

func (c *TTL[K, V]) Lifetime() time.Duration {
	return c.ttl
}
