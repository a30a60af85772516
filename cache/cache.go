// Package cache provides the bounded least-recently-used store used for
// upstream responses and per-client state.
package cache

import (
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrInvalidCapacity is returned by New for a capacity below one.
var ErrInvalidCapacity = errors.New("cache capacity must be positive")

// LRU is a fixed-capacity cache evicting the least recently used entry.
// Entries may carry a deadline after which lookups treat them as absent.
type LRU[V any] struct {
	capacity int
	items    *lru.Cache[uint64, *entry[V]]

	now func() time.Time
}

type entry[V any] struct {
	value   V
	expires time.Time
}

// New returns an empty LRU holding at most capacity entries.
func New[V any](capacity int) (*LRU[V], error) {
	if capacity < 1 {
		return nil, ErrInvalidCapacity
	}

	items, err := lru.New[uint64, *entry[V]](capacity)
	if err != nil {
		return nil, err
	}

	return &LRU[V]{
		capacity: capacity,
		items:    items,
		now:      time.Now,
	}, nil
}

// Get returns the value stored under key and marks it most recently used.
// An expired entry is removed and reported as a miss.
func (c *LRU[V]) Get(key uint64) (V, bool) {
	var zero V

	e, ok := c.items.Get(key)
	if !ok {
		return zero, false
	}

	if !e.expires.IsZero() && !c.now().Before(e.expires) {
		// only drop the entry we looked at, a concurrent Add may have replaced it
		if cur, ok := c.items.Peek(key); ok && cur == e {
			c.items.Remove(key)
		}
		return zero, false
	}

	return e.value, true
}

// Add stores value under key, replacing any previous entry. A positive ttl
// bounds the entry's lifetime; otherwise it lives until evicted. Adding a
// new key to a full cache evicts the least recently used entry.
func (c *LRU[V]) Add(key uint64, value V, ttl time.Duration) {
	e := &entry[V]{value: value}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}

	c.items.Add(key, e)
}

// Remove deletes key. It reports whether an entry was present.
func (c *LRU[V]) Remove(key uint64) bool {
	return c.items.Remove(key)
}

// Purge removes every entry.
func (c *LRU[V]) Purge() {
	c.items.Purge()
}

// Len returns the number of stored entries, expired ones included.
func (c *LRU[V]) Len() int {
	return c.items.Len()
}

// Cap returns the capacity given to New.
func (c *LRU[V]) Cap() int {
	return c.capacity
}
