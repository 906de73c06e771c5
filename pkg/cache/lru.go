package cache

import (
	"container/list"
	"sync"
)

type node[K comparable, V any] struct {
	key   K
	value V
}

// LRU is a thread-safe bounded map that evicts the least recently used key.
// Get and Put promote a key; Peek does not, so callers that manage recency
// themselves can keep list order equal to their own timestamps.
type LRU[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	items    map[K]*list.Element
	order    *list.List // front = most recent
	onEvict  func(key K, value V)
}

// Option configures an LRU.
type Option[K comparable, V any] func(*LRU[K, V])

// WithEvictCallback is called for every key dropped by capacity, RemoveOldestWhile or Clear.
// It runs with the cache lock held and must not call back into the cache.
func WithEvictCallback[K comparable, V any](fn func(key K, value V)) Option[K, V] {
	return func(c *LRU[K, V]) {
		c.onEvict = fn
	}
}

// NewLRU creates a cache holding at most capacity keys.
// The capacity must be positive, otherwise it panics.
func NewLRU[K comparable, V any](capacity int, opts ...Option[K, V]) *LRU[K, V] {
	if capacity <= 0 {
		panic("cache: LRU capacity must be positive")
	}
	c := &LRU[K, V]{
		capacity: capacity,
		items:    make(map[K]*list.Element, capacity),
		order:    list.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the value for key and marks it most recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*node[K, V]).value, true
}

// Peek returns the value for key without changing its recency.
func (c *LRU[K, V]) Peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	return el.Value.(*node[K, V]).value, true
}

// Put stores value under key as the most recent entry, evicting the oldest
// entry if the cache is over capacity. It reports whether the key existed.
func (c *LRU[K, V]) Put(key K, value V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value.(*node[K, V]).value = value
		c.order.MoveToFront(el)
		return true
	}

	c.items[key] = c.order.PushFront(&node[K, V]{key: key, value: value})
	for c.order.Len() > c.capacity {
		c.evict(c.order.Back())
	}
	return false
}

// GetOrPut returns the existing value for key, or stores and returns the one built by create.
// The key is promoted either way.
func (c *LRU[K, V]) GetOrPut(key K, create func() V) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.order.MoveToFront(el)
		return el.Value.(*node[K, V]).value, true
	}

	value := create()
	c.items[key] = c.order.PushFront(&node[K, V]{key: key, value: value})
	for c.order.Len() > c.capacity {
		c.evict(c.order.Back())
	}
	return value, false
}

// Remove deletes key without invoking the evict callback.
func (c *LRU[K, V]) Remove(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.order.Remove(el)
	delete(c.items, key)
	return el.Value.(*node[K, V]).value, true
}

// RemoveOldestWhile evicts entries from the least recent end for as long as
// pred returns true, and returns how many were removed.
func (c *LRU[K, V]) RemoveOldestWhile(pred func(key K, value V) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for el := c.order.Back(); el != nil; {
		nd := el.Value.(*node[K, V])
		if !pred(nd.key, nd.value) {
			break
		}
		prev := el.Prev()
		c.evict(el)
		el = prev
		n++
	}
	return n
}

// Len returns the number of cached keys.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Clear evicts every entry.
func (c *LRU[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		c.evict(el)
		el = prev
	}
}

// evict must be called with the lock held.
func (c *LRU[K, V]) evict(el *list.Element) {
	nd := c.order.Remove(el).(*node[K, V])
	delete(c.items, nd.key)
	if c.onEvict != nil {
		c.onEvict(nd.key, nd.value)
	}
}
