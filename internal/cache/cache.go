package cache

import "sync"

// EvictFunc is called for every value pushed out of the cache by the budget
// or by Clear. It runs with the cache lock held and must not call back into
// the cache.
type EvictFunc[K comparable, V any] func(key K, value V)

// Cache is a thread-safe LRU free list with a cost budget.
// A budget of 0 means unlimited.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	buckets map[K][]*entry[K, V]
	order   list[K, V]
	cost    uint64
	budget  uint64
	onEvict EvictFunc[K, V]

	hits      uint64
	misses    uint64
	evictions uint64
}

// entry is one parked value, linked into the recency list.
type entry[K comparable, V any] struct {
	key   K
	value V
	cost  uint64
	prev  *entry[K, V]
	next  *entry[K, V]
}

// New creates a cache with the given cost budget. onEvict may be nil.
func New[K comparable, V any](budget uint64, onEvict EvictFunc[K, V]) *Cache[K, V] {
	return &Cache[K, V]{
		buckets: make(map[K][]*entry[K, V]),
		budget:  budget,
		onEvict: onEvict,
	}
}

// Put parks value under key. If the budget is exceeded afterwards, the oldest
// values are evicted until it fits again. A single value larger than the
// whole budget is evicted immediately.
func (c *Cache[K, V]) Put(key K, value V, cost uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := &entry[K, V]{key: key, value: value, cost: cost}
	c.buckets[key] = append(c.buckets[key], e)
	c.order.pushFront(e)
	c.cost += cost

	for c.budget > 0 && c.cost > c.budget {
		c.evictOldest()
	}
}

// Take removes and returns the most recently parked value for key.
func (c *Cache[K, V]) Take(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bucket := c.buckets[key]
	if len(bucket) == 0 {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++

	e := bucket[len(bucket)-1]
	c.removeEntry(e)
	return e.value, true
}

// Clear evicts every parked value.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.order.tail != nil {
		c.evictOldest()
	}
}

// Len returns the number of parked values.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.order.len
}

// Stats returns cache statistics.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Len:       c.order.len,
		Cost:      c.cost,
		Budget:    c.budget,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

// evictOldest drops the least recently parked value.
// Caller must hold c.mu.
func (c *Cache[K, V]) evictOldest() {
	e := c.order.tail
	if e == nil {
		return
	}
	c.removeEntry(e)
	c.evictions++
	if c.onEvict != nil {
		c.onEvict(e.key, e.value)
	}
}

// removeEntry unlinks e from both the bucket and the recency list.
// Caller must hold c.mu.
func (c *Cache[K, V]) removeEntry(e *entry[K, V]) {
	bucket := c.buckets[e.key]
	for i, b := range bucket {
		if b == e {
			bucket = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if len(bucket) == 0 {
		delete(c.buckets, e.key)
	} else {
		c.buckets[e.key] = bucket
	}
	c.order.unlink(e)
	c.cost -= e.cost
}

// list is a doubly-linked recency list. The head is the most recently parked
// entry, the tail the oldest. Not thread-safe.
type list[K comparable, V any] struct {
	head *entry[K, V]
	tail *entry[K, V]
	len  int
}

func (l *list[K, V]) pushFront(e *entry[K, V]) {
	e.prev = nil
	e.next = l.head
	if l.head != nil {
		l.head.prev = e
	} else {
		l.tail = e
	}
	l.head = e
	l.len++
}

func (l *list[K, V]) unlink(e *entry[K, V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		l.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		l.tail = e.prev
	}
	e.prev = nil
	e.next = nil
	l.len--
}

// Stats contains cache statistics.
type Stats struct {
	// Len is the number of parked values.
	Len int
	// Cost is the summed cost of parked values.
	Cost uint64
	// Budget is the cost budget, 0 for unlimited.
	Budget uint64
	// Hits counts Take calls that found a value.
	Hits uint64
	// Misses counts Take calls that found nothing.
	Misses uint64
	// HitRate is Hits / (Hits + Misses), 0.0 to 1.0.
	HitRate float64
	// Evictions counts values pushed out by the budget or Clear.
	Evictions uint64
}
