package cache

import (
	"sync"
	"testing"
)

func TestCachePutTake(t *testing.T) {
	c := New[uint64, string](0, nil)

	c.Put(1, "a", 10)
	c.Put(1, "b", 10)
	c.Put(2, "c", 10)

	if c.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", c.Len())
	}

	// Most recently parked value for a key comes back first.
	if v, ok := c.Take(1); !ok || v != "b" {
		t.Errorf("Take(1) = %q, %v; want b, true", v, ok)
	}
	if v, ok := c.Take(1); !ok || v != "a" {
		t.Errorf("Take(1) = %q, %v; want a, true", v, ok)
	}
	if _, ok := c.Take(1); ok {
		t.Error("expected bucket 1 to be empty")
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 entry left, got %d", c.Len())
	}
}

func TestCacheBudgetEviction(t *testing.T) {
	var evicted []string
	c := New[uint64, string](25, func(_ uint64, v string) {
		evicted = append(evicted, v)
	})

	c.Put(1, "old", 10)
	c.Put(2, "mid", 10)
	c.Put(3, "new", 10)

	if len(evicted) != 1 || evicted[0] != "old" {
		t.Fatalf("expected oldest entry evicted, got %v", evicted)
	}
	if _, ok := c.Take(1); ok {
		t.Error("evicted entry must not be returned")
	}
	if got := c.Stats().Cost; got != 20 {
		t.Errorf("expected cost 20, got %d", got)
	}
}

func TestCacheOversizedValue(t *testing.T) {
	var evicted int
	c := New[uint64, int](8, func(uint64, int) { evicted++ })

	c.Put(1, 1, 16)

	if evicted != 1 || c.Len() != 0 {
		t.Errorf("oversized value should be evicted at once: evicted=%d len=%d", evicted, c.Len())
	}
}

func TestCacheReparkMovesToFront(t *testing.T) {
	var evicted []int
	c := New[uint64, int](20, func(_ uint64, v int) { evicted = append(evicted, v) })

	c.Put(1, 1, 10)
	c.Put(2, 2, 10)
	v, _ := c.Take(1)
	c.Put(1, v, 10)
	c.Put(3, 3, 10)

	// Re-parking moves the value to the front, so 2 is now the oldest.
	if len(evicted) != 1 || evicted[0] != 2 {
		t.Errorf("expected value 2 evicted, got %v", evicted)
	}
}

func TestCacheClear(t *testing.T) {
	var evicted int
	c := New[uint64, int](0, func(uint64, int) { evicted++ })

	for i := range 5 {
		c.Put(uint64(i%2), i, 1)
	}
	c.Clear()

	if c.Len() != 0 {
		t.Errorf("expected 0 entries after clear, got %d", c.Len())
	}
	if evicted != 5 {
		t.Errorf("expected 5 evictions, got %d", evicted)
	}
}

func TestCacheStats(t *testing.T) {
	c := New[uint64, int](100, nil)

	c.Put(1, 1, 4)
	c.Take(1)
	c.Take(1)

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("expected 1 hit and 1 miss, got %d/%d", stats.Hits, stats.Misses)
	}
	if stats.HitRate != 0.5 {
		t.Errorf("expected hit rate 0.5, got %f", stats.HitRate)
	}
	if stats.Budget != 100 {
		t.Errorf("expected budget 100, got %d", stats.Budget)
	}
}

func TestCacheConcurrent(t *testing.T) {
	c := New[uint64, int](500, nil)
	var wg sync.WaitGroup

	for i := range 50 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := range 100 {
				c.Put(uint64(j%7), n*100+j, 1)
				c.Take(uint64((j + n) % 7))
			}
		}(i)
	}
	wg.Wait()

	if s := c.Stats(); s.Cost != uint64(s.Len) {
		t.Errorf("cost %d does not match len %d", s.Cost, s.Len)
	}
}
