// Package cache provides a cost-bounded LRU free list.
//
// A [Cache] maps a key to any number of parked values. Values are taken back
// out by key, most recently parked first. When the total cost of parked values
// exceeds the budget, the least recently parked values are evicted and handed
// to the eviction callback so their owner can destroy them.
//
//	c := cache.New[uint64, rhi.Image](256<<20, func(_ uint64, img rhi.Image) {
//	    device.Release(img)
//	})
//	c.Put(desc.Hash(), img, img.ByteSize())
//	img, ok := c.Take(desc.Hash())
//
// # Thread Safety
//
// Cache is safe for concurrent use and must not be copied after creation.
package cache
