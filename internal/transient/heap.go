package transient

import (
	"github.com/gogpu/framegraph/internal/cache"
	"github.com/gogpu/framegraph/rhi"
)

// DefaultHeapBudget is the byte budget of a heap created with a zero budget.
const DefaultHeapBudget = 512 << 20

// Heap keeps backing resources alive between graphs so the next frame can
// pick them up by structural hash instead of allocating again. Resources that
// fall out of the byte budget are released to the device.
//
// Heap is safe for concurrent use.
type Heap struct {
	device rhi.Device
	free   *cache.Cache[uint64, rhi.Resource]
}

// NewHeap creates a heap that releases evicted resources to device.
func NewHeap(device rhi.Device, budget uint64) *Heap {
	if budget == 0 {
		budget = DefaultHeapBudget
	}
	h := &Heap{device: device}
	h.free = cache.New[uint64, rhi.Resource](budget, func(_ uint64, r rhi.Resource) {
		device.Release(r)
	})
	return h
}

// Put parks r under hash.
func (h *Heap) Put(hash uint64, r rhi.Resource) {
	h.free.Put(hash, r, r.ByteSize())
}

// Take returns a parked resource with the given hash.
func (h *Heap) Take(hash uint64) (rhi.Resource, bool) {
	return h.free.Take(hash)
}

// Len returns the number of parked resources.
func (h *Heap) Len() int { return h.free.Len() }

// Stats returns the underlying cache statistics.
func (h *Heap) Stats() cache.Stats { return h.free.Stats() }

// Purge releases every parked resource.
func (h *Heap) Purge() { h.free.Clear() }
