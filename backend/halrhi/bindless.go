package halrhi

import (
	"sync"

	"github.com/gogpu/framegraph/rhi"
)

// slots is a fixed-capacity index allocator that reuses freed indices.
type slots[T any] struct {
	items []T
	used  []bool
	free  []rhi.BindlessIndex
	limit int
}

func (s *slots[T]) alloc(v T) rhi.BindlessIndex {
	if n := len(s.free); n > 0 {
		idx := s.free[n-1]
		s.free = s.free[:n-1]
		s.items[idx], s.used[idx] = v, true
		return idx
	}
	if len(s.items) >= s.limit {
		return rhi.InvalidBindlessIndex
	}
	s.items = append(s.items, v)
	s.used = append(s.used, true)
	return rhi.BindlessIndex(len(s.items) - 1)
}

func (s *slots[T]) release(idx rhi.BindlessIndex) bool {
	if int(idx) >= len(s.items) || !s.used[idx] {
		return false
	}
	var zero T
	s.items[idx], s.used[idx] = zero, false
	s.free = append(s.free, idx)
	return true
}

func (s *slots[T]) get(idx rhi.BindlessIndex) (T, bool) {
	if int(idx) >= len(s.items) || !s.used[idx] {
		var zero T
		return zero, false
	}
	return s.items[idx], true
}

func (s *slots[T]) live() int { return len(s.items) - len(s.free) }

// BindlessTable is an rhi.BindlessRegistry keeping one index space for
// buffers and one per image view type. Renderers read the table when they
// build their bind groups.
type BindlessTable struct {
	mu       sync.Mutex
	capacity int
	buffers  slots[rhi.Buffer]
	views    map[rhi.ViewType]*slots[rhi.ImageView]
	dirty    int
	prepared int
}

var _ rhi.BindlessRegistry = (*BindlessTable)(nil)

// NewBindlessTable returns a table holding at most capacity entries per
// index space.
func NewBindlessTable(capacity int) *BindlessTable {
	return &BindlessTable{
		capacity: capacity,
		buffers:  slots[rhi.Buffer]{limit: capacity},
		views:    make(map[rhi.ViewType]*slots[rhi.ImageView]),
	}
}

func (t *BindlessTable) viewSlots(typ rhi.ViewType) *slots[rhi.ImageView] {
	s, ok := t.views[typ]
	if !ok {
		s = &slots[rhi.ImageView]{limit: t.capacity}
		t.views[typ] = s
	}
	return s
}

func (t *BindlessTable) RegisterBuffer(b rhi.Buffer) rhi.BindlessIndex {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := t.buffers.alloc(b)
	if idx == rhi.InvalidBindlessIndex {
		slogger().Warn("halrhi: bindless buffer table full", "buffer", b.Label())
		return idx
	}
	t.dirty++
	return idx
}

func (t *BindlessTable) RegisterImageView(v rhi.ImageView) rhi.BindlessIndex {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := t.viewSlots(v.Type()).alloc(v)
	if idx == rhi.InvalidBindlessIndex {
		slogger().Warn("halrhi: bindless view table full", "image", v.Image().Label())
		return idx
	}
	t.dirty++
	return idx
}

func (t *BindlessTable) UnregisterBuffer(idx rhi.BindlessIndex) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.buffers.release(idx) {
		t.dirty++
	}
}

func (t *BindlessTable) UnregisterImageView(idx rhi.BindlessIndex, typ rhi.ViewType) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.viewSlots(typ).release(idx) {
		t.dirty++
	}
}

// PrepareForRender marks the pending changes as published.
func (t *BindlessTable) PrepareForRender() {
	t.mu.Lock()
	n := t.dirty
	t.dirty = 0
	t.prepared++
	t.mu.Unlock()
	if n > 0 {
		slogger().Debug("halrhi: bindless table updated", "changes", n)
	}
}

// Buffer returns the buffer registered at idx.
func (t *BindlessTable) Buffer(idx rhi.BindlessIndex) (rhi.Buffer, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buffers.get(idx)
}

// ImageView returns the view of the given type registered at idx.
func (t *BindlessTable) ImageView(idx rhi.BindlessIndex, typ rhi.ViewType) (rhi.ImageView, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.viewSlots(typ).get(idx)
}

// Live returns the number of registered buffers and image views.
func (t *BindlessTable) Live() (buffers, views int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.views {
		views += s.live()
	}
	return t.buffers.live(), views
}

// Prepared returns how many times PrepareForRender was called.
func (t *BindlessTable) Prepared() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.prepared
}
