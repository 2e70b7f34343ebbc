// Package transient implements the pool that backs frame graph resources.
//
// A System lives for one graph. It binds every logical resource handle to a
// physical resource, either by creating one through the device or, when
// aliasing is enabled, by reusing a resource surrendered earlier in the same
// graph whose description hashes identically. A Heap carries released
// resources over to later graphs.
package transient

import (
	"fmt"
	"log/slog"

	"github.com/gogpu/framegraph/rhi"
)

// Handle is the graph-scoped raw id of a logical resource.
type Handle uint32

type binding struct {
	resource rhi.Resource
	hash     uint64
	// original is set on the handle that caused the allocation. Aliased
	// handles share the resource but do not own it.
	original bool
	external bool
	// donor is the handle whose surrendered resource this one reuses.
	donor   Handle
	aliased bool
}

// System binds logical handles to physical resources for one graph.
//
// System is not safe for concurrent mutation. The frame graph acquires and
// surrenders strictly before fanning recording out, and only reads bindings
// while ranges record.
type System struct {
	device   rhi.Device
	heap     *Heap
	aliasing bool
	logger   *slog.Logger

	bound       map[Handle]*binding
	surrendered map[uint64][]Handle
	allocated   uint64
	reused      int
}

// Option configures a System.
type Option func(*System)

// WithAliasing enables reuse of surrendered resources within the graph.
func WithAliasing(enabled bool) Option {
	return func(s *System) { s.aliasing = enabled }
}

// WithHeap lets the system draw from and return resources to a cross-graph
// heap.
func WithHeap(h *Heap) Option {
	return func(s *System) { s.heap = h }
}

// WithLogger sets the logger for acquisition diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *System) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a System that allocates through device.
func New(device rhi.Device, opts ...Option) *System {
	s := &System{
		device:      device,
		aliasing:    true,
		logger:      slog.New(slog.DiscardHandler),
		bound:       make(map[Handle]*binding),
		surrendered: make(map[uint64][]Handle),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AcquireImage returns the image bound to h, binding one first if needed.
func (s *System) AcquireImage(h Handle, desc rhi.ImageDesc) (rhi.Image, error) {
	r, err := s.acquire(h, desc.Hash(), func() (rhi.Resource, error) {
		return s.device.CreateImage(desc)
	})
	if err != nil {
		return nil, fmt.Errorf("transient: acquire image %q: %w", desc.Label, err)
	}
	img, ok := r.(rhi.Image)
	if !ok {
		panic(fmt.Sprintf("transient: handle %d is bound to %T, not an image", h, r))
	}
	return img, nil
}

// AcquireBuffer returns the buffer bound to h, binding one first if needed.
func (s *System) AcquireBuffer(h Handle, desc rhi.BufferDesc) (rhi.Buffer, error) {
	r, err := s.acquire(h, desc.Hash(), func() (rhi.Resource, error) {
		return s.device.CreateBuffer(desc)
	})
	if err != nil {
		return nil, fmt.Errorf("transient: acquire buffer %q: %w", desc.Label, err)
	}
	return asBuffer(h, r), nil
}

// AcquireUniformBuffer is AcquireBuffer for uniform buffers. Uniform buffers
// are allocated through their own device entry point and never alias storage
// buffers because their usage, and so their hash, differs.
func (s *System) AcquireUniformBuffer(h Handle, desc rhi.BufferDesc) (rhi.Buffer, error) {
	r, err := s.acquire(h, desc.Hash(), func() (rhi.Resource, error) {
		return s.device.CreateUniformBuffer(desc)
	})
	if err != nil {
		return nil, fmt.Errorf("transient: acquire uniform buffer %q: %w", desc.Label, err)
	}
	return asBuffer(h, r), nil
}

func asBuffer(h Handle, r rhi.Resource) rhi.Buffer {
	buf, ok := r.(rhi.Buffer)
	if !ok {
		panic(fmt.Sprintf("transient: handle %d is bound to %T, not a buffer", h, r))
	}
	return buf
}

func (s *System) acquire(h Handle, hash uint64, create func() (rhi.Resource, error)) (rhi.Resource, error) {
	if b, ok := s.bound[h]; ok {
		return b.resource, nil
	}

	if s.aliasing {
		if stack := s.surrendered[hash]; len(stack) > 0 {
			donor := stack[len(stack)-1]
			s.surrendered[hash] = stack[:len(stack)-1]
			r := s.bound[donor].resource
			s.bound[h] = &binding{resource: r, hash: hash, donor: donor, aliased: true}
			s.reused++
			s.logger.Debug("transient: aliased resource",
				"handle", h, "donor", donor, "label", r.Label())
			return r, nil
		}
	}

	if s.heap != nil {
		if r, ok := s.heap.Take(hash); ok {
			s.bound[h] = &binding{resource: r, hash: hash, original: true}
			s.allocated += r.ByteSize()
			s.logger.Debug("transient: reused heap resource", "handle", h, "label", r.Label())
			return r, nil
		}
	}

	r, err := create()
	if err != nil {
		return nil, err
	}
	s.bound[h] = &binding{resource: r, hash: hash, original: true}
	s.allocated += r.ByteSize()
	s.logger.Debug("transient: allocated resource",
		"handle", h, "label", r.Label(), "bytes", r.ByteSize())
	return r, nil
}

// AddExternal binds a resource owned outside the graph. External resources
// are never surrendered, released or counted.
func (s *System) AddExternal(h Handle, r rhi.Resource) {
	s.bound[h] = &binding{resource: r, external: true}
}

// Surrender makes the resource bound to h available to later acquisitions
// with the same hash. Surrendering an unbound or external handle is a no-op.
func (s *System) Surrender(h Handle, hash uint64) {
	b, ok := s.bound[h]
	if !ok || b.external {
		return
	}
	s.surrendered[hash] = append(s.surrendered[hash], h)
}

// Lookup returns the resource bound to h.
func (s *System) Lookup(h Handle) (rhi.Resource, bool) {
	b, ok := s.bound[h]
	if !ok {
		return nil, false
	}
	return b.resource, true
}

// Donor reports which earlier handle's resource h was aliased onto.
func (s *System) Donor(h Handle) (Handle, bool) {
	b, ok := s.bound[h]
	if !ok || !b.aliased {
		return 0, false
	}
	return b.donor, true
}

// TotalAllocatedSize returns the bytes this system brought into use.
// Aliased and external resources are not counted.
func (s *System) TotalAllocatedSize() uint64 {
	return s.allocated
}

// Reused returns how many acquisitions were served by aliasing.
func (s *System) Reused() int {
	return s.reused
}

// Release hands every owned resource back to the heap, or to the device when
// there is no heap, and forgets all bindings. Resources in extracted are
// skipped because their ownership has moved to the caller.
func (s *System) Release(extracted map[rhi.Resource]bool) {
	for _, b := range s.bound {
		if !b.original || b.external || extracted[b.resource] {
			continue
		}
		if s.heap != nil {
			s.heap.Put(b.hash, b.resource)
		} else {
			s.device.Release(b.resource)
		}
	}
	clear(s.bound)
	clear(s.surrendered)
}
