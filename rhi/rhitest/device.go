package rhitest

import (
	"errors"
	"sync"

	"github.com/gogpu/framegraph/rhi"
)

// ErrInjected is returned by a Device whose FailCreate is set.
var ErrInjected = errors.New("rhitest: injected failure")

// Device is a fake rhi.Device that remembers what it created and released.
type Device struct {
	// AutoSignal signals every flushed fence when its command buffer is
	// submitted.
	AutoSignal bool
	// FailCreate makes every Create call fail with ErrInjected.
	FailCreate bool
	// FailSubmit makes Submit of its command buffers fail with ErrInjected.
	FailSubmit bool

	mu       sync.Mutex
	created  []rhi.Resource
	released []rhi.Resource
	fences   []*Fence
}

var _ rhi.Device = (*Device)(nil)

// NewDevice returns an empty fake device.
func NewDevice() *Device { return &Device{} }

func (d *Device) CreateImage(desc rhi.ImageDesc) (rhi.Image, error) {
	if d.FailCreate {
		return nil, ErrInjected
	}
	img := NewImage(desc)
	d.track(img)
	return img, nil
}

func (d *Device) CreateBuffer(desc rhi.BufferDesc) (rhi.Buffer, error) {
	if d.FailCreate {
		return nil, ErrInjected
	}
	buf := NewBuffer(desc)
	d.track(buf)
	return buf, nil
}

func (d *Device) CreateUniformBuffer(desc rhi.BufferDesc) (rhi.Buffer, error) {
	if d.FailCreate {
		return nil, ErrInjected
	}
	buf := NewBuffer(desc)
	buf.uniform = true
	d.track(buf)
	return buf, nil
}

func (d *Device) CreateFence() (rhi.Fence, error) {
	if d.FailCreate {
		return nil, ErrInjected
	}
	f := NewFence()
	d.mu.Lock()
	d.fences = append(d.fences, f)
	d.mu.Unlock()
	return f, nil
}

func (d *Device) Release(r rhi.Resource) {
	switch v := r.(type) {
	case *Image:
		v.released.Store(true)
	case *Buffer:
		v.released.Store(true)
	}
	d.mu.Lock()
	d.released = append(d.released, r)
	d.mu.Unlock()
}

func (d *Device) track(r rhi.Resource) {
	d.mu.Lock()
	d.created = append(d.created, r)
	d.mu.Unlock()
}

// Created returns every resource created so far.
func (d *Device) Created() []rhi.Resource {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]rhi.Resource(nil), d.created...)
}

// Released returns every resource released so far.
func (d *Device) Released() []rhi.Resource {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]rhi.Resource(nil), d.released...)
}

// Fences returns every fence created so far.
func (d *Device) Fences() []*Fence {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Fence(nil), d.fences...)
}

// SignalAll signals every fence the device has created.
func (d *Device) SignalAll() {
	for _, f := range d.Fences() {
		f.Signal()
	}
}

// Tracker is a fake rhi.StateTracker backed by a map.
type Tracker struct {
	mu     sync.Mutex
	states map[rhi.Resource]rhi.ResourceState
}

var _ rhi.StateTracker = (*Tracker)(nil)

// NewTracker returns an empty tracker. Unknown resources report the zero
// state.
func NewTracker() *Tracker {
	return &Tracker{states: make(map[rhi.Resource]rhi.ResourceState)}
}

func (t *Tracker) CurrentState(r rhi.Resource) rhi.ResourceState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.states[r]
}

func (t *Tracker) SetCurrentState(r rhi.Resource, s rhi.ResourceState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states[r] = s
}

// Registry is a fake rhi.BindlessRegistry handing out sequential indices.
type Registry struct {
	mu       sync.Mutex
	next     rhi.BindlessIndex
	buffers  map[rhi.BindlessIndex]rhi.Buffer
	views    map[rhi.BindlessIndex]rhi.ImageView
	prepared int
}

var _ rhi.BindlessRegistry = (*Registry)(nil)

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		buffers: make(map[rhi.BindlessIndex]rhi.Buffer),
		views:   make(map[rhi.BindlessIndex]rhi.ImageView),
	}
}

func (r *Registry) RegisterBuffer(b rhi.Buffer) rhi.BindlessIndex {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.next
	r.next++
	r.buffers[idx] = b
	return idx
}

func (r *Registry) RegisterImageView(v rhi.ImageView) rhi.BindlessIndex {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.next
	r.next++
	r.views[idx] = v
	return idx
}

func (r *Registry) UnregisterBuffer(idx rhi.BindlessIndex) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.buffers, idx)
}

func (r *Registry) UnregisterImageView(idx rhi.BindlessIndex, _ rhi.ViewType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.views, idx)
}

func (r *Registry) PrepareForRender() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prepared++
}

// Live returns how many entries are currently registered.
func (r *Registry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buffers) + len(r.views)
}

// Prepared returns how often PrepareForRender was called.
func (r *Registry) Prepared() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.prepared
}

// Jobs is a fake rhi.JobSystem that runs every task on its own goroutine and
// counts submissions.
type Jobs struct {
	mu        sync.Mutex
	submitted int
}

var _ rhi.JobSystem = (*Jobs)(nil)

type jobFuture struct{ done chan struct{} }

func (f jobFuture) Wait() { <-f.done }

func (j *Jobs) Submit(task func()) rhi.Future {
	j.mu.Lock()
	j.submitted++
	j.mu.Unlock()

	f := jobFuture{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		task()
	}()
	return f
}

// Submitted returns the number of tasks submitted.
func (j *Jobs) Submitted() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.submitted
}
