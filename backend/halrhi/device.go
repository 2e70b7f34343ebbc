package halrhi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framegraph/rhi"
)

// pollInterval is how often blocking waits poll the queue for completion.
const pollInterval = 200 * time.Microsecond

// DefaultBindlessCapacity is the number of slots per bindless table.
const DefaultBindlessCapacity = 1 << 16

// Device is an rhi.Device over a HAL device and queue.
//
// Device is safe for concurrent use. Command buffers are not.
type Device struct {
	hal      hal.Device
	queue    hal.Queue
	instance hal.Instance
	owned    bool
	info     gputypes.AdapterInfo

	tracker  *Tracker
	bindless *BindlessTable

	mu        sync.Mutex
	submitted uint64
	graveyard []grave
	closed    bool
}

// grave is a destruction deferred until the queue has completed the
// submission index it was retired at.
type grave struct {
	after   uint64
	destroy func()
}

var _ rhi.Device = (*Device)(nil)

// New wraps an existing HAL device and queue. The caller keeps ownership of
// both; Close does not destroy them.
func New(device hal.Device, queue hal.Queue) (*Device, error) {
	if device == nil || queue == nil {
		return nil, ErrNilDevice
	}
	return &Device{
		hal:      device,
		queue:    queue,
		tracker:  NewTracker(),
		bindless: NewBindlessTable(DefaultBindlessCapacity),
	}, nil
}

// NewFromProvider takes the device and queue of a provider shared with other
// gogpu packages. The provider must implement HalDevice() any and
// HalQueue() any returning hal.Device and hal.Queue.
func NewFromProvider(provider gpucontext.DeviceProvider) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoHAL
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrNoHAL)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrNoHAL)
	}
	d, err := New(device, queue)
	if err != nil {
		return nil, err
	}
	info := provider.AdapterInfo()
	d.info = gputypes.AdapterInfo{Name: info.Name, DeviceType: deviceType(info.Type)}
	return d, nil
}

func deviceType(t gpucontext.AdapterType) gputypes.DeviceType {
	switch t {
	case gpucontext.AdapterTypeDiscrete:
		return gputypes.DeviceTypeDiscreteGPU
	case gpucontext.AdapterTypeIntegrated:
		return gputypes.DeviceTypeIntegratedGPU
	case gpucontext.AdapterTypeSoftware:
		return gputypes.DeviceTypeCPU
	default:
		return gputypes.DeviceTypeOther
	}
}

// Open creates a device on the first suitable adapter of a registered HAL
// backend. Discrete and integrated GPUs are preferred over anything else.
// The device owns the HAL objects it opened and destroys them on Close.
func Open(variant gputypes.Backend) (*Device, error) {
	backend, ok := hal.GetBackend(variant)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrNoBackend, variant)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("halrhi: create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoAdapter
	}
	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("halrhi: open device: %w", err)
	}
	d, err := New(openDev.Device, openDev.Queue)
	if err != nil {
		instance.Destroy()
		return nil, err
	}
	d.instance = instance
	d.owned = true
	d.info = selected.Info
	slogger().Info("halrhi: device opened",
		"backend", variant.String(), "adapter", selected.Info.Name)
	return d, nil
}

// HAL returns the wrapped HAL device.
func (d *Device) HAL() hal.Device { return d.hal }

// Queue returns the wrapped HAL queue.
func (d *Device) Queue() hal.Queue { return d.queue }

// AdapterInfo describes the adapter the device was opened on. It is the
// zero value for devices created with New.
func (d *Device) AdapterInfo() gputypes.AdapterInfo { return d.info }

// Tracker returns the state tracker shared by every graph on this device.
func (d *Device) Tracker() *Tracker { return d.tracker }

// Bindless returns the device's bindless table.
func (d *Device) Bindless() *BindlessTable { return d.bindless }

func (d *Device) CreateImage(desc rhi.ImageDesc) (rhi.Image, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("halrhi: create image %q: zero extent", desc.Label)
	}
	tex, err := d.hal.CreateTexture(&hal.TextureDescriptor{
		Label: desc.Label,
		Size: hal.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: depthOrLayers(desc),
		},
		MipLevelCount: desc.MipCount(),
		SampleCount:   1,
		Dimension:     textureDimension(desc),
		Format:        desc.Format,
		Usage:         textureUsage(desc),
	})
	if err != nil {
		return nil, fmt.Errorf("halrhi: create image %q: %w", desc.Label, err)
	}
	img, err := d.wrap(tex, desc, true, false)
	if err != nil {
		d.hal.DestroyTexture(tex)
		return nil, err
	}
	return img, nil
}

// WrapTexture adopts a texture created elsewhere, such as a surface texture.
// The texture is never destroyed by Release; only the views the device
// created for it are.
func (d *Device) WrapTexture(tex hal.Texture, desc rhi.ImageDesc, swapchain bool) (*Image, error) {
	if tex == nil {
		return nil, fmt.Errorf("halrhi: wrap %q: nil texture", desc.Label)
	}
	return d.wrap(tex, desc, false, swapchain)
}

func (d *Device) wrap(tex hal.Texture, desc rhi.ImageDesc, owned, swapchain bool) (*Image, error) {
	dim, typ := defaultViewDimension(desc)
	layers := depthOrLayers(desc)
	if desc.Is3D() {
		layers = 1
	}
	view, err := d.hal.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:           desc.Label,
		Format:          desc.Format,
		Dimension:       dim,
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   desc.MipCount(),
		ArrayLayerCount: layers,
	})
	if err != nil {
		return nil, fmt.Errorf("halrhi: create view %q: %w", desc.Label, err)
	}
	img := &Image{dev: d, tex: tex, desc: desc, owned: owned, swapchain: swapchain}
	img.view = &ImageView{img: img, view: view, typ: typ}
	return img, nil
}

func (d *Device) CreateBuffer(desc rhi.BufferDesc) (rhi.Buffer, error) {
	buf, err := d.createBuffer(desc, false)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func (d *Device) CreateUniformBuffer(desc rhi.BufferDesc) (rhi.Buffer, error) {
	buf, err := d.createBuffer(desc, true)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func (d *Device) createBuffer(desc rhi.BufferDesc, uniform bool) (*Buffer, error) {
	if desc.ByteSize() == 0 {
		return nil, fmt.Errorf("halrhi: create buffer %q: zero size", desc.Label)
	}
	size := alignedSize(desc.ByteSize())
	buf, err := d.hal.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  size,
		Usage: bufferUsage(desc, uniform),
	})
	if err != nil {
		return nil, fmt.Errorf("halrhi: create buffer %q: %w", desc.Label, err)
	}
	return &Buffer{dev: d, buf: buf, desc: desc, size: size, uniform: uniform}, nil
}

func (d *Device) CreateFence() (rhi.Fence, error) {
	return &Fence{dev: d}, nil
}

// Release forgets the resource's tracked state and destroys it once every
// submission made so far has completed. Releasing twice is a no-op.
func (d *Device) Release(r rhi.Resource) {
	switch v := r.(type) {
	case *Image:
		if !v.released.CompareAndSwap(false, true) {
			return
		}
		d.tracker.Forget(v)
		d.retire(func() {
			v.destroyViews()
			if v.owned {
				d.hal.DestroyTexture(v.tex)
			}
		})
	case *Buffer:
		if !v.released.CompareAndSwap(false, true) {
			return
		}
		d.tracker.Forget(v)
		d.retire(func() { d.hal.DestroyBuffer(v.buf) })
	default:
		slogger().Warn("halrhi: release of foreign resource", "type", fmt.Sprintf("%T", r))
	}
}

// retire schedules destroy to run after the latest submission completes.
func (d *Device) retire(destroy func()) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		destroy()
		return
	}
	d.graveyard = append(d.graveyard, grave{after: d.submitted, destroy: destroy})
	d.mu.Unlock()
	d.Collect()
}

// Collect runs every deferred destruction whose submission has completed.
// Submit calls it; long-lived callers that stop submitting may call it
// directly.
func (d *Device) Collect() {
	completed := d.queue.PollCompleted()
	d.mu.Lock()
	var due []grave
	kept := d.graveyard[:0]
	for _, g := range d.graveyard {
		if g.after <= completed {
			due = append(due, g)
		} else {
			kept = append(kept, g)
		}
	}
	d.graveyard = kept
	d.mu.Unlock()
	for _, g := range due {
		g.destroy()
	}
}

// Pending returns the number of destructions still waiting on the GPU.
func (d *Device) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.graveyard)
}

func (d *Device) noteSubmitted(idx uint64) {
	d.mu.Lock()
	if idx > d.submitted {
		d.submitted = idx
	}
	d.mu.Unlock()
}

// poll blocks until done reports true or ctx ends.
func (d *Device) poll(ctx context.Context, done func() bool) error {
	if done() {
		return nil
	}
	t := time.NewTicker(pollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", rhi.ErrFenceTimeout, ctx.Err())
		case <-t.C:
			if done() {
				return nil
			}
		}
	}
}

func (d *Device) completed(idx uint64) bool {
	return d.queue.PollCompleted() >= idx
}

// WaitIdle blocks until every submission made so far has completed and
// then runs the deferred destructions.
func (d *Device) WaitIdle(ctx context.Context) error {
	d.mu.Lock()
	last := d.submitted
	d.mu.Unlock()
	if err := d.poll(ctx, func() bool { return d.completed(last) }); err != nil {
		return err
	}
	d.Collect()
	return nil
}

// Close waits for the GPU, destroys every deferred resource and, for
// devices created by Open, the HAL device and instance.
func (d *Device) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	graves := d.graveyard
	d.graveyard = nil
	d.mu.Unlock()

	if err := d.hal.WaitIdle(); err != nil {
		slogger().Warn("halrhi: wait idle failed", "err", err)
	}
	for _, g := range graves {
		g.destroy()
	}
	if d.owned {
		d.hal.Destroy()
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
}
