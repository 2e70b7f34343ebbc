package halrhi

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/framegraph/rhi"
)

// spyEncoder records the commands the tests assert on and forwards
// everything to the noop encoder.
type spyEncoder struct {
	hal.CommandEncoder

	mu          sync.Mutex
	textures    []hal.TextureBarrier
	buffers     []hal.BufferBarrier
	renderPass  []*hal.RenderPassDescriptor
	clears      int
	copies      []hal.BufferTextureCopy
	destroyed   bool
	encodings   int
	endEncoding int
}

func (e *spyEncoder) BeginEncoding(label string) error {
	e.mu.Lock()
	e.encodings++
	e.mu.Unlock()
	return e.CommandEncoder.BeginEncoding(label)
}

func (e *spyEncoder) EndEncoding() (hal.CommandBuffer, error) {
	e.mu.Lock()
	e.endEncoding++
	e.mu.Unlock()
	return e.CommandEncoder.EndEncoding()
}

func (e *spyEncoder) TransitionTextures(b []hal.TextureBarrier) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.textures = append(e.textures, b...)
}

func (e *spyEncoder) TransitionBuffers(b []hal.BufferBarrier) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.buffers = append(e.buffers, b...)
}

func (e *spyEncoder) BeginRenderPass(desc *hal.RenderPassDescriptor) hal.RenderPassEncoder {
	e.mu.Lock()
	e.renderPass = append(e.renderPass, desc)
	e.mu.Unlock()
	return e.CommandEncoder.BeginRenderPass(desc)
}

func (e *spyEncoder) ClearBuffer(buf hal.Buffer, off, size uint64) {
	e.mu.Lock()
	e.clears++
	e.mu.Unlock()
}

func (e *spyEncoder) CopyTextureToBuffer(src hal.Texture, dst hal.Buffer, regions []hal.BufferTextureCopy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.copies = append(e.copies, regions...)
}

func (e *spyEncoder) Destroy() {
	e.mu.Lock()
	e.destroyed = true
	e.mu.Unlock()
}

var errViewRefused = errors.New("view refused")

// spyDevice hands out spy encoders and counts destructions.
type spyDevice struct {
	hal.Device

	mu        sync.Mutex
	encoders  []*spyEncoder
	buffers   atomic.Int32
	textures  atomic.Int32
	views     atomic.Int32
	freed     atomic.Int32
	failViews bool
}

func (d *spyDevice) CreateCommandEncoder(desc *hal.CommandEncoderDescriptor) (hal.CommandEncoder, error) {
	enc, err := d.Device.CreateCommandEncoder(desc)
	if err != nil {
		return nil, err
	}
	spy := &spyEncoder{CommandEncoder: enc}
	d.mu.Lock()
	d.encoders = append(d.encoders, spy)
	d.mu.Unlock()
	return spy, nil
}

func (d *spyDevice) CreateTextureView(tex hal.Texture, desc *hal.TextureViewDescriptor) (hal.TextureView, error) {
	if d.failViews && desc.Dimension == gputypes.TextureViewDimension2DArray {
		return nil, errViewRefused
	}
	return d.Device.CreateTextureView(tex, desc)
}

func (d *spyDevice) DestroyBuffer(b hal.Buffer)             { d.buffers.Add(1) }
func (d *spyDevice) DestroyTexture(t hal.Texture)           { d.textures.Add(1) }
func (d *spyDevice) DestroyTextureView(v hal.TextureView)   { d.views.Add(1) }
func (d *spyDevice) FreeCommandBuffer(cb hal.CommandBuffer) { d.freed.Add(1) }

func (d *spyDevice) encoder(i int) *spyEncoder {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.encoders[i]
}

// lagQueue reports completion only up to what the test allows.
type lagQueue struct {
	hal.Queue
	done atomic.Uint64
}

func (q *lagQueue) PollCompleted() uint64 {
	return min(q.done.Load(), q.Queue.PollCompleted())
}

type fixture struct {
	dev   *Device
	spy   *spyDevice
	queue *lagQueue
}

// newFixture opens a noop device. With lag set the queue never reports a
// submission as completed until the test calls complete.
func newFixture(t *testing.T, lag bool) *fixture {
	t.Helper()
	open, err := (&noop.Adapter{}).Open(gputypes.Features(0), gputypes.DefaultLimits())
	require.NoError(t, err)
	spy := &spyDevice{Device: open.Device}
	q := &lagQueue{Queue: open.Queue}
	if !lag {
		q.done.Store(^uint64(0))
	}
	dev, err := New(spy, q)
	require.NoError(t, err)
	t.Cleanup(dev.Close)
	return &fixture{dev: dev, spy: spy, queue: q}
}

func (f *fixture) complete(idx uint64) { f.queue.done.Store(idx) }

func colorImage(label string) rhi.ImageDesc {
	return rhi.ImageDesc{
		Label:  label,
		Width:  16,
		Height: 8,
		Format: gputypes.TextureFormatRGBA8Unorm,
	}
}

func hostBuffer(label string, n uint32, mem rhi.MemoryUsage) rhi.BufferDesc {
	return rhi.BufferDesc{Label: label, ElementSize: 4, Count: n, Memory: mem}
}
