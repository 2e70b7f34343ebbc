// Package rhitest provides in-memory fakes of the rhi interfaces.
//
// The fakes record every command, keep buffer contents in Go slices and
// replay copies and uploads when a command buffer is submitted, so tests can
// assert both on the command stream and on the data that reached a buffer.
// Fences are only signalled when a test asks for it, unless the device was
// created with AutoSignal.
package rhitest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/framegraph/rhi"
)

// Image is a fake rhi.Image.
type Image struct {
	desc      rhi.ImageDesc
	swapchain bool
	released  atomic.Bool
}

// NewImage creates a standalone fake image.
func NewImage(desc rhi.ImageDesc) *Image {
	return &Image{desc: desc}
}

// NewSwapchainImage creates a fake image whose views report IsSwapchain.
func NewSwapchainImage(desc rhi.ImageDesc) *Image {
	return &Image{desc: desc, swapchain: true}
}

func (i *Image) Label() string       { return i.desc.Label }
func (i *Image) ByteSize() uint64    { return i.desc.ByteSize() }
func (i *Image) Desc() rhi.ImageDesc { return i.desc }
func (i *Image) Released() bool      { return i.released.Load() }
func (i *Image) View() rhi.ImageView { return &View{img: i, typ: defaultViewType(i.desc), mip: -1, layer: -1} }
func (i *Image) ArrayView(mip uint32) rhi.ImageView {
	return &View{img: i, typ: rhi.View2DArray, mip: int(mip), layer: -1}
}

func (i *Image) MipView(mip, layer uint32) rhi.ImageView {
	return &View{img: i, typ: rhi.View2D, mip: int(mip), layer: int(layer)}
}

func defaultViewType(d rhi.ImageDesc) rhi.ViewType {
	switch {
	case d.Is3D():
		return rhi.View3D
	case d.IsCubeMap:
		return rhi.ViewCube
	case d.LayerCount() > 1:
		return rhi.View2DArray
	default:
		return rhi.View2D
	}
}

// View is a fake rhi.ImageView. Mip and Layer are -1 when the view covers
// all of them.
type View struct {
	img   *Image
	typ   rhi.ViewType
	mip   int
	layer int
}

func (v *View) Image() rhi.Image   { return v.img }
func (v *View) Type() rhi.ViewType { return v.typ }
func (v *View) IsSwapchain() bool  { return v.img.swapchain }
func (v *View) Mip() int           { return v.mip }
func (v *View) Layer() int         { return v.layer }

// Buffer is a fake rhi.Buffer backed by a byte slice.
type Buffer struct {
	desc     rhi.BufferDesc
	uniform  bool
	mu       sync.Mutex
	data     []byte
	released atomic.Bool
}

// NewBuffer creates a standalone fake buffer.
func NewBuffer(desc rhi.BufferDesc) *Buffer {
	return &Buffer{desc: desc, data: make([]byte, desc.ByteSize())}
}

func (b *Buffer) Label() string        { return b.desc.Label }
func (b *Buffer) ByteSize() uint64     { return b.desc.ByteSize() }
func (b *Buffer) Desc() rhi.BufferDesc { return b.desc }
func (b *Buffer) Released() bool       { return b.released.Load() }
func (b *Buffer) IsUniform() bool      { return b.uniform }

// Read copies buffer contents into dst.
func (b *Buffer) Read(offset uint64, dst []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if offset+uint64(len(dst)) > uint64(len(b.data)) {
		return fmt.Errorf("rhitest: read [%d,%d) out of range for %d bytes", offset, offset+uint64(len(dst)), len(b.data))
	}
	copy(dst, b.data[offset:])
	return nil
}

// Bytes returns a copy of the buffer contents.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.data...)
}

func (b *Buffer) write(offset uint64, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	copy(b.data[offset:], data)
}

// Fence is a fake rhi.Fence signalled explicitly or on submit.
type Fence struct {
	once sync.Once
	ch   chan struct{}
}

// NewFence creates an unsignalled fence.
func NewFence() *Fence {
	return &Fence{ch: make(chan struct{})}
}

// Signal marks the fence signalled. Signal is idempotent.
func (f *Fence) Signal() {
	f.once.Do(func() { close(f.ch) })
}

// Signalled reports whether Signal has been called.
func (f *Fence) Signalled() bool {
	select {
	case <-f.ch:
		return true
	default:
		return false
	}
}

// Wait blocks until the fence is signalled or ctx ends.
func (f *Fence) Wait(ctx context.Context) error {
	select {
	case <-f.ch:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", rhi.ErrFenceTimeout, ctx.Err())
	}
}
