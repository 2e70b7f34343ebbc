package halrhi

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framegraph/rhi"
)

// Image is an rhi.Image backed by a hal.Texture.
type Image struct {
	dev       *Device
	tex       hal.Texture
	desc      rhi.ImageDesc
	owned     bool
	swapchain bool
	released  atomic.Bool

	view *ImageView

	mu    sync.Mutex
	views map[viewKey]*ImageView
}

type viewKey struct {
	mip   uint32
	layer uint32
	array bool
}

var _ rhi.Image = (*Image)(nil)

func (i *Image) Label() string       { return i.desc.Label }
func (i *Image) ByteSize() uint64    { return i.desc.ByteSize() }
func (i *Image) Desc() rhi.ImageDesc { return i.desc }

// Texture returns the underlying HAL texture.
func (i *Image) Texture() hal.Texture { return i.tex }

// View returns the view created with the image.
func (i *Image) View() rhi.ImageView { return i.view }

// MipView returns a 2D view of one mip level and layer. Views are created
// on first use and cached. If the HAL refuses the view the default view is
// returned instead.
func (i *Image) MipView(mip, layer uint32) rhi.ImageView {
	return i.subView(viewKey{mip: mip, layer: layer}, &hal.TextureViewDescriptor{
		Label:           fmt.Sprintf("%s mip %d layer %d", i.desc.Label, mip, layer),
		Format:          i.desc.Format,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          gputypes.TextureAspectAll,
		BaseMipLevel:    mip,
		MipLevelCount:   1,
		BaseArrayLayer:  layer,
		ArrayLayerCount: 1,
	}, rhi.View2D)
}

// ArrayView returns a 2D array view of every layer of one mip level.
func (i *Image) ArrayView(mip uint32) rhi.ImageView {
	return i.subView(viewKey{mip: mip, array: true}, &hal.TextureViewDescriptor{
		Label:           fmt.Sprintf("%s mip %d array", i.desc.Label, mip),
		Format:          i.desc.Format,
		Dimension:       gputypes.TextureViewDimension2DArray,
		Aspect:          gputypes.TextureAspectAll,
		BaseMipLevel:    mip,
		MipLevelCount:   1,
		BaseArrayLayer:  0,
		ArrayLayerCount: i.desc.LayerCount(),
	}, rhi.View2DArray)
}

func (i *Image) subView(key viewKey, desc *hal.TextureViewDescriptor, typ rhi.ViewType) rhi.ImageView {
	i.mu.Lock()
	defer i.mu.Unlock()
	if v, ok := i.views[key]; ok {
		return v
	}
	hv, err := i.dev.hal.CreateTextureView(i.tex, desc)
	if err != nil {
		slogger().Warn("halrhi: create view failed, using default view",
			"image", i.desc.Label, "view", desc.Label, "err", err)
		return i.view
	}
	v := &ImageView{img: i, view: hv, typ: typ}
	if i.views == nil {
		i.views = make(map[viewKey]*ImageView)
	}
	i.views[key] = v
	return v
}

// destroyViews destroys every view of the image, the default one included.
func (i *Image) destroyViews() {
	i.mu.Lock()
	views := i.views
	i.views = nil
	i.mu.Unlock()
	for _, v := range views {
		i.dev.hal.DestroyTextureView(v.view)
	}
	if i.view != nil && i.view.view != nil {
		i.dev.hal.DestroyTextureView(i.view.view)
	}
}

func (i *Image) fullRange() hal.TextureRange {
	layers := i.desc.LayerCount()
	if i.desc.Is3D() {
		layers = 1
	}
	return hal.TextureRange{
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   i.desc.MipCount(),
		ArrayLayerCount: layers,
	}
}

// ImageView is an rhi.ImageView backed by a hal.TextureView.
type ImageView struct {
	img  *Image
	view hal.TextureView
	typ  rhi.ViewType
}

var _ rhi.ImageView = (*ImageView)(nil)

func (v *ImageView) Image() rhi.Image   { return v.img }
func (v *ImageView) Type() rhi.ViewType { return v.typ }
func (v *ImageView) IsSwapchain() bool  { return v.img.swapchain }

// TextureView returns the underlying HAL view.
func (v *ImageView) TextureView() hal.TextureView { return v.view }

// Buffer is an rhi.Buffer backed by a hal.Buffer.
type Buffer struct {
	dev      *Device
	buf      hal.Buffer
	desc     rhi.BufferDesc
	size     uint64
	uniform  bool
	released atomic.Bool
}

var _ rhi.Buffer = (*Buffer)(nil)

func (b *Buffer) Label() string        { return b.desc.Label }
func (b *Buffer) ByteSize() uint64     { return b.desc.ByteSize() }
func (b *Buffer) Desc() rhi.BufferDesc { return b.desc }

// Raw returns the underlying HAL buffer.
func (b *Buffer) Raw() hal.Buffer { return b.buf }

// IsUniform reports whether the buffer was created as a uniform buffer.
func (b *Buffer) IsUniform() bool { return b.uniform }

// Read maps the buffer and copies len(dst) bytes starting at offset.
func (b *Buffer) Read(offset uint64, dst []byte) error {
	if b.released.Load() {
		return fmt.Errorf("read %q: %w", b.desc.Label, ErrReleased)
	}
	if b.desc.Memory == rhi.MemoryGPUOnly {
		return fmt.Errorf("read %q: %w", b.desc.Label, ErrNotHostVisible)
	}
	if len(dst) == 0 {
		return nil
	}
	n := uint64(len(dst))
	if offset+n > b.size {
		return fmt.Errorf("read %q: range [%d, %d) exceeds size %d", b.desc.Label, offset, offset+n, b.size)
	}
	mapping, err := b.dev.hal.MapBuffer(b.buf, offset, n)
	if err != nil {
		return fmt.Errorf("map %q: %w", b.desc.Label, err)
	}
	copy(dst, unsafe.Slice((*byte)(mapping.Ptr), n))
	if err := b.dev.hal.UnmapBuffer(b.buf); err != nil {
		return fmt.Errorf("unmap %q: %w", b.desc.Label, err)
	}
	return nil
}

func asImage(r rhi.Resource) *Image {
	img, ok := r.(*Image)
	if !ok {
		panic(fmt.Sprintf("halrhi: %T is not a halrhi image", r))
	}
	return img
}

func asBuffer(r rhi.Resource) *Buffer {
	buf, ok := r.(*Buffer)
	if !ok {
		panic(fmt.Sprintf("halrhi: %T is not a halrhi buffer", r))
	}
	return buf
}

func textureDimension(d rhi.ImageDesc) gputypes.TextureDimension {
	if d.Dimension == gputypes.TextureDimensionUndefined {
		return gputypes.TextureDimension2D
	}
	return d.Dimension
}

func defaultViewDimension(d rhi.ImageDesc) (gputypes.TextureViewDimension, rhi.ViewType) {
	switch {
	case d.Is3D():
		return gputypes.TextureViewDimension3D, rhi.View3D
	case d.IsCubeMap:
		return gputypes.TextureViewDimensionCube, rhi.ViewCube
	case d.LayerCount() > 1:
		return gputypes.TextureViewDimension2DArray, rhi.View2DArray
	default:
		return gputypes.TextureViewDimension2D, rhi.View2D
	}
}

// depthOrLayers is the third extent of a texture: depth for volumes, array
// layers otherwise. Cube maps always have at least six faces.
func depthOrLayers(d rhi.ImageDesc) uint32 {
	switch {
	case d.Is3D():
		return d.DepthCount()
	case d.IsCubeMap:
		return max(d.LayerCount(), 6)
	default:
		return d.LayerCount()
	}
}

// textureUsage adds the usages the frame graph may transition any image
// into on top of the requested ones.
func textureUsage(d rhi.ImageDesc) gputypes.TextureUsage {
	u := d.Usage | gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst |
		gputypes.TextureUsageTextureBinding
	if !d.Is3D() {
		u |= gputypes.TextureUsageRenderAttachment
	}
	if !d.IsDepth() {
		u |= gputypes.TextureUsageStorageBinding
	}
	return u
}

func bufferUsage(d rhi.BufferDesc, uniform bool) gputypes.BufferUsage {
	u := d.Usage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst
	switch d.Memory {
	case rhi.MemoryCPUToGPU:
		u |= gputypes.BufferUsageMapWrite
	case rhi.MemoryGPUToCPU:
		u |= gputypes.BufferUsageMapRead
	default:
		u |= gputypes.BufferUsageStorage
	}
	if uniform {
		u |= gputypes.BufferUsageUniform
	}
	return u
}

// alignedSize rounds n up to the 4 byte copy alignment.
func alignedSize(n uint64) uint64 { return (n + 3) &^ 3 }

// textureUsageFor maps a tracked state to the HAL usage it implies.
func textureUsageFor(s rhi.ResourceState) gputypes.TextureUsage {
	switch s.Layout {
	case rhi.LayoutRenderTarget, rhi.LayoutDepthStencilWrite, rhi.LayoutDepthStencilRead:
		return gputypes.TextureUsageRenderAttachment
	case rhi.LayoutShaderRead:
		return gputypes.TextureUsageTextureBinding
	case rhi.LayoutShaderWrite, rhi.LayoutGeneral:
		return gputypes.TextureUsageStorageBinding
	case rhi.LayoutCopySource:
		return gputypes.TextureUsageCopySrc
	case rhi.LayoutCopyDest:
		return gputypes.TextureUsageCopyDst
	default:
		return gputypes.TextureUsageNone
	}
}

var bufferAccessUsage = [...]struct {
	access rhi.Access
	usage  gputypes.BufferUsage
}{
	{rhi.AccessIndirectArgument, gputypes.BufferUsageIndirect},
	{rhi.AccessIndexBuffer, gputypes.BufferUsageIndex},
	{rhi.AccessVertexBuffer, gputypes.BufferUsageVertex},
	{rhi.AccessUniformBuffer, gputypes.BufferUsageUniform},
	{rhi.AccessShaderRead, gputypes.BufferUsageStorage},
	{rhi.AccessShaderWrite, gputypes.BufferUsageStorage},
	{rhi.AccessCopySource, gputypes.BufferUsageCopySrc},
	{rhi.AccessCopyDest, gputypes.BufferUsageCopyDst},
	{rhi.AccessHostRead, gputypes.BufferUsageMapRead},
}

// bufferUsageFor maps an access mask to the union of HAL buffer usages.
func bufferUsageFor(a rhi.Access) gputypes.BufferUsage {
	var u gputypes.BufferUsage
	for _, m := range bufferAccessUsage {
		if a&m.access != 0 {
			u |= m.usage
		}
	}
	return u
}
