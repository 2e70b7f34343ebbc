package framegraph

import (
	"fmt"

	"github.com/gogpu/framegraph/rhi"
)

// Context is handed to a pass's exec callback. It resolves the handles the
// pass declared to physical resources and records into the pass's command
// buffer.
//
// A Context is only valid during the callback. Contexts of different passes
// may be used concurrently.
type Context struct {
	g    *Graph
	pass *passNode
	cmd  rhi.CommandBuffer
}

// PassName returns the name of the running pass.
func (c *Context) PassName() string { return c.pass.name }

// CommandBuffer returns the command buffer the pass records into.
func (c *Context) CommandBuffer() rhi.CommandBuffer { return c.cmd }

func (c *Context) resolve(h AnyHandle) (*resourceNode, *boundResource) {
	n := c.g.mustNode(h)
	if !c.pass.declares(n.handle) {
		panic(fmt.Sprintf("framegraph: pass %q uses %v without declaring it", c.pass.name, n.handle))
	}
	b := &c.g.bound[n.handle.index()]
	if b.resource == nil {
		panic(fmt.Sprintf("framegraph: %v is not bound", n.handle))
	}
	return n, b
}

func (c *Context) buffer(h AnyHandle) rhi.Buffer {
	n, b := c.resolve(h)
	if n.kind() == KindImage {
		panic(fmt.Sprintf("framegraph: %v is not a buffer", n.handle))
	}
	return b.resource.(rhi.Buffer)
}

func (c *Context) image(h AnyHandle) rhi.Image {
	n, b := c.resolve(h)
	if n.kind() != KindImage {
		panic(fmt.Sprintf("framegraph: %v is not an image", n.handle))
	}
	return b.resource.(rhi.Image)
}

// Image returns the bindless index of the default view of h, or
// rhi.InvalidBindlessIndex when the graph has no bindless registry or the
// image is a swapchain image.
func (c *Context) Image(h ImageHandle) rhi.BindlessIndex {
	_, b := c.resolve(h)
	if !b.registered {
		return rhi.InvalidBindlessIndex
	}
	return b.bindless
}

// ImageView returns the default view of h.
func (c *Context) ImageView(h ImageHandle) rhi.ImageView {
	return c.image(h).View()
}

// ImageRaw returns the physical image bound to h.
func (c *Context) ImageRaw(h ImageHandle) rhi.Image {
	return c.image(h)
}

// ImageMip registers a view of one mip level and layer of h and returns its
// bindless index. The registration lasts until teardown.
func (c *Context) ImageMip(h ImageHandle, mip, layer uint32) rhi.BindlessIndex {
	return c.registerView(c.image(h).MipView(mip, layer))
}

// ImageArray registers a view of every layer of one mip level of h.
func (c *Context) ImageArray(h ImageHandle, mip uint32) rhi.BindlessIndex {
	return c.registerView(c.image(h).ArrayView(mip))
}

func (c *Context) registerView(v rhi.ImageView) rhi.BindlessIndex {
	reg := c.g.opts.bindless
	if reg == nil || v.IsSwapchain() {
		return rhi.InvalidBindlessIndex
	}
	idx := reg.RegisterImageView(v)
	c.g.viewMu.Lock()
	c.g.views = append(c.g.views, viewRegistration{index: idx, viewType: v.Type()})
	c.g.viewMu.Unlock()
	return idx
}

// Buffer returns the bindless index of the buffer bound to h.
func (c *Context) Buffer(h BufferHandle) rhi.BindlessIndex {
	_, b := c.resolve(h)
	if !b.registered {
		return rhi.InvalidBindlessIndex
	}
	return b.bindless
}

// BufferRaw returns the physical buffer bound to h.
func (c *Context) BufferRaw(h BufferHandle) rhi.Buffer {
	return c.buffer(h)
}

// UniformBuffer returns the bindless index of the uniform buffer bound to h.
func (c *Context) UniformBuffer(h UniformBufferHandle) rhi.BindlessIndex {
	_, b := c.resolve(h)
	if !b.registered {
		return rhi.InvalidBindlessIndex
	}
	return b.bindless
}

// UniformBufferRaw returns the physical uniform buffer bound to h.
func (c *Context) UniformBufferRaw(h UniformBufferHandle) rhi.Buffer {
	return c.buffer(h)
}

// CopyBuffer copies size bytes between two buffers of any buffer kind.
func (c *Context) CopyBuffer(src, dst AnyHandle, srcOffset, dstOffset, size uint64) {
	c.cmd.CopyBuffer(c.buffer(src), c.buffer(dst), srcOffset, dstOffset, size)
}

// CopyImage copies the full extent of src into dst.
func (c *Context) CopyImage(src, dst ImageHandle) {
	s := c.image(src)
	d := s.Desc()
	c.cmd.CopyImage(s, c.image(dst), d.Width, d.Height, d.DepthCount())
}

// CopyImageToBuffer copies src into the buffer dst.
func (c *Context) CopyImageToBuffer(src ImageHandle, dst AnyHandle) {
	c.cmd.CopyImageToBuffer(c.image(src), c.buffer(dst))
}

// ClearImage clears every texel of h to color.
func (c *Context) ClearImage(h ImageHandle, color [4]float32) {
	c.cmd.ClearImage(c.image(h), color)
}

// ClearBuffer fills h with value.
func (c *Context) ClearBuffer(h AnyHandle, value uint32) {
	c.cmd.ClearBuffer(c.buffer(h), value)
}

// MappedBufferUpload writes data at the start of the host-visible buffer h.
func (c *Context) MappedBufferUpload(h AnyHandle, data []byte) {
	c.cmd.WriteBuffer(c.buffer(h), 0, data)
}

// Flush signals fence once the work recorded so far completes.
func (c *Context) Flush(fence rhi.Fence) {
	c.cmd.Flush(fence)
}

// BeginMarker opens a debug region inside the pass.
func (c *Context) BeginMarker(name string, color [4]float32) {
	c.cmd.BeginMarker(name, color)
}

// EndMarker closes the innermost debug region.
func (c *Context) EndMarker() {
	c.cmd.EndMarker()
}
