package framegraph

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/rhi"
)

// ErrReadbackNotReady is returned by ReadbackBuffer.Read before the GPU has
// finished the copy.
var ErrReadbackNotReady = errors.New("framegraph: readback not ready")

// readbackWatch flips ready once fence signals.
type readbackWatch struct {
	label string
	fence rhi.Fence
	ready *atomic.Bool
}

// ReadbackBuffer is a CPU-visible copy of a buffer taken during one graph
// execution. It stays valid after the graph is torn down; call Release when
// done with it.
type ReadbackBuffer struct {
	device rhi.Device
	buffer rhi.Buffer
	fence  rhi.Fence
	ready  atomic.Bool
}

// IsReady reports whether the copy has completed on the GPU.
func (r *ReadbackBuffer) IsReady() bool { return r.ready.Load() }

// Buffer returns the CPU-visible mirror.
func (r *ReadbackBuffer) Buffer() rhi.Buffer { return r.buffer }

// Fence returns the fence signalled when the copy completes.
func (r *ReadbackBuffer) Fence() rhi.Fence { return r.fence }

// Read copies the mirror into dst. It fails with ErrReadbackNotReady until
// IsReady reports true.
func (r *ReadbackBuffer) Read(dst []byte) error {
	if !r.IsReady() {
		return ErrReadbackNotReady
	}
	return r.buffer.Read(0, dst)
}

// Release destroys the mirror.
func (r *ReadbackBuffer) Release() { r.device.Release(r.buffer) }

// ReadbackImage is a CPU-visible copy of an image.
type ReadbackImage struct {
	device rhi.Device
	image  rhi.Image
	fence  rhi.Fence
	ready  atomic.Bool
}

// IsReady reports whether the copy has completed on the GPU.
func (r *ReadbackImage) IsReady() bool { return r.ready.Load() }

// Image returns the CPU-visible mirror.
func (r *ReadbackImage) Image() rhi.Image { return r.image }

// Fence returns the fence signalled when the copy completes.
func (r *ReadbackImage) Fence() rhi.Fence { return r.fence }

// Release destroys the mirror.
func (r *ReadbackImage) Release() { r.device.Release(r.image) }

// EnqueueBufferReadback adds a side-effect pass that copies h into a new
// CPU-visible buffer. The returned object becomes ready on its own once the
// GPU finishes; nothing else needs to be called on the graph.
//
// If Execute fails before submission the copy never runs: the object never
// becomes ready and its mirror stays allocated until Release.
func (g *Graph) EnqueueBufferReadback(h AnyHandle) (*ReadbackBuffer, error) {
	g.mustDeclare("EnqueueBufferReadback")
	n := g.mustNode(h)
	var src rhi.BufferDesc
	switch d := n.desc.(type) {
	case bufferDescription:
		src = d.BufferDesc
	case uniformBufferDescription:
		src = d.BufferDesc
	case imageDescription:
		panic(fmt.Sprintf("framegraph: buffer readback of image %v", n.handle))
	}

	mirror, err := g.device.CreateBuffer(rhi.BufferDesc{
		Label:       src.Label + " readback",
		ElementSize: src.ElementSize,
		Count:       src.Count,
		Usage:       gputypes.BufferUsageCopyDst | gputypes.BufferUsageMapRead,
		Memory:      rhi.MemoryGPUToCPU,
	})
	if err != nil {
		return nil, fmt.Errorf("framegraph: readback of %q: %w", src.Label, err)
	}
	fence, err := g.device.CreateFence()
	if err != nil {
		g.device.Release(mirror)
		return nil, fmt.Errorf("framegraph: readback fence for %q: %w", src.Label, err)
	}

	rb := &ReadbackBuffer{device: g.device, buffer: mirror, fence: fence}
	source := n.handle
	dst := g.AddExternalBuffer(mirror)
	size := src.ByteSize()
	g.AddPass("Readback "+src.Label, func(b *Builder) {
		b.ReadResource(source, StateCopySource)
		b.WriteResource(dst, StateCopyDest)
		b.SetHasSideEffect()
	}, func(ctx *Context) {
		ctx.CopyBuffer(source, dst, 0, 0, size)
		ctx.Flush(fence)
	})
	g.readbacks = append(g.readbacks, readbackWatch{label: src.Label, fence: fence, ready: &rb.ready})
	return rb, nil
}

// EnqueueImageReadback adds a side-effect pass that copies h into a new
// CPU-visible image. A failed Execute leaves it not ready, as for
// EnqueueBufferReadback.
func (g *Graph) EnqueueImageReadback(h ImageHandle) (*ReadbackImage, error) {
	g.mustDeclare("EnqueueImageReadback")
	n := g.mustNode(h)
	d, ok := n.desc.(imageDescription)
	if !ok {
		panic(fmt.Sprintf("framegraph: image readback of %v", n.handle))
	}
	desc := d.ImageDesc
	desc.Label += " readback"
	desc.Usage = gputypes.TextureUsageCopyDst
	desc.Memory = rhi.MemoryGPUToCPU

	mirror, err := g.device.CreateImage(desc)
	if err != nil {
		return nil, fmt.Errorf("framegraph: readback of %q: %w", d.Label, err)
	}
	fence, err := g.device.CreateFence()
	if err != nil {
		g.device.Release(mirror)
		return nil, fmt.Errorf("framegraph: readback fence for %q: %w", d.Label, err)
	}

	rb := &ReadbackImage{device: g.device, image: mirror, fence: fence}
	source := HandleAs[ImageKind](n.handle)
	dst := g.AddExternalImage(mirror)
	g.AddPass("Readback "+d.Label, func(b *Builder) {
		b.ReadResource(source, StateCopySource)
		b.WriteResource(dst, StateCopyDest)
		b.SetHasSideEffect()
	}, func(ctx *Context) {
		ctx.CopyImage(source, dst)
		ctx.Flush(fence)
	})
	g.readbacks = append(g.readbacks, readbackWatch{label: d.Label, fence: fence, ready: &rb.ready})
	return rb, nil
}

// startReadbacks launches one watcher per readback. Watchers only touch
// their fence and ready flag, so they may outlive the graph.
func (g *Graph) startReadbacks() {
	logger := g.logger
	for _, w := range g.readbacks {
		task := func() {
			if err := w.fence.Wait(context.Background()); err != nil {
				logger.Warn("framegraph: readback wait failed", "resource", w.label, "error", err)
				return
			}
			w.ready.Store(true)
		}
		if g.opts.jobs != nil {
			g.opts.jobs.Submit(task)
		} else {
			go task()
		}
	}
	g.readbacks = nil
}
