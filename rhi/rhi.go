package rhi

import (
	"context"
	"errors"
)

// ErrFenceTimeout is returned by Fence.Wait when the context ends first.
var ErrFenceTimeout = errors.New("rhi: fence wait interrupted")

// Resource is anything the frame graph can track state for.
type Resource interface {
	Label() string
	ByteSize() uint64
}

// ViewType describes how an image view is interpreted by shaders.
type ViewType uint8

// View types.
const (
	View2D ViewType = iota
	View2DArray
	ViewCube
	View3D
)

// Image is a GPU image.
type Image interface {
	Resource
	Desc() ImageDesc
	// View returns the default view covering every mip and layer.
	View() ImageView
	// MipView returns a view of a single mip level and array layer.
	MipView(mip, layer uint32) ImageView
	// ArrayView returns a view of every layer of one mip level.
	ArrayView(mip uint32) ImageView
}

// ImageView is a shader-visible view of an image.
type ImageView interface {
	Image() Image
	Type() ViewType
	// IsSwapchain reports whether the view belongs to a presentable surface.
	// Swapchain views are never registered with the bindless registry.
	IsSwapchain() bool
}

// Buffer is a GPU buffer. Uniform buffers use the same interface.
type Buffer interface {
	Resource
	Desc() BufferDesc
	// Read copies the buffer contents starting at offset into dst. Only
	// buffers created with MemoryGPUToCPU are guaranteed to be readable.
	Read(offset uint64, dst []byte) error
}

// Fence is signalled by the queue once the submission it was flushed into has
// completed.
type Fence interface {
	// Wait blocks until the fence is signalled or ctx ends.
	Wait(ctx context.Context) error
	Signalled() bool
}

// Device creates and releases resources.
type Device interface {
	CreateImage(desc ImageDesc) (Image, error)
	CreateBuffer(desc BufferDesc) (Buffer, error)
	CreateUniformBuffer(desc BufferDesc) (Buffer, error)
	CreateFence() (Fence, error)
	// Release destroys a resource once the GPU no longer uses it.
	Release(r Resource)
}

// CommandBuffer records GPU commands. A primary command buffer is submitted
// to the queue; secondaries are recorded independently and replayed by their
// primary in order.
type CommandBuffer interface {
	Begin() error
	End() error

	BeginMarker(name string, color [4]float32)
	EndMarker()

	ResourceBarrier(barriers []Barrier)

	CopyBuffer(src, dst Buffer, srcOffset, dstOffset, size uint64)
	CopyImage(src, dst Image, width, height, depth uint32)
	// CopyImageToBuffer copies mip 0 of every layer of src into dst,
	// tightly packed.
	CopyImageToBuffer(src Image, dst Buffer)
	ClearImage(img Image, color [4]float32)
	ClearBuffer(buf Buffer, value uint32)
	// WriteBuffer uploads data into a host-visible buffer.
	WriteBuffer(buf Buffer, offset uint64, data []byte)

	// Flush arranges for fence to be signalled when the work recorded so far
	// has completed on the GPU.
	Flush(fence Fence)

	CreateSecondary() (CommandBuffer, error)
	ExecuteSecondaries(secondaries []CommandBuffer)

	// Submit hands the recorded work to the queue. With wait set it blocks
	// until the GPU has finished.
	Submit(ctx context.Context, wait bool) error
}

// StateTracker reports the live state of resources that outlive a graph.
type StateTracker interface {
	CurrentState(r Resource) ResourceState
	SetCurrentState(r Resource, state ResourceState)
}

// BindlessIndex is a shader-visible slot in the bindless table.
type BindlessIndex uint32

// InvalidBindlessIndex is never returned by a registry.
const InvalidBindlessIndex BindlessIndex = ^BindlessIndex(0)

// BindlessRegistry assigns shader-visible indices to views and buffers.
type BindlessRegistry interface {
	RegisterBuffer(b Buffer) BindlessIndex
	RegisterImageView(v ImageView) BindlessIndex
	UnregisterBuffer(idx BindlessIndex)
	UnregisterImageView(idx BindlessIndex, viewType ViewType)
	// PrepareForRender flushes pending descriptor writes before submission.
	PrepareForRender()
}

// Future is the awaitable result of a submitted job.
type Future interface {
	Wait()
}

// JobSystem runs tasks on background workers.
type JobSystem interface {
	Submit(task func()) Future
}
