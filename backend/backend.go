package backend

import (
	"errors"

	"github.com/gogpu/framegraph/rhi"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not available.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrNotInitialized is returned when operations are called before Init.
	ErrNotInitialized = errors.New("backend: not initialized")
)

// Backend name constants.
const (
	// BackendVulkan records through the HAL Vulkan backend.
	BackendVulkan = "vulkan"
	// BackendMetal records through the HAL Metal backend.
	BackendMetal = "metal"
	// BackendDX12 records through the HAL DirectX 12 backend.
	BackendDX12 = "dx12"
	// BackendGL records through the HAL OpenGL backend.
	BackendGL = "gl"
	// BackendNoop records through the HAL noop backend. Nothing reaches a
	// GPU but buffer uploads and mapping behave like real memory.
	BackendNoop = "noop"
	// BackendRecorder keeps every command in memory for inspection.
	BackendRecorder = "recorder"
)

// Backend supplies the device and collaborators a frame graph records
// against.
//
// Backends must be registered via Register() and are selected via
// Get(), Default() or InitDefault().
type Backend interface {
	// Name returns the backend identifier (e.g., "vulkan", "noop").
	Name() string

	// Init opens the device. It must be called before any other method.
	Init() error

	// Close releases the device and everything created on it.
	// The backend should not be used after Close is called.
	Close()

	// Device returns the device resources are created on.
	Device() rhi.Device

	// NewCommandBuffer creates a primary command buffer for one graph.
	NewCommandBuffer(label string) (rhi.CommandBuffer, error)

	// StateTracker returns the tracker that carries resource states from
	// one graph to the next.
	StateTracker() rhi.StateTracker

	// Bindless returns the registry shader-visible indices come from.
	Bindless() rhi.BindlessRegistry
}
