package backend

import (
	"github.com/gogpu/framegraph/rhi"
	"github.com/gogpu/framegraph/rhi/rhitest"
)

// RecorderBackend keeps every resource and command in memory. Fences are
// signalled on submission. It needs no GPU and is always available.
type RecorderBackend struct {
	device   *rhitest.Device
	tracker  *rhitest.Tracker
	registry *rhitest.Registry
	buffers  []*rhitest.CommandBuffer
}

// init registers the recorder backend on package import.
func init() {
	Register(BackendRecorder, func() Backend {
		return &RecorderBackend{}
	})
}

// NewRecorderBackend creates a new recorder backend.
func NewRecorderBackend() *RecorderBackend {
	return &RecorderBackend{}
}

// Name returns the backend identifier.
func (b *RecorderBackend) Name() string {
	return BackendRecorder
}

// Init creates the in-memory device.
func (b *RecorderBackend) Init() error {
	b.device = rhitest.NewDevice()
	b.device.AutoSignal = true
	b.tracker = rhitest.NewTracker()
	b.registry = rhitest.NewRegistry()
	return nil
}

// Close drops everything the backend recorded.
func (b *RecorderBackend) Close() {
	b.device, b.tracker, b.registry, b.buffers = nil, nil, nil, nil
}

func (b *RecorderBackend) Device() rhi.Device {
	if b.device == nil {
		return nil
	}
	return b.device
}

// NewCommandBuffer returns a recording command buffer. Returns
// ErrNotInitialized before Init.
func (b *RecorderBackend) NewCommandBuffer(string) (rhi.CommandBuffer, error) {
	if b.device == nil {
		return nil, ErrNotInitialized
	}
	cmd := rhitest.NewCommandBuffer(b.device)
	b.buffers = append(b.buffers, cmd)
	return cmd, nil
}

func (b *RecorderBackend) StateTracker() rhi.StateTracker {
	if b.tracker == nil {
		return nil
	}
	return b.tracker
}

func (b *RecorderBackend) Bindless() rhi.BindlessRegistry {
	if b.registry == nil {
		return nil
	}
	return b.registry
}

// CommandBuffers returns every command buffer created so far, in order.
func (b *RecorderBackend) CommandBuffers() []*rhitest.CommandBuffer {
	return b.buffers
}

// Recorded returns the device, for inspecting created and released
// resources.
func (b *RecorderBackend) Recorded() *rhitest.Device {
	return b.device
}
