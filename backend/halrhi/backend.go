package halrhi

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/backend"
	"github.com/gogpu/framegraph/rhi"
)

// variants maps registry names to the HAL backend they open. A HAL backend
// is only usable when its package is linked, for example with
//
//	import _ "github.com/gogpu/wgpu/hal/noop"
var variants = map[string]gputypes.Backend{
	backend.BackendVulkan: gputypes.BackendVulkan,
	backend.BackendMetal:  gputypes.BackendMetal,
	backend.BackendDX12:   gputypes.BackendDX12,
	backend.BackendGL:     gputypes.BackendGL,
	backend.BackendNoop:   gputypes.BackendEmpty,
}

// init registers one backend per HAL variant on package import.
func init() {
	for name, variant := range variants {
		backend.Register(name, func() backend.Backend {
			return NewBackend(name, variant)
		})
	}
}

// Backend adapts a Device to backend.Backend.
type Backend struct {
	name    string
	variant gputypes.Backend
	dev     *Device
}

var _ backend.Backend = (*Backend)(nil)

// NewBackend returns an uninitialized backend opening the given HAL variant.
func NewBackend(name string, variant gputypes.Backend) *Backend {
	return &Backend{name: name, variant: variant}
}

// Name returns the backend identifier.
func (b *Backend) Name() string { return b.name }

// Init opens the HAL device.
func (b *Backend) Init() error {
	if b.dev != nil {
		return nil
	}
	dev, err := Open(b.variant)
	if err != nil {
		if errors.Is(err, ErrNoBackend) {
			return fmt.Errorf("%w: %w", backend.ErrBackendNotAvailable, err)
		}
		return err
	}
	b.dev = dev
	return nil
}

// Close waits for the GPU and destroys the device.
func (b *Backend) Close() {
	if b.dev != nil {
		b.dev.Close()
		b.dev = nil
	}
}

// HAL returns the opened device, nil before Init.
func (b *Backend) HAL() *Device { return b.dev }

func (b *Backend) Device() rhi.Device {
	if b.dev == nil {
		return nil
	}
	return b.dev
}

func (b *Backend) NewCommandBuffer(label string) (rhi.CommandBuffer, error) {
	if b.dev == nil {
		return nil, backend.ErrNotInitialized
	}
	cmd, err := b.dev.NewCommandBuffer(label)
	if err != nil {
		return nil, err
	}
	return cmd, nil
}

func (b *Backend) StateTracker() rhi.StateTracker {
	if b.dev == nil {
		return nil
	}
	return b.dev.Tracker()
}

func (b *Backend) Bindless() rhi.BindlessRegistry {
	if b.dev == nil {
		return nil
	}
	return b.dev.Bindless()
}
