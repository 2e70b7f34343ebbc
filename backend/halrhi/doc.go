// Package halrhi implements the rhi interfaces on top of the gogpu/wgpu
// hardware abstraction layer.
//
// A Device wraps a hal.Device and its hal.Queue. It can be opened directly
// from a registered HAL backend, wrapped around an existing device, or taken
// from a gpucontext.DeviceProvider that exposes its HAL objects:
//
//	dev, err := halrhi.Open(gputypes.BackendVulkan)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer dev.Close()
//
//	cmd, err := dev.NewCommandBuffer("frame")
//	if err != nil {
//		log.Fatal(err)
//	}
//	g := framegraph.New(cmd, dev,
//		framegraph.WithStateTracker(dev.Tracker()),
//		framegraph.WithBindless(dev.Bindless()),
//	)
//
// # Command buffers
//
// Each CommandBuffer owns a hal.CommandEncoder. Secondaries get encoders of
// their own; ExecuteSecondaries closes the current segment of the primary
// and splices the encoded secondaries in after it, so the submitted list
// keeps recording order. Buffer writes are applied through the queue right
// before submission.
//
// # Synchronization
//
// Fences are backed by queue submission indices. A fence flushed into a
// command buffer is signalled once the queue reports that submission as
// completed. Released resources are destroyed only after every submission
// made before the release has completed.
//
// Image and buffer barriers become HAL texture and buffer transitions.
// Global barriers have no HAL equivalent and are dropped.
package halrhi
