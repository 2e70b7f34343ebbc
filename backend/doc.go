// Package backend provides a pluggable device abstraction for frame graphs.
//
// A Backend opens an rhi.Device and hands out the command buffers, state
// tracker and bindless registry a framegraph.Graph needs. The recorder
// backend is always registered; HAL backends register themselves when
// backend/halrhi is imported:
//
//	import (
//		_ "github.com/gogpu/framegraph/backend/halrhi"
//		_ "github.com/gogpu/wgpu/hal/noop"
//	)
//
// # Backend Selection
//
// Use InitDefault() to initialize the best available backend, or Open() to
// request a specific backend by name:
//
//	b, err := backend.Open("noop")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer b.Close()
//
//	cmd, err := b.NewCommandBuffer("frame")
//	if err != nil {
//		log.Fatal(err)
//	}
//	g := framegraph.New(cmd, b.Device(),
//		framegraph.WithStateTracker(b.StateTracker()),
//		framegraph.WithBindless(b.Bindless()),
//	)
//
// # Available Backends
//
//   - "vulkan", "metal", "dx12", "gl": GPU APIs through gogpu/wgpu HAL
//   - "noop": the HAL noop backend, useful for headless runs
//   - "recorder": in-memory command recorder (always available)
package backend
