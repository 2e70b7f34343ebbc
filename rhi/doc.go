// Package rhi defines the rendering-hardware interface consumed by the frame
// graph.
//
// The frame graph never talks to a GPU API directly. Everything it needs from
// the outside world is expressed here as small interfaces that callers inject:
//
//   - [Device] creates images, buffers and fences and releases them later.
//   - [CommandBuffer] records barriers, copies, clears and markers and
//     submits work to the queue.
//   - [StateTracker] reports the live state of resources owned outside the
//     graph and receives their final state once a graph has been submitted.
//   - [BindlessRegistry] hands out shader-visible indices for views and
//     buffers for the duration of one execution.
//   - [JobSystem] runs recording tasks on worker goroutines.
//
// A wgpu HAL implementation lives in backend/halrhi, and recording fakes for
// tests live in rhi/rhitest.
package rhi
