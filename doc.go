// Package framegraph provides a per-frame compiler and scheduler for GPU
// work.
//
// # Overview
//
// Callers declare passes and the resources each pass creates, reads and
// writes. The graph then computes resource lifetimes, removes passes whose
// results are never consumed, derives the synchronization barriers between
// passes and records the surviving work into one or more command buffers
// before a single submission.
//
// # Quick Start
//
//	g := framegraph.New(cmd, device,
//	    framegraph.WithStateTracker(tracker),
//	    framegraph.WithBindless(registry),
//	)
//
//	var color framegraph.ImageHandle
//	g.AddPass("GBuffer", func(b *framegraph.Builder) {
//	    color = b.CreateImage(rhi.ImageDesc{Width: 1920, Height: 1080, Format: gputypes.TextureFormatRGBA8Unorm})
//	}, func(ctx *framegraph.Context) {
//	    ctx.ClearImage(color, [4]float32{0, 0, 0, 1})
//	})
//	g.AddPass("Lighting", func(b *framegraph.Builder) {
//	    b.ReadResource(color)
//	    b.WriteResource(b.AddExternalImage(backbuffer))
//	}, func(ctx *framegraph.Context) {
//	    // record draws using ctx.Image(color)
//	})
//
//	g.Compile()
//	if err := g.Execute(ctx); err != nil {
//	    return err
//	}
//
// # Lifecycle
//
// A Graph is single use: declaration, then one Compile, then one Execute.
// Calling Compile or Execute twice, or Execute before Compile, panics, as
// does every other misuse of the declaration API. Failures reported by the
// device or command buffers are returned as errors from Execute.
//
// # Collaborators
//
// The graph owns no GPU state of its own. The device, command buffer, state
// tracker, bindless registry and job system are passed to New and are
// described by the interfaces in package rhi. Package backend/halrhi
// implements them on top of gogpu/wgpu.
//
// # Recording
//
// Passes are split into ranges of at most WithMaxPassesPerRange passes.
// A graph that fits in one range records straight into the primary command
// buffer; larger graphs record one secondary command buffer per range,
// concurrently unless WithMultithreadedRecording(false) is given.
//
// # Readback
//
// EnqueueBufferReadback and EnqueueImageReadback copy a resource into a
// CPU-visible mirror. The returned object flips to ready on its own once
// the GPU has finished the copy.
package framegraph
