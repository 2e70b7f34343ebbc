package main

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph"
	"github.com/gogpu/framegraph/rhi"
)

// gbuffer is filled by the geometry pass.
type gbuffer struct {
	albedo framegraph.ImageHandle
	depth  framegraph.ImageHandle
}

// lighting is filled by the lighting pass.
type lighting struct {
	lit       framegraph.ImageHandle
	luminance framegraph.BufferHandle
}

func image(label string, w, h uint32, format gputypes.TextureFormat) rhi.ImageDesc {
	return rhi.ImageDesc{Label: label, Width: w, Height: h, Format: format}
}

// buildScene declares one frame into g: geometry, lighting, a debug overlay
// nothing reads (and so is culled) and a copy into backbuffer. The luminance
// histogram is read back to the CPU.
func buildScene(g *framegraph.Graph, backbuffer rhi.Image, w, h uint32) (*framegraph.ReadbackBuffer, error) {
	out := g.AddExternalImage(backbuffer)

	gb := framegraph.AddPassWithData(g, "GBuffer", func(b *framegraph.Builder, d *gbuffer) {
		d.albedo = b.CreateImage(image("albedo", w, h, gputypes.TextureFormatRGBA8Unorm))
		d.depth = b.CreateImage(image("depth", w, h, gputypes.TextureFormatDepth32Float))
	}, func(d *gbuffer, ctx *framegraph.Context) {
		ctx.ClearImage(d.albedo, [4]float32{0.1, 0.2, 0.4, 1})
		ctx.ClearImage(d.depth, [4]float32{1, 0, 0, 0})
	})

	lit := framegraph.AddPassWithData(g, "Lighting", func(b *framegraph.Builder, d *lighting) {
		b.SetIsComputePass()
		b.ReadResource(gb.albedo)
		b.ReadResource(gb.depth)
		d.lit = b.CreateImage(image("lit", w, h, gputypes.TextureFormatRGBA8Unorm))
		d.luminance = b.CreateBuffer(rhi.BufferDesc{Label: "luminance", ElementSize: 4, Count: 64})
	}, func(d *lighting, ctx *framegraph.Context) {
		ctx.ClearImage(d.lit, [4]float32{0, 0, 0, 1})
		ctx.ClearBuffer(d.luminance, 0)
	})

	g.AddPass("DebugOverlay", func(b *framegraph.Builder) {
		b.ReadResource(lit.lit)
		b.CreateImage(image("overlay", w, h, gputypes.TextureFormatRGBA8Unorm))
	}, func(*framegraph.Context) {})

	g.AddPass("Present", func(b *framegraph.Builder) {
		b.ReadResource(lit.lit, framegraph.StateCopySource)
		b.WriteResource(out, framegraph.StateCopyDest)
	}, func(ctx *framegraph.Context) {
		ctx.BeginMarker("blit", [4]float32{0, 1, 0, 1})
		ctx.CopyImage(lit.lit, out)
		ctx.EndMarker()
	})

	return g.EnqueueBufferReadback(lit.luminance)
}
