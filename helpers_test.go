package framegraph

import (
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/rhi"
	"github.com/gogpu/framegraph/rhi/rhitest"
)

type fixture struct {
	device   *rhitest.Device
	cmd      *rhitest.CommandBuffer
	tracker  *rhitest.Tracker
	registry *rhitest.Registry
}

func newFixture(t *testing.T, opts ...Option) (*Graph, *fixture) {
	t.Helper()
	f := &fixture{
		device:   rhitest.NewDevice(),
		tracker:  rhitest.NewTracker(),
		registry: rhitest.NewRegistry(),
	}
	f.cmd = rhitest.NewCommandBuffer(f.device)
	all := append([]Option{
		WithStateTracker(f.tracker),
		WithBindless(f.registry),
	}, opts...)
	return New(f.cmd, f.device, all...), f
}

func colorDesc(label string) rhi.ImageDesc {
	return rhi.ImageDesc{Label: label, Width: 64, Height: 32, Format: gputypes.TextureFormatRGBA8Unorm}
}

func depthDesc(label string) rhi.ImageDesc {
	return rhi.ImageDesc{Label: label, Width: 64, Height: 32, Format: gputypes.TextureFormatDepth32Float}
}

func volumeDesc(label string) rhi.ImageDesc {
	return rhi.ImageDesc{
		Label: label, Width: 16, Height: 16, Depth: 16,
		Format: gputypes.TextureFormatRGBA8Unorm, Dimension: gputypes.TextureDimension3D,
	}
}

func bufferDesc(label string, count uint32) rhi.BufferDesc {
	return rhi.BufferDesc{Label: label, ElementSize: 4, Count: count, Usage: gputypes.BufferUsageStorage}
}

// recordedBarriers returns the barriers recorded in cmd, flattened in order.
func recordedBarriers(cmd *rhitest.CommandBuffer) []rhi.Barrier {
	var out []rhi.Barrier
	for _, c := range cmd.Commands() {
		if c.Op == rhitest.OpBarrier {
			out = append(out, c.Barriers...)
		}
	}
	return out
}

func imageBarriers(infos []BarrierInfo) []BarrierInfo {
	var out []BarrierInfo
	for _, b := range infos {
		if b.Type == rhi.BarrierImage {
			out = append(out, b)
		}
	}
	return out
}

var (
	rtState = rhi.ResourceState{Access: rhi.AccessRenderTarget, Stage: rhi.StageRenderTarget, Layout: rhi.LayoutRenderTarget}

	graphicsRead = rhi.ResourceState{Access: rhi.AccessShaderRead, Stage: rhi.StageAllGraphicsShaders, Layout: rhi.LayoutShaderRead}
	computeRead  = rhi.ResourceState{Access: rhi.AccessShaderRead, Stage: rhi.StageComputeShader, Layout: rhi.LayoutShaderRead}
	computeWrite = rhi.ResourceState{Access: rhi.AccessShaderWrite, Stage: rhi.StageComputeShader, Layout: rhi.LayoutShaderWrite}
	copySrc      = rhi.ResourceState{Access: rhi.AccessCopySource, Stage: rhi.StageCopy, Layout: rhi.LayoutCopySource}
	copyDst      = rhi.ResourceState{Access: rhi.AccessCopyDest, Stage: rhi.StageCopy, Layout: rhi.LayoutCopyDest}
)
