package halrhi

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/framegraph/rhi"
	"github.com/gogpu/framegraph/rhi/rhitest"
)

func TestBeginTwice(t *testing.T) {
	f := newFixture(t, false)
	cmd, err := f.dev.NewCommandBuffer("frame")
	require.NoError(t, err)

	require.NoError(t, cmd.Begin())
	assert.ErrorIs(t, cmd.Begin(), ErrRecording)
	assert.ErrorIs(t, cmd.Submit(context.Background(), false), ErrRecording)
	require.NoError(t, cmd.End())
	assert.Error(t, cmd.End())
}

func TestCommandBufferIsReusable(t *testing.T) {
	f := newFixture(t, false)
	cmd, err := f.dev.NewCommandBuffer("frame")
	require.NoError(t, err)

	for range 3 {
		require.NoError(t, cmd.Begin())
		require.NoError(t, cmd.End())
		require.NoError(t, cmd.Submit(context.Background(), true))
	}
	assert.EqualValues(t, 3, f.spy.freed.Load())
	assert.Equal(t, 3, f.spy.encoder(0).encodings)
}

func TestResourceBarrierTranslation(t *testing.T) {
	f := newFixture(t, false)
	img, err := f.dev.CreateImage(rhi.ImageDesc{Label: "gbuffer", Width: 8, Height: 8, Mips: 3, Layers: 2, Format: gputypes.TextureFormatRGBA8Unorm})
	require.NoError(t, err)
	buf, err := f.dev.CreateBuffer(hostBuffer("instances", 8, rhi.MemoryGPUOnly))
	require.NoError(t, err)
	cmd, err := f.dev.NewCommandBuffer("frame")
	require.NoError(t, err)

	require.NoError(t, cmd.Begin())
	cmd.ResourceBarrier([]rhi.Barrier{
		{
			Type: rhi.BarrierGlobal,
			Src:  rhi.ResourceState{Access: rhi.AccessShaderWrite, Stage: rhi.StageComputeShader},
			Dst:  rhi.ResourceState{Access: rhi.AccessShaderRead, Stage: rhi.StagePixelShader},
		},
		{
			Type:     rhi.BarrierImage,
			Resource: img,
			Src:      rhi.ResourceState{Access: rhi.AccessRenderTarget, Stage: rhi.StageRenderTarget, Layout: rhi.LayoutRenderTarget},
			Dst:      rhi.ResourceState{Access: rhi.AccessShaderRead, Stage: rhi.StagePixelShader, Layout: rhi.LayoutShaderRead},
		},
		{
			Type:     rhi.BarrierBuffer,
			Resource: buf,
			Src:      rhi.ResourceState{Access: rhi.AccessShaderWrite, Stage: rhi.StageComputeShader},
			Dst:      rhi.ResourceState{Access: rhi.AccessCopySource | rhi.AccessUniformBuffer, Stage: rhi.StageCopy},
		},
	})
	require.NoError(t, cmd.End())

	enc := f.spy.encoder(0)
	require.Len(t, enc.textures, 1)
	tb := enc.textures[0]
	assert.Same(t, img.(*Image).Texture(), tb.Texture)
	assert.Equal(t, gputypes.TextureUsageRenderAttachment, tb.Usage.OldUsage)
	assert.Equal(t, gputypes.TextureUsageTextureBinding, tb.Usage.NewUsage)
	assert.Equal(t, hal.TextureRange{Aspect: gputypes.TextureAspectAll, MipLevelCount: 3, ArrayLayerCount: 2}, tb.Range)

	require.Len(t, enc.buffers, 1)
	assert.Equal(t, gputypes.BufferUsageStorage, enc.buffers[0].Usage.OldUsage)
	assert.Equal(t, gputypes.BufferUsageCopySrc|gputypes.BufferUsageUniform, enc.buffers[0].Usage.NewUsage)
}

func TestGlobalBarrierOnlyRecordsNothing(t *testing.T) {
	f := newFixture(t, false)
	cmd, err := f.dev.NewCommandBuffer("frame")
	require.NoError(t, err)
	require.NoError(t, cmd.Begin())
	cmd.ResourceBarrier([]rhi.Barrier{{Type: rhi.BarrierGlobal}})
	require.NoError(t, cmd.End())

	enc := f.spy.encoder(0)
	assert.Empty(t, enc.textures)
	assert.Empty(t, enc.buffers)
}

func TestForeignResourcePanics(t *testing.T) {
	f := newFixture(t, false)
	cmd, err := f.dev.NewCommandBuffer("frame")
	require.NoError(t, err)
	require.NoError(t, cmd.Begin())

	foreign := rhitest.NewImage(colorImage("foreign"))
	assert.PanicsWithValue(t, "halrhi: *rhitest.Image is not a halrhi image", func() {
		cmd.ClearImage(foreign, [4]float32{})
	})
	assert.Panics(t, func() {
		cmd.Flush(rhitest.NewFence())
	})
}

func TestClearImage(t *testing.T) {
	f := newFixture(t, false)
	color, err := f.dev.CreateImage(colorImage("scene"))
	require.NoError(t, err)
	depth, err := f.dev.CreateImage(rhi.ImageDesc{Label: "depth", Width: 8, Height: 8, Format: gputypes.TextureFormatDepth32Float})
	require.NoError(t, err)
	volume, err := f.dev.CreateImage(rhi.ImageDesc{Label: "volume", Width: 4, Height: 4, Depth: 4, Dimension: gputypes.TextureDimension3D, Format: gputypes.TextureFormatR32Float})
	require.NoError(t, err)
	cmd, err := f.dev.NewCommandBuffer("frame")
	require.NoError(t, err)

	require.NoError(t, cmd.Begin())
	cmd.ClearImage(color, [4]float32{1, 0.5, 0, 1})
	cmd.ClearImage(depth, [4]float32{1})
	cmd.ClearImage(volume, [4]float32{})
	require.NoError(t, cmd.End())

	passes := f.spy.encoder(0).renderPass
	require.Len(t, passes, 2)

	require.Len(t, passes[0].ColorAttachments, 1)
	ca := passes[0].ColorAttachments[0]
	assert.Equal(t, gputypes.LoadOpClear, ca.LoadOp)
	assert.Equal(t, gputypes.StoreOpStore, ca.StoreOp)
	assert.Equal(t, gputypes.Color{R: 1, G: 0.5, B: 0, A: 1}, ca.ClearValue)
	assert.Nil(t, passes[0].DepthStencilAttachment)

	require.NotNil(t, passes[1].DepthStencilAttachment)
	assert.Empty(t, passes[1].ColorAttachments)
	assert.Equal(t, float32(1), passes[1].DepthStencilAttachment.DepthClearValue)
	assert.Equal(t, gputypes.LoadOpClear, passes[1].DepthStencilAttachment.DepthLoadOp)
}

func TestClearBuffer(t *testing.T) {
	f := newFixture(t, false)
	buf, err := f.dev.CreateBuffer(hostBuffer("counters", 3, rhi.MemoryGPUToCPU))
	require.NoError(t, err)
	cmd, err := f.dev.NewCommandBuffer("frame")
	require.NoError(t, err)

	require.NoError(t, cmd.Begin())
	cmd.ClearBuffer(buf, 0)
	cmd.ClearBuffer(buf, 0xAABBCCDD)
	require.NoError(t, cmd.End())
	require.NoError(t, cmd.Submit(context.Background(), true))

	assert.Equal(t, 1, f.spy.encoder(0).clears)
	got := make([]byte, 12)
	require.NoError(t, buf.Read(0, got))
	for i := 0; i < len(got); i += 4 {
		assert.Equal(t, uint32(0xAABBCCDD), binary.LittleEndian.Uint32(got[i:]))
	}
}

func TestCopyImageToBufferRegions(t *testing.T) {
	f := newFixture(t, false)
	array, err := f.dev.CreateImage(rhi.ImageDesc{Label: "shadow", Width: 16, Height: 4, Layers: 3, Format: gputypes.TextureFormatRGBA8Unorm})
	require.NoError(t, err)
	volume, err := f.dev.CreateImage(rhi.ImageDesc{Label: "volume", Width: 4, Height: 4, Depth: 5, Dimension: gputypes.TextureDimension3D, Format: gputypes.TextureFormatR32Float})
	require.NoError(t, err)
	dst, err := f.dev.CreateBuffer(hostBuffer("readback", 1024, rhi.MemoryGPUToCPU))
	require.NoError(t, err)
	cmd, err := f.dev.NewCommandBuffer("frame")
	require.NoError(t, err)

	require.NoError(t, cmd.Begin())
	cmd.CopyImageToBuffer(array, dst)
	cmd.CopyImageToBuffer(volume, dst)
	require.NoError(t, cmd.End())

	copies := f.spy.encoder(0).copies
	require.Len(t, copies, 4)
	for layer := range 3 {
		c := copies[layer]
		assert.EqualValues(t, layer*16*4*4, c.BufferLayout.Offset)
		assert.EqualValues(t, 64, c.BufferLayout.BytesPerRow)
		assert.EqualValues(t, 4, c.BufferLayout.RowsPerImage)
		assert.EqualValues(t, layer, c.TextureBase.Origin.Z)
		assert.Equal(t, hal.Extent3D{Width: 16, Height: 4, DepthOrArrayLayers: 1}, c.Size)
	}
	assert.Equal(t, hal.Extent3D{Width: 4, Height: 4, DepthOrArrayLayers: 5}, copies[3].Size)
	assert.EqualValues(t, 16, copies[3].BufferLayout.BytesPerRow)
}

func TestSecondariesAreSplicedInOrder(t *testing.T) {
	f := newFixture(t, false)
	buf, err := f.dev.CreateBuffer(hostBuffer("shared", 1, rhi.MemoryCPUToGPU))
	require.NoError(t, err)
	cmd, err := f.dev.NewCommandBuffer("frame")
	require.NoError(t, err)

	var secondaries []rhi.CommandBuffer
	for i := range 2 {
		sec, err := cmd.CreateSecondary()
		require.NoError(t, err)
		require.NoError(t, sec.Begin())
		sec.WriteBuffer(buf, 0, []byte{byte(i + 1), 0, 0, 0})
		require.NoError(t, sec.End())
		secondaries = append(secondaries, sec)
	}
	assert.Error(t, secondaries[0].Submit(context.Background(), false))

	fence, err := f.dev.CreateFence()
	require.NoError(t, err)
	secondaries[1].Flush(fence)

	require.NoError(t, cmd.Begin())
	cmd.ExecuteSecondaries(secondaries)
	require.NoError(t, cmd.End())

	// The empty leading segment, one per secondary and the trailing one.
	assert.Len(t, cmd.segments, 4)
	assert.Equal(t, 2, f.spy.encoder(0).encodings)

	require.NoError(t, cmd.Submit(context.Background(), true))
	assert.True(t, fence.Signalled())

	got := make([]byte, 4)
	require.NoError(t, buf.Read(0, got))
	assert.Equal(t, byte(2), got[0])
	assert.True(t, f.spy.encoder(1).destroyed)
	assert.True(t, f.spy.encoder(2).destroyed)
	assert.False(t, f.spy.encoder(0).destroyed)
}

func TestExecuteUnfinishedSecondaryFails(t *testing.T) {
	f := newFixture(t, false)
	cmd, err := f.dev.NewCommandBuffer("frame")
	require.NoError(t, err)
	sec, err := cmd.CreateSecondary()
	require.NoError(t, err)
	require.NoError(t, sec.Begin())

	require.NoError(t, cmd.Begin())
	cmd.ExecuteSecondaries([]rhi.CommandBuffer{sec})
	assert.Error(t, cmd.End())
}

func TestFenceFollowsSubmission(t *testing.T) {
	f := newFixture(t, true)
	fence, err := f.dev.CreateFence()
	require.NoError(t, err)
	cmd, err := f.dev.NewCommandBuffer("frame")
	require.NoError(t, err)

	assert.False(t, fence.Signalled())
	require.NoError(t, cmd.Begin())
	cmd.Flush(fence)
	require.NoError(t, cmd.End())
	require.NoError(t, cmd.Submit(context.Background(), false))

	assert.EqualValues(t, 1, fence.(*Fence).Index())
	assert.False(t, fence.Signalled())

	f.complete(1)
	assert.True(t, fence.Signalled())
	assert.NoError(t, fence.Wait(context.Background()))
}

func TestFenceWaitHonoursContext(t *testing.T) {
	f := newFixture(t, false)
	fence, err := f.dev.CreateFence()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = fence.Wait(ctx)
	assert.ErrorIs(t, err, rhi.ErrFenceTimeout)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSubmitWaitHonoursContext(t *testing.T) {
	f := newFixture(t, true)
	cmd, err := f.dev.NewCommandBuffer("frame")
	require.NoError(t, err)
	require.NoError(t, cmd.Begin())
	require.NoError(t, cmd.End())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, cmd.Submit(ctx, true), rhi.ErrFenceTimeout)
}

func TestDestroyDiscardsRecording(t *testing.T) {
	f := newFixture(t, false)
	cmd, err := f.dev.NewCommandBuffer("frame")
	require.NoError(t, err)
	require.NoError(t, cmd.Begin())
	cmd.Destroy()
	assert.True(t, f.spy.encoder(0).destroyed)
}
