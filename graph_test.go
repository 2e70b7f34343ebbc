package framegraph

import (
	"math"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/framegraph/rhi"
	"github.com/gogpu/framegraph/rhi/rhitest"
)

func TestNewRequiresCollaborators(t *testing.T) {
	dev := rhitest.NewDevice()
	assert.Panics(t, func() { New(nil, dev) })
	assert.Panics(t, func() { New(rhitest.NewCommandBuffer(dev), nil) })
}

func TestGraphID(t *testing.T) {
	g1, _ := newFixture(t)
	g2, _ := newFixture(t)
	assert.Len(t, g1.ID(), 12)
	assert.NotEqual(t, g1.ID(), g2.ID())
}

func TestBuilderCreateAssignsHandles(t *testing.T) {
	g, _ := newFixture(t)

	var img ImageHandle
	var buf BufferHandle
	var ubo UniformBufferHandle
	g.AddPass("Create", func(b *Builder) {
		img = b.CreateImage(colorDesc("img"))
		buf = b.CreateBuffer(bufferDesc("buf", 4))
		ubo = b.CreateUniformBuffer(bufferDesc("ubo", 4))
	}, nil)

	assert.Equal(t, "Image#0", img.String())
	assert.Equal(t, "Buffer#1", buf.String())
	assert.Equal(t, "UniformBuffer#2", ubo.String())

	d, ok := g.resources[ubo.Untyped().index()].desc.(uniformBufferDescription)
	require.True(t, ok)
	assert.NotZero(t, d.Usage&uniformUsage, "uniform usage is implied")
	assert.Len(t, g.passes[0].creates, 3)
}

func TestBuilderZeroSizedCreatePanics(t *testing.T) {
	tests := []struct {
		name   string
		create func(b *Builder)
	}{
		{"image width", func(b *Builder) {
			b.CreateImage(rhi.ImageDesc{Label: "bad", Height: 4, Format: colorDesc("").Format})
		}},
		{"image format", func(b *Builder) {
			b.CreateImage(rhi.ImageDesc{Label: "bad", Width: 4, Height: 4})
		}},
		{"buffer count", func(b *Builder) {
			b.CreateBuffer(rhi.BufferDesc{Label: "bad", ElementSize: 4})
		}},
		{"uniform element size", func(b *Builder) {
			b.CreateUniformBuffer(rhi.BufferDesc{Label: "bad", Count: 1})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, _ := newFixture(t)
			assert.Panics(t, func() {
				g.AddPass("Bad", tt.create, nil)
			})
			assert.Empty(t, g.resources, "no node may be created")
		})
	}
}

func TestBuilderAddExternalDeduplicates(t *testing.T) {
	g, _ := newFixture(t)
	img := rhitest.NewImage(colorDesc("backbuffer"))
	buf := rhitest.NewBuffer(bufferDesc("instances", 16))

	var h1, h2 ImageHandle
	var b1 BufferHandle
	g.AddPass("A", func(b *Builder) {
		h1 = b.AddExternalImage(img)
		b1 = b.AddExternalBuffer(buf)
	}, nil)
	g.AddPass("B", func(b *Builder) {
		h2 = b.AddExternalImage(img)
	}, nil)

	assert.Equal(t, h1, h2)
	assert.Equal(t, b1, g.AddExternalBuffer(buf))
	assert.Len(t, g.resources, 2)
	assert.Panics(t, func() { g.AddExternalUniformBuffer(buf) }, "same buffer as another kind")
}

func TestBuilderWriteOfOwnCreateIsIgnored(t *testing.T) {
	g, _ := newFixture(t)
	g.AddPass("Create", func(b *Builder) {
		h := b.CreateBuffer(bufferDesc("b", 4))
		b.WriteResource(h)
	}, nil)

	p := g.passes[0]
	assert.Empty(t, p.writes)
	assert.Equal(t, 1, p.refCount)
}

func TestBuilderReadOfOwnCreatePanics(t *testing.T) {
	g, _ := newFixture(t)
	assert.Panics(t, func() {
		g.AddPass("Create", func(b *Builder) {
			h := b.CreateBuffer(bufferDesc("b", 4))
			b.ReadResource(h)
		}, nil)
	})
}

func TestBuilderUseAfterSetupPanics(t *testing.T) {
	g, _ := newFixture(t)
	var saved *Builder
	g.AddPass("A", func(b *Builder) { saved = b }, nil)
	assert.Panics(t, func() { saved.SetHasSideEffect() })
}

func TestBuilderRejectsMultipleForcedStates(t *testing.T) {
	g, _ := newFixture(t)
	buf := g.CreateBuffer(bufferDesc("b", 4))
	assert.Panics(t, func() {
		g.AddPass("A", func(b *Builder) {
			b.ReadResource(buf, StateCopySource, StateVertexBuffer)
		}, nil)
	})
}

func TestGraphRejectsForeignHandles(t *testing.T) {
	g1, _ := newFixture(t)
	g2, _ := newFixture(t)
	g1.CreateBuffer(bufferDesc("a", 4))
	h := g1.CreateBuffer(bufferDesc("b", 4))

	assert.Panics(t, func() {
		g2.AddPass("A", func(b *Builder) { b.ReadResource(h) }, nil)
	})
	assert.Panics(t, func() {
		g1.AddPass("A", func(b *Builder) { b.ReadResource(BufferHandle{}) }, nil)
	})
}

func TestGraphDeclarationAfterCompilePanics(t *testing.T) {
	g, _ := newFixture(t)
	g.Compile()
	assert.Panics(t, func() { g.AddPass("late", nil, nil) })
	assert.Panics(t, func() { g.CreateImage(colorDesc("late")) })
	assert.Panics(t, func() { g.BeginMarker("late", [4]float32{}) })
}

func TestAddPassWithData(t *testing.T) {
	g, _ := newFixture(t)

	type lighting struct {
		target ImageHandle
		ran    bool
	}
	data := AddPassWithData(g, "Lighting", func(b *Builder, d *lighting) {
		d.target = b.CreateImage(colorDesc("light"))
		b.SetHasSideEffect()
	}, func(d *lighting, ctx *Context) {
		d.ran = ctx.ImageRaw(d.target) != nil
	})
	require.False(t, data.target.IsNull())

	g.Compile()
	require.NoError(t, g.Execute(t.Context()))
	assert.True(t, data.ran)
}

func TestStandaloneBarrierBeforeFirstPass(t *testing.T) {
	g, _ := newFixture(t)
	hist := g.CreateBuffer(bufferDesc("history", 4))
	g.AddResourceBarrier(hist, rhi.ResourceState{Access: rhi.AccessShaderRead, Stage: rhi.StageComputeShader})
	g.BeginMarker("Frame", [4]float32{})
	g.EndMarker()
	g.AddPass("First", nil, nil)

	p := g.passes[0]
	assert.Len(t, p.barriers, 1)
	assert.Len(t, p.markers, 2)
}

func TestStagedUploadDeclaresStagingAndCopy(t *testing.T) {
	g, _ := newFixture(t)
	dst := g.CreateBuffer(bufferDesc("vertices", 4))
	g.AddStagedBufferUpload(dst, []byte{1, 2, 3, 4}, "Upload vertices")

	require.Len(t, g.passes, 2)
	assert.Equal(t, "Upload vertices map", g.passes[0].name)
	assert.Equal(t, "Upload vertices", g.passes[1].name)

	staging := g.resources[1]
	assert.True(t, staging.isGlobal)
	assert.Equal(t, rhi.MemoryCPUToGPU, staging.desc.(bufferDescription).Memory)
	assert.Equal(t, StateCopySource, g.passes[1].reads[0].forced)
	assert.Equal(t, StateCopyDest, g.passes[1].writes[0].forced)
}

func TestStagingCountRejectsOversizedUploads(t *testing.T) {
	assert.Equal(t, uint32(16), stagingCount("small", 16))
	if strconv.IntSize < 64 {
		t.Skip("4 GiB lengths need a 64-bit int")
	}
	n := uint64(math.MaxUint32) + 1
	assert.PanicsWithValue(t,
		`framegraph: staged upload "huge" of 4294967296 bytes exceeds 4 GiB`,
		func() { stagingCount("huge", int(n)) })
}
