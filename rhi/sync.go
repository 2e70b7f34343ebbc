package rhi

import (
	"fmt"
	"strings"
)

// Access is a bitmask of memory access scopes.
type Access uint32

// Memory access scopes.
const (
	AccessIndirectArgument Access = 1 << iota
	AccessIndexBuffer
	AccessVertexBuffer
	AccessUniformBuffer
	AccessRenderTarget
	AccessDepthStencilRead
	AccessDepthStencilWrite
	AccessShaderRead
	AccessShaderWrite
	AccessCopySource
	AccessCopyDest
	AccessHostRead
	AccessNone Access = 0
)

// Stage is a bitmask of pipeline synchronization scopes.
type Stage uint32

// Pipeline stages.
const (
	StageDrawIndirect Stage = 1 << iota
	StageIndexInput
	StageVertexInput
	StageVertexShader
	StagePixelShader
	StageMeshShader
	StageAmplificationShader
	StageComputeShader
	StageRenderTarget
	StageDepthStencil
	StageCopy
	StageClear
	StageHost
	StageAll
	StageNone Stage = 0
)

// StageAllGraphicsShaders covers every raster shader stage.
const StageAllGraphicsShaders = StageVertexShader | StagePixelShader | StageMeshShader | StageAmplificationShader

// Layout is an image layout.
type Layout uint8

// Image layouts.
const (
	LayoutUndefined Layout = iota
	LayoutGeneral
	LayoutRenderTarget
	LayoutDepthStencilWrite
	LayoutDepthStencilRead
	LayoutShaderRead
	LayoutShaderWrite
	LayoutCopySource
	LayoutCopyDest
	LayoutPresent
)

var layoutNames = [...]string{
	LayoutUndefined:         "Undefined",
	LayoutGeneral:           "General",
	LayoutRenderTarget:      "RenderTarget",
	LayoutDepthStencilWrite: "DepthStencilWrite",
	LayoutDepthStencilRead:  "DepthStencilRead",
	LayoutShaderRead:        "ShaderRead",
	LayoutShaderWrite:       "ShaderWrite",
	LayoutCopySource:        "CopySource",
	LayoutCopyDest:          "CopyDest",
	LayoutPresent:           "Present",
}

// String returns the layout name.
func (l Layout) String() string {
	if int(l) < len(layoutNames) {
		return layoutNames[l]
	}
	return fmt.Sprintf("Layout(%d)", l)
}

var accessNames = []string{
	"IndirectArgument", "IndexBuffer", "VertexBuffer", "UniformBuffer",
	"RenderTarget", "DepthStencilRead", "DepthStencilWrite", "ShaderRead",
	"ShaderWrite", "CopySource", "CopyDest", "HostRead",
}

// String returns the set access bits joined by '|'.
func (a Access) String() string {
	return maskString(uint32(a), accessNames)
}

var stageNames = []string{
	"DrawIndirect", "IndexInput", "VertexInput", "VertexShader", "PixelShader",
	"MeshShader", "AmplificationShader", "ComputeShader", "RenderTarget",
	"DepthStencil", "Copy", "Clear", "Host", "All",
}

// String returns the set stage bits joined by '|'.
func (s Stage) String() string {
	return maskString(uint32(s), stageNames)
}

func maskString(v uint32, names []string) string {
	if v == 0 {
		return "None"
	}
	var parts []string
	for i, name := range names {
		if v&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "|")
}

// IsWrite reports whether the access mask contains a write scope.
func (a Access) IsWrite() bool {
	return a&(AccessShaderWrite|AccessDepthStencilWrite|AccessCopyDest|AccessRenderTarget) != 0
}

// ResourceState is the synchronization state of a resource at one point in a
// command stream. Layout is ignored for buffers.
type ResourceState struct {
	Access Access
	Stage  Stage
	Layout Layout
}

// String formats the state for logs and test failures.
func (s ResourceState) String() string {
	return fmt.Sprintf("{%v %v %v}", s.Access, s.Stage, s.Layout)
}

// BarrierType selects which resource a Barrier applies to.
type BarrierType uint8

// Barrier types.
const (
	BarrierGlobal BarrierType = iota
	BarrierImage
	BarrierBuffer
)

// String returns the barrier type name.
func (t BarrierType) String() string {
	switch t {
	case BarrierGlobal:
		return "Global"
	case BarrierImage:
		return "Image"
	case BarrierBuffer:
		return "Buffer"
	default:
		return fmt.Sprintf("BarrierType(%d)", t)
	}
}

// Barrier is a single synchronization directive. Global barriers carry no
// resource and no layouts.
type Barrier struct {
	Type     BarrierType
	Resource Resource
	Src      ResourceState
	Dst      ResourceState
}
