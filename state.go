package framegraph

import (
	"fmt"

	"github.com/gogpu/framegraph/rhi"
)

// ForcedState overrides the state the compiler would otherwise derive for a
// read or write access.
type ForcedState uint8

// Forced states.
const (
	StateNone ForcedState = iota
	StateIndirectArgument
	StateIndexBuffer
	StateVertexBuffer
	StateCopyDest
	StateCopySource
	StateClear
)

var forcedStateNames = [...]string{
	StateNone:             "None",
	StateIndirectArgument: "IndirectArgument",
	StateIndexBuffer:      "IndexBuffer",
	StateVertexBuffer:     "VertexBuffer",
	StateCopyDest:         "CopyDest",
	StateCopySource:       "CopySource",
	StateClear:            "Clear",
}

// String returns the state name.
func (s ForcedState) String() string {
	if int(s) < len(forcedStateNames) {
		return forcedStateNames[s]
	}
	return fmt.Sprintf("ForcedState(%d)", s)
}

// forcedResourceState maps a forced state onto a concrete state for the
// given resource. Buffer-only states on images are contract violations.
func forcedResourceState(forced ForcedState, n *resourceNode) rhi.ResourceState {
	isImage := n.kind() == KindImage
	switch forced {
	case StateIndirectArgument, StateIndexBuffer, StateVertexBuffer:
		if isImage {
			panic(fmt.Sprintf("framegraph: forced state %v is not valid for image %q", forced, n.desc.label()))
		}
		switch forced {
		case StateIndirectArgument:
			return rhi.ResourceState{Access: rhi.AccessIndirectArgument, Stage: rhi.StageDrawIndirect}
		case StateIndexBuffer:
			return rhi.ResourceState{Access: rhi.AccessIndexBuffer, Stage: rhi.StageIndexInput}
		default:
			return rhi.ResourceState{Access: rhi.AccessVertexBuffer, Stage: rhi.StageVertexInput}
		}
	case StateCopyDest:
		return rhi.ResourceState{Access: rhi.AccessCopyDest, Stage: rhi.StageCopy, Layout: rhi.LayoutCopyDest}
	case StateCopySource:
		return rhi.ResourceState{Access: rhi.AccessCopySource, Stage: rhi.StageCopy, Layout: rhi.LayoutCopySource}
	case StateClear:
		if !isImage {
			return rhi.ResourceState{Access: rhi.AccessCopyDest, Stage: rhi.StageClear}
		}
		if n.isDepthImage() {
			return rhi.ResourceState{Access: rhi.AccessDepthStencilWrite, Stage: rhi.StageClear, Layout: rhi.LayoutDepthStencilWrite}
		}
		return rhi.ResourceState{Access: rhi.AccessRenderTarget, Stage: rhi.StageClear, Layout: rhi.LayoutRenderTarget}
	default:
		panic(fmt.Sprintf("framegraph: unknown forced state %v", forced))
	}
}

// writeState derives the state a pass leaves a resource in when it creates or
// writes it without a forced state.
func writeState(p *passNode, n *resourceNode) rhi.ResourceState {
	if p.isCompute {
		// Compute passes access every resource kind the same way.
		return rhi.ResourceState{Access: rhi.AccessShaderWrite, Stage: rhi.StageComputeShader, Layout: rhi.LayoutShaderWrite}
	}
	if n.kind() == KindImage && !n.is3DImage() {
		if n.isDepthImage() {
			return rhi.ResourceState{
				Access: rhi.AccessDepthStencilWrite | rhi.AccessDepthStencilRead,
				Stage:  rhi.StageDepthStencil,
				Layout: rhi.LayoutDepthStencilWrite,
			}
		}
		return rhi.ResourceState{Access: rhi.AccessRenderTarget, Stage: rhi.StageRenderTarget, Layout: rhi.LayoutRenderTarget}
	}
	return rhi.ResourceState{Access: rhi.AccessShaderWrite, Stage: rhi.StageAllGraphicsShaders, Layout: rhi.LayoutShaderWrite}
}

// readState derives the state of a shader read. Access and layout are the
// same for compute and raster passes; only the stage differs.
func readState(p *passNode) rhi.ResourceState {
	s := rhi.ResourceState{Access: rhi.AccessShaderRead, Layout: rhi.LayoutShaderRead}
	if p.isCompute {
		s.Stage = rhi.StageComputeShader
	} else {
		s.Stage = rhi.StageAllGraphicsShaders
	}
	return s
}
