package framegraph

import (
	"fmt"

	"github.com/gogpu/framegraph/rhi"
)

// Builder declares the resources one pass touches. It is handed to the
// pass's setup callback and must not be used after the callback returns.
type Builder struct {
	g      *Graph
	pass   *passNode
	closed bool
}

func (b *Builder) check() {
	if b.closed {
		panic(fmt.Sprintf("framegraph: builder of pass %q used after setup", b.pass.name))
	}
}

// CreateImage declares a new transient image produced by this pass.
func (b *Builder) CreateImage(desc rhi.ImageDesc) ImageHandle {
	b.check()
	mustValidate("image description "+desc.Label, desc)
	h := b.g.addResource(imageDescription{desc}, false)
	b.addCreate(h)
	return HandleAs[ImageKind](h)
}

// CreateBuffer declares a new transient buffer produced by this pass.
func (b *Builder) CreateBuffer(desc rhi.BufferDesc) BufferHandle {
	b.check()
	mustValidate("buffer description "+desc.Label, desc)
	h := b.g.addResource(bufferDescription{desc}, false)
	b.addCreate(h)
	return HandleAs[BufferKind](h)
}

// CreateUniformBuffer declares a new transient uniform buffer produced by
// this pass.
func (b *Builder) CreateUniformBuffer(desc rhi.BufferDesc) UniformBufferHandle {
	b.check()
	mustValidate("uniform buffer description "+desc.Label, desc)
	desc.Usage |= uniformUsage
	h := b.g.addResource(uniformBufferDescription{desc}, false)
	b.addCreate(h)
	return HandleAs[UniformBufferKind](h)
}

func (b *Builder) addCreate(h ResourceHandle) {
	b.pass.creates = append(b.pass.creates, access{handle: h})
}

// AddExternalImage registers an image owned outside the graph. Registering
// the same image twice returns the same handle.
func (b *Builder) AddExternalImage(img rhi.Image) ImageHandle {
	b.check()
	return b.g.AddExternalImage(img)
}

// AddExternalBuffer registers a buffer owned outside the graph.
func (b *Builder) AddExternalBuffer(buf rhi.Buffer) BufferHandle {
	b.check()
	return b.g.AddExternalBuffer(buf)
}

// AddExternalUniformBuffer registers a uniform buffer owned outside the
// graph.
func (b *Builder) AddExternalUniformBuffer(buf rhi.Buffer) UniformBufferHandle {
	b.check()
	return b.g.AddExternalUniformBuffer(buf)
}

// ReadResource declares that the pass reads h. An optional forced state
// replaces the shader-read state the compiler would derive.
func (b *Builder) ReadResource(h AnyHandle, forced ...ForcedState) {
	b.check()
	u := b.g.mustNode(h).handle
	if b.pass.createsHandle(u) {
		panic(fmt.Sprintf("framegraph: pass %q reads %v which it creates", b.pass.name, u))
	}
	b.pass.reads = append(b.pass.reads, access{handle: u, forced: single(forced)})
}

// WriteResource declares that the pass writes h. Writing a resource the
// same pass creates is a no-op.
func (b *Builder) WriteResource(h AnyHandle, forced ...ForcedState) {
	b.check()
	u := b.g.mustNode(h).handle
	if b.pass.createsHandle(u) {
		return
	}
	b.pass.writes = append(b.pass.writes, access{handle: u, forced: single(forced)})
}

// SetIsComputePass marks the pass as compute work, which changes the
// synchronization scopes derived for its accesses.
func (b *Builder) SetIsComputePass() {
	b.check()
	b.pass.isCompute = true
}

// SetHasSideEffect keeps the pass alive even when nothing reads its outputs.
func (b *Builder) SetHasSideEffect() {
	b.check()
	b.pass.hasSideEffect = true
}

func single(forced []ForcedState) ForcedState {
	switch len(forced) {
	case 0:
		return StateNone
	case 1:
		return forced[0]
	default:
		panic(fmt.Sprintf("framegraph: at most one forced state per access, got %v", forced))
	}
}
