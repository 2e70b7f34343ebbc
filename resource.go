package framegraph

import (
	"github.com/gogpu/framegraph/rhi"
)

// description is the closed set of resource descriptions a graph can hold.
// Every switch over it handles imageDescription, bufferDescription and
// uniformBufferDescription.
type description interface {
	kind() ResourceKind
	hash() uint64
	byteSize() uint64
	label() string
}

type imageDescription struct{ rhi.ImageDesc }

type bufferDescription struct{ rhi.BufferDesc }

type uniformBufferDescription struct{ rhi.BufferDesc }

func (imageDescription) kind() ResourceKind         { return KindImage }
func (bufferDescription) kind() ResourceKind        { return KindBuffer }
func (uniformBufferDescription) kind() ResourceKind { return KindUniformBuffer }

func (d imageDescription) hash() uint64         { return d.Hash() }
func (d bufferDescription) hash() uint64        { return d.Hash() }
func (d uniformBufferDescription) hash() uint64 { return d.Hash() }

func (d imageDescription) byteSize() uint64         { return d.ByteSize() }
func (d bufferDescription) byteSize() uint64        { return d.ByteSize() }
func (d uniformBufferDescription) byteSize() uint64 { return d.ByteSize() }

func (d imageDescription) label() string         { return d.Label }
func (d bufferDescription) label() string        { return d.Label }
func (d uniformBufferDescription) label() string { return d.Label }

// describe builds the description of an existing physical resource, used for
// external registrations.
func describe(kind ResourceKind, r rhi.Resource) description {
	switch kind {
	case KindImage:
		return imageDescription{r.(rhi.Image).Desc()}
	case KindBuffer:
		return bufferDescription{r.(rhi.Buffer).Desc()}
	case KindUniformBuffer:
		return uniformBufferDescription{r.(rhi.Buffer).Desc()}
	default:
		panic("framegraph: unknown resource kind " + kind.String())
	}
}

// resourceNode is one logical resource. Physical backing is bound lazily by
// the transient system during execution.
type resourceNode struct {
	handle     ResourceHandle
	desc       description
	hash       uint64
	isExternal bool
	isGlobal   bool
	external   rhi.Resource

	// producer is the last declared pass that creates or writes the resource.
	producer  *passNode
	lastUsage *passNode
	refCount  int
}

func (n *resourceNode) kind() ResourceKind { return n.desc.kind() }

// neverCulled reports whether culling must leave the node's producer alone.
func (n *resourceNode) neverCulled() bool { return n.isExternal || n.isGlobal }

func (n *resourceNode) isDepthImage() bool {
	d, ok := n.desc.(imageDescription)
	return ok && d.IsDepth()
}

func (n *resourceNode) is3DImage() bool {
	d, ok := n.desc.(imageDescription)
	return ok && d.Is3D()
}

func (n *resourceNode) barrierType() rhi.BarrierType {
	if n.kind() == KindImage {
		return rhi.BarrierImage
	}
	return rhi.BarrierBuffer
}
