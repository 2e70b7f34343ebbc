package framegraph

import "fmt"

// ResourceKind enumerates the resource kinds a graph tracks.
type ResourceKind uint8

// Resource kinds.
const (
	KindImage ResourceKind = iota + 1
	KindBuffer
	KindUniformBuffer
)

// String returns the kind name.
func (k ResourceKind) String() string {
	switch k {
	case KindImage:
		return "Image"
	case KindBuffer:
		return "Buffer"
	case KindUniformBuffer:
		return "UniformBuffer"
	default:
		return fmt.Sprintf("ResourceKind(%d)", k)
	}
}

// ImageKind, BufferKind and UniformBufferKind parameterize Handle.
type (
	ImageKind         struct{}
	BufferKind        struct{}
	UniformBufferKind struct{}
)

func (ImageKind) kind() ResourceKind         { return KindImage }
func (BufferKind) kind() ResourceKind        { return KindBuffer }
func (UniformBufferKind) kind() ResourceKind { return KindUniformBuffer }

// Kind is the set of handle kind parameters.
type Kind interface {
	ImageKind | BufferKind | UniformBufferKind
	kind() ResourceKind
}

// Handle identifies one logical resource of kind K inside one graph.
// The zero value is the null handle.
type Handle[K Kind] struct {
	id uint32
}

// Typed handle aliases.
type (
	ImageHandle         = Handle[ImageKind]
	BufferHandle        = Handle[BufferKind]
	UniformBufferHandle = Handle[UniformBufferKind]
)

// IsNull reports whether h is the null handle.
func (h Handle[K]) IsNull() bool { return h.id == 0 }

// Kind returns the resource kind of h.
func (h Handle[K]) Kind() ResourceKind {
	var k K
	return k.kind()
}

// Untyped erases the kind parameter.
func (h Handle[K]) Untyped() ResourceHandle {
	return ResourceHandle{id: h.id, kind: h.Kind()}
}

func (h Handle[K]) String() string { return h.Untyped().String() }

// ResourceHandle is a kind-erased handle. It remembers its kind so that
// HandleAs can check conversions.
type ResourceHandle struct {
	id   uint32
	kind ResourceKind
}

// Untyped returns h.
func (h ResourceHandle) Untyped() ResourceHandle { return h }

// IsNull reports whether h is the null handle.
func (h ResourceHandle) IsNull() bool { return h.id == 0 }

// Kind returns the resource kind of h.
func (h ResourceHandle) Kind() ResourceKind { return h.kind }

func (h ResourceHandle) String() string {
	if h.id == 0 {
		return "null"
	}
	return fmt.Sprintf("%v#%d", h.kind, h.id-1)
}

// index returns the position of the node in the graph's resource list.
func (h ResourceHandle) index() int { return int(h.id) - 1 }

// AnyHandle is implemented by Handle[K] and ResourceHandle.
type AnyHandle interface {
	Untyped() ResourceHandle
}

// HandleAs converts h to a handle of kind K. It panics if h refers to a
// resource of another kind; the null handle converts to the null handle of
// any kind.
func HandleAs[K Kind](h AnyHandle) Handle[K] {
	u := h.Untyped()
	var k K
	if u.id != 0 && u.kind != k.kind() {
		panic(fmt.Sprintf("framegraph: cannot convert %v handle to %v", u.kind, k.kind()))
	}
	return Handle[K]{id: u.id}
}

func handleFromIndex(i int, kind ResourceKind) ResourceHandle {
	return ResourceHandle{id: uint32(i) + 1, kind: kind}
}
