package framegraph

import "github.com/gogpu/framegraph/rhi"

// access is one declared use of a resource by a pass.
type access struct {
	handle ResourceHandle
	forced ForcedState
}

// markerOp is a debug marker begin or end attached after a pass.
type markerOp struct {
	begin bool
	name  string
	color [4]float32
}

// standaloneBarrier transitions a resource after a pass, independent of any
// declared access.
type standaloneBarrier struct {
	handle ResourceHandle
	dst    rhi.ResourceState
}

// passNode is one unit of declared GPU work.
type passNode struct {
	index int
	name  string

	creates []access
	reads   []access
	writes  []access

	isCompute     bool
	hasSideEffect bool
	isCulled      bool
	refCount      int

	exec func(*Context)

	markers  []markerOp
	barriers []standaloneBarrier
}

// declares reports whether the pass creates, reads or writes h.
func (p *passNode) declares(h ResourceHandle) bool {
	for _, list := range [...][]access{p.creates, p.reads, p.writes} {
		for _, a := range list {
			if a.handle == h {
				return true
			}
		}
	}
	return false
}

func (p *passNode) createsHandle(h ResourceHandle) bool {
	for _, a := range p.creates {
		if a.handle == h {
			return true
		}
	}
	return false
}
