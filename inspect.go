package framegraph

import "github.com/gogpu/framegraph/rhi"

// BarrierInfo describes one compiled barrier. Handle is null for global
// barriers.
type BarrierInfo struct {
	Type   rhi.BarrierType
	Handle ResourceHandle
	Src    rhi.ResourceState
	Dst    rhi.ResourceState
}

// PassInfo is the compiled schedule of one pass.
type PassInfo struct {
	Index        int
	Name         string
	Culled       bool
	Compute      bool
	SideEffect   bool
	RefCount     int
	PreBarriers  []BarrierInfo
	PostBarriers []BarrierInfo
	// Surrenders lists the resources whose last use is this pass.
	Surrenders []ResourceHandle
}

// ResourceInfo is the compiled lifetime of one resource. Producer and
// LastUsage are -1 when absent.
type ResourceInfo struct {
	Handle    ResourceHandle
	Label     string
	External  bool
	Global    bool
	RefCount  int
	Producer  int
	LastUsage int
	ByteSize  uint64
	// FinalState is the state the resource is left in after the last
	// non-culled pass.
	FinalState rhi.ResourceState
}

func barrierInfos(set *barrierSet) []BarrierInfo {
	var out []BarrierInfo
	if set.hasGlobal {
		out = append(out, BarrierInfo{Type: rhi.BarrierGlobal, Src: set.global.src, Dst: set.global.dst})
	}
	for _, b := range set.resources {
		out = append(out, BarrierInfo{Type: b.typ, Handle: b.handle, Src: b.src, Dst: b.dst})
	}
	return out
}

// CompiledPasses returns the schedule of every pass in declaration order.
// It returns nil before Compile.
func (g *Graph) CompiledPasses() []PassInfo {
	if g.state == stateDeclaring {
		return nil
	}
	out := make([]PassInfo, len(g.passes))
	for i, p := range g.passes {
		cp := &g.compiled[i]
		out[i] = PassInfo{
			Index:        p.index,
			Name:         p.name,
			Culled:       p.isCulled,
			Compute:      p.isCompute,
			SideEffect:   p.hasSideEffect,
			RefCount:     p.refCount,
			PreBarriers:  barrierInfos(&cp.pre),
			PostBarriers: barrierInfos(&cp.post),
			Surrenders:   append([]ResourceHandle(nil), cp.surrenders...),
		}
	}
	return out
}

// Resource returns the compiled lifetime of h. Before Compile only the
// declaration fields are filled in.
func (g *Graph) Resource(h AnyHandle) ResourceInfo {
	n := g.mustNode(h)
	info := ResourceInfo{
		Handle:    n.handle,
		Label:     n.desc.label(),
		External:  n.isExternal,
		Global:    n.isGlobal,
		RefCount:  n.refCount,
		Producer:  -1,
		LastUsage: -1,
		ByteSize:  n.desc.byteSize(),
	}
	if n.producer != nil {
		info.Producer = n.producer.index
	}
	if n.lastUsage != nil {
		info.LastUsage = n.lastUsage.index
	}
	if g.finalStates != nil {
		info.FinalState = g.finalStates[n.handle.index()].state
	}
	return info
}

// Passes returns the number of declared passes.
func (g *Graph) Passes() int { return len(g.passes) }
