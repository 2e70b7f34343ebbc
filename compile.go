package framegraph

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/gogpu/framegraph/rhi"
)

// trackedState is the compile-time state of one resource.
type trackedState struct {
	state   rhi.ResourceState
	isWrite bool
	// prev is the index of the last pass that touched the resource, or -1.
	prev    int
	touched bool
}

// compiledBarrier refers to its resource by handle. Handles are bound to
// physical resources only during Execute.
type compiledBarrier struct {
	typ    rhi.BarrierType
	handle ResourceHandle
	src    rhi.ResourceState
	dst    rhi.ResourceState
}

// barrierSet is what one pass emits at one point: at most one global
// barrier plus per-resource barriers.
type barrierSet struct {
	global    compiledBarrier
	hasGlobal bool
	resources []compiledBarrier
}

func (b *barrierSet) addGlobal(src, dst rhi.ResourceState) {
	b.global.typ = rhi.BarrierGlobal
	b.global.src.Access |= src.Access
	b.global.src.Stage |= src.Stage
	b.global.dst.Access |= dst.Access
	b.global.dst.Stage |= dst.Stage
	b.hasGlobal = true
}

func (b *barrierSet) add(n *resourceNode, src, dst rhi.ResourceState) {
	b.resources = append(b.resources, compiledBarrier{typ: n.barrierType(), handle: n.handle, src: src, dst: dst})
}

func (b *barrierSet) len() int {
	n := len(b.resources)
	if b.hasGlobal {
		n++
	}
	return n
}

// compiledPass is the frozen schedule of one pass.
type compiledPass struct {
	pre        barrierSet
	post       barrierSet
	surrenders []ResourceHandle
}

// Compile freezes the graph: it counts references, culls passes whose
// results are never consumed, computes lifetimes and derives every barrier.
// Compile must be called exactly once, before Execute.
func (g *Graph) Compile() {
	if g.state != stateDeclaring {
		panic("framegraph: Compile called twice")
	}
	_, span := g.tracer().Start(context.Background(), "framegraph.Compile")
	defer span.End()
	start := time.Now()

	g.checkMarkers()
	g.countReferences()
	culled := g.cull()
	g.computeLastUsage()
	g.synthesizeBarriers()
	g.state = stateCompiled

	barriers := 0
	for i := range g.compiled {
		barriers += g.compiled[i].pre.len() + g.compiled[i].post.len()
	}
	compileDuration.Observe(time.Since(start).Seconds())
	passesCulled.Add(float64(culled))
	span.SetAttributes(
		attribute.String("framegraph.id", g.id),
		attribute.Int("framegraph.passes", len(g.passes)),
		attribute.Int("framegraph.resources", len(g.resources)),
		attribute.Int("framegraph.culled", culled),
		attribute.Int("framegraph.barriers", barriers),
	)
	g.logger.Info("framegraph: compiled",
		"passes", len(g.passes),
		"resources", len(g.resources),
		"culled", culled,
		"barriers", barriers)
}

func (g *Graph) checkMarkers() {
	depth := 0
	visit := func(markers []markerOp) {
		for _, m := range markers {
			if m.begin {
				depth++
				continue
			}
			depth--
			if depth < 0 {
				panic("framegraph: EndMarker without BeginMarker")
			}
		}
	}
	for _, p := range g.passes {
		visit(p.markers)
	}
	visit(g.pendingMarkers)
	if depth != 0 {
		panic(fmt.Sprintf("framegraph: %d unclosed markers", depth))
	}
}

func (g *Graph) countReferences() {
	for _, p := range g.passes {
		p.refCount = len(p.writes) + len(p.creates)
		for _, a := range p.reads {
			g.resources[a.handle.index()].refCount++
		}
		for _, a := range p.creates {
			g.resources[a.handle.index()].producer = p
		}
		for _, a := range p.writes {
			g.resources[a.handle.index()].producer = p
		}
	}
	// An extraction consumes its resource like a read.
	for _, e := range g.extractions {
		g.resources[e.handle.index()].refCount++
	}
}

// cull removes passes whose outputs nobody reads, transitively. It returns
// the number of culled passes.
func (g *Graph) cull() int {
	var stack []*resourceNode
	for _, n := range g.resources {
		if n.refCount == 0 {
			stack = append(stack, n)
		}
	}

	culled := 0
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if n.neverCulled() {
			continue
		}
		p := n.producer
		if p == nil {
			panic(fmt.Sprintf("framegraph: %v %q has no producer", n.handle, n.desc.label()))
		}
		if p.hasSideEffect || p.isCulled {
			continue
		}
		p.refCount--
		if p.refCount > 0 {
			continue
		}
		p.isCulled = true
		culled++
		g.logger.Debug("framegraph: culled pass", "pass", p.name)
		for _, a := range p.reads {
			r := g.resources[a.handle.index()]
			r.refCount--
			if r.refCount == 0 {
				stack = append(stack, r)
			}
		}
	}
	return culled
}

func (g *Graph) computeLastUsage() {
	use := func(p *passNode, h ResourceHandle) {
		n := g.resources[h.index()]
		if n.isExternal {
			return
		}
		if n.lastUsage == nil || n.lastUsage.index < p.index {
			n.lastUsage = p
		}
	}
	for _, p := range g.passes {
		// Standalone barriers are recorded even on culled passes, so they
		// extend the lifetime of their resource.
		for _, sb := range p.barriers {
			use(p, sb.handle)
		}
		if p.isCulled {
			continue
		}
		for _, list := range [...][]access{p.creates, p.writes, p.reads} {
			for _, a := range list {
				use(p, a.handle)
			}
		}
	}

	g.compiled = make([]compiledPass, len(g.passes))
	for _, n := range g.resources {
		if n.lastUsage == nil || g.extracted(n.handle) {
			continue
		}
		cp := &g.compiled[n.lastUsage.index]
		cp.surrenders = append(cp.surrenders, n.handle)
	}
}

func (g *Graph) synthesizeBarriers() {
	g.finalStates = make([]trackedState, len(g.resources))
	for i, n := range g.resources {
		ts := &g.finalStates[i]
		ts.prev = -1
		if n.isExternal && g.opts.tracker != nil {
			ts.state = g.opts.tracker.CurrentState(n.external)
			ts.isWrite = ts.state.Access.IsWrite()
		}
	}

	for _, p := range g.passes {
		cp := &g.compiled[p.index]
		if !p.isCulled {
			for _, a := range p.creates {
				g.createBarrier(p, cp, a)
			}
			for _, a := range p.writes {
				g.writeBarrier(p, cp, a)
			}
			for _, a := range p.reads {
				g.readBarrier(p, cp, a)
			}
		}
		for _, sb := range p.barriers {
			g.standaloneBarrier(p, cp, sb)
		}
	}
}

func (g *Graph) transition(p *passNode, set *barrierSet, n *resourceNode, dst rhi.ResourceState, write bool) {
	ts := &g.finalStates[n.handle.index()]
	if n.kind() != KindImage || ts.state.Layout == dst.Layout {
		set.addGlobal(ts.state, dst)
	} else {
		set.add(n, ts.state, dst)
	}
	ts.state = dst
	ts.isWrite = write
	ts.prev = p.index
	ts.touched = true
}

func (g *Graph) createBarrier(p *passNode, cp *compiledPass, a access) {
	n := g.resources[a.handle.index()]
	if a.forced != StateNone {
		panic(fmt.Sprintf("framegraph: pass %q forces %v on create of %v", p.name, a.forced, n.handle))
	}
	dst := writeState(p, n)
	ts := &g.finalStates[n.handle.index()]
	if n.kind() == KindImage {
		// New images always start from an undefined layout.
		cp.pre.add(n, rhi.ResourceState{}, dst)
	} else {
		cp.pre.addGlobal(rhi.ResourceState{}, dst)
	}
	ts.state = dst
	ts.isWrite = true
	ts.prev = p.index
	ts.touched = true
}

func (g *Graph) writeBarrier(p *passNode, cp *compiledPass, a access) {
	n := g.resources[a.handle.index()]
	dst := writeState(p, n)
	if a.forced != StateNone {
		dst = forcedResourceState(a.forced, n)
	}
	g.transition(p, &cp.pre, n, dst, true)
}

func (g *Graph) readBarrier(p *passNode, cp *compiledPass, a access) {
	n := g.resources[a.handle.index()]
	dst := readState(p)
	if a.forced != StateNone {
		dst = forcedResourceState(a.forced, n)
	}
	ts := &g.finalStates[n.handle.index()]
	sameLayout := n.kind() != KindImage || ts.state.Layout == dst.Layout
	if !ts.isWrite && sameLayout {
		// Reads after reads need no barrier. Widen the tracked scope so the
		// next writer waits for every reader.
		ts.state.Access |= dst.Access
		ts.state.Stage |= dst.Stage
		ts.prev = p.index
		ts.touched = true
		return
	}
	g.transition(p, &cp.pre, n, dst, false)
}

func (g *Graph) standaloneBarrier(p *passNode, cp *compiledPass, sb standaloneBarrier) {
	n := g.resources[sb.handle.index()]
	g.transition(p, &cp.post, n, sb.dst, sb.dst.Access.IsWrite())
}
