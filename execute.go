package framegraph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/gogpu/framegraph/internal/transient"
	"github.com/gogpu/framegraph/rhi"
)

var passMarkerColor = [4]float32{0.2, 0.6, 1, 1}

// Execute binds resources, records every pass and submits the primary
// command buffer without waiting for the GPU. It may be called once, after
// Compile.
//
// Errors from the device or the command buffers are returned wrapped; the
// graph is torn down either way.
func (g *Graph) Execute(ctx context.Context) error {
	return g.execute(ctx, false)
}

// ExecuteAndWait is Execute followed by a wait for GPU completion.
func (g *Graph) ExecuteAndWait(ctx context.Context) error {
	return g.execute(ctx, true)
}

func (g *Graph) execute(ctx context.Context, wait bool) (err error) {
	switch g.state {
	case stateDeclaring:
		panic("framegraph: Execute before Compile")
	case stateExecuting, stateDone:
		panic("framegraph: Execute called twice")
	}
	g.state = stateExecuting

	ctx, span := g.tracer().Start(ctx, "framegraph.Execute")
	defer span.End()
	start := time.Now()
	span.SetAttributes(
		attribute.String("framegraph.id", g.id),
		attribute.Int("framegraph.passes", len(g.passes)),
		attribute.Bool("framegraph.wait", wait),
	)

	defer func() {
		if terr := g.teardown(); terr != nil {
			err = errors.Join(err, terr)
		}
		g.state = stateDone
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		executeDuration.Observe(time.Since(start).Seconds())
	}()

	if err := g.bind(); err != nil {
		return err
	}
	if err := g.record(ctx); err != nil {
		return err
	}

	if g.opts.bindless != nil {
		g.opts.bindless.PrepareForRender()
	}
	if err := g.cmd.Submit(ctx, wait); err != nil {
		return fmt.Errorf("framegraph: submit: %w", err)
	}

	g.commitExternalStates()
	g.startReadbacks()

	total := g.transient.TotalAllocatedSize()
	transientBytes.Set(float64(total))
	aliasedResources.Add(float64(g.transient.Reused()))
	if g.sizeCallback != nil {
		g.sizeCallback(total)
	}
	g.logger.Info("framegraph: executed",
		"passes", len(g.passes),
		"allocated", total,
		"aliased", g.transient.Reused(),
		"elapsed", time.Since(start))
	return nil
}

// bind walks the passes in order, binding every resource on its first use,
// registering default bindless entries and surrendering resources after
// their last use. It runs before any recording so the transient system and
// the bindless registry are only mutated from this goroutine.
func (g *Graph) bind() error {
	g.bound = make([]boundResource, len(g.resources))
	for _, n := range g.resources {
		if n.isExternal {
			g.bound[n.handle.index()].resource = n.external
			g.register(n)
		}
	}

	for _, p := range g.passes {
		if !p.isCulled {
			for _, list := range [...][]access{p.creates, p.writes, p.reads} {
				for _, a := range list {
					if err := g.acquire(p, a.handle); err != nil {
						return err
					}
				}
			}
		}
		for _, h := range g.compiled[p.index].surrenders {
			g.transient.Surrender(transient.Handle(h.id), g.resources[h.index()].hash)
		}
	}
	return nil
}

func (g *Graph) acquire(p *passNode, h ResourceHandle) error {
	n := g.resources[h.index()]
	b := &g.bound[h.index()]
	if b.resource != nil {
		return nil
	}

	th := transient.Handle(h.id)
	var (
		r   rhi.Resource
		err error
	)
	switch d := n.desc.(type) {
	case imageDescription:
		r, err = g.transient.AcquireImage(th, d.ImageDesc)
	case bufferDescription:
		r, err = g.transient.AcquireBuffer(th, d.BufferDesc)
	case uniformBufferDescription:
		r, err = g.transient.AcquireUniformBuffer(th, d.BufferDesc)
	}
	if err != nil {
		return fmt.Errorf("framegraph: pass %q: %w", p.name, err)
	}
	b.resource = r

	if donor, ok := g.transient.Donor(th); ok {
		// The previous owner may still be in flight on the GPU.
		prev := g.finalStates[int(donor)-1].state
		g.aliasing[p.index] = append(g.aliasing[p.index], rhi.Barrier{
			Type: rhi.BarrierGlobal,
			Src:  rhi.ResourceState{Access: prev.Access, Stage: prev.Stage},
			Dst:  rhi.ResourceState{Stage: rhi.StageAll},
		})
		g.logger.Debug("framegraph: aliased resource",
			"pass", p.name, "resource", h, "donor", handleFromIndex(int(donor)-1, n.kind()))
	}
	g.register(n)
	return nil
}

// register adds the default bindless entry for a bound resource.
func (g *Graph) register(n *resourceNode) {
	reg := g.opts.bindless
	if reg == nil {
		return
	}
	b := &g.bound[n.handle.index()]
	switch r := b.resource.(type) {
	case rhi.Image:
		v := r.View()
		if v.IsSwapchain() {
			return
		}
		b.bindless = reg.RegisterImageView(v)
		b.viewType = v.Type()
	case rhi.Buffer:
		b.bindless = reg.RegisterBuffer(r)
	default:
		return
	}
	b.registered = true
}

// record splits the passes into ranges and records them. A single range is
// recorded straight into the primary command buffer.
func (g *Graph) record(ctx context.Context) error {
	per := g.opts.maxPassesPerRange
	if len(g.passes) <= per {
		if err := g.cmd.Begin(); err != nil {
			return fmt.Errorf("framegraph: begin primary: %w", err)
		}
		g.recordRange(g.cmd, 0, len(g.passes))
		if err := g.cmd.End(); err != nil {
			return fmt.Errorf("framegraph: end primary: %w", err)
		}
		return nil
	}

	ranges := (len(g.passes) + per - 1) / per
	secondaries := make([]rhi.CommandBuffer, ranges)
	for i := range secondaries {
		sec, err := g.cmd.CreateSecondary()
		if err != nil {
			return fmt.Errorf("framegraph: create secondary: %w", err)
		}
		secondaries[i] = sec
	}

	recordOne := func(ctx context.Context, i int) error {
		_, span := g.tracer().Start(ctx, "framegraph.RecordRange")
		defer span.End()
		first := i * per
		last := min(first+per, len(g.passes))
		span.SetAttributes(attribute.Int("framegraph.range", i), attribute.Int("framegraph.first", first))

		sec := secondaries[i]
		if err := sec.Begin(); err != nil {
			return fmt.Errorf("framegraph: begin range %d: %w", i, err)
		}
		g.recordRange(sec, first, last)
		if err := sec.End(); err != nil {
			return fmt.Errorf("framegraph: end range %d: %w", i, err)
		}
		return nil
	}

	if g.opts.multithreaded {
		group := newTaskGroup(ctx, g.opts.jobs)
		for i := range ranges {
			group.Go(func(ctx context.Context) error { return recordOne(ctx, i) })
		}
		if err := group.Wait(); err != nil {
			return err
		}
	} else {
		for i := range ranges {
			if err := recordOne(ctx, i); err != nil {
				return err
			}
		}
	}

	if err := g.cmd.Begin(); err != nil {
		return fmt.Errorf("framegraph: begin primary: %w", err)
	}
	g.cmd.ExecuteSecondaries(secondaries)
	if err := g.cmd.End(); err != nil {
		return fmt.Errorf("framegraph: end primary: %w", err)
	}
	return nil
}

func (g *Graph) recordRange(cmd rhi.CommandBuffer, first, last int) {
	for _, p := range g.passes[first:last] {
		cp := &g.compiled[p.index]
		if p.isCulled {
			g.emit(cmd, nil, &cp.post)
			g.emitMarkers(cmd, p)
			continue
		}

		cmd.BeginMarker(p.name, passMarkerColor)
		g.emit(cmd, g.aliasing[p.index], &cp.pre)
		if p.exec != nil {
			p.exec(&Context{g: g, pass: p, cmd: cmd})
		}
		passesExecuted.Inc()
		g.emit(cmd, nil, &cp.post)
		cmd.EndMarker()
		g.emitMarkers(cmd, p)
	}
}

// emit resolves a barrier set against the bound resources and records it.
// Barriers on resources that were never bound, such as those only used by
// culled passes, are dropped.
func (g *Graph) emit(cmd rhi.CommandBuffer, extra []rhi.Barrier, set *barrierSet) {
	barriers := make([]rhi.Barrier, 0, len(extra)+set.len())
	barriers = append(barriers, extra...)
	if set.hasGlobal {
		barriers = append(barriers, rhi.Barrier{Type: rhi.BarrierGlobal, Src: set.global.src, Dst: set.global.dst})
	}
	for _, cb := range set.resources {
		r := g.bound[cb.handle.index()].resource
		if r == nil {
			continue
		}
		barriers = append(barriers, rhi.Barrier{Type: cb.typ, Resource: r, Src: cb.src, Dst: cb.dst})
	}
	if len(barriers) == 0 {
		return
	}
	for _, b := range barriers {
		barriersEmitted.WithLabelValues(b.Type.String()).Inc()
	}
	cmd.ResourceBarrier(barriers)
}

func (g *Graph) emitMarkers(cmd rhi.CommandBuffer, p *passNode) {
	for _, m := range p.markers {
		if m.begin {
			cmd.BeginMarker(m.name, m.color)
		} else {
			cmd.EndMarker()
		}
	}
}

// commitExternalStates hands the final state of every external resource the
// graph touched back to the state tracker.
func (g *Graph) commitExternalStates() {
	t := g.opts.tracker
	if t == nil {
		return
	}
	for i, n := range g.resources {
		if n.isExternal && g.finalStates[i].touched {
			t.SetCurrentState(n.external, g.finalStates[i].state)
		}
	}
}

// teardown fills extraction slots, drops bindless entries and returns
// transient resources. It runs once per Execute, after submission or after
// a failure.
func (g *Graph) teardown() error {
	var errs []error
	extracted := make(map[rhi.Resource]bool, len(g.extractions))
	for _, e := range g.extractions {
		r := g.bound[e.handle.index()].resource
		if r == nil {
			errs = append(errs, fmt.Errorf("framegraph: extraction of %v: resource was never bound", e.handle))
			continue
		}
		if e.image != nil {
			*e.image = r.(rhi.Image)
		} else {
			*e.buffer = r.(rhi.Buffer)
		}
		extracted[r] = true
	}

	if reg := g.opts.bindless; reg != nil {
		for i := range g.bound {
			b := &g.bound[i]
			if !b.registered {
				continue
			}
			if _, ok := b.resource.(rhi.Image); ok {
				reg.UnregisterImageView(b.bindless, b.viewType)
			} else {
				reg.UnregisterBuffer(b.bindless)
			}
			b.registered = false
		}
		g.viewMu.Lock()
		for _, v := range g.views {
			reg.UnregisterImageView(v.index, v.viewType)
		}
		g.views = nil
		g.viewMu.Unlock()
	}

	g.uploads = nil
	g.transient.Release(extracted)
	if len(errs) > 0 {
		g.logger.Warn("framegraph: teardown", "errors", len(errs))
	}
	return errors.Join(errs...)
}
