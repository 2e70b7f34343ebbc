package framegraph

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/google/uuid"

	"github.com/gogpu/framegraph/internal/transient"
	"github.com/gogpu/framegraph/rhi"
)

const uniformUsage = gputypes.BufferUsageUniform

type graphState uint8

const (
	stateDeclaring graphState = iota
	stateCompiled
	stateExecuting
	stateDone
)

// extraction hands a physical resource to the caller at teardown.
type extraction struct {
	handle ResourceHandle
	image  *rhi.Image
	buffer *rhi.Buffer
}

// boundResource is the execution-time binding of one logical resource.
type boundResource struct {
	resource rhi.Resource
	bindless rhi.BindlessIndex
	viewType rhi.ViewType
	// registered is set when bindless holds the default view or buffer.
	registered bool
}

// viewRegistration is a bindless view entry made from a pass closure.
type viewRegistration struct {
	index    rhi.BindlessIndex
	viewType rhi.ViewType
}

// Graph is a single-use frame graph. Declare passes with AddPass, then call
// Compile once and Execute once.
//
// A Graph is not safe for concurrent use. Pass closures run concurrently
// when recording fans out, and only touch the Graph through their Context.
type Graph struct {
	id     string
	cmd    rhi.CommandBuffer
	device rhi.Device
	opts   options
	logger *slog.Logger

	state     graphState
	resources []*resourceNode
	passes    []*passNode
	externals map[rhi.Resource]ResourceHandle

	// Barriers and markers declared before the first pass.
	pendingBarriers []standaloneBarrier
	pendingMarkers  []markerOp

	extractions  []extraction
	uploads      [][]byte
	readbacks    []readbackWatch
	sizeCallback func(uint64)

	compiled    []compiledPass
	finalStates []trackedState

	transient *transient.System
	bound     []boundResource
	aliasing  map[int][]rhi.Barrier

	viewMu sync.Mutex
	views  []viewRegistration
}

// New creates an empty graph that records into cmd and allocates through
// device.
func New(cmd rhi.CommandBuffer, device rhi.Device, opts ...Option) *Graph {
	if cmd == nil || device == nil {
		panic("framegraph: New requires a command buffer and a device")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = Logger()
	}
	id := uuid.NewString()[:12]
	logger = logger.With("graph", id)

	topts := []transient.Option{
		transient.WithAliasing(o.aliasing),
		transient.WithLogger(logger),
	}
	if o.heap != nil {
		topts = append(topts, transient.WithHeap(o.heap))
	}

	return &Graph{
		id:        id,
		cmd:       cmd,
		device:    device,
		opts:      o,
		logger:    logger,
		externals: make(map[rhi.Resource]ResourceHandle),
		transient: transient.New(device, topts...),
		aliasing:  make(map[int][]rhi.Barrier),
	}
}

// ID returns the random identifier attached to the graph's logs and spans.
func (g *Graph) ID() string { return g.id }

func (g *Graph) mustDeclare(op string) {
	if g.state != stateDeclaring {
		panic(fmt.Sprintf("framegraph: %s after Compile", op))
	}
}

func (g *Graph) addResource(desc description, global bool) ResourceHandle {
	h := handleFromIndex(len(g.resources), desc.kind())
	g.resources = append(g.resources, &resourceNode{
		handle:   h,
		desc:     desc,
		hash:     desc.hash(),
		isGlobal: global,
	})
	return h
}

// mustNode resolves h, panicking on null, foreign or mistyped handles.
func (g *Graph) mustNode(h AnyHandle) *resourceNode {
	u := h.Untyped()
	i := u.index()
	if u.IsNull() || i >= len(g.resources) {
		panic(fmt.Sprintf("framegraph: handle %v is not part of graph %s", u, g.id))
	}
	n := g.resources[i]
	if n.kind() != u.kind {
		panic(fmt.Sprintf("framegraph: handle %v refers to a %v", u, n.kind()))
	}
	return n
}

// CreateImage creates a global image. Globals are never culled and live for
// the whole graph.
func (g *Graph) CreateImage(desc rhi.ImageDesc) ImageHandle {
	g.mustDeclare("CreateImage")
	mustValidate("image description "+desc.Label, desc)
	return HandleAs[ImageKind](g.addResource(imageDescription{desc}, true))
}

// CreateBuffer creates a global buffer.
func (g *Graph) CreateBuffer(desc rhi.BufferDesc) BufferHandle {
	g.mustDeclare("CreateBuffer")
	mustValidate("buffer description "+desc.Label, desc)
	return HandleAs[BufferKind](g.addResource(bufferDescription{desc}, true))
}

// CreateUniformBuffer creates a global uniform buffer.
func (g *Graph) CreateUniformBuffer(desc rhi.BufferDesc) UniformBufferHandle {
	g.mustDeclare("CreateUniformBuffer")
	mustValidate("uniform buffer description "+desc.Label, desc)
	desc.Usage |= uniformUsage
	return HandleAs[UniformBufferKind](g.addResource(uniformBufferDescription{desc}, true))
}

// AddExternalImage registers an image owned outside the graph.
// Registering the same image twice returns the same handle.
func (g *Graph) AddExternalImage(img rhi.Image) ImageHandle {
	return HandleAs[ImageKind](g.addExternal(KindImage, img))
}

// AddExternalBuffer registers a buffer owned outside the graph.
func (g *Graph) AddExternalBuffer(buf rhi.Buffer) BufferHandle {
	return HandleAs[BufferKind](g.addExternal(KindBuffer, buf))
}

// AddExternalUniformBuffer registers a uniform buffer owned outside the
// graph.
func (g *Graph) AddExternalUniformBuffer(buf rhi.Buffer) UniformBufferHandle {
	return HandleAs[UniformBufferKind](g.addExternal(KindUniformBuffer, buf))
}

func (g *Graph) addExternal(kind ResourceKind, r rhi.Resource) ResourceHandle {
	g.mustDeclare("AddExternal")
	if r == nil {
		panic("framegraph: nil external " + kind.String())
	}
	if h, ok := g.externals[r]; ok {
		if h.kind != kind {
			panic(fmt.Sprintf("framegraph: %q already registered as %v", r.Label(), h.kind))
		}
		return h
	}
	h := g.addResource(describe(kind, r), false)
	n := g.resources[h.index()]
	n.isExternal = true
	n.external = r
	g.externals[r] = h
	g.transient.AddExternal(transient.Handle(h.id), r)
	return h
}

// AddPass declares a pass. setup runs immediately and declares the pass's
// resources; exec runs during Execute, possibly on another goroutine.
func (g *Graph) AddPass(name string, setup func(*Builder), exec func(*Context)) {
	g.mustDeclare("AddPass")
	p := &passNode{index: len(g.passes), name: name, exec: exec}
	g.passes = append(g.passes, p)

	// Barriers and markers declared before any pass attach to the first.
	if len(g.pendingBarriers) > 0 || len(g.pendingMarkers) > 0 {
		p.barriers = append(p.barriers, g.pendingBarriers...)
		p.markers = append(p.markers, g.pendingMarkers...)
		g.pendingBarriers, g.pendingMarkers = nil, nil
	}

	if setup != nil {
		b := &Builder{g: g, pass: p}
		setup(b)
		b.closed = true
	}
	p.refCount = len(p.writes) + len(p.creates)
}

// AddPassWithData declares a pass whose setup fills a value of type T that
// its exec callback later receives. The returned pointer stays valid for the
// life of the graph.
func AddPassWithData[T any](g *Graph, name string, setup func(*Builder, *T), exec func(*T, *Context)) *T {
	data := new(T)
	var run func(*Context)
	if exec != nil {
		run = func(ctx *Context) { exec(data, ctx) }
	}
	g.AddPass(name, func(b *Builder) {
		if setup != nil {
			setup(b, data)
		}
	}, run)
	return data
}

func (g *Graph) lastPass() *passNode {
	if len(g.passes) == 0 {
		return nil
	}
	return g.passes[len(g.passes)-1]
}

// AddResourceBarrier transitions h to dst after the most recently declared
// pass. The barrier is recorded even when that pass is culled.
func (g *Graph) AddResourceBarrier(h AnyHandle, dst rhi.ResourceState) {
	g.mustDeclare("AddResourceBarrier")
	sb := standaloneBarrier{handle: g.mustNode(h).handle, dst: dst}
	if p := g.lastPass(); p != nil {
		p.barriers = append(p.barriers, sb)
		return
	}
	g.pendingBarriers = append(g.pendingBarriers, sb)
}

// BeginMarker opens a debug region after the most recently declared pass.
func (g *Graph) BeginMarker(name string, color [4]float32) {
	g.addMarker(markerOp{begin: true, name: name, color: color})
}

// EndMarker closes the region opened by the matching BeginMarker.
func (g *Graph) EndMarker() {
	g.addMarker(markerOp{})
}

func (g *Graph) addMarker(m markerOp) {
	g.mustDeclare("marker")
	if p := g.lastPass(); p != nil {
		p.markers = append(p.markers, m)
		return
	}
	g.pendingMarkers = append(g.pendingMarkers, m)
}

// EnqueueImageExtraction stores the image backing h in *out at teardown and
// transfers its ownership to the caller. The extraction counts as a read, so
// the pass producing h is never culled.
func (g *Graph) EnqueueImageExtraction(h ImageHandle, out *rhi.Image) {
	g.mustDeclare("EnqueueImageExtraction")
	if out == nil {
		panic("framegraph: nil extraction target")
	}
	g.extractions = append(g.extractions, extraction{handle: g.mustNode(h).handle, image: out})
}

// EnqueueBufferExtraction is EnqueueImageExtraction for buffers and uniform
// buffers.
func (g *Graph) EnqueueBufferExtraction(h AnyHandle, out *rhi.Buffer) {
	g.mustDeclare("EnqueueBufferExtraction")
	if out == nil {
		panic("framegraph: nil extraction target")
	}
	n := g.mustNode(h)
	if n.kind() == KindImage {
		panic(fmt.Sprintf("framegraph: buffer extraction of image %v", n.handle))
	}
	g.extractions = append(g.extractions, extraction{handle: n.handle, buffer: out})
}

func (g *Graph) extracted(h ResourceHandle) bool {
	for _, e := range g.extractions {
		if e.handle == h {
			return true
		}
	}
	return false
}

// SetTotalAllocatedSizeCallback registers fn to receive the number of bytes
// the graph allocated, once per Execute after submission.
func (g *Graph) SetTotalAllocatedSizeCallback(fn func(bytes uint64)) {
	g.sizeCallback = fn
}

// keep copies data into an allocation that lives until teardown.
func (g *Graph) keep(data []byte) []byte {
	c := make([]byte, len(data))
	copy(c, data)
	g.uploads = append(g.uploads, c)
	return c
}

// AddMappedBufferUpload adds a pass that writes data into the host-visible
// buffer h. data is copied.
func (g *Graph) AddMappedBufferUpload(h AnyHandle, data []byte, name string) {
	g.mustDeclare("AddMappedBufferUpload")
	n := g.mustNode(h)
	if n.kind() == KindImage {
		panic(fmt.Sprintf("framegraph: mapped upload into image %v", n.handle))
	}
	payload := g.keep(data)
	target := n.handle
	g.AddPass(name, func(b *Builder) {
		b.WriteResource(target)
	}, func(ctx *Context) {
		ctx.MappedBufferUpload(target, payload)
	})
}

// stagingCount returns n as a byte count for a staging buffer. Staging
// buffers are addressed with 32-bit counts.
func stagingCount(name string, n int) uint32 {
	if uint64(n) > math.MaxUint32 {
		panic(fmt.Sprintf("framegraph: staged upload %q of %d bytes exceeds 4 GiB", name, n))
	}
	return uint32(n)
}

// AddStagedBufferUpload uploads data into the device-local buffer h through
// a host-visible staging buffer and a copy pass. data is copied.
func (g *Graph) AddStagedBufferUpload(h AnyHandle, data []byte, name string) {
	g.mustDeclare("AddStagedBufferUpload")
	n := g.mustNode(h)
	if n.kind() == KindImage {
		panic(fmt.Sprintf("framegraph: staged upload into image %v", n.handle))
	}
	if len(data) == 0 {
		panic(fmt.Sprintf("framegraph: empty staged upload %q", name))
	}
	staging := g.CreateBuffer(rhi.BufferDesc{
		Label:       name + " staging",
		ElementSize: 1,
		Count:       stagingCount(name, len(data)),
		Usage:       gputypes.BufferUsageCopySrc | gputypes.BufferUsageMapWrite,
		Memory:      rhi.MemoryCPUToGPU,
	})
	g.AddMappedBufferUpload(staging, data, name+" map")

	target := n.handle
	size := uint64(len(data))
	g.AddPass(name, func(b *Builder) {
		b.ReadResource(staging, StateCopySource)
		b.WriteResource(target, StateCopyDest)
	}, func(ctx *Context) {
		ctx.CopyBuffer(staging, target, 0, 0, size)
	})
}
