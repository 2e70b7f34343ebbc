package framegraph

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/gogpu/framegraph/internal/parallel"
	"github.com/gogpu/framegraph/internal/transient"
	"github.com/gogpu/framegraph/rhi"
)

// DefaultMaxPassesPerRange is the number of passes recorded into one
// secondary command buffer.
const DefaultMaxPassesPerRange = 20

// Option configures a Graph during creation.
//
// Example:
//
//	pool := framegraph.NewWorkerPool(0)
//	defer pool.Close()
//
//	g := framegraph.New(cmd, device,
//	    framegraph.WithStateTracker(tracker),
//	    framegraph.WithBindless(registry),
//	    framegraph.WithJobSystem(pool),
//	)
type Option func(*options)

type options struct {
	maxPassesPerRange int
	multithreaded     bool
	aliasing          bool
	jobs              rhi.JobSystem
	bindless          rhi.BindlessRegistry
	tracker           rhi.StateTracker
	heap              *Heap
	logger            *slog.Logger
	tracerProvider    trace.TracerProvider
}

func defaultOptions() options {
	return options{
		maxPassesPerRange: DefaultMaxPassesPerRange,
		multithreaded:     true,
		aliasing:          true,
	}
}

// WithMaxPassesPerRange sets how many passes one recording range holds.
// Graphs with at most that many passes record directly into the primary
// command buffer. Values below 1 are ignored.
func WithMaxPassesPerRange(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxPassesPerRange = n
		}
	}
}

// WithMultithreadedRecording controls whether ranges are recorded
// concurrently. When disabled, ranges are recorded one after another on the
// calling goroutine.
func WithMultithreadedRecording(enabled bool) Option {
	return func(o *options) {
		o.multithreaded = enabled
	}
}

// WithJobSystem sets the job system used for range recording and readback
// completion tasks. Without one, ranges fan out on plain goroutines.
func WithJobSystem(js rhi.JobSystem) Option {
	return func(o *options) {
		o.jobs = js
	}
}

// WithBindless sets the bindless registry that receives views and buffers for
// the duration of one execution.
func WithBindless(r rhi.BindlessRegistry) Option {
	return func(o *options) {
		o.bindless = r
	}
}

// WithStateTracker sets the tracker that seeds external resource states and
// receives their final states after submission.
func WithStateTracker(t rhi.StateTracker) Option {
	return func(o *options) {
		o.tracker = t
	}
}

// WithMemoryAliasing controls whether resources surrendered after their last
// use may back later resources of the same shape within one graph.
func WithMemoryAliasing(enabled bool) Option {
	return func(o *options) {
		o.aliasing = enabled
	}
}

// WithHeap makes the graph draw backing resources from h and park them there
// on teardown instead of releasing them.
func WithHeap(h *Heap) Option {
	return func(o *options) {
		o.heap = h
	}
}

// WithLogger overrides the package logger for one graph.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithTracerProvider sets the provider for Compile and Execute spans. The
// global OTel provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}

// Heap carries backing resources across graphs. See NewHeap.
type Heap = transient.Heap

// NewHeap creates a heap that keeps up to budget bytes of released resources
// and releases evicted ones to device. A zero budget selects a default.
func NewHeap(device rhi.Device, budget uint64) *Heap {
	return transient.NewHeap(device, budget)
}

// WorkerPool is the default job system. See NewWorkerPool.
type WorkerPool = parallel.WorkerPool

// NewWorkerPool starts a pool with the given number of workers, or GOMAXPROCS
// workers when n <= 0. Close it when done.
func NewWorkerPool(n int) *WorkerPool {
	return parallel.NewWorkerPool(n)
}
