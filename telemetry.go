package framegraph

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/gogpu/framegraph"

var (
	passesCulled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "framegraph_passes_culled_total",
		Help: "Passes removed by culling",
	})

	passesExecuted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "framegraph_passes_executed_total",
		Help: "Passes whose exec callback ran",
	})

	// barriersEmitted counts recorded barriers by type.
	// Labels: "Global", "Image", "Buffer"
	barriersEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framegraph_barriers_total",
		Help: "Barriers recorded into command buffers by type",
	}, []string{"type"})

	transientBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "framegraph_transient_bytes",
		Help: "Bytes allocated by the most recently executed graph",
	})

	aliasedResources = promauto.NewCounter(prometheus.CounterOpts{
		Name: "framegraph_aliased_resources_total",
		Help: "Acquisitions served by memory aliasing",
	})

	compileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "framegraph_compile_duration_seconds",
		Help:    "Graph compile duration",
		Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1},
	})

	executeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "framegraph_execute_duration_seconds",
		Help:    "Graph execute duration including submission",
		Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 1},
	})
)

var (
	tracerOnce    sync.Once
	defaultTracer trace.Tracer
)

// getTracer returns the global OTel tracer, initializing it lazily so the
// global provider may be installed after package init.
func getTracer() trace.Tracer {
	tracerOnce.Do(func() {
		defaultTracer = otel.Tracer(instrumentationName)
	})
	return defaultTracer
}

func (g *Graph) tracer() trace.Tracer {
	if g.opts.tracerProvider != nil {
		return g.opts.tracerProvider.Tracer(instrumentationName)
	}
	return getTracer()
}
