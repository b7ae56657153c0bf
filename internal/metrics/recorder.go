// Package metrics provides Prometheus metrics for split sessions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maauso/dropthemike/internal/events"
)

// Outcome label values for dropthemike_splits_total.
const (
	OutcomeDone      = "done"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// Recorder owns a private registry with the split metrics.
type Recorder struct {
	registry *prometheus.Registry

	splits    *prometheus.CounterVec
	resplits  prometheus.Counter
	segments  prometheus.Counter
	partCount prometheus.Histogram
}

// NewRecorder creates a Recorder with process and Go collectors registered.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		splits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dropthemike",
			Name:      "splits_total",
			Help:      "Finished splits by outcome",
		}, []string{"outcome"}),
		resplits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "dropthemike",
			Name:      "resplits_total",
			Help:      "Re-splits started",
		}),
		segments: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "dropthemike",
			Name:      "segments_encoded_total",
			Help:      "Parts written by the encoder",
		}),
		partCount: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dropthemike",
			Name:      "split_parts",
			Help:      "Part count of completed splits",
			Buckets:   prometheus.LinearBuckets(2, 2, 10),
		}),
	}
}

// SplitStarted records a started split.
func (r *Recorder) SplitStarted(resplit bool) {
	if resplit {
		r.resplits.Inc()
	}
}

// SegmentEncoded records one written part.
func (r *Recorder) SegmentEncoded() {
	r.segments.Inc()
}

// SplitFinished records the end of a split.
func (r *Recorder) SplitFinished(outcome string, parts int) {
	r.splits.WithLabelValues(outcome).Inc()
	if outcome == OutcomeDone {
		r.partCount.Observe(float64(parts))
	}
}

// Attach subscribes the recorder to bus and returns a function that
// removes every subscription.
func (r *Recorder) Attach(bus *events.Bus) func() {
	unsubs := []func(){
		bus.Subscribe(func(e events.SplitStartedEvent) { r.SplitStarted(e.Resplit) }),
		bus.Subscribe(func(events.SegmentEncodedEvent) { r.SegmentEncoded() }),
		bus.Subscribe(func(e events.SplitCompletedEvent) { r.SplitFinished(OutcomeDone, e.Parts) }),
		bus.Subscribe(func(e events.SplitFailedEvent) {
			outcome := OutcomeFailed
			if e.Cancelled {
				outcome = OutcomeCancelled
			}
			r.SplitFinished(outcome, e.Parts)
		}),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}

// ObserveRunning exposes dropthemike_splits_running, read from count at
// scrape time. Events arrive on per-type goroutines, so the gauge is not
// derived from them.
func (r *Recorder) ObserveRunning(count func() int) {
	r.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "dropthemike",
		Name:      "splits_running",
		Help:      "Splits currently running",
	}, func() float64 { return float64(count()) }))
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
