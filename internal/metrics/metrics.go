// Package metrics defines the Prometheus instruments exported by the TTS
// pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bilivoice"

// Metrics groups all Prometheus instruments used by the pipeline. Each
// instance owns its registry so several services can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	QueueDepth      *prometheus.GaugeVec
	Enqueued        *prometheus.CounterVec
	Evicted         *prometheus.CounterVec
	Rejected        *prometheus.CounterVec
	Statuses        *prometheus.CounterVec
	Failures        *prometheus.CounterVec
	ModelSwitches   prometheus.Counter
	InferenceTime   prometheus.Histogram
	PlaybackTime    prometheus.Histogram
	DownloadedBytes prometheus.Counter
}

// New creates the instruments on a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		QueueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Items waiting per pipeline stage.",
		}, []string{"stage"}),
		Enqueued: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enqueued_total",
			Help:      "Texts admitted to the predict queue by priority.",
		}, []string{"priority"}),
		Evicted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evicted_total",
			Help:      "Items displaced by high-priority arrivals per stage.",
		}, []string{"stage"}),
		Rejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_total",
			Help:      "Pushes refused because the stage queue was full.",
		}, []string{"stage"}),
		Statuses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_events_total",
			Help:      "Status events emitted by status.",
		}, []string{"status"}),
		Failures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Pipeline failures by kind.",
		}, []string{"kind"}),
		ModelSwitches: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_switches_total",
			Help:      "Model selections sent to the inference server.",
		}),
		InferenceTime: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_seconds",
			Help:      "Time from dequeue to decoded audio.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		}),
		PlaybackTime: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "playback_seconds",
			Help:      "Wall time spent rendering a clip.",
			Buckets:   []float64{0.5, 1, 2, 4, 8, 16, 32},
		}),
		DownloadedBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloaded_bytes_total",
			Help:      "Audio bytes downloaded from the inference server.",
		}),
	}
}

// ObserveInference records the duration of one inference.
func (m *Metrics) ObserveInference(d time.Duration) {
	m.InferenceTime.Observe(d.Seconds())
}

// ObservePlayback records the duration of one render.
func (m *Metrics) ObservePlayback(d time.Duration) {
	m.PlaybackTime.Observe(d.Seconds())
}

// Registry exposes the underlying registry for tests and embedding.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
