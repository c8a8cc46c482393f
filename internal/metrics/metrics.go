// Package metrics exposes pipeline counters for Prometheus.
//
// Collectors live on a private registry so several recorders (and tests) can
// coexist in one process. A nil *Pipeline is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vidcapture"

// Session results.
const (
	ResultCompleted = "completed"
	ResultStopped   = "stopped"
	ResultFailed    = "failed"
)

type Pipeline struct {
	registry *prometheus.Registry

	Callbacks    prometheus.Counter
	Records      prometheus.Counter
	Bytes        prometheus.Counter
	EndMarkers   prometheus.Counter
	Resubmitted  prometheus.Counter
	ChannelDepth prometheus.Gauge
	Recording    prometheus.Gauge
	Errors       *prometheus.CounterVec
	Sessions     *prometheus.CounterVec
	Duration     prometheus.Histogram
}

// New registers the pipeline collectors, plus the Go runtime and process
// collectors, on a fresh registry.
func New() *Pipeline {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Pipeline{
		registry: reg,
		Callbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "encoder",
			Name:      "callbacks_total",
			Help:      "Buffers completed by the encoder output port",
		}),
		Records: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "encoder",
			Name:      "records_total",
			Help:      "Payload records handed to the consumer",
		}),
		Bytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "encoder",
			Name:      "payload_bytes_total",
			Help:      "Encoded bytes copied out of hardware buffers",
		}),
		EndMarkers: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "encoder",
			Name:      "end_markers_total",
			Help:      "End-of-stream markers emitted",
		}),
		Resubmitted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "encoder",
			Name:      "resubmitted_buffers_total",
			Help:      "Buffers handed back to the encoder after a callback",
		}),
		ChannelDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "channel_depth",
			Help:      "Records waiting for the consumer",
		}),
		Recording: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "recording",
			Help:      "1 while a session is recording",
		}),
		Errors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "errors_total",
			Help:      "Pipeline errors by kind",
		}, []string{"kind"}),
		Sessions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "sessions_total",
			Help:      "Finished recording sessions by result",
		}, []string{"result"}), // completed|stopped|failed
		Duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "session_duration_seconds",
			Help:      "Wall time of recording sessions",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to 256s
		}),
	}
}

// Registry returns the registry holding the collectors.
func (p *Pipeline) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Pipeline) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

func (p *Pipeline) ObserveCallback() {
	if p != nil {
		p.Callbacks.Inc()
	}
}

func (p *Pipeline) ObserveRecord(n int) {
	if p != nil {
		p.Records.Inc()
		p.Bytes.Add(float64(n))
	}
}

func (p *Pipeline) ObserveEndMarker() {
	if p != nil {
		p.EndMarkers.Inc()
	}
}

func (p *Pipeline) ObserveResubmit() {
	if p != nil {
		p.Resubmitted.Inc()
	}
}

func (p *Pipeline) SetChannelDepth(n int) {
	if p != nil {
		p.ChannelDepth.Set(float64(n))
	}
}

func (p *Pipeline) ObserveError(kind string) {
	if p != nil {
		p.Errors.WithLabelValues(kind).Inc()
	}
}

func (p *Pipeline) SessionStarted() {
	if p != nil {
		p.Recording.Set(1)
	}
}

func (p *Pipeline) SessionFinished(result string, d time.Duration) {
	if p != nil {
		p.Recording.Set(0)
		p.Sessions.WithLabelValues(result).Inc()
		p.Duration.Observe(d.Seconds())
	}
}
