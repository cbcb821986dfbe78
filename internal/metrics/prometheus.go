// Package metrics records per-run counters on a private Prometheus registry. A CLI process is
// short-lived, so the registry is exported with WriteTextfile for the node_exporter textfile collector.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder is safe to use as a nil pointer; every method is then a no-op.
type Recorder struct {
	registry *prometheus.Registry

	runsTotal    *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	degraded     *prometheus.CounterVec
	lastVaR      *prometheus.GaugeVec
	nodeLatency  *prometheus.HistogramVec
	fetchLatency *prometheus.HistogramVec
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockmate_runs_total",
				Help: "Completed analysis runs by final decision",
			},
			[]string{"decision", "risk_verdict"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockmate_errors_total",
				Help: "Aborted analysis runs by error kind",
			},
			[]string{"kind"},
		),
		degraded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockmate_degraded_total",
				Help: "Components that fell back to a degraded result",
			},
			[]string{"component"},
		),
		lastVaR: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "stockmate_last_var",
				Help: "Last reported one-day value at risk for a ticker",
			},
			[]string{"ticker"},
		),
		nodeLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stockmate_node_duration_seconds",
				Help:    "Duration of decision pipeline nodes in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"node"},
		),
		fetchLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stockmate_fetch_duration_seconds",
				Help:    "Duration of data collection calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"kind"},
		),
	}
}

func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) RecordRun(decision, verdict string) {
	if r == nil {
		return
	}
	r.runsTotal.WithLabelValues(decision, verdict).Inc()
}

func (r *Recorder) RecordError(kind string) {
	if r == nil {
		return
	}
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordDegraded(component string) {
	if r == nil {
		return
	}
	r.degraded.WithLabelValues(component).Inc()
}

func (r *Recorder) RecordVaR(ticker string, v float64) {
	if r == nil {
		return
	}
	r.lastVaR.WithLabelValues(ticker).Set(v)
}

// RecordNodeLatency records pipeline node latency in seconds.
func (r *Recorder) RecordNodeLatency(node string, seconds float64) {
	if r == nil {
		return
	}
	r.nodeLatency.WithLabelValues(node).Observe(seconds)
}

func (r *Recorder) RecordFetchLatency(kind string, seconds float64) {
	if r == nil {
		return
	}
	r.fetchLatency.WithLabelValues(kind).Observe(seconds)
}

// WriteTextfile writes all metrics in the text exposition format, atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
