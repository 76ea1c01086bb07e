// Package metrics counts experiment activity with Prometheus collectors.
//
// A CLI invocation is short-lived, so nothing is served over HTTP. The
// collectors live on a private registry that is written to a node-exporter
// textfile when ARTDR_METRICS_FILE is set. A nil *Metrics is valid and
// records nothing.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Attempt outcomes.
const (
	OutcomeSuccess     = "success"
	OutcomeUnavailable = "unavailable"
	OutcomeFailed      = "failed"
)

type Metrics struct {
	Registry *prometheus.Registry

	attempts  *prometheus.CounterVec
	fallbacks *prometheus.CounterVec
	runtime   *prometheus.HistogramVec
	runs      *prometheus.CounterVec
	points    prometheus.Counter
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		attempts: createCounterVec(
			"artdr_backend_attempts_total",
			"Back-end attempts by method, back-end and outcome.",
			[]string{"method", "backend", "outcome"},
		),
		fallbacks: createCounterVec(
			"artdr_fallbacks_total",
			"Transitions from one back-end to the next alternate.",
			[]string{"method", "from", "to"},
		),
		runtime: createHistogramVec(
			"artdr_backend_runtime_seconds",
			"Wall-clock time of successful back-end executions.",
			[]string{"method", "backend"},
			prometheus.ExponentialBuckets(0.01, 4, 8),
		),
		runs: createCounterVec(
			"artdr_runs_total",
			"Experiment runs by method and final status.",
			[]string{"method", "status"},
		),
		points: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "artdr_points_saved_total",
			Help: "Projection points persisted.",
		}),
	}

	m.Registry.MustRegister(
		m.attempts,
		m.fallbacks,
		m.runtime,
		m.runs,
		m.points,
		collectors.NewBuildInfoCollector(),
	)
	return m
}

func (m *Metrics) ObserveAttempt(method, backend, outcome string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(method, backend, outcome).Inc()
}

func (m *Metrics) ObserveFallback(method, from, to string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(method, from, to).Inc()
}

func (m *Metrics) ObserveRuntime(method, backend string, d time.Duration) {
	if m == nil {
		return
	}
	m.runtime.WithLabelValues(method, backend).Observe(d.Seconds())
}

func (m *Metrics) ObserveRun(method, status string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(method, status).Inc()
}

func (m *Metrics) AddPoints(n int) {
	if m == nil {
		return
	}
	m.points.Add(float64(n))
}

// WriteFile writes the registry in text exposition format. The file is
// replaced atomically.
func (m *Metrics) WriteFile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

func createCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: name,
			Help: help,
		},
		labels,
	)
}

func createHistogramVec(name, help string, labels []string, buckets []float64) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    name,
			Help:    help,
			Buckets: buckets,
		},
		labels,
	)
}
