// Package monitoring exports engine performance tables and batch counts
// as prometheus metrics.
package monitoring

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"augustus/core"
)

const (
	namespace = "augustus"
	subsystem = "engine"

	// LocationSeparator joins the nested span names of a report location
	LocationSeparator = " / "
)

// EngineMetrics holds the counters fed by a scoring run. Each instance
// owns a registry, so several runs in one process never collide.
type EngineMetrics struct {
	SpanSeconds   *prometheus.CounterVec
	SpanCalls     *prometheus.CounterVec
	RowsScored    prometheus.Counter
	RowsRejected  prometheus.Counter
	BatchDuration prometheus.Histogram

	registry *prometheus.Registry
}

// NewEngineMetrics creates the metrics and registers them on a private
// registry
func NewEngineMetrics() *EngineMetrics {
	m := &EngineMetrics{
		SpanSeconds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "span_seconds_total",
			Help:      "Time spent inside each performance table location",
		}, []string{"location"}),

		SpanCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "span_calls_total",
			Help:      "Number of times each performance table location was entered",
		}, []string{"location"}),

		RowsScored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rows_scored_total",
			Help:      "Count of input rows passed through the document",
		}),

		RowsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rows_rejected_total",
			Help:      "Count of input rows whose primary output was not valid",
		}),

		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "batch_duration_seconds",
			Help:      "Histogram of times spent scoring one input batch",
			Buckets:   prometheus.ExponentialBuckets(1e-3, 5, 7),
		}),

		registry: prometheus.NewRegistry(),
	}
	m.registry.MustRegister(m.PrometheusCollectors()...)
	return m
}

// PrometheusCollectors lists every collector, for callers that want them
// on their own registry
func (m *EngineMetrics) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.SpanSeconds,
		m.SpanCalls,
		m.RowsScored,
		m.RowsRejected,
		m.BatchDuration,
	}
}

// Registry returns the private registry
func (m *EngineMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Observe adds every location of a performance report to the span
// counters. Nested locations are labelled with their full path.
func (m *EngineMetrics) Observe(report *core.PerformanceReport) {
	if report == nil {
		return
	}
	report.Walk(func(path []string, entry *core.ProfileEntry) {
		location := strings.Join(path, LocationSeparator)
		m.SpanSeconds.WithLabelValues(location).Add(entry.Time)
		m.SpanCalls.WithLabelValues(location).Add(float64(entry.Calls))
	})
}

// ObserveBatch records one scored batch
func (m *EngineMetrics) ObserveBatch(rows, rejected int, elapsed time.Duration) {
	m.RowsScored.Add(float64(rows))
	m.RowsRejected.Add(float64(rejected))
	m.BatchDuration.Observe(elapsed.Seconds())
}

// WriteTextfile writes the registry in the text exposition format, for
// pickup by a node exporter textfile collector
func (m *EngineMetrics) WriteTextfile(path string) error {
	return errors.Wrapf(prometheus.WriteToTextfile(path, m.registry), "writing metrics to %s", path)
}
