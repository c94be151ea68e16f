// Package metrics exposes Prometheus counters and histograms for the
// Execution Engine, following the teacher's promauto-based metrics
// registration idiom.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the Engine reports to.
type Metrics struct {
	ExecutionsTotal     *prometheus.CounterVec
	ExecutionDuration   prometheus.Histogram
	ToolCallsTotal      *prometheus.CounterVec
	ToolCallDuration    *prometheus.HistogramVec
	BlobsExtractedTotal prometheus.Counter
}

// NewMetrics registers and returns a fresh Metrics collector set against
// the default Prometheus registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers against a caller-supplied registerer, letting
// tests and multi-sandbox hosts avoid the duplicate-registration panic
// that a shared default registry would otherwise raise.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ExecutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relaybox_executions_total",
				Help: "Total number of sandbox executions by outcome.",
			},
			[]string{"outcome"},
		),
		ExecutionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "relaybox_execution_duration_seconds",
				Help:    "Sandbox execution duration in seconds.",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
		ToolCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relaybox_tool_calls_total",
				Help: "Total number of tool() calls by tool name and outcome.",
			},
			[]string{"tool", "outcome"},
		),
		ToolCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relaybox_tool_call_duration_seconds",
				Help:    "Tool call duration in seconds.",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5},
			},
			[]string{"tool"},
		),
		BlobsExtractedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "relaybox_blobs_extracted_total",
				Help: "Total number of binary payloads lifted into the blob table.",
			},
		),
	}
}

// ObserveExecution records one execution's outcome and duration.
// Implements engine.MetricsSink.
func (m *Metrics) ObserveExecution(outcome string, duration time.Duration) {
	m.ExecutionsTotal.WithLabelValues(outcome).Inc()
	m.ExecutionDuration.Observe(duration.Seconds())
}

// ObserveToolCall records one tool() call's outcome and duration.
// Implements engine.MetricsSink.
func (m *Metrics) ObserveToolCall(toolName, outcome string, duration time.Duration) {
	m.ToolCallsTotal.WithLabelValues(toolName, outcome).Inc()
	m.ToolCallDuration.WithLabelValues(toolName).Observe(duration.Seconds())
}

// ObserveBlobsExtracted adds n to the blob extraction counter.
// Implements engine.MetricsSink.
func (m *Metrics) ObserveBlobsExtracted(n int) {
	if n <= 0 {
		return
	}
	m.BlobsExtractedTotal.Add(float64(n))
}
