// Package metrics exposes Prometheus collectors for breakdown and execution runs.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics holds the phaser collectors.
type Metrics struct {
	Batches           *prometheus.CounterVec
	Nodes             *prometheus.CounterVec
	AgentCalls        *prometheus.CounterVec
	AgentCallDuration *prometheus.HistogramVec
	ValidationScore   prometheus.Histogram
	WorkersActive     prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		Batches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phaser_batches_total",
				Help: "Total number of dispatched batches",
			},
			[]string{"operation"},
		),
		Nodes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phaser_nodes_total",
				Help: "Total number of processed plan nodes",
			},
			[]string{"operation", "result"},
		),
		AgentCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phaser_agent_calls_total",
				Help: "Total number of agent invocations",
			},
			[]string{"agent", "result"},
		),
		AgentCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "phaser_agent_call_duration_seconds",
				Help:    "Agent invocation duration in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
			},
			[]string{"agent"},
		),
		ValidationScore: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "phaser_validation_score",
				Help:    "Breakdown validation scores",
				Buckets: []float64{0, 10, 20, 30, 40, 50, 60, 70, 80},
			},
		),
		WorkersActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "phaser_workers_active",
				Help: "Number of workers currently running a unit",
			},
		),
	}
}

func result(ok bool) string {
	if ok {
		return ResultSuccess
	}
	return ResultFailure
}

// RecordBatch counts one dispatched batch.
func (m *Metrics) RecordBatch(operation string) {
	if m == nil {
		return
	}
	m.Batches.WithLabelValues(operation).Inc()
}

// RecordNode counts one processed node.
func (m *Metrics) RecordNode(operation string, ok bool) {
	if m == nil {
		return
	}
	m.Nodes.WithLabelValues(operation, result(ok)).Inc()
}

// RecordAgentCall counts one agent invocation and observes its duration.
func (m *Metrics) RecordAgentCall(agent string, ok bool, d time.Duration) {
	if m == nil {
		return
	}
	m.AgentCalls.WithLabelValues(agent, result(ok)).Inc()
	m.AgentCallDuration.WithLabelValues(agent).Observe(d.Seconds())
}

// ObserveScore records a breakdown validation score.
func (m *Metrics) ObserveScore(score int) {
	if m == nil {
		return
	}
	m.ValidationScore.Observe(float64(score))
}

// WorkerStarted increments the active worker gauge.
func (m *Metrics) WorkerStarted() {
	if m == nil {
		return
	}
	m.WorkersActive.Inc()
}

// WorkerFinished decrements the active worker gauge.
func (m *Metrics) WorkerFinished() {
	if m == nil {
		return
	}
	m.WorkersActive.Dec()
}
