package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the Prometheus collectors maintained by the engine.
type Metrics struct {
	NodeExecutions *prometheus.CounterVec
	NodeDuration   *prometheus.HistogramVec
	Ticks          prometheus.Counter
	RunsActive     prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered, which keeps tests free of global state.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		NodeExecutions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nodeflow_node_executions_total",
			Help: "Total number of node hook executions",
		}, []string{"type", "status"}),
		NodeDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nodeflow_node_duration_seconds",
			Help:    "Duration of node hook executions",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),
		Ticks: f.NewCounter(prometheus.CounterOpts{
			Name: "nodeflow_ticks_total",
			Help: "Total number of ticks processed across runs",
		}),
		RunsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "nodeflow_runs_active",
			Help: "Number of runs currently running",
		}),
	}
}
