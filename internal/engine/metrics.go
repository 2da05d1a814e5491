package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	executionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_executions_total",
			Help: "Total number of finished workflow executions by terminal status.",
		},
		[]string{"status"},
	)

	activeExecutions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_active_executions",
			Help: "Number of workflow executions currently running.",
		},
	)

	stepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_steps_total",
			Help: "Total number of settled steps by kind and status.",
		},
		[]string{"kind", "status"},
	)

	stepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_step_duration_seconds",
			Help:    "Step wall-clock duration in seconds, including retries.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	stepRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_step_retries_total",
			Help: "Total number of step retries by kind.",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(executionsTotal)
	prometheus.MustRegister(activeExecutions)
	prometheus.MustRegister(stepsTotal)
	prometheus.MustRegister(stepDuration)
	prometheus.MustRegister(stepRetriesTotal)
}
