package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TaskCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swarmgate_tasks_total",
			Help: "Total number of submitted tasks",
		},
		[]string{"task_type", "result"},
	)

	AttemptCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swarmgate_attempts_total",
			Help: "Total number of completion attempts by backend and outcome",
		},
		[]string{"backend", "kind"},
	)

	CompletionLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "swarmgate_completion_latency_seconds",
			Help: "Completion request latency in seconds",
		},
		[]string{"backend"},
	)

	ProbeTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swarmgate_probe_transitions_total",
			Help: "Total number of backend health state transitions",
		},
		[]string{"backend", "state"},
	)

	BackendUp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "swarmgate_backend_up",
			Help: "Whether a backend is currently considered up (1) or down (0)",
		},
		[]string{"backend"},
	)
)
