package resilience

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	breakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "helmsman",
			Name:      "breaker_transitions_total",
			Help:      "Circuit breaker state transitions per dependency",
		},
		[]string{"dependency", "to_state"},
	)

	retriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "helmsman",
			Name:      "retries_total",
			Help:      "Retry attempts per dependency",
		},
		[]string{"dependency"},
	)

	rejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "helmsman",
			Name:      "breaker_rejections_total",
			Help:      "Calls rejected fast because the circuit was open",
		},
		[]string{"dependency"},
	)
)
