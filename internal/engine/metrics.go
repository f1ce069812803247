package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "helmsman",
		Name:      "engine_turns_total",
		Help:      "Completed turns by outcome code (ok on success)",
	}, []string{"outcome"})

	turnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "helmsman",
		Name:      "engine_turn_duration_seconds",
		Help:      "Wall time of one conversation turn",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	turnSteps = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "helmsman",
		Name:      "engine_turn_steps",
		Help:      "Model rounds consumed per turn",
		Buckets:   []float64{0, 1, 2, 3, 4, 5, 6, 8, 10},
	})

	llmCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "helmsman",
		Name:      "engine_llm_calls_total",
		Help:      "LLM completions by status",
	}, []string{"status"})

	llmDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "helmsman",
		Name:      "engine_llm_call_duration_seconds",
		Help:      "LLM completion latency including streaming",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	toolCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "helmsman",
		Name:      "engine_tool_calls_total",
		Help:      "Governed tool executions by tool and status",
	}, []string{"tool", "status"})

	governanceRejects = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "helmsman",
		Name:      "engine_governance_rejections_total",
		Help:      "Tool calls refused by the governance gate, by code",
	}, []string{"code"})

	streamDroppedDeltas = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "helmsman",
		Name:      "engine_stream_dropped_deltas_total",
		Help:      "Delta events discarded under consumer backpressure",
	})
)
