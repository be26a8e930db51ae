package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects runtime counters and latency histograms. A single instance
// is shared by the runtime, tool executor, and checkpoint store.
type Metrics struct {
	TurnsStarted       *prometheus.CounterVec
	TurnsCompleted     *prometheus.CounterVec
	TurnsCancelled     prometheus.Counter
	CyclesPerTurn      prometheus.Histogram
	ToolExecutions     *prometheus.CounterVec
	ReasoningExhausted prometheus.Counter
	CheckpointLatency  *prometheus.HistogramVec
}

// NewMetrics creates and registers runtime metrics on the given registerer.
// Pass prometheus.NewRegistry() in tests to avoid global-registry collisions.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TurnsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "strand_turns_started_total",
			Help: "Turns submitted to the runtime, by platform.",
		}, []string{"platform"}),
		TurnsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "strand_turns_completed_total",
			Help: "Turns that reached the terminal state, by outcome.",
		}, []string{"outcome"}),
		TurnsCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "strand_turns_cancelled_total",
			Help: "In-flight generations cancelled by a newer turn or disconnect.",
		}),
		CyclesPerTurn: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "strand_cycles_per_turn",
			Help:    "Reasoning/tool cycles executed per turn.",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		}),
		ToolExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "strand_tool_executions_total",
			Help: "Tool executions, by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		ReasoningExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "strand_reasoning_exhausted_total",
			Help: "Turns forced to terminate by the cycle cap.",
		}),
		CheckpointLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "strand_checkpoint_seconds",
			Help:    "Checkpoint store operation latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.TurnsStarted,
			m.TurnsCompleted,
			m.TurnsCancelled,
			m.CyclesPerTurn,
			m.ToolExecutions,
			m.ReasoningExhausted,
			m.CheckpointLatency,
		)
	}
	return m
}
