package task

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks turn-level counters for one process. A nil *Metrics is
// valid everywhere it's used; all methods are no-ops on a nil receiver, so
// callers that don't care about metrics can simply not construct one.
type Metrics struct {
	turns           prometheus.Counter
	toolDispatches  *prometheus.CounterVec
	terminalReasons *prometheus.CounterVec
}

// NewMetrics registers SubTerminator's counters against reg and returns a
// Metrics handle. Pass prometheus.NewRegistry() for an isolated registry, or
// prometheus.DefaultRegisterer to expose via promhttp's default handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		turns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "subterminator_turns_total",
			Help: "Total LLM turns taken across all runs.",
		}),
		toolDispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subterminator_tool_dispatches_total",
			Help: "Tool dispatches by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		terminalReasons: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subterminator_runs_total",
			Help: "Completed runs by terminal reason.",
		}, []string{"reason"}),
	}
	if reg != nil {
		reg.MustRegister(m.turns, m.toolDispatches, m.terminalReasons)
	}
	return m
}

func (m *Metrics) observeTurn() {
	if m == nil {
		return
	}
	m.turns.Inc()
}

func (m *Metrics) observeDispatch(tool, outcome string) {
	if m == nil {
		return
	}
	m.toolDispatches.WithLabelValues(tool, outcome).Inc()
}

func (m *Metrics) observeTerminal(reason TaskReason) {
	if m == nil {
		return
	}
	m.terminalReasons.WithLabelValues(string(reason)).Inc()
}
