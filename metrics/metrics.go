// Package metrics exports run, node, decision and tool metrics to
// Prometheus by observing engine events.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/agentgraph/core"
)

// Observer records Prometheus metrics for every engine event. It satisfies
// engine.Observer.
type Observer struct {
	nodeVisits   *prometheus.CounterVec
	decisions    *prometheus.CounterVec
	toolCalls    *prometheus.CounterVec
	toolDuration *prometheus.HistogramVec
	runs         *prometheus.CounterVec
	runSteps     prometheus.Histogram
}

// New creates the collectors under namespace and registers them with reg.
func New(reg prometheus.Registerer, namespace string) (*Observer, error) {
	o := &Observer{
		nodeVisits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_visits_total",
			Help:      "Node executions by node and workflow state.",
		}, []string{"node", "state"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Decisions by node and decision kind.",
		}, []string{"node", "decision"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Finished tool calls by tool and outcome.",
		}, []string{"tool", "outcome"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_duration_seconds",
			Help:      "Duration of tool executions.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished runs by outcome and error kind.",
		}, []string{"outcome", "kind"}),
		runSteps: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_steps",
			Help:      "Node executions per finished run.",
			Buckets:   prometheus.LinearBuckets(1, 2, 10),
		}),
	}

	for _, c := range []prometheus.Collector{o.nodeVisits, o.decisions, o.toolCalls, o.toolDuration, o.runs, o.runSteps} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// MustNew is New that panics on registration errors.
func MustNew(reg prometheus.Registerer, namespace string) *Observer {
	o, err := New(reg, namespace)
	if err != nil {
		panic(err)
	}
	return o
}

// OnEvent implements engine.Observer.
func (o *Observer) OnEvent(ev core.Event) {
	switch p := ev.Payload.(type) {
	case core.NodeEnteredPayload:
		o.nodeVisits.WithLabelValues(ev.Node, p.State).Inc()
	case core.DecisionPayload:
		o.decisions.WithLabelValues(ev.Node, string(p.Kind)).Inc()
	case core.ToolFinishedPayload:
		outcome := "ok"
		if !p.Result.OK {
			outcome = string(p.Result.ErrorKind)
		}
		o.toolCalls.WithLabelValues(p.Result.Name, outcome).Inc()
		o.toolDuration.WithLabelValues(p.Result.Name).Observe((time.Duration(p.DurationMS) * time.Millisecond).Seconds())
	case core.RunCompletedPayload:
		o.runs.WithLabelValues("completed", "").Inc()
		o.runSteps.Observe(float64(p.Steps))
	case core.RunFailedPayload:
		o.runs.WithLabelValues("failed", string(p.Kind)).Inc()
		o.runSteps.Observe(float64(p.Steps))
	}
}
