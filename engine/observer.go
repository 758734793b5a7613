package engine

import (
	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/logging"
)

// Observer is notified of every event a run emits, synchronously and in
// emission order. Implementations must be fast and must not block; they run
// on the run's goroutine.
type Observer interface {
	OnEvent(ev core.Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ev core.Event)

// OnEvent implements Observer.
func (f ObserverFunc) OnEvent(ev core.Event) { f(ev) }

// LoggingObserver writes one structured log record per event.
type LoggingObserver struct {
	logger logging.Logger
}

// NewLoggingObserver creates an observer logging to logger.
func NewLoggingObserver(logger logging.Logger) *LoggingObserver {
	return &LoggingObserver{logger: logger}
}

// OnEvent implements Observer. Failures log at error level, tool and
// decision details at debug level.
func (o *LoggingObserver) OnEvent(ev core.Event) {
	args := []any{
		"run_id", ev.RunID,
		"conversation_id", ev.ConversationID,
		"node", ev.Node,
		"seq", ev.Seq,
		"step", ev.Step,
	}

	switch p := ev.Payload.(type) {
	case core.NodeEnteredPayload:
		o.logger.Info("engine.node.entered", append(args, "state", p.State)...)
	case core.DecisionPayload:
		o.logger.Debug("engine.decision.made", append(args, "decision", p.Kind)...)
	case core.ToolStartedPayload:
		o.logger.Debug("engine.tool.started", append(args, "tool", p.Call.Name, "call_id", p.Call.ID)...)
	case core.ToolFinishedPayload:
		o.logger.Debug("engine.tool.finished", append(args, "tool", p.Result.Name, "ok", p.Result.OK, "duration_ms", p.DurationMS)...)
	case core.RunCompletedPayload:
		o.logger.Debug("engine.run.event.completed", append(args, "tools_used", p.ToolsUsed)...)
	case core.RunFailedPayload:
		o.logger.Warn("engine.run.event.failed", append(args, "kind", p.Kind, "message", p.Message)...)
	default:
		o.logger.Debug("engine.event", append(args, "kind", ev.Kind)...)
	}
}
