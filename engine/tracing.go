package engine

import (
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation name used for the default tracer.
const TracerName = "github.com/hupe1980/agentgraph/engine"

// Span names.
const (
	SpanRun  = "agentgraph.run"
	SpanNode = "agentgraph.node"
	SpanTool = "agentgraph.tool"
)

// Span attribute keys.
const (
	AttrRunID          = "agentgraph.run.id"
	AttrConversationID = "agentgraph.conversation.id"
	AttrSteps          = "agentgraph.run.steps"
	AttrErrorKind      = "agentgraph.error.kind"
	AttrNode           = "agentgraph.node.name"
	AttrState          = "agentgraph.node.state"
	AttrStep           = "agentgraph.node.step"
	AttrDecision       = "agentgraph.node.decision"
	AttrTool           = "agentgraph.tool.name"
	AttrToolCallID     = "agentgraph.tool.call_id"
	AttrToolOK         = "agentgraph.tool.ok"
)

// recordError marks span as failed and returns err unchanged.
func recordError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
