package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/agentgraph/agent"
	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/gateway"
	"github.com/hupe1980/agentgraph/stream"
)

// State is a workflow state of a run.
type State string

const (
	StateInit         State = "Init"
	StateSupervising  State = "Supervising"
	StateDelegating   State = "Delegating"
	StateSpecializing State = "Specializing"
	StateToolDispatch State = "ToolDispatch"
	StateCompleted    State = "Completed"
	StateFailed       State = "Failed"
)

// CouldNotComplete is the partial answer reported when a run exhausts its
// step budget before any specialist produced a draft.
const CouldNotComplete = "I could not complete the request within the allowed number of steps."

// run is the transient state of one pass over a conversation. It is owned by
// a single goroutine.
type run struct {
	engine         *Engine
	id             string
	conversationID string
	handle         *stream.RunHandle
	budget         *core.StepBudget
	release        func() // frees the run lock and slot; idempotent

	state        State
	node         agent.Node
	instructions string // pending delegation instructions for the entered specialist
	partial      string // latest specialist draft
	answer       string
	toolsUsed    []string
	span         trace.Span
}

func (r *run) execute(ctx context.Context, message string) {
	e := r.engine
	r.state = StateInit
	e.logger.Info("engine.run.started", "run_id", r.id, "conversation_id", r.conversationID, "streaming", r.handle.Streaming())

	ctx, r.span = e.tracer.Start(ctx, SpanRun, trace.WithAttributes(
		attribute.String(AttrRunID, r.id),
		attribute.String(AttrConversationID, r.conversationID),
	)) // ended by complete or fail

	if err := r.append(ctx, core.NewTurn(core.RoleUser, "", message)); err != nil {
		r.fail(err)
		return
	}

	r.state = StateSupervising
	r.node = e.supervisor

	for {
		if err := ctx.Err(); err != nil {
			r.fail(err)
			return
		}

		if err := r.budget.Enter(); err != nil {
			var exceeded *core.StepBudgetExceeded
			if errors.As(err, &exceeded) {
				exceeded.PartialAnswer = r.partial
				if exceeded.PartialAnswer == "" {
					exceeded.PartialAnswer = CouldNotComplete
				}
			}
			r.fail(err)
			return
		}

		done, err := r.step(ctx)
		if err != nil {
			r.fail(err)
			return
		}
		if done {
			r.complete(r.answer)
			return
		}
	}
}

// step executes the current node once: it loads the conversation, asks the
// node for a decision and applies it.
func (r *run) step(ctx context.Context) (bool, error) {
	e := r.engine
	ctx, span := e.tracer.Start(ctx, SpanNode, trace.WithAttributes(
		attribute.String(AttrNode, r.node.Name()),
		attribute.String(AttrState, string(r.state)),
		attribute.Int(AttrStep, r.budget.Count()),
	))
	defer span.End()

	r.emit(core.EventNodeEntered, r.node.Name(), core.NodeEnteredPayload{State: string(r.state), Instructions: r.instructions})
	r.instructions = ""

	conv, err := e.store.Load(ctx, r.conversationID)
	if err != nil {
		return false, recordError(span, err)
	}

	decision, err := r.node.Decide(ctx, conv)
	if err != nil {
		return false, recordError(span, err)
	}
	span.SetAttributes(attribute.String(AttrDecision, string(decision.Kind())))

	r.emit(core.EventDecisionMade, r.node.Name(), core.DecisionPayload{
		Kind:     decision.Kind(),
		Decision: core.WireOf(decision),
		Next:     string(r.next(decision)),
	})

	done, err := r.apply(ctx, decision)
	if err != nil {
		return false, recordError(span, err)
	}
	return done, nil
}

// apply performs the transition selected by decision. It reports true when
// the supervisor produced the final answer.
func (r *run) apply(ctx context.Context, decision core.Decision) (bool, error) {
	e := r.engine
	name := r.node.Name()
	supervising := r.node.Role() == gateway.RoleSupervisor

	switch d := decision.(type) {
	case core.FinalAnswer:
		if err := r.append(ctx, core.NewTurn(core.RoleAgent, name, d.Text)); err != nil {
			return false, err
		}
		if supervising {
			r.answer = d.Text
			return true, nil
		}
		if key := scratchKey(r.node); key != "" {
			if err := r.putScratch(ctx, key, d.Text); err != nil {
				return false, err
			}
		}
		r.partial = d.Text
		r.toSupervisor()

	case core.Delegate:
		if !supervising {
			// Specialists cannot delegate; their request goes back to the supervisor.
			if err := r.append(ctx, core.NewTurn(core.RoleAgent, name, delegationText(d))); err != nil {
				return false, err
			}
			r.toSupervisor()
			return false, nil
		}

		target, ok := e.specialists[d.Target]
		if !ok {
			e.logger.Warn("engine.delegate.unknown_target", "run_id", r.id, "target", d.Target)
			msg := fmt.Sprintf("Delegation failed: no specialist named %q. Available: %s.", d.Target, e.specialistNames())
			if err := r.append(ctx, core.NewTurn(core.RoleAgent, name, msg)); err != nil {
				return false, err
			}
			return false, nil
		}

		r.state = StateDelegating
		if err := r.append(ctx, core.NewTurn(core.RoleAgent, name, delegationText(d))); err != nil {
			return false, err
		}
		r.state = StateSpecializing
		r.node = target
		r.instructions = d.Instructions

	case core.ToolCalls:
		resume := r.state
		r.state = StateToolDispatch
		if err := r.dispatch(ctx, d.Calls); err != nil {
			return false, err
		}
		r.state = resume

	default:
		return false, fmt.Errorf("unsupported decision %T", decision)
	}
	return false, nil
}

// next returns the state apply moves the run into for decision.
func (r *run) next(decision core.Decision) State {
	supervising := r.node.Role() == gateway.RoleSupervisor
	switch d := decision.(type) {
	case core.FinalAnswer:
		if supervising {
			return StateCompleted
		}
	case core.Delegate:
		if _, ok := r.engine.specialists[d.Target]; ok && supervising {
			return StateDelegating
		}
	case core.ToolCalls:
		return StateToolDispatch
	}
	return StateSupervising
}

func (r *run) toSupervisor() {
	r.state = StateSupervising
	r.node = r.engine.supervisor
}

// dispatch runs calls concurrently and appends their results in request
// order, regardless of completion order.
func (r *run) dispatch(ctx context.Context, calls []core.ToolCall) error {
	e := r.engine
	node := r.node.Name()

	for _, c := range calls {
		r.emit(core.EventToolStarted, node, core.ToolStartedPayload{Call: c})
		r.useTool(c.Name)
	}

	results := make([]core.ToolResult, len(calls))
	durations := make([]time.Duration, len(calls))

	var g errgroup.Group
	g.SetLimit(e.opts.ToolConcurrency)
	for i, c := range calls {
		g.Go(func() error {
			start := time.Now()
			results[i] = r.invoke(ctx, c)
			durations[i] = time.Since(start)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}

	for i, res := range results {
		r.emit(core.EventToolFinished, node, core.ToolFinishedPayload{Result: res, DurationMS: durations[i].Milliseconds()})
		if err := r.append(ctx, res.Turn(node)); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) invoke(ctx context.Context, call core.ToolCall) core.ToolResult {
	e := r.engine
	if e.tools == nil {
		return core.NewToolFailure(call, &core.UnknownToolError{Tool: call.Name})
	}
	if e.opts.ToolTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.ToolTimeout)
		defer cancel()
	}

	ctx, span := e.tracer.Start(ctx, SpanTool, trace.WithAttributes(
		attribute.String(AttrTool, call.Name),
		attribute.String(AttrToolCallID, call.ID),
	))
	defer span.End()

	res := e.tools.Invoke(ctx, call)
	span.SetAttributes(attribute.Bool(AttrToolOK, res.OK))
	if !res.OK {
		span.SetAttributes(attribute.String(AttrErrorKind, string(res.ErrorKind)))
		span.SetStatus(codes.Error, res.Error)
	}
	return res
}

func (r *run) useTool(name string) {
	for _, n := range r.toolsUsed {
		if n == name {
			return
		}
	}
	r.toolsUsed = append(r.toolsUsed, name)
}

// append writes one turn. The write is detached from run cancellation so it
// either completes or never starts.
func (r *run) append(ctx context.Context, t core.Turn) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.engine.store.AppendTurn(context.WithoutCancel(ctx), r.conversationID, t)
}

func (r *run) putScratch(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.engine.store.PutScratch(context.WithoutCancel(ctx), r.conversationID, key, value)
}

func (r *run) emit(kind core.EventKind, node string, payload any) {
	ev, ok := r.handle.Buffer().Append(core.NewEvent(r.id, r.conversationID, kind, node, r.budget.Count(), payload))
	if !ok {
		return
	}
	for _, o := range r.engine.opts.Observers {
		o.OnEvent(ev)
	}
}

func (r *run) complete(answer string) {
	r.release()
	r.state = StateCompleted
	result := core.RunResult{
		RunID:          r.id,
		ConversationID: r.conversationID,
		FinalAnswer:    answer,
		ToolsUsed:      r.tools(),
		Steps:          r.budget.Count(),
	}
	r.emit(core.EventRunCompleted, r.node.Name(), core.RunCompletedPayload{
		FinalAnswer: result.FinalAnswer,
		ToolsUsed:   result.ToolsUsed,
		Steps:       result.Steps,
	})
	r.span.SetAttributes(attribute.Int(AttrSteps, result.Steps))
	r.span.SetStatus(codes.Ok, "")
	r.span.End()
	r.engine.logger.Info("engine.run.completed", "run_id", r.id, "conversation_id", r.conversationID, "steps", result.Steps)
	r.handle.Finish(result, nil)
}

func (r *run) fail(err error) {
	r.release()
	r.state = StateFailed
	kind := core.KindOf(err)

	var partial string
	var exceeded *core.StepBudgetExceeded
	if errors.As(err, &exceeded) {
		partial = exceeded.PartialAnswer
	}

	node := ""
	if r.node != nil {
		node = r.node.Name()
	}
	r.emit(core.EventRunFailed, node, core.RunFailedPayload{
		Kind:          kind,
		Message:       err.Error(),
		PartialAnswer: partial,
		Steps:         r.budget.Count(),
	})
	r.span.SetAttributes(attribute.Int(AttrSteps, r.budget.Count()), attribute.String(AttrErrorKind, string(kind)))
	recordError(r.span, err)
	r.span.End()
	r.engine.logger.Error("engine.run.failed", "run_id", r.id, "conversation_id", r.conversationID, "kind", kind, "error", err)
	r.handle.Finish(core.RunResult{
		RunID:          r.id,
		ConversationID: r.conversationID,
		ToolsUsed:      r.tools(),
		Steps:          r.budget.Count(),
	}, &core.RunError{RunID: r.id, Steps: r.budget.Count(), PartialAnswer: partial, Err: err})
}

func (r *run) tools() []string {
	out := make([]string, len(r.toolsUsed))
	copy(out, r.toolsUsed)
	return out
}

func scratchKey(n agent.Node) string {
	if s, ok := n.(interface{ ScratchKey() string }); ok {
		return s.ScratchKey()
	}
	return ""
}

func delegationText(d core.Delegate) string {
	if d.Instructions == "" {
		return fmt.Sprintf("Delegating to %s.", d.Target)
	}
	return d.Instructions
}

func (e *Engine) specialistNames() string {
	if len(e.opts.Specialists) == 0 {
		return "none"
	}
	names := make([]string, 0, len(e.opts.Specialists))
	for _, s := range e.opts.Specialists {
		names = append(names, s.Name())
	}
	return strings.Join(names, ", ")
}
