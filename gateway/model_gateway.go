package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/internal/util"
	"github.com/hupe1980/agentgraph/logging"
	"github.com/hupe1980/agentgraph/model"
)

// DelegateToolName is the pseudo-tool the supervisor calls to hand work to a specialist.
const DelegateToolName = "delegate"

// ToolSource provides the tool declarations offered to the model.
type ToolSource interface {
	Definitions() []model.ToolDefinition
}

// ModelGatewayOptions configures a ModelGateway.
type ModelGatewayOptions struct {
	// Profiles are keyed by node name. Missing nodes fall back to the
	// supervisor or research profile according to the request role.
	Profiles []Profile
	// Timeout bounds a single model call. Zero disables the per-call deadline.
	Timeout time.Duration
	// Stream requests incremental model output (collected before mapping).
	Stream bool
	Logger logging.Logger
}

// ModelGateway asks a model.Model for a decision and maps the response onto
// a core.Decision:
//
//   - text only: FinalAnswer, unless the text is a JSON decision envelope
//   - a single "delegate" call: Delegate
//   - one or more other calls: ToolCalls in request order
//   - "delegate" mixed with other calls, empty output or undecodable
//     arguments: *core.MalformedDecisionError
type ModelGateway struct {
	model    model.Model
	tools    ToolSource
	profiles map[string]Profile
	opts     ModelGatewayOptions
	logger   logging.Logger
}

// NewModelGateway creates a gateway over m offering the tools of src.
func NewModelGateway(m model.Model, src ToolSource, optFns ...func(o *ModelGatewayOptions)) *ModelGateway {
	opts := ModelGatewayOptions{
		Profiles: []Profile{SupervisorProfile(), ResearchProfile()},
		Timeout:  60 * time.Second,
		Logger:   logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	profiles := make(map[string]Profile, len(opts.Profiles))
	for _, p := range opts.Profiles {
		profiles[p.Name] = p
	}

	return &ModelGateway{model: m, tools: src, profiles: profiles, opts: opts, logger: opts.Logger}
}

// Decide implements Gateway.
func (g *ModelGateway) Decide(ctx context.Context, req Request) (core.Decision, error) {
	profile := g.profile(req)

	mreq, err := g.buildRequest(profile, req)
	if err != nil {
		return nil, err
	}

	callCtx := ctx
	if g.opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := model.Collect(callCtx, g.model, mreq)
	dur := time.Since(start)
	if err != nil {
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			g.logger.Warn("gateway.decide.timeout", "node", req.Node, "timeout", g.opts.Timeout)
			return nil, &core.GatewayTimeoutError{Timeout: g.opts.Timeout, Err: err}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		g.logger.Error("gateway.decide.failed", "node", req.Node, "error", err)
		return nil, fmt.Errorf("model %s: %w", g.model.Info().Name, err)
	}

	tokens := 0
	if resp.Usage != nil {
		tokens = resp.Usage.TotalTokens
	}
	g.logger.Debug(
		"gateway.decide.completed",
		"node", req.Node,
		"model", g.model.Info().Name,
		"duration_ms", dur.Milliseconds(),
		"tokens", tokens,
		"tool_calls", len(resp.ToolCalls),
	)

	return MapResponse(resp)
}

func (g *ModelGateway) profile(req Request) Profile {
	if p, ok := g.profiles[req.Node]; ok {
		return p
	}
	if req.Role == RoleSupervisor {
		return SupervisorProfile()
	}
	p := ResearchProfile()
	p.Name = req.Node
	return p
}

func (g *ModelGateway) specialists() []Profile {
	var out []Profile
	for _, p := range g.opts.Profiles {
		if p.Role == RoleSpecialist {
			out = append(out, p)
		}
	}
	return out
}

func (g *ModelGateway) buildRequest(profile Profile, req Request) (model.Request, error) {
	var defs []model.ToolDefinition
	if g.tools != nil {
		for _, d := range g.tools.Definitions() {
			if profile.Tools == nil || slices.Contains(profile.Tools, d.Function.Name) {
				defs = append(defs, d)
			}
		}
	}

	toolNames := make([]string, 0, len(defs))
	for _, d := range defs {
		toolNames = append(toolNames, d.Function.Name)
	}

	specialists := g.specialists()
	if req.Role == RoleSupervisor && len(specialists) > 0 {
		defs = append(defs, delegateDefinition(specialists))
	}

	scratch := make(map[string]string, len(req.Scratchpad))
	for k, v := range req.Scratchpad {
		scratch[k] = v
	}

	instructions, err := util.RenderTemplate(profile.Instructions, map[string]any{
		"scratchpad":  scratch,
		"specialists": specialists,
		"tools":       toolNames,
	})
	if err != nil {
		return model.Request{}, fmt.Errorf("render instructions for %s: %w", profile.Name, err)
	}

	return model.Request{
		Instructions: instructions,
		Messages:     RenderTurns(req.Node, req.Turns),
		Tools:        defs,
		Stream:       g.opts.Stream,
	}, nil
}

func delegateDefinition(specialists []Profile) model.ToolDefinition {
	names := make([]any, 0, len(specialists))
	for _, s := range specialists {
		names = append(names, s.Name)
	}
	return model.NewFunctionDefinition(
		DelegateToolName,
		"Transfer control to a specialist agent with instructions. Use when a specialist is better suited.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"target":       map[string]any{"type": "string", "enum": names, "description": "Specialist name"},
				"instructions": map[string]any{"type": "string", "description": "What the specialist should do"},
			},
			"required": []string{"target", "instructions"},
		},
	)
}

// RenderTurns converts the turn log into provider messages from the point of
// view of node: its own turns are assistant messages, everything else is
// presented as labelled user input. Consecutive messages of the same role
// are merged.
func RenderTurns(node string, turns []core.Turn) []model.Message {
	msgs := make([]model.Message, 0, len(turns))
	for _, t := range turns {
		var msg model.Message
		switch {
		case t.Role == core.RoleAgent && t.Node == node:
			msg = model.Message{Role: model.RoleAssistant, Content: t.Content}
		case t.Role == core.RoleUser:
			msg = model.Message{Role: model.RoleUser, Content: t.Content}
		case t.Role == core.RoleTool:
			msg = model.Message{Role: model.RoleUser, Content: fmt.Sprintf("[tool result: %s]\n%s", toolName(t), t.Content)}
		default:
			msg = model.Message{Role: model.RoleUser, Content: fmt.Sprintf("[%s]\n%s", t.Node, t.Content)}
		}

		if n := len(msgs); n > 0 && msgs[n-1].Role == msg.Role {
			msgs[n-1].Content += "\n\n" + msg.Content
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

func toolName(t core.Turn) string {
	var r core.ToolResult
	if len(t.Payload) > 0 && json.Unmarshal(t.Payload, &r) == nil && r.Name != "" {
		return r.Name
	}
	return "unknown"
}

// MapResponse translates a final model response into a Decision.
func MapResponse(resp model.Response) (core.Decision, error) {
	if len(resp.ToolCalls) == 0 {
		return mapText(resp.Text)
	}

	calls := make([]core.ToolCall, 0, len(resp.ToolCalls))
	for i, tc := range resp.ToolCalls {
		name := strings.TrimSpace(tc.Function.Name)
		if name == "" {
			return nil, &core.MalformedDecisionError{Reason: fmt.Sprintf("tool call %d has no name", i)}
		}

		args := map[string]any{}
		if len(tc.Function.Arguments) > 0 {
			if err := json.Unmarshal(tc.Function.Arguments, &args); err != nil {
				return nil, &core.MalformedDecisionError{
					Reason: fmt.Sprintf("arguments of %s are not a JSON object: %v", name, err),
					Raw:    string(tc.Function.Arguments),
				}
			}
		}

		id := tc.ID
		if id == "" {
			id = core.NewID()
		}
		calls = append(calls, core.ToolCall{ID: id, Name: name, Arguments: args})
	}

	for _, c := range calls {
		if c.Name != DelegateToolName {
			continue
		}
		if len(calls) > 1 {
			return nil, &core.MalformedDecisionError{Reason: "delegate requested together with other tool calls"}
		}
		target, _ := c.Arguments["target"].(string)
		instructions, _ := c.Arguments["instructions"].(string)
		return core.DecisionWire{Delegate: &core.Delegate{Target: target, Instructions: instructions}}.Decision()
	}

	return core.ToolCalls{Calls: calls}, nil
}

func mapText(text string) (core.Decision, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, &core.MalformedDecisionError{Reason: "empty model response"}
	}

	if envelope, ok := decisionEnvelope(trimmed); ok {
		return core.ParseDecision([]byte(envelope))
	}
	return core.FinalAnswer{Text: trimmed}, nil
}

// decisionEnvelope reports whether text is a JSON object using any of the
// decision envelope keys, optionally wrapped in a ```json fence.
func decisionEnvelope(text string) (string, bool) {
	body := text
	if strings.HasPrefix(body, "```") {
		body = strings.TrimPrefix(body, "```json")
		body = strings.TrimPrefix(body, "```")
		body = strings.TrimSuffix(strings.TrimSpace(body), "```")
		body = strings.TrimSpace(body)
	}
	if !strings.HasPrefix(body, "{") {
		return "", false
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &keys); err != nil {
		return "", false
	}
	for _, k := range []string{"final_answer", "delegate", "tool_calls"} {
		if _, ok := keys[k]; ok {
			return body, true
		}
	}
	return "", false
}
