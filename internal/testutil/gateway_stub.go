package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/gateway"
)

// Step is one scripted gateway outcome: a decision, an error, or a function
// computing either from the request.
type Step struct {
	Decision core.Decision
	Err      error
	Func     func(ctx context.Context, req gateway.Request) (core.Decision, error)
}

// ScriptedGateway returns scripted outcomes per node in order. Requests for
// a node without remaining steps use Fallback when set and fail otherwise.
type ScriptedGateway struct {
	mu       sync.Mutex
	steps    map[string][]Step
	requests []gateway.Request
	Fallback func(ctx context.Context, req gateway.Request) (core.Decision, error)
}

// NewScriptedGateway creates an empty script.
func NewScriptedGateway() *ScriptedGateway {
	return &ScriptedGateway{steps: map[string][]Step{}}
}

// On appends decisions returned for node (chainable).
func (g *ScriptedGateway) On(node string, decisions ...core.Decision) *ScriptedGateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, d := range decisions {
		g.steps[node] = append(g.steps[node], Step{Decision: d})
	}
	return g
}

// OnError appends a failing step for node (chainable).
func (g *ScriptedGateway) OnError(node string, err error) *ScriptedGateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.steps[node] = append(g.steps[node], Step{Err: err})
	return g
}

// OnFunc appends a computed step for node (chainable).
func (g *ScriptedGateway) OnFunc(node string, fn func(ctx context.Context, req gateway.Request) (core.Decision, error)) *ScriptedGateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.steps[node] = append(g.steps[node], Step{Func: fn})
	return g
}

// Decide implements gateway.Gateway.
func (g *ScriptedGateway) Decide(ctx context.Context, req gateway.Request) (core.Decision, error) {
	g.mu.Lock()
	req.Turns = append([]core.Turn(nil), req.Turns...)
	g.requests = append(g.requests, req)
	queue := g.steps[req.Node]
	var (
		step Step
		ok   bool
	)
	if len(queue) > 0 {
		step, ok = queue[0], true
		g.steps[req.Node] = queue[1:]
	}
	fallback := g.Fallback
	g.mu.Unlock()

	switch {
	case ok && step.Func != nil:
		return step.Func(ctx, req)
	case ok:
		return step.Decision, step.Err
	case fallback != nil:
		return fallback(ctx, req)
	default:
		return nil, fmt.Errorf("no scripted decision left for node %q", req.Node)
	}
}

// Requests returns every request received so far.
func (g *ScriptedGateway) Requests() []gateway.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]gateway.Request, len(g.requests))
	copy(out, g.requests)
	return out
}
