// Package gateway implements the Model Gateway: the boundary that turns a
// conversation snapshot into a validated core.Decision.
//
// A Gateway is pure with respect to conversation state. It reads the turns
// and scratchpad it is given and never writes them back. All retry, timeout
// and rate limiting policy lives here, so the engine's control flow stays
// deterministic and testable with a stub Gateway.
//
// Building blocks:
//
//   - ModelGateway maps a model.Model response onto a Decision
//   - WithRetry repeats a decision request after a retryable failure
//   - WithRateLimit bounds decision requests per second
//   - KeywordRouter is a model-free supervisor used when no LLM is configured
package gateway

import (
	"context"

	"github.com/hupe1980/agentgraph/core"
)

// Role distinguishes supervisor from specialist prompting context.
type Role string

const (
	RoleSupervisor Role = "supervisor"
	RoleSpecialist Role = "specialist"
)

// Request is the input of a decision request.
type Request struct {
	Role       Role
	Node       string // node asking for the decision, e.g. "supervisor" or "research"
	Turns      []core.Turn
	Scratchpad map[string]string
}

// Gateway asks a reasoning backend for the next Decision.
//
// Decide fails with *core.MalformedDecisionError when the backend output
// cannot be mapped onto exactly one Decision case, and with
// *core.GatewayTimeoutError when the request exceeds its deadline.
type Gateway interface {
	Decide(ctx context.Context, req Request) (core.Decision, error)
}

// Func adapts a function to the Gateway interface.
type Func func(ctx context.Context, req Request) (core.Decision, error)

// Decide implements Gateway.
func (f Func) Decide(ctx context.Context, req Request) (core.Decision, error) { return f(ctx, req) }

// Router dispatches decision requests to a per-node gateway, falling back to
// Default for nodes without an entry.
type Router struct {
	Default Gateway
	Nodes   map[string]Gateway
}

// Decide implements Gateway.
func (r *Router) Decide(ctx context.Context, req Request) (core.Decision, error) {
	if g, ok := r.Nodes[req.Node]; ok {
		return g.Decide(ctx, req)
	}
	return r.Default.Decide(ctx, req)
}
