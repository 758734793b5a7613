package agent

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/gateway"
)

// Node is a decision-making participant of the graph.
type Node interface {
	Name() string
	Description() string
	Role() gateway.Role
	// Decide asks the node's gateway for its next decision on conv.
	Decide(ctx context.Context, conv *core.ConversationState) (core.Decision, error)
}

// BaseNode bundles identity and gateway access shared by all nodes. Embed it
// in concrete nodes.
type BaseNode struct {
	name        string
	description string
	role        gateway.Role
	gw          gateway.Gateway
}

// NewBaseNode constructs a BaseNode with a generated description
// (customizable via SetDescription).
func NewBaseNode(name string, role gateway.Role, gw gateway.Gateway) BaseNode {
	return BaseNode{
		name:        name,
		description: fmt.Sprintf("Agent %s", name),
		role:        role,
		gw:          gw,
	}
}

// Name returns the node name used for routing and turn attribution.
func (b *BaseNode) Name() string { return b.name }

// Description returns a short description of the node's purpose.
func (b *BaseNode) Description() string { return b.description }

// SetDescription updates the node's description.
func (b *BaseNode) SetDescription(desc string) { b.description = desc }

// Role returns the prompting role of the node.
func (b *BaseNode) Role() gateway.Role { return b.role }

// Decide implements Node. The snapshot is passed to the gateway read-only.
func (b *BaseNode) Decide(ctx context.Context, conv *core.ConversationState) (core.Decision, error) {
	if b.gw == nil {
		return nil, fmt.Errorf("node %s has no gateway", b.name)
	}
	return b.gw.Decide(ctx, gateway.Request{
		Role:       b.role,
		Node:       b.name,
		Turns:      conv.Turns,
		Scratchpad: conv.Scratchpad,
	})
}
