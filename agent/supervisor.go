package agent

import "github.com/hupe1980/agentgraph/gateway"

// SupervisorName is the default name of the supervisor node.
const SupervisorName = "supervisor"

// Supervisor coordinates specialists and writes the run's final answer.
type Supervisor struct {
	BaseNode
}

// NewSupervisor creates the supervisor node.
func NewSupervisor(gw gateway.Gateway) *Supervisor {
	s := &Supervisor{BaseNode: NewBaseNode(SupervisorName, gateway.RoleSupervisor, gw)}
	s.SetDescription("Coordinates specialists and writes the final answer.")
	return s
}
