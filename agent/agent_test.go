package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/gateway"
)

func TestNodes_BuildGatewayRequest(t *testing.T) {
	var got []gateway.Request
	gw := gateway.Func(func(_ context.Context, req gateway.Request) (core.Decision, error) {
		got = append(got, req)
		return core.FinalAnswer{Text: "ok"}, nil
	})

	conv := core.NewConversationState("c1")
	conv.Append(core.NewTurn(core.RoleUser, "", "hello"))
	conv.SetScratch("k", "v")

	sup := NewSupervisor(gw)
	research := NewResearch(gw)

	_, err := sup.Decide(context.Background(), conv)
	require.NoError(t, err)
	_, err = research.Decide(context.Background(), conv)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, gateway.RoleSupervisor, got[0].Role)
	assert.Equal(t, SupervisorName, got[0].Node)
	assert.Equal(t, gateway.RoleSpecialist, got[1].Role)
	assert.Equal(t, ResearchName, got[1].Node)
	assert.Equal(t, conv.Turns, got[1].Turns)
	assert.Equal(t, "v", got[1].Scratchpad["k"])
}

func TestSpecialist_ScratchKey(t *testing.T) {
	assert.Equal(t, ResearchScratchKey, NewResearch(nil).ScratchKey())

	s := NewSpecialist("analysis", nil)
	assert.Equal(t, "analysis_draft", s.ScratchKey())
	assert.Equal(t, "Agent analysis", s.Description())
	assert.Equal(t, gateway.RoleSpecialist, s.Role())
}

func TestBaseNode_NoGateway(t *testing.T) {
	_, err := NewSupervisor(nil).Decide(context.Background(), core.NewConversationState("c"))
	assert.Error(t, err)
}
