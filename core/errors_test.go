package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{nil, ""},
		{&InvalidArgumentsError{Tool: "t", Err: errors.New("x")}, KindInvalidArguments},
		{&UnknownToolError{Tool: "t"}, KindUnknownTool},
		{&DuplicateToolError{Tool: "t"}, KindDuplicateTool},
		{&MalformedDecisionError{Reason: "r"}, KindMalformedDecision},
		{&GatewayTimeoutError{}, KindGatewayTimeout},
		{&StepBudgetExceeded{MaxSteps: 3}, KindStepBudgetExceeded},
		{&ConcurrentRunConflict{ConversationID: "c"}, KindConcurrentRunConflict},
		{&StateStoreUnavailable{Op: "load", Err: errors.New("down")}, KindStateStoreUnavailable},
		{fmt.Errorf("wrapped: %w", &StateStoreUnavailable{Op: "append", Err: errors.New("down")}), KindStateStoreUnavailable},
		{context.Canceled, KindCancelled},
		{context.DeadlineExceeded, KindCancelled},
		{errors.New("other"), KindInternal},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, KindOf(tt.err), "error: %v", tt.err)
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&MalformedDecisionError{}))
	assert.True(t, IsRetryable(fmt.Errorf("decide: %w", &GatewayTimeoutError{})))
	assert.False(t, IsRetryable(&StateStoreUnavailable{Err: errors.New("x")}))
	assert.False(t, IsRetryable(context.Canceled))
}

func TestStepBudget(t *testing.T) {
	b := NewStepBudget(2)
	assert.NoError(t, b.Enter())
	assert.NoError(t, b.Enter())
	assert.Equal(t, 0, b.Remaining())

	err := b.Enter()
	var exceeded *StepBudgetExceeded
	assert.ErrorAs(t, err, &exceeded)
	assert.Equal(t, 2, exceeded.MaxSteps)
	assert.Equal(t, 2, b.Count())

	unlimited := NewStepBudget(0)
	for i := 0; i < 100; i++ {
		assert.NoError(t, unlimited.Enter())
	}
	assert.Equal(t, -1, unlimited.Remaining())
}

func TestConversationState_CloneIsIndependent(t *testing.T) {
	s := NewConversationState("c1")
	s.Append(NewTurn(RoleUser, "", "hi"))
	s.SetScratch("k", "v")

	c := s.Clone()
	c.Append(NewTurn(RoleAgent, "supervisor", "hello"))
	c.SetScratch("k", "changed")

	assert.Len(t, s.Turns, 1)
	assert.Equal(t, "v", s.Scratchpad["k"])
	assert.Len(t, c.Turns, 2)
}
