package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDecision_ExactlyOneCase(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantKind DecisionKind
		wantErr  bool
	}{
		{name: "final answer", input: `{"final_answer":"4"}`, wantKind: DecisionFinalAnswer},
		{name: "delegate", input: `{"delegate":{"target":"research","instructions":"look it up"}}`, wantKind: DecisionDelegate},
		{name: "tool calls", input: `{"tool_calls":[{"name":"calculator","arguments":{"expression":"2+2"}}]}`, wantKind: DecisionToolCalls},
		{name: "no case", input: `{}`, wantErr: true},
		{name: "two cases", input: `{"final_answer":"x","delegate":{"target":"research"}}`, wantErr: true},
		{name: "three cases", input: `{"final_answer":"x","delegate":{"target":"r"},"tool_calls":[{"name":"a"}]}`, wantErr: true},
		{name: "empty tool list", input: `{"tool_calls":[]}`, wantErr: true},
		{name: "empty final answer", input: `{"final_answer":"  "}`, wantErr: true},
		{name: "delegate without target", input: `{"delegate":{"instructions":"x"}}`, wantErr: true},
		{name: "unknown field", input: `{"answer":"x"}`, wantErr: true},
		{name: "not json", input: `hello`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ParseDecision([]byte(tt.input))
			if tt.wantErr {
				var malformed *MalformedDecisionError
				require.ErrorAs(t, err, &malformed)
				assert.Nil(t, d)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, d.Kind())
		})
	}
}

func TestDecisionWire_AssignsToolCallIDs(t *testing.T) {
	d, err := ParseDecision([]byte(`{"tool_calls":[{"name":"a"},{"id":"fixed","name":"b"}]}`))
	require.NoError(t, err)

	calls := d.(ToolCalls).Calls
	require.Len(t, calls, 2)
	assert.NotEmpty(t, calls[0].ID)
	assert.Equal(t, "fixed", calls[1].ID)
	assert.Equal(t, "a", calls[0].Name)
	assert.Equal(t, "b", calls[1].Name)
}

func TestWireOf_RoundTripsThroughValidation(t *testing.T) {
	for _, d := range []Decision{
		FinalAnswer{Text: "done"},
		Delegate{Target: "research", Instructions: "dig"},
		ToolCalls{Calls: []ToolCall{{ID: "1", Name: "calculator"}}},
	} {
		got, err := WireOf(d).Decision()
		require.NoError(t, err)
		assert.Equal(t, d, got)
	}
}
