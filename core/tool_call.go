package core

import (
	"encoding/json"
	"fmt"
)

// ToolCall is a single tool invocation requested by a Decision.
type ToolCall struct {
	ID        string         `json:"id,omitempty"` // correlates the call with its ToolResult
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ToolResult is the outcome of a ToolCall. Tool-level failures are encoded
// here rather than returned as errors so the model can see and react to them.
type ToolResult struct {
	CallID    string    `json:"call_id,omitempty"`
	Name      string    `json:"name"`
	OK        bool      `json:"ok"`
	Output    any       `json:"output,omitempty"`
	Error     string    `json:"error,omitempty"`
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
}

// NewToolSuccess builds a successful result for call.
func NewToolSuccess(call ToolCall, output any) ToolResult {
	return ToolResult{CallID: call.ID, Name: call.Name, OK: true, Output: output}
}

// NewToolFailure builds a failed result for call, classifying err.
func NewToolFailure(call ToolCall, err error) ToolResult {
	kind := KindOf(err)
	if kind == KindInternal {
		kind = KindToolExecution
	}
	return ToolResult{CallID: call.ID, Name: call.Name, Error: err.Error(), ErrorKind: kind}
}

// Text renders the result as the content of a tool turn.
func (r ToolResult) Text() string {
	if !r.OK {
		return fmt.Sprintf("error: %s", r.Error)
	}
	switch v := r.Output.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// Turn converts the result into the tool turn appended to the conversation.
func (r ToolResult) Turn(node string) Turn {
	t := NewTurn(RoleTool, node, r.Text())
	if b, err := json.Marshal(r); err == nil {
		t.Payload = b
	}
	return t
}
