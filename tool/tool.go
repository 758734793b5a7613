// Package tool implements the tool registry that lets graph nodes invoke
// structured capabilities (search, computation, file access) with schema
// validated arguments and uniform failure reporting.
package tool

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentgraph/internal/util"
)

// Tool defines the interface for extending node capabilities with external functions.
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Define proper JSON schema for parameters
//   - Honor ctx cancellation for any blocking work
//   - Be safe for concurrent use; the engine dispatches calls in parallel
type Tool interface {
	// Name returns the unique identifier for this tool.
	// Names should be descriptive and follow function naming conventions (snake_case recommended).
	Name() string

	// Description returns a human-readable description of what this tool does.
	// This description is provided to the LLM to help it understand when and how to use the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	// This schema is used for argument validation and LLM function calling.
	Parameters() map[string]any

	// Call executes the tool with arguments that already passed schema validation.
	Call(ctx context.Context, args map[string]any) (any, error)
}

// ValidationError is the cause wrapped by core.InvalidArgumentsError when
// arguments fail schema validation.
type ValidationError = util.ValidationError

// ToolError is a tool-level failure with a machine readable code such as
// TIMEOUT, PANIC or SEARCH_FAILED. It becomes a failed core.ToolResult of
// kind tool_execution.
type ToolError struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a ToolError.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{Tool: tool, Message: message, Code: code}
}
