package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hupe1980/agentgraph/internal/util"
)

// FunctionTool exposes a Go function as a tool. It holds no mutable state and
// is safe for concurrent use.
//
// The parameters map uses the schema subset understood by the registry
// (type, properties, required, enum, items). The Registry validates arguments
// before fn runs.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]any
	fn          func(ctx context.Context, args map[string]any) (any, error)
}

// NewFunctionTool constructs a FunctionTool from an explicit schema.
//
// Example:
//
//	area := tool.NewFunctionTool(
//	  "circle_area",
//	  "Area of a circle",
//	  map[string]any{
//	    "type":       "object",
//	    "properties": map[string]any{"radius": map[string]any{"type": "number"}},
//	    "required":   []string{"radius"},
//	  },
//	  func(ctx context.Context, args map[string]any) (any, error) {
//	    r := args["radius"].(float64)
//	    return math.Pi * r * r, nil
//	  },
//	)
func NewFunctionTool(
	name, description string,
	parameters map[string]any,
	fn func(ctx context.Context, args map[string]any) (any, error),
) *FunctionTool {
	return &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
	}
}

// NewTypedTool derives the schema from the struct type T and decodes the
// validated arguments into a T before calling fn.
//
//	type lookupArgs struct {
//	  Key string `json:"key" description:"Scratchpad key"`
//	}
//	t := tool.NewTypedTool("lookup", "Read a note", func(ctx context.Context, a lookupArgs) (any, error) { ... })
func NewTypedTool[T any](name, description string, fn func(ctx context.Context, args T) (any, error)) *FunctionTool {
	var zero T
	return NewFunctionTool(name, description, util.CreateSchema(zero), func(ctx context.Context, args map[string]any) (any, error) {
		raw, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("encode arguments: %w", err)
		}
		var typed T
		if err := json.Unmarshal(raw, &typed); err != nil {
			return nil, fmt.Errorf("decode arguments: %w", err)
		}
		return fn(ctx, typed)
	})
}

func (t *FunctionTool) Name() string               { return t.name }
func (t *FunctionTool) Description() string        { return t.description }
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// Call invokes the wrapped function.
func (t *FunctionTool) Call(ctx context.Context, args map[string]any) (any, error) {
	return t.fn(ctx, args)
}
