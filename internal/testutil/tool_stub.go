package testutil

import (
	"context"
	"time"

	"github.com/hupe1980/agentgraph/tool"
)

// DelayedTool returns a tool named name that waits delay before returning
// output. The wait honors cancellation.
func DelayedTool(name string, delay time.Duration, output any) *tool.FunctionTool {
	return tool.NewFunctionTool(name, "test tool "+name, map[string]any{"type": "object"},
		func(ctx context.Context, _ map[string]any) (any, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
				return output, nil
			}
		})
}

// BlockingTool returns a tool that blocks until release is closed.
func BlockingTool(name string, release <-chan struct{}) *tool.FunctionTool {
	return tool.NewFunctionTool(name, "blocking tool "+name, map[string]any{"type": "object"},
		func(ctx context.Context, _ map[string]any) (any, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-release:
				return "released", nil
			}
		})
}
