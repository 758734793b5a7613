package tool

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/internal/util"
	"github.com/hupe1980/agentgraph/logging"
	"github.com/hupe1980/agentgraph/model"
)

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	Logger logging.Logger
}

// Registry maps tool names to tools. It is safe for concurrent use.
//
// Invoke never returns an error: unknown tools, invalid arguments, execution
// failures, timeouts and panics are all encoded as failed core.ToolResult
// values so the model can see them on its next decision.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	logger logging.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(optFns ...func(o *RegistryOptions)) *Registry {
	opts := RegistryOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Registry{tools: map[string]Tool{}, logger: opts.Logger}
}

// Register adds t. A name that is already registered fails with
// *core.DuplicateToolError.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[t.Name()]; exists {
		return &core.DuplicateToolError{Tool: t.Name()}
	}
	r.tools[t.Name()] = t
	return nil
}

// MustRegister registers tools and panics on duplicates. Intended for static wiring.
func (r *Registry) MustRegister(tools ...Tool) {
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

// Get returns the named tool.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns the model-facing declarations of all tools, sorted by name.
func (r *Registry) Definitions() []model.ToolDefinition {
	names := r.Names()

	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]model.ToolDefinition, 0, len(names))
	for _, name := range names {
		t := r.tools[name]
		defs = append(defs, model.NewFunctionDefinition(t.Name(), t.Description(), t.Parameters()))
	}
	return defs
}

// Invoke validates call.Arguments against the tool schema and executes the
// tool. Validation failures never reach the tool.
func (r *Registry) Invoke(ctx context.Context, call core.ToolCall) core.ToolResult {
	t, ok := r.Get(call.Name)
	if !ok {
		r.logger.Warn("tool.call.unknown", "tool", call.Name, "call_id", call.ID)
		return core.NewToolFailure(call, &core.UnknownToolError{Tool: call.Name})
	}

	args := call.Arguments
	if args == nil {
		args = map[string]any{}
	}

	if err := util.ValidateParameters(args, t.Parameters()); err != nil {
		r.logger.Warn("tool.call.validation_failed", "tool", call.Name, "error", err.Error())
		return core.NewToolFailure(call, &core.InvalidArgumentsError{Tool: call.Name, Err: err})
	}

	if err := ctx.Err(); err != nil {
		return core.NewToolFailure(call, err)
	}

	start := time.Now()
	result, err := safeCall(ctx, t, args)
	dur := time.Since(start)

	r.logger.Info(
		"tool.call.executed",
		"tool", call.Name,
		"call_id", call.ID,
		"duration_ms", dur.Milliseconds(),
		"error", err != nil,
	)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = NewToolError(call.Name, fmt.Sprintf("timed out after %s", dur.Round(time.Millisecond)), "TIMEOUT")
		}
		return core.NewToolFailure(call, err)
	}
	return core.NewToolSuccess(call, result)
}

func safeCall(ctx context.Context, t Tool, args map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewToolError(t.Name(), fmt.Sprintf("panic: %v\n%s", r, debug.Stack()), "PANIC")
		}
	}()
	return t.Call(ctx, args)
}
