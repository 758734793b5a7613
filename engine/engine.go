package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/agentgraph/agent"
	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/logging"
	"github.com/hupe1980/agentgraph/stream"
)

var (
	// ErrEmptyMessage is returned when a run is started without user input.
	ErrEmptyMessage = errors.New("user message is empty")
	// ErrTooManyRuns is returned when MaxConcurrentRuns runs are already active.
	ErrTooManyRuns = errors.New("too many concurrent runs")
	// ErrRunNotFound is returned by StopRun for unknown run ids.
	ErrRunNotFound = errors.New("run not found")
)

// ToolInvoker executes a tool call. Tool-level failures are encoded in the
// returned core.ToolResult; Invoke never fails the run.
type ToolInvoker interface {
	Invoke(ctx context.Context, call core.ToolCall) core.ToolResult
}

// Options configures an Engine.
type Options struct {
	// Specialists are the delegation targets available to the supervisor.
	Specialists []agent.Node
	// MaxSteps bounds node executions per run. Zero or less is unlimited.
	MaxSteps int
	// ToolConcurrency bounds concurrently running tools within one decision.
	ToolConcurrency int
	// ToolTimeout bounds a single tool invocation. Zero disables it.
	ToolTimeout time.Duration
	// RunTimeout bounds a whole run. Zero disables it.
	RunTimeout time.Duration
	// MaxConcurrentRuns bounds active runs across all conversations. Zero is
	// unlimited.
	MaxConcurrentRuns int
	// Observers are notified of every emitted event.
	Observers []Observer
	// Tracer records run, node and tool spans. Defaults to a no-op tracer.
	Tracer trace.Tracer
	Logger logging.Logger
}

// Engine runs the supervisor/specialist state machine over conversations held
// in a core.ConversationStore. Public methods are safe for concurrent use.
type Engine struct {
	store       core.ConversationStore
	tools       ToolInvoker
	supervisor  agent.Node
	specialists map[string]agent.Node
	opts        Options
	logger      logging.Logger
	tracer      trace.Tracer
	slots       *semaphore.Weighted

	mu         sync.RWMutex
	activeRuns map[string]*stream.RunHandle
}

// New creates an engine. tools may be nil when no node requests tools.
func New(store core.ConversationStore, tools ToolInvoker, supervisor agent.Node, optFns ...func(o *Options)) *Engine {
	opts := Options{
		MaxSteps:        10,
		ToolConcurrency: 4,
		ToolTimeout:     30 * time.Second,
		RunTimeout:      5 * time.Minute,
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.ToolConcurrency < 1 {
		opts.ToolConcurrency = 1
	}
	if opts.Tracer == nil {
		opts.Tracer = noop.NewTracerProvider().Tracer(TracerName)
	}

	specialists := make(map[string]agent.Node, len(opts.Specialists))
	for _, s := range opts.Specialists {
		specialists[s.Name()] = s
	}

	e := &Engine{
		store:       store,
		tools:       tools,
		supervisor:  supervisor,
		specialists: specialists,
		opts:        opts,
		logger:      opts.Logger,
		tracer:      opts.Tracer,
		activeRuns:  make(map[string]*stream.RunHandle),
	}
	if opts.MaxConcurrentRuns > 0 {
		e.slots = semaphore.NewWeighted(int64(opts.MaxConcurrentRuns))
	}
	return e
}

// Specialist returns the specialist registered under name.
func (e *Engine) Specialist(name string) (agent.Node, bool) {
	s, ok := e.specialists[name]
	return s, ok
}

// StartRun starts a run for conversationID with the user's message and
// returns immediately. An empty conversationID starts a new conversation.
//
// The run lock is taken before StartRun returns, so a conflicting run fails
// here with *core.ConcurrentRunConflict. Cancelling ctx cancels the run.
//
// With streaming false callers typically only Wait on the handle; the full
// event sequence is produced either way.
func (e *Engine) StartRun(ctx context.Context, conversationID, message string, streaming bool) (*stream.RunHandle, error) {
	if message == "" {
		return nil, ErrEmptyMessage
	}
	if conversationID == "" {
		conversationID = core.NewID()
	}

	if e.slots != nil && !e.slots.TryAcquire(1) {
		return nil, ErrTooManyRuns
	}
	release := func() {
		if e.slots != nil {
			e.slots.Release(1)
		}
	}

	unlock, err := e.store.AcquireRunLock(ctx, conversationID)
	if err != nil {
		release()
		e.logger.Warn("engine.run.rejected", "conversation_id", conversationID, "error", err)
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	if e.opts.RunTimeout > 0 {
		var timeoutCancel context.CancelFunc
		runCtx, timeoutCancel = context.WithTimeout(runCtx, e.opts.RunTimeout)
		parentCancel := cancel
		cancel = func() {
			timeoutCancel()
			parentCancel()
		}
	}

	runID := core.NewID()
	handle := stream.NewRunHandle(runID, conversationID, streaming, stream.NewBuffer(), cancel)

	e.mu.Lock()
	e.activeRuns[runID] = handle
	e.mu.Unlock()

	// finish frees the conversation and the run slot. The run calls it before
	// emitting its terminal event.
	finish := sync.OnceFunc(func() {
		unlock()
		release()
		e.mu.Lock()
		delete(e.activeRuns, runID)
		e.mu.Unlock()
	})

	r := &run{
		engine:         e,
		id:             runID,
		conversationID: conversationID,
		handle:         handle,
		budget:         core.NewStepBudget(e.opts.MaxSteps),
		release:        finish,
	}

	go func() {
		defer finish()
		r.execute(runCtx, message)
	}()

	return handle, nil
}

// Run starts a run and waits for its terminal result.
func (e *Engine) Run(ctx context.Context, conversationID, message string) (core.RunResult, error) {
	h, err := e.StartRun(ctx, conversationID, message, false)
	if err != nil {
		return core.RunResult{}, err
	}
	return h.Wait(ctx)
}

// StopRun cancels an active run. The run terminates with a run-failed event
// of kind cancelled.
func (e *Engine) StopRun(runID string) error {
	e.mu.RLock()
	h, ok := e.activeRuns[runID]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	h.Cancel()
	return nil
}

// ActiveRuns returns the number of runs in progress.
func (e *Engine) ActiveRuns() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.activeRuns)
}

// Conversation returns a snapshot of a conversation.
func (e *Engine) Conversation(ctx context.Context, conversationID string) (*core.ConversationState, error) {
	return e.store.Load(ctx, conversationID)
}

// DeleteConversation removes a conversation. It fails with
// *core.ConcurrentRunConflict while a run holds the conversation.
func (e *Engine) DeleteConversation(ctx context.Context, conversationID string) error {
	unlock, err := e.store.AcquireRunLock(ctx, conversationID)
	if err != nil {
		return err
	}
	defer unlock()
	return e.store.Delete(ctx, conversationID)
}
