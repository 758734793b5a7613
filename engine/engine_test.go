package engine

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentgraph/agent"
	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/gateway"
	"github.com/hupe1980/agentgraph/internal/testutil"
	"github.com/hupe1980/agentgraph/session"
	"github.com/hupe1980/agentgraph/stream"
	"github.com/hupe1980/agentgraph/tool"
	"github.com/hupe1980/agentgraph/tool/builtin"
)

type fixture struct {
	store  core.ConversationStore
	reg    *tool.Registry
	engine *Engine
}

func newFixture(t *testing.T, gw gateway.Gateway, store core.ConversationStore, optFns ...func(o *Options)) *fixture {
	t.Helper()
	if store == nil {
		store = session.NewInMemoryStore()
	}
	reg := tool.NewRegistry()
	reg.MustRegister(builtin.NewCalculator())

	fns := append([]func(o *Options){func(o *Options) {
		o.Specialists = []agent.Node{agent.NewResearch(gw)}
	}}, optFns...)

	return &fixture{
		store:  store,
		reg:    reg,
		engine: New(store, reg, agent.NewSupervisor(gw), fns...),
	}
}

func kinds(events []core.Event) []core.EventKind {
	out := make([]core.EventKind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}

func waitFor(t *testing.T, h *stream.RunHandle, kind core.EventKind) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for ev := range h.Events(ctx) {
		if ev.Kind == kind {
			return
		}
	}
	t.Fatalf("event %s not observed", kind)
}

func marsScript() *testutil.ScriptedGateway {
	return testutil.NewScriptedGateway().
		On(agent.SupervisorName,
			core.Delegate{Target: agent.ResearchName, Instructions: "Compute 2+2 and find one recent fact about Mars missions."},
			core.FinalAnswer{Text: "2+2 is 4. Perseverance is collecting rock samples on Mars."},
		).
		On(agent.ResearchName,
			core.ToolCalls{Calls: []core.ToolCall{
				{ID: "c1", Name: "calculator", Arguments: map[string]any{"expression": "2+2"}},
				{ID: "c2", Name: "web_search", Arguments: map[string]any{"query": "Mars missions"}},
			}},
			core.FinalAnswer{Text: "Draft: 4; Perseverance is collecting rock samples."},
		)
}

func TestEngine_MarsScenario(t *testing.T) {
	f := newFixture(t, marsScript(), nil)
	f.reg.MustRegister(testutil.DelayedTool("web_search", 0, "Perseverance is collecting rock samples."))

	h, err := f.engine.StartRun(context.Background(), "mars", "What is 2+2, and find one recent fact about Mars missions?", false)
	require.NoError(t, err)

	res, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2+2 is 4. Perseverance is collecting rock samples on Mars.", res.FinalAnswer)
	assert.Equal(t, "mars", res.ConversationID)
	assert.Equal(t, []string{"calculator", "web_search"}, res.ToolsUsed)
	assert.Equal(t, 4, res.Steps)
	assert.LessOrEqual(t, res.Steps, 10)

	conv, err := f.store.Load(context.Background(), "mars")
	require.NoError(t, err)
	require.Len(t, conv.Turns, 6)
	assert.Equal(t, core.RoleUser, conv.Turns[0].Role)
	assert.Equal(t, agent.SupervisorName, conv.Turns[1].Node)
	assert.Equal(t, core.RoleTool, conv.Turns[2].Role)
	assert.Contains(t, conv.Turns[2].Content, `"result":4`)
	assert.Equal(t, "Perseverance is collecting rock samples.", conv.Turns[3].Content)
	assert.Equal(t, agent.ResearchName, conv.Turns[4].Node)
	assert.Equal(t, res.FinalAnswer, conv.Turns[5].Content)
	assert.Equal(t, "Draft: 4; Perseverance is collecting rock samples.", conv.Scratchpad[agent.ResearchScratchKey])

	assert.Equal(t, []core.EventKind{
		core.EventNodeEntered, core.EventDecisionMade, // supervisor delegates
		core.EventNodeEntered, core.EventDecisionMade, // research requests tools
		core.EventToolStarted, core.EventToolStarted,
		core.EventToolFinished, core.EventToolFinished,
		core.EventNodeEntered, core.EventDecisionMade, // research drafts
		core.EventNodeEntered, core.EventDecisionMade, // supervisor answers
		core.EventRunCompleted,
	}, kinds(h.History()))

	entered := h.History()[2].Payload.(core.NodeEnteredPayload)
	assert.Equal(t, string(StateSpecializing), entered.State)
	assert.Equal(t, "Compute 2+2 and find one recent fact about Mars missions.", entered.Instructions)

	assert.Equal(t, []string{
		string(StateDelegating),
		string(StateToolDispatch),
		string(StateSupervising),
		string(StateCompleted),
	}, nextStates(h.History()))
}

func nextStates(events []core.Event) []string {
	var out []string
	for _, ev := range events {
		if p, ok := ev.Payload.(core.DecisionPayload); ok {
			out = append(out, p.Next)
		}
	}
	return out
}

func TestEngine_ToolResultsAppendInRequestOrder(t *testing.T) {
	gw := testutil.NewScriptedGateway().
		On(agent.SupervisorName,
			core.ToolCalls{Calls: []core.ToolCall{
				{ID: "1", Name: "slow"},
				{ID: "2", Name: "fast"},
			}},
			core.FinalAnswer{Text: "done"},
		)
	f := newFixture(t, gw, nil)
	f.reg.MustRegister(
		testutil.DelayedTool("slow", 80*time.Millisecond, "slow result"),
		testutil.DelayedTool("fast", 0, "fast result"),
	)

	h, err := f.engine.StartRun(context.Background(), "order", "go", true)
	require.NoError(t, err)
	_, err = h.Wait(context.Background())
	require.NoError(t, err)

	var finished []string
	for _, ev := range h.History() {
		if p, ok := ev.Payload.(core.ToolFinishedPayload); ok {
			finished = append(finished, p.Result.CallID)
		}
	}
	assert.Equal(t, []string{"1", "2"}, finished)

	conv, err := f.store.Load(context.Background(), "order")
	require.NoError(t, err)
	require.Len(t, conv.Turns, 4)
	assert.Equal(t, "slow result", conv.Turns[1].Content)
	assert.Equal(t, "fast result", conv.Turns[2].Content)

	// The supervisor saw both results, in request order, on its next decision.
	reqs := gw.Requests()
	require.Len(t, reqs, 2)
	require.Len(t, reqs[1].Turns, 3)
	assert.Equal(t, "slow result", reqs[1].Turns[1].Content)
}

func TestEngine_StepBudgetStopsAtMaximum(t *testing.T) {
	gw := testutil.NewScriptedGateway()
	gw.Fallback = func(context.Context, gateway.Request) (core.Decision, error) {
		return core.Delegate{Target: agent.ResearchName, Instructions: "again"}, nil
	}

	var (
		mu      sync.Mutex
		entered int
	)
	f := newFixture(t, gw, nil, func(o *Options) {
		o.MaxSteps = 5
		o.Observers = []Observer{ObserverFunc(func(ev core.Event) {
			if ev.Kind == core.EventNodeEntered {
				mu.Lock()
				entered++
				mu.Unlock()
			}
		})}
	})

	h, err := f.engine.StartRun(context.Background(), "budget", "loop forever", true)
	require.NoError(t, err)
	_, err = h.Wait(context.Background())

	var exceeded *core.StepBudgetExceeded
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, 5, exceeded.MaxSteps)
	assert.Equal(t, CouldNotComplete, exceeded.PartialAnswer)
	assert.Len(t, gw.Requests(), 5)

	mu.Lock()
	assert.Equal(t, 5, entered)
	mu.Unlock()

	events := h.History()
	last := events[len(events)-1]
	require.Equal(t, core.EventRunFailed, last.Kind)
	payload := last.Payload.(core.RunFailedPayload)
	assert.Equal(t, core.KindStepBudgetExceeded, payload.Kind)
	assert.Equal(t, 5, payload.Steps)
	for _, ev := range events {
		assert.LessOrEqual(t, ev.Step, 5)
	}
}

func TestEngine_StepBudgetReportsSpecialistDraft(t *testing.T) {
	gw := testutil.NewScriptedGateway().
		On(agent.ResearchName, core.FinalAnswer{Text: "partial findings"})
	gw.Fallback = func(context.Context, gateway.Request) (core.Decision, error) {
		return core.Delegate{Target: agent.ResearchName}, nil
	}
	f := newFixture(t, gw, nil, func(o *Options) { o.MaxSteps = 3 })

	_, err := f.engine.Run(context.Background(), "draft", "research something")

	var runErr *core.RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, "partial findings", runErr.PartialAnswer)
	assert.Equal(t, core.KindStepBudgetExceeded, core.KindOf(err))
}

func TestEngine_StreamingMatchesBlocking(t *testing.T) {
	runOnce := func(streaming bool) (core.RunResult, []core.Event) {
		f := newFixture(t, marsScript(), nil)
		f.reg.MustRegister(testutil.DelayedTool("web_search", 0, "Mars fact"))
		h, err := f.engine.StartRun(context.Background(), "c", "What is 2+2, and find one recent fact about Mars missions?", streaming)
		require.NoError(t, err)

		var events []core.Event
		if streaming {
			for ev := range h.Events(context.Background()) {
				events = append(events, ev)
			}
		}
		res, err := h.Wait(context.Background())
		require.NoError(t, err)
		if !streaming {
			events = h.History()
		}
		return res, events
	}

	blocking, blockingEvents := runOnce(false)
	_, streamed := runOnce(true)

	require.Equal(t, kinds(blockingEvents), kinds(streamed))
	for i := range streamed {
		assert.Equal(t, i, streamed[i].Seq)
		assert.Equal(t, blockingEvents[i].Node, streamed[i].Node)
		assert.Equal(t, blockingEvents[i].Step, streamed[i].Step)
	}

	terminal := streamed[len(streamed)-1].Payload.(core.RunCompletedPayload)
	assert.Equal(t, blocking.FinalAnswer, terminal.FinalAnswer)
	assert.Equal(t, blocking.ToolsUsed, terminal.ToolsUsed)
}

func TestEngine_ConcurrentRunConflict(t *testing.T) {
	release := make(chan struct{})
	gw := testutil.NewScriptedGateway().
		On(agent.SupervisorName,
			core.ToolCalls{Calls: []core.ToolCall{{ID: "b", Name: "block"}}},
			core.FinalAnswer{Text: "first done"},
			core.FinalAnswer{Text: "third done"},
		)
	f := newFixture(t, gw, nil)
	f.reg.MustRegister(testutil.BlockingTool("block", release))

	first, err := f.engine.StartRun(context.Background(), "shared", "first", true)
	require.NoError(t, err)
	waitFor(t, first, core.EventToolStarted)

	_, err = f.engine.StartRun(context.Background(), "shared", "second", true)
	var conflict *core.ConcurrentRunConflict
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "shared", conflict.ConversationID)

	assert.Equal(t, core.KindConcurrentRunConflict, core.KindOf(f.engine.DeleteConversation(context.Background(), "shared")))

	close(release)
	res, err := first.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first done", res.FinalAnswer)

	_, err = f.engine.Run(context.Background(), "shared", "third")
	require.NoError(t, err)

	conv, err := f.store.Load(context.Background(), "shared")
	require.NoError(t, err)
	contents := make([]string, len(conv.Turns))
	for i, turn := range conv.Turns {
		contents[i] = turn.Content
	}
	assert.Equal(t, []string{"first", "released", "first done", "third", "third done"}, contents)
}

func TestEngine_MalformedDecisionRetriedOnce(t *testing.T) {
	t.Run("second attempt succeeds", func(t *testing.T) {
		script := testutil.NewScriptedGateway().
			OnError(agent.SupervisorName, &core.MalformedDecisionError{Reason: "two cases"}).
			On(agent.SupervisorName, core.FinalAnswer{Text: "ok"})
		f := newFixture(t, gateway.WithRetry(script), nil)

		res, err := f.engine.Run(context.Background(), "c", "hi")
		require.NoError(t, err)
		assert.Equal(t, "ok", res.FinalAnswer)
		assert.Len(t, script.Requests(), 2)
	})

	t.Run("second failure fails the run", func(t *testing.T) {
		script := testutil.NewScriptedGateway().
			OnError(agent.SupervisorName, &core.MalformedDecisionError{Reason: "first"}).
			OnError(agent.SupervisorName, &core.MalformedDecisionError{Reason: "second"}).
			On(agent.SupervisorName, core.FinalAnswer{Text: "never"})
		f := newFixture(t, gateway.WithRetry(script), nil)

		h, err := f.engine.StartRun(context.Background(), "c", "hi", false)
		require.NoError(t, err)
		_, err = h.Wait(context.Background())
		assert.Equal(t, core.KindMalformedDecision, core.KindOf(err))
		assert.Len(t, script.Requests(), 2)

		events := h.History()
		assert.Equal(t, core.EventRunFailed, events[len(events)-1].Kind)
	})
}

func TestEngine_TurnLogIsAppendOnly(t *testing.T) {
	store := session.NewInMemoryStore()
	require.NoError(t, testutil.NewConversationBuilder("c").
		User("earlier question").
		Agent(agent.SupervisorName, "earlier answer").
		Seed(context.Background(), store))

	before, err := store.Load(context.Background(), "c")
	require.NoError(t, err)

	f := newFixture(t, marsScript(), store)
	f.reg.MustRegister(testutil.DelayedTool("web_search", 0, "fact"))
	_, err = f.engine.Run(context.Background(), "c", "next question")
	require.NoError(t, err)

	after, err := store.Load(context.Background(), "c")
	require.NoError(t, err)
	require.Greater(t, len(after.Turns), len(before.Turns))
	assert.Equal(t, before.Turns, after.Turns[:len(before.Turns)])
}

func TestEngine_ToolFailuresAreTurns(t *testing.T) {
	gw := testutil.NewScriptedGateway().
		On(agent.SupervisorName,
			core.ToolCalls{Calls: []core.ToolCall{
				{ID: "1", Name: "does_not_exist"},
				{ID: "2", Name: "calculator", Arguments: map[string]any{}},
				{ID: "3", Name: "slow"},
			}},
			core.FinalAnswer{Text: "recovered"},
		)
	f := newFixture(t, gw, nil, func(o *Options) { o.ToolTimeout = 20 * time.Millisecond })
	f.reg.MustRegister(testutil.DelayedTool("slow", time.Second, "late"))

	res, err := f.engine.Run(context.Background(), "c", "hi")
	require.NoError(t, err)
	assert.Equal(t, "recovered", res.FinalAnswer)

	conv, err := f.store.Load(context.Background(), "c")
	require.NoError(t, err)
	require.Len(t, conv.Turns, 5)
	assert.Contains(t, conv.Turns[1].Content, "unknown tool")
	assert.Contains(t, conv.Turns[2].Content, "expression")
	assert.Contains(t, conv.Turns[3].Content, "timed out")
}

func TestEngine_UnknownDelegateTargetReturnsToSupervisor(t *testing.T) {
	gw := testutil.NewScriptedGateway().
		On(agent.SupervisorName,
			core.Delegate{Target: "astrology", Instructions: "read the stars"},
			core.FinalAnswer{Text: "answered myself"},
		)
	f := newFixture(t, gw, nil)

	h, err := f.engine.StartRun(context.Background(), "c", "hi", false)
	require.NoError(t, err)
	res, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "answered myself", res.FinalAnswer)
	assert.Equal(t, 2, res.Steps)
	assert.Equal(t, []string{string(StateSupervising), string(StateCompleted)}, nextStates(h.History()))

	conv, err := f.store.Load(context.Background(), "c")
	require.NoError(t, err)
	assert.Contains(t, conv.Turns[1].Content, `no specialist named "astrology"`)
}

func TestEngine_SpecialistDelegateReturnsToSupervisor(t *testing.T) {
	gw := testutil.NewScriptedGateway().
		On(agent.SupervisorName,
			core.Delegate{Target: agent.ResearchName, Instructions: "look it up"},
			core.FinalAnswer{Text: "final"},
		).
		On(agent.ResearchName, core.Delegate{Target: "someone_else", Instructions: "needs a lawyer"})
	f := newFixture(t, gw, nil)

	res, err := f.engine.Run(context.Background(), "c", "hi")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Steps)

	reqs := gw.Requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, agent.SupervisorName, reqs[2].Node)
}

func TestEngine_StateStoreUnavailableIsFatal(t *testing.T) {
	store := testutil.NewFaultyStore(session.NewInMemoryStore(), 1)
	gw := testutil.NewScriptedGateway().
		On(agent.SupervisorName, core.FinalAnswer{Text: "answer"})
	f := newFixture(t, gw, store)

	h, err := f.engine.StartRun(context.Background(), "c", "hi", false)
	require.NoError(t, err)
	_, err = h.Wait(context.Background())

	var unavailable *core.StateStoreUnavailable
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, 2, store.AppendAttempts())

	events := h.History()
	payload := events[len(events)-1].Payload.(core.RunFailedPayload)
	assert.Equal(t, core.KindStateStoreUnavailable, payload.Kind)
}

func TestEngine_StopRun(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	gw := testutil.NewScriptedGateway().
		On(agent.SupervisorName, core.ToolCalls{Calls: []core.ToolCall{{ID: "b", Name: "block"}}})
	f := newFixture(t, gw, nil)
	f.reg.MustRegister(testutil.BlockingTool("block", release))

	h, err := f.engine.StartRun(context.Background(), "c", "hi", true)
	require.NoError(t, err)
	waitFor(t, h, core.EventToolStarted)
	assert.Equal(t, 1, f.engine.ActiveRuns())

	require.NoError(t, f.engine.StopRun(h.RunID()))
	assert.ErrorIs(t, f.engine.StopRun("missing"), ErrRunNotFound)

	_, err = h.Wait(context.Background())
	assert.Equal(t, core.KindCancelled, core.KindOf(err))
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 0, f.engine.ActiveRuns())

	// The lock was released and no tool turn was written after cancellation.
	conv, err := f.store.Load(context.Background(), "c")
	require.NoError(t, err)
	assert.Len(t, conv.Turns, 1)
}

func TestEngine_RunTimeout(t *testing.T) {
	gw := gateway.Func(func(ctx context.Context, _ gateway.Request) (core.Decision, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	f := newFixture(t, gw, nil, func(o *Options) { o.RunTimeout = 20 * time.Millisecond })

	_, err := f.engine.Run(context.Background(), "c", "hi")
	assert.Equal(t, core.KindCancelled, core.KindOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEngine_StartRunValidation(t *testing.T) {
	gw := testutil.NewScriptedGateway()
	f := newFixture(t, gw, nil)

	_, err := f.engine.StartRun(context.Background(), "c", "", false)
	assert.ErrorIs(t, err, ErrEmptyMessage)

	gw.On(agent.SupervisorName, core.FinalAnswer{Text: "hello"})
	res, err := f.engine.Run(context.Background(), "", "hi")
	require.NoError(t, err)
	assert.NotEmpty(t, res.ConversationID)
	assert.NotEmpty(t, res.RunID)
}

func TestEngine_MaxConcurrentRuns(t *testing.T) {
	release := make(chan struct{})
	gw := testutil.NewScriptedGateway().
		On(agent.SupervisorName,
			core.ToolCalls{Calls: []core.ToolCall{{ID: "b", Name: "block"}}},
			core.FinalAnswer{Text: "done"},
		)
	f := newFixture(t, gw, nil, func(o *Options) { o.MaxConcurrentRuns = 1 })
	f.reg.MustRegister(testutil.BlockingTool("block", release))

	h, err := f.engine.StartRun(context.Background(), "a", "hi", true)
	require.NoError(t, err)
	waitFor(t, h, core.EventToolStarted)

	_, err = f.engine.StartRun(context.Background(), "b", "hi", false)
	assert.ErrorIs(t, err, ErrTooManyRuns)

	close(release)
	_, err = h.Wait(context.Background())
	require.NoError(t, err)

	gw.On(agent.SupervisorName, core.FinalAnswer{Text: "b done"})
	res, err := f.engine.Run(context.Background(), "b", "hi")
	require.NoError(t, err)
	assert.Equal(t, "b done", res.FinalAnswer)
}

func TestEngine_SequentialRunsReuseConversation(t *testing.T) {
	defer runtime.GOMAXPROCS(runtime.GOMAXPROCS(4))

	gw := testutil.NewScriptedGateway()
	gw.Fallback = func(context.Context, gateway.Request) (core.Decision, error) {
		return core.FinalAnswer{Text: "ok"}, nil
	}
	f := newFixture(t, gw, nil, func(o *Options) { o.MaxConcurrentRuns = 1 })

	for i := range 300 {
		_, err := f.engine.Run(context.Background(), "c1", "hi")
		require.NoError(t, err, "run %d", i)
		require.Equal(t, 0, f.engine.ActiveRuns(), "run %d", i)
	}

	conv, err := f.store.Load(context.Background(), "c1")
	require.NoError(t, err)
	assert.Len(t, conv.Turns, 600)
}

func TestEngine_StreamedRunFreesConversationBeforeTerminalEvent(t *testing.T) {
	defer runtime.GOMAXPROCS(runtime.GOMAXPROCS(4))

	gw := testutil.NewScriptedGateway()
	gw.Fallback = func(context.Context, gateway.Request) (core.Decision, error) {
		return core.FinalAnswer{Text: "ok"}, nil
	}
	f := newFixture(t, gw, nil)

	for i := range 100 {
		h, err := f.engine.StartRun(context.Background(), "c1", "hi", true)
		require.NoError(t, err, "run %d", i)
		waitFor(t, h, core.EventRunCompleted)
	}
}

func TestEngine_DeleteConversation(t *testing.T) {
	gw := testutil.NewScriptedGateway().On(agent.SupervisorName, core.FinalAnswer{Text: "x"})
	f := newFixture(t, gw, nil)

	_, err := f.engine.Run(context.Background(), "c", "hi")
	require.NoError(t, err)

	require.NoError(t, f.engine.DeleteConversation(context.Background(), "c"))

	conv, err := f.engine.Conversation(context.Background(), "c")
	require.NoError(t, err)
	assert.Empty(t, conv.Turns)
}

func TestEngine_NodeErrorFailsRun(t *testing.T) {
	gw := testutil.NewScriptedGateway().OnError(agent.SupervisorName, errors.New("provider exploded"))
	f := newFixture(t, gw, nil)

	_, err := f.engine.Run(context.Background(), "c", "hi")
	assert.Equal(t, core.KindInternal, core.KindOf(err))
	assert.Contains(t, err.Error(), "provider exploded")
}
