// Package engine implements the workflow state machine that drives a run.
//
// A run is a single pass over one conversation, from the user's message to a
// terminal decision. The engine moves through a fixed set of states:
//
//	Init -> Supervising -> (Delegating -> Specializing) -> ToolDispatch
//	     -> {Supervising | Specializing} -> Completed | Failed
//
// # Control Flow
//
//   - Init appends the user's message and hands control to the supervisor.
//   - A supervisor FinalAnswer completes the run.
//   - A supervisor Delegate appends the instructions and enters the named
//     specialist. Unknown targets are reported back to the supervisor as a
//     turn instead of failing the run.
//   - Any specialist decision other than ToolCalls returns control to the
//     supervisor. A specialist FinalAnswer is appended and also written to
//     the specialist's scratchpad key.
//   - ToolCalls dispatches every requested tool, appends the results in
//     request order and returns control to the node that asked.
//
// Delegating is entered only through a supervisor Delegate naming a known
// specialist. It is reported as the next_state of that decision-made event;
// the following node-entered event is already Specializing.
//
// Every node execution consumes one step of the run's budget. Running out of
// steps fails the run with *core.StepBudgetExceeded, carrying the latest
// specialist draft as a partial answer.
//
// # Events
//
// Each state transition and tool boundary emits exactly one core.Event
// before the engine proceeds. A decision-made payload names the state the
// decision leads to. For ToolCalls, tool-started events are emitted for every
// call in request order, then tool-finished events follow once all calls
// have returned, again in request order and not in completion order.
//
// Events go to the run's stream.Buffer, so the streaming and blocking access
// modes observe the same sequence. Observers (logging, metrics) are notified
// synchronously in emission order.
//
// # Concurrency
//
// A run is single-threaded: decisions and appends happen strictly in order.
// Tools requested by one decision run concurrently, bounded by
// Options.ToolConcurrency. Runs of different conversations are independent;
// a second run of the same conversation fails fast with
// *core.ConcurrentRunConflict while the store's run lock is held. The lock
// and the run slot are released before the terminal event is emitted, so a
// caller that has seen the run finish can start the next one immediately.
//
// Store writes use a context detached from run cancellation, so a cancelled
// run never leaves a half-written turn. Once the store reports
// *core.StateStoreUnavailable no further append is attempted.
package engine
