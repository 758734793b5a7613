package core

import (
	"time"

	"github.com/google/uuid"
)

// EventKind enumerates the progress records emitted by the engine.
type EventKind string

const (
	EventNodeEntered  EventKind = "node-entered"
	EventToolStarted  EventKind = "tool-started"
	EventToolFinished EventKind = "tool-finished"
	EventDecisionMade EventKind = "decision-made"
	EventRunCompleted EventKind = "run-completed"
	EventRunFailed    EventKind = "run-failed"
)

// Terminal reports whether no further events follow an event of this kind.
func (k EventKind) Terminal() bool {
	return k == EventRunCompleted || k == EventRunFailed
}

// Event is an immutable record of one engine operation. Events of a run are
// produced in the exact order operations occur:
//   - Seq is the run-scoped event index, monotonic and never reused
//   - Step is the number of node executions started so far in the run
//   - Payload holds one of the *Payload types below, matching Kind
type Event struct {
	ID             string    `json:"id"`
	RunID          string    `json:"run_id"`
	ConversationID string    `json:"conversation_id"`
	Kind           EventKind `json:"kind"`
	Node           string    `json:"node,omitempty"`
	Seq            int       `json:"seq"`
	Step           int       `json:"step"`
	Payload        any       `json:"payload,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewEvent creates an event with a fresh id and a UTC timestamp. Seq is
// assigned by the stream buffer on emission.
func NewEvent(runID, conversationID string, kind EventKind, node string, step int, payload any) Event {
	return Event{
		ID:             NewID(),
		RunID:          runID,
		ConversationID: conversationID,
		Kind:           kind,
		Node:           node,
		Step:           step,
		Payload:        payload,
		Timestamp:      time.Now().UTC(),
	}
}

// NodeEnteredPayload accompanies node-entered.
type NodeEnteredPayload struct {
	State        string `json:"state"` // engine state, e.g. Supervising
	Instructions string `json:"instructions,omitempty"`
}

// ToolStartedPayload accompanies tool-started.
type ToolStartedPayload struct {
	Call ToolCall `json:"call"`
}

// ToolFinishedPayload accompanies tool-finished.
type ToolFinishedPayload struct {
	Result     ToolResult `json:"result"`
	DurationMS int64      `json:"duration_ms"`
}

// DecisionPayload accompanies decision-made. Next is the workflow state the
// decision moves the run into (for example Delegating for a delegation).
type DecisionPayload struct {
	Kind     DecisionKind `json:"decision"`
	Decision DecisionWire `json:"detail"`
	Next     string       `json:"next_state,omitempty"`
}

// RunCompletedPayload accompanies run-completed.
type RunCompletedPayload struct {
	FinalAnswer string   `json:"final_answer"`
	ToolsUsed   []string `json:"tools_used"`
	Steps       int      `json:"steps"`
}

// RunFailedPayload accompanies run-failed.
type RunFailedPayload struct {
	Kind          ErrorKind `json:"error_kind"`
	Message       string    `json:"message"`
	PartialAnswer string    `json:"partial_answer,omitempty"`
	Steps         int       `json:"steps"`
}

// NewID generates a new unique identifier for runs, events and tool calls.
func NewID() string { return uuid.NewString() }
