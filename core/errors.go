package core

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies failures into the taxonomy reported to callers in
// run-failed events, HTTP responses and metrics labels.
type ErrorKind string

const (
	KindInvalidArguments      ErrorKind = "invalid_arguments"
	KindUnknownTool           ErrorKind = "unknown_tool"
	KindDuplicateTool         ErrorKind = "duplicate_tool"
	KindToolExecution         ErrorKind = "tool_execution"
	KindMalformedDecision     ErrorKind = "malformed_decision"
	KindGatewayTimeout        ErrorKind = "gateway_timeout"
	KindStepBudgetExceeded    ErrorKind = "step_budget_exceeded"
	KindConcurrentRunConflict ErrorKind = "concurrent_run_conflict"
	KindStateStoreUnavailable ErrorKind = "state_store_unavailable"
	KindCancelled             ErrorKind = "cancelled"
	KindInternal              ErrorKind = "internal"
)

// InvalidArgumentsError reports tool arguments that do not satisfy the tool's
// declared schema. The tool is never executed.
type InvalidArgumentsError struct {
	Tool string
	Err  error
}

func (e *InvalidArgumentsError) Error() string {
	return fmt.Sprintf("invalid arguments for tool %q: %v", e.Tool, e.Err)
}

func (e *InvalidArgumentsError) Unwrap() error { return e.Err }

// UnknownToolError reports a call to a tool name missing from the registry.
type UnknownToolError struct {
	Tool string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q", e.Tool)
}

// DuplicateToolError is returned when a tool name is registered twice.
type DuplicateToolError struct {
	Tool string
}

func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("tool %q already registered", e.Tool)
}

// MalformedDecisionError reports a model response that cannot be mapped
// unambiguously onto exactly one Decision case.
type MalformedDecisionError struct {
	Reason string
	Raw    string // raw model output, truncated for logging
}

func (e *MalformedDecisionError) Error() string {
	return "malformed decision: " + e.Reason
}

// GatewayTimeoutError reports a decision request that did not finish within
// its deadline.
type GatewayTimeoutError struct {
	Timeout time.Duration
	Err     error
}

func (e *GatewayTimeoutError) Error() string {
	if e.Timeout > 0 {
		return fmt.Sprintf("model gateway timed out after %s", e.Timeout)
	}
	return "model gateway timed out"
}

func (e *GatewayTimeoutError) Unwrap() error { return e.Err }

// StepBudgetExceeded is the terminal failure for a run that used all of its
// node executions without producing a final answer.
type StepBudgetExceeded struct {
	MaxSteps      int
	PartialAnswer string
}

func (e *StepBudgetExceeded) Error() string {
	return fmt.Sprintf("step budget of %d node executions exceeded", e.MaxSteps)
}

// ConcurrentRunConflict is returned when a run is started for a conversation
// that already holds the run lock.
type ConcurrentRunConflict struct {
	ConversationID string
}

func (e *ConcurrentRunConflict) Error() string {
	return fmt.Sprintf("conversation %q already has a run in progress", e.ConversationID)
}

// StateStoreUnavailable wraps infrastructure failures of a ConversationStore.
type StateStoreUnavailable struct {
	Op  string
	Err error
}

func (e *StateStoreUnavailable) Error() string {
	return fmt.Sprintf("state store unavailable during %s: %v", e.Op, e.Err)
}

func (e *StateStoreUnavailable) Unwrap() error { return e.Err }

// KindOf classifies err. Unrecognized errors are KindInternal.
func KindOf(err error) ErrorKind {
	var (
		invalidArgs *InvalidArgumentsError
		unknownTool *UnknownToolError
		duplicate   *DuplicateToolError
		malformed   *MalformedDecisionError
		timeout     *GatewayTimeoutError
		budget      *StepBudgetExceeded
		conflict    *ConcurrentRunConflict
		unavailable *StateStoreUnavailable
	)

	switch {
	case err == nil:
		return ""
	case errors.As(err, &invalidArgs):
		return KindInvalidArguments
	case errors.As(err, &unknownTool):
		return KindUnknownTool
	case errors.As(err, &duplicate):
		return KindDuplicateTool
	case errors.As(err, &malformed):
		return KindMalformedDecision
	case errors.As(err, &timeout):
		return KindGatewayTimeout
	case errors.As(err, &budget):
		return KindStepBudgetExceeded
	case errors.As(err, &conflict):
		return KindConcurrentRunConflict
	case errors.As(err, &unavailable):
		return KindStateStoreUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	default:
		return KindInternal
	}
}

// IsRetryable reports whether a decision request failing with err may be
// repeated with the same inputs.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindMalformedDecision, KindGatewayTimeout:
		return true
	default:
		return false
	}
}
