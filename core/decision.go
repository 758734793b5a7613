package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// DecisionKind names the active case of a Decision.
type DecisionKind string

const (
	DecisionFinalAnswer DecisionKind = "final_answer"
	DecisionDelegate    DecisionKind = "delegate"
	DecisionToolCalls   DecisionKind = "tool_calls"
)

// Decision is the structured output of a node's reasoning step. Concrete
// decision types implement the unexported isDecision marker enabling a closed
// set: FinalAnswer, Delegate and ToolCalls.
type Decision interface {
	Kind() DecisionKind
	isDecision()
}

// FinalAnswer terminates a supervisor run or hands a specialist draft back to
// the supervisor.
type FinalAnswer struct {
	Text string `json:"text"`
}

// Kind implements Decision.
func (FinalAnswer) Kind() DecisionKind { return DecisionFinalAnswer }
func (FinalAnswer) isDecision()        {}

// Delegate transfers control to the named specialist node.
type Delegate struct {
	Target       string `json:"target"`
	Instructions string `json:"instructions"`
}

// Kind implements Decision.
func (Delegate) Kind() DecisionKind { return DecisionDelegate }
func (Delegate) isDecision()        {}

// ToolCalls requests one or more tool invocations. Calls keeps the order in
// which the model requested them.
type ToolCalls struct {
	Calls []ToolCall `json:"calls"`
}

// Kind implements Decision.
func (ToolCalls) Kind() DecisionKind { return DecisionToolCalls }
func (ToolCalls) isDecision()        {}

// DecisionWire is the JSON envelope a model may answer with. Exactly one field
// must be populated; ToolCalls counts as populated when present, even if empty.
type DecisionWire struct {
	FinalAnswer *string    `json:"final_answer,omitempty"`
	Delegate    *Delegate  `json:"delegate,omitempty"`
	ToolCalls   []ToolCall `json:"tool_calls,omitempty"`
}

// Decision validates the envelope and returns the populated case.
func (w DecisionWire) Decision() (Decision, error) {
	populated := 0
	if w.FinalAnswer != nil {
		populated++
	}
	if w.Delegate != nil {
		populated++
	}
	if w.ToolCalls != nil {
		populated++
	}

	switch {
	case populated == 0:
		return nil, &MalformedDecisionError{Reason: "no decision case populated"}
	case populated > 1:
		return nil, &MalformedDecisionError{Reason: fmt.Sprintf("%d decision cases populated", populated)}
	}

	switch {
	case w.FinalAnswer != nil:
		if strings.TrimSpace(*w.FinalAnswer) == "" {
			return nil, &MalformedDecisionError{Reason: "final answer is empty"}
		}
		return FinalAnswer{Text: *w.FinalAnswer}, nil
	case w.Delegate != nil:
		if strings.TrimSpace(w.Delegate.Target) == "" {
			return nil, &MalformedDecisionError{Reason: "delegate target is empty"}
		}
		return *w.Delegate, nil
	default:
		if len(w.ToolCalls) == 0 {
			return nil, &MalformedDecisionError{Reason: "tool call list is empty"}
		}
		calls := make([]ToolCall, len(w.ToolCalls))
		for i, c := range w.ToolCalls {
			if strings.TrimSpace(c.Name) == "" {
				return nil, &MalformedDecisionError{Reason: fmt.Sprintf("tool call %d has no name", i)}
			}
			if c.ID == "" {
				c.ID = NewID()
			}
			calls[i] = c
		}
		return ToolCalls{Calls: calls}, nil
	}
}

// ParseDecision decodes a JSON DecisionWire envelope and validates it.
func ParseDecision(data []byte) (Decision, error) {
	var w DecisionWire
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&w); err != nil {
		return nil, &MalformedDecisionError{Reason: "invalid decision envelope: " + err.Error(), Raw: truncate(string(data), 256)}
	}
	return w.Decision()
}

// WireOf converts a Decision back to its wire envelope.
func WireOf(d Decision) DecisionWire {
	switch v := d.(type) {
	case FinalAnswer:
		text := v.Text
		return DecisionWire{FinalAnswer: &text}
	case Delegate:
		return DecisionWire{Delegate: &v}
	case ToolCalls:
		return DecisionWire{ToolCalls: v.Calls}
	default:
		return DecisionWire{}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
