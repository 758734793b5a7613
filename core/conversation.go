package core

import (
	"context"
	"encoding/json"
	"time"
)

// Role identifies the author of a Turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
	RoleTool  Role = "tool"
)

// Turn is one immutable entry in a conversation's ordered history.
type Turn struct {
	Role      Role            `json:"role"`
	Node      string          `json:"node,omitempty"` // producing node for agent and tool turns
	Content   string          `json:"content"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewTurn creates a turn stamped with the current UTC time.
func NewTurn(role Role, node, content string) Turn {
	return Turn{Role: role, Node: node, Content: content, Timestamp: time.Now().UTC()}
}

// ConversationState holds the ordered turn log and the working scratchpad of
// one conversation. The turn log is append-only: stores and nodes never
// rewrite or reorder existing turns. Scratchpad writes overwrite earlier
// values for the same key.
//
// A ConversationState returned by a store is a snapshot owned by the caller.
type ConversationState struct {
	ID         string            `json:"id"`
	Turns      []Turn            `json:"turns"`
	Scratchpad map[string]string `json:"scratchpad"`
	Created    time.Time         `json:"created"`
	Updated    time.Time         `json:"updated"`
}

// NewConversationState creates an empty conversation.
func NewConversationState(id string) *ConversationState {
	now := time.Now().UTC()
	return &ConversationState{ID: id, Turns: []Turn{}, Scratchpad: map[string]string{}, Created: now, Updated: now}
}

// Append adds a turn to the end of the log.
func (s *ConversationState) Append(t Turn) {
	s.Turns = append(s.Turns, t)
	s.Updated = t.Timestamp
}

// SetScratch writes a scratchpad value.
func (s *ConversationState) SetScratch(key, value string) {
	if s.Scratchpad == nil {
		s.Scratchpad = map[string]string{}
	}
	s.Scratchpad[key] = value
	s.Updated = time.Now().UTC()
}

// Clone returns a deep copy safe for independent mutation.
func (s *ConversationState) Clone() *ConversationState {
	c := &ConversationState{
		ID:         s.ID,
		Turns:      make([]Turn, len(s.Turns)),
		Scratchpad: make(map[string]string, len(s.Scratchpad)),
		Created:    s.Created,
		Updated:    s.Updated,
	}
	copy(c.Turns, s.Turns)
	for k, v := range s.Scratchpad {
		c.Scratchpad[k] = v
	}
	return c
}

// UnlockFunc releases a run lock. It is safe to call more than once.
type UnlockFunc func()

// ConversationStore persists conversation state keyed by conversation id.
//
// Contract:
//   - Load creates an empty conversation when the id is unknown
//   - AppendTurn is atomic: a turn is either fully appended or not at all
//   - AcquireRunLock never blocks; a held lock yields *ConcurrentRunConflict
//   - infrastructure failures are reported as *StateStoreUnavailable
type ConversationStore interface {
	Load(ctx context.Context, conversationID string) (*ConversationState, error)
	AppendTurn(ctx context.Context, conversationID string, turn Turn) error
	PutScratch(ctx context.Context, conversationID, key, value string) error
	AcquireRunLock(ctx context.Context, conversationID string) (UnlockFunc, error)
	Delete(ctx context.Context, conversationID string) error
}
