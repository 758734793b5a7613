package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/hupe1980/agentgraph/core"
)

// ErrStoreDown is the cause wrapped by FaultyStore failures.
var ErrStoreDown = errors.New("store is down")

// FaultyStore wraps a ConversationStore and starts failing with
// *core.StateStoreUnavailable after a number of successful appends.
type FaultyStore struct {
	core.ConversationStore

	mu          sync.Mutex
	appendsLeft int
	down        bool
	attempts    int
}

// NewFaultyStore lets okAppends appends succeed before the store goes down.
// A negative okAppends never fails.
func NewFaultyStore(inner core.ConversationStore, okAppends int) *FaultyStore {
	return &FaultyStore{ConversationStore: inner, appendsLeft: okAppends}
}

// AppendTurn implements core.ConversationStore.
func (s *FaultyStore) AppendTurn(ctx context.Context, conversationID string, turn core.Turn) error {
	s.mu.Lock()
	s.attempts++
	if s.down || s.appendsLeft == 0 {
		s.down = true
		s.mu.Unlock()
		return &core.StateStoreUnavailable{Op: "append_turn", Err: ErrStoreDown}
	}
	if s.appendsLeft > 0 {
		s.appendsLeft--
	}
	s.mu.Unlock()
	return s.ConversationStore.AppendTurn(ctx, conversationID, turn)
}

// Load implements core.ConversationStore.
func (s *FaultyStore) Load(ctx context.Context, conversationID string) (*core.ConversationState, error) {
	s.mu.Lock()
	down := s.down
	s.mu.Unlock()
	if down {
		return nil, &core.StateStoreUnavailable{Op: "load", Err: ErrStoreDown}
	}
	return s.ConversationStore.Load(ctx, conversationID)
}

// AppendAttempts returns the number of AppendTurn calls, failed ones included.
func (s *FaultyStore) AppendAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}
