package session

import (
	"context"
	"sync"

	"github.com/hupe1980/agentgraph/core"
)

// InMemoryStore is a volatile ConversationStore storing conversations in a
// process local map. It is safe for concurrent access and best suited for
// tests or single-instance servers. Each returned conversation is cloned to
// prevent external mutation of internal state.
type InMemoryStore struct {
	mu            sync.Mutex
	conversations map[string]*core.ConversationState
	locks         map[string]string // conversation id -> lock token
}

var _ core.ConversationStore = (*InMemoryStore)(nil)

// NewInMemoryStore constructs an empty in-memory conversation store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		conversations: make(map[string]*core.ConversationState),
		locks:         make(map[string]string),
	}
}

// Load returns a snapshot of an existing conversation or creates a new one lazily.
func (s *InMemoryStore) Load(_ context.Context, conversationID string) (*core.ConversationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateLocked(conversationID).Clone(), nil
}

// AppendTurn adds a turn to the end of the conversation log.
func (s *InMemoryStore) AppendTurn(_ context.Context, conversationID string, turn core.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getOrCreateLocked(conversationID).Append(turn)
	return nil
}

// PutScratch writes a scratchpad value, overwriting earlier values for key.
func (s *InMemoryStore) PutScratch(_ context.Context, conversationID, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getOrCreateLocked(conversationID).SetScratch(key, value)
	return nil
}

// AcquireRunLock grants exclusive run ownership of a conversation. It never
// waits: a held lock yields *core.ConcurrentRunConflict.
func (s *InMemoryStore) AcquireRunLock(_ context.Context, conversationID string) (core.UnlockFunc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, held := s.locks[conversationID]; held {
		return nil, &core.ConcurrentRunConflict{ConversationID: conversationID}
	}

	token := core.NewID()
	s.locks[conversationID] = token

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.locks[conversationID] == token {
				delete(s.locks, conversationID)
			}
		})
	}, nil
}

// Delete removes a conversation. Deleting an unknown id is not an error.
func (s *InMemoryStore) Delete(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, conversationID)
	return nil
}

// Len returns the number of stored conversations.
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations)
}

// getOrCreateLocked returns the stored conversation, allocating it when
// missing; caller must already hold the lock.
func (s *InMemoryStore) getOrCreateLocked(conversationID string) *core.ConversationState {
	conv, ok := s.conversations[conversationID]
	if !ok {
		conv = core.NewConversationState(conversationID)
		s.conversations[conversationID] = conv
	}
	return conv
}
