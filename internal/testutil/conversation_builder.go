package testutil

import (
	"context"

	"github.com/hupe1980/agentgraph/core"
)

// ConversationBuilder helps construct conversations with fluent chaining.
// Example:
//
//	conv := NewConversationBuilder("c1").User("hi").Agent("supervisor", "hello").Build()
type ConversationBuilder struct {
	id      string
	turns   []core.Turn
	scratch map[string]string
}

// NewConversationBuilder creates a builder for conversation id.
func NewConversationBuilder(id string) *ConversationBuilder {
	return &ConversationBuilder{id: id, scratch: map[string]string{}}
}

// User appends a user turn (chainable).
func (b *ConversationBuilder) User(text string) *ConversationBuilder {
	b.turns = append(b.turns, core.NewTurn(core.RoleUser, "", text))
	return b
}

// Agent appends an agent turn produced by node (chainable).
func (b *ConversationBuilder) Agent(node, text string) *ConversationBuilder {
	b.turns = append(b.turns, core.NewTurn(core.RoleAgent, node, text))
	return b
}

// Tool appends a successful tool result turn produced for node (chainable).
func (b *ConversationBuilder) Tool(node, name string, output any) *ConversationBuilder {
	res := core.NewToolSuccess(core.ToolCall{ID: core.NewID(), Name: name}, output)
	b.turns = append(b.turns, res.Turn(node))
	return b
}

// Scratch sets a scratchpad value (chainable).
func (b *ConversationBuilder) Scratch(key, value string) *ConversationBuilder {
	b.scratch[key] = value
	return b
}

// Build returns the conversation state.
func (b *ConversationBuilder) Build() *core.ConversationState {
	conv := core.NewConversationState(b.id)
	for _, t := range b.turns {
		conv.Append(t)
	}
	for k, v := range b.scratch {
		conv.SetScratch(k, v)
	}
	return conv
}

// Seed writes the built conversation into store.
func (b *ConversationBuilder) Seed(ctx context.Context, store core.ConversationStore) error {
	for _, t := range b.turns {
		if err := store.AppendTurn(ctx, b.id, t); err != nil {
			return err
		}
	}
	for k, v := range b.scratch {
		if err := store.PutScratch(ctx, b.id, k, v); err != nil {
			return err
		}
	}
	return nil
}
