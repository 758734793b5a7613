// Package core provides the foundational domain types and interfaces shared by
// the agentgraph packages. It defines the core abstractions for:
//
//   - Conversations (ConversationState, an append-only turn log plus a scratchpad)
//   - Decisions (the closed FinalAnswer | Delegate | ToolCalls variant)
//   - Tool calls and their results
//   - Events (immutable progress records emitted by the engine)
//   - The error taxonomy shared by the engine, gateway, stores and transports
//   - ConversationStore, the persistence contract keyed by conversation id
//
// Implementation concerns (persistence backends, model clients, orchestration)
// live in sibling packages that depend on these small interfaces.
package core
