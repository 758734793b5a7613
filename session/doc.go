// Package session houses implementations of core.ConversationStore.
// The interface itself (and the ConversationState struct) live in the core
// package so higher level packages (nodes, engine) never depend on concrete
// storage.
//
// InMemoryStore keeps conversations in a process local map. The redis
// sub-package persists them in Redis so several server replicas can share
// conversations and run locks. Only the wiring layer decides which
// implementation to instantiate.
package session
