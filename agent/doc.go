// Package agent contains the graph's node implementations.
//
// The graph is a fixed, small set of named nodes:
//
//  1. Supervisor: owns the run. Its FinalAnswer terminates the run; it may
//     delegate to a specialist or call tools itself.
//  2. Specialist: a narrowly scoped worker (for example the research agent).
//     Its FinalAnswer is a draft reported back to the supervisor and recorded
//     in the conversation scratchpad.
//
// Nodes never touch the conversation store. They turn a conversation
// snapshot into a gateway request and return the resulting core.Decision;
// the engine applies it.
package agent
