// Package stream buffers and orders the events of a run.
//
// Every event of a run is appended to exactly one Buffer, which assigns the
// run-scoped sequence number. Consumers either subscribe to the buffer and
// receive a replay of everything produced so far followed by live events, or
// wait on the RunHandle for the terminal result. Both views read the same
// buffer, so a run produces the same event sequence however it is consumed.
package stream
