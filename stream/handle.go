package stream

import (
	"context"
	"sync"

	"github.com/hupe1980/agentgraph/core"
)

// RunHandle is the caller's view of a started run.
type RunHandle struct {
	runID          string
	conversationID string
	streaming      bool
	buf            *Buffer

	done   chan struct{}
	once   sync.Once
	result core.RunResult
	err    error
	cancel context.CancelFunc
}

// NewRunHandle creates a handle for a run writing to buf. cancel stops the
// run and may be nil.
func NewRunHandle(runID, conversationID string, streaming bool, buf *Buffer, cancel context.CancelFunc) *RunHandle {
	return &RunHandle{
		runID:          runID,
		conversationID: conversationID,
		streaming:      streaming,
		buf:            buf,
		done:           make(chan struct{}),
		cancel:         cancel,
	}
}

// RunID returns the run identifier.
func (h *RunHandle) RunID() string { return h.runID }

// ConversationID returns the conversation the run belongs to.
func (h *RunHandle) ConversationID() string { return h.conversationID }

// Streaming reports whether the caller asked for incremental consumption.
func (h *RunHandle) Streaming() bool { return h.streaming }

// Buffer returns the run's event buffer.
func (h *RunHandle) Buffer() *Buffer { return h.buf }

// Events replays the run's events as produced. The channel closes after the
// terminal run-completed or run-failed event.
func (h *RunHandle) Events(ctx context.Context) <-chan core.Event {
	return h.buf.Subscribe(ctx)
}

// History returns the events produced so far.
func (h *RunHandle) History() []core.Event { return h.buf.Events() }

// Done is closed once the run has finished.
func (h *RunHandle) Done() <-chan struct{} { return h.done }

// Wait blocks until the run finishes and returns its terminal result. A
// failed run returns a *core.RunError wrapping the taxonomy error.
func (h *RunHandle) Wait(ctx context.Context) (core.RunResult, error) {
	select {
	case <-ctx.Done():
		return core.RunResult{}, ctx.Err()
	case <-h.done:
		return h.result, h.err
	}
}

// Cancel stops the run. The run still terminates with a run-failed event.
func (h *RunHandle) Cancel() {
	if h.cancel != nil {
		h.cancel()
	}
}

// Finish records the terminal outcome, closes the buffer and releases
// waiters. Only the first call has an effect.
func (h *RunHandle) Finish(result core.RunResult, err error) {
	h.once.Do(func() {
		h.result = result
		h.err = err
		h.buf.Close()
		close(h.done)
		if h.cancel != nil {
			h.cancel()
		}
	})
}
