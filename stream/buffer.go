package stream

import (
	"context"
	"sync"

	"github.com/hupe1980/agentgraph/core"
)

// Buffer is an append-only, replayable event log for a single run.
// It is safe for one producer and any number of concurrent subscribers.
type Buffer struct {
	mu     sync.Mutex
	events []core.Event
	closed bool
	// notify is closed and replaced on every append and on Close, waking
	// subscribers waiting for new events.
	notify chan struct{}
}

// NewBuffer creates an empty open buffer.
func NewBuffer() *Buffer {
	return &Buffer{notify: make(chan struct{})}
}

// Append assigns the next sequence number to ev, stores it and returns the
// stored event. Appending to a closed buffer returns false.
func (b *Buffer) Append(ev core.Event) (core.Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ev, false
	}
	ev.Seq = len(b.events)
	b.events = append(b.events, ev)
	b.broadcastLocked()
	return ev, true
}

// Close marks the end of the run. Subscribers drain remaining events and
// then see their channel closed.
func (b *Buffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.broadcastLocked()
}

// Closed reports whether Close was called.
func (b *Buffer) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Events returns a snapshot of all events appended so far.
func (b *Buffer) Events() []core.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]core.Event, len(b.events))
	copy(out, b.events)
	return out
}

// Len returns the number of buffered events.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Subscribe replays every buffered event from the first one and then
// follows live appends. The returned channel is closed after the last event
// of a closed buffer has been delivered, or when ctx is done.
func (b *Buffer) Subscribe(ctx context.Context) <-chan core.Event {
	return b.SubscribeFrom(ctx, 0)
}

// SubscribeFrom is Subscribe starting at sequence number seq.
func (b *Buffer) SubscribeFrom(ctx context.Context, seq int) <-chan core.Event {
	out := make(chan core.Event)
	go func() {
		defer close(out)
		next := max(seq, 0)
		for {
			pending, closed, wait := b.since(next)
			for _, ev := range pending {
				select {
				case <-ctx.Done():
					return
				case out <- ev:
				}
			}
			next += len(pending)
			if len(pending) > 0 {
				continue
			}
			if closed {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-wait:
			}
		}
	}()
	return out
}

func (b *Buffer) since(next int) ([]core.Event, bool, <-chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var pending []core.Event
	if next < len(b.events) {
		pending = make([]core.Event, len(b.events)-next)
		copy(pending, b.events[next:])
	}
	return pending, b.closed, b.notify
}

func (b *Buffer) broadcastLocked() {
	close(b.notify)
	b.notify = make(chan struct{})
}
