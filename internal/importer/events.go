package importer

import (
	"context"
	"errors"
	"sync"
)

// EventKind names an event emitted by a Workflow.
type EventKind string

const (
	EventStageChanged    EventKind = "stage-changed"
	EventCommitSucceeded EventKind = "commit-succeeded"
	EventErrorRaised     EventKind = "error-raised"
)

// Event is something a host may want to render. Only the fields relevant
// to Kind are set.
type Event struct {
	Kind      EventKind `json:"kind"`
	SessionID string    `json:"sessionId"`

	// stage-changed
	From Stage `json:"from,omitempty"`
	To   Stage `json:"to,omitempty"`

	// commit-succeeded
	Count int `json:"count,omitempty"`

	// error-raised
	Err     error  `json:"-"`
	Message string `json:"message,omitempty"`
}

// Listener receives workflow events.
type Listener interface {
	OnEvent(ctx context.Context, event Event)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(ctx context.Context, event Event)

// OnEvent calls f(ctx, event).
func (f ListenerFunc) OnEvent(ctx context.Context, event Event) {
	f(ctx, event)
}

// ErrBusClosed is returned when publishing to a closed Bus.
var ErrBusClosed = errors.New("event bus is closed")

// Bus fans events out to channel subscribers. A slow subscriber does not
// block the workflow: events that do not fit its buffer are dropped.
type Bus struct {
	mu     sync.RWMutex
	closed bool
	subs   []chan Event
	buffer int
}

// NewBus creates a bus whose subscriber channels hold buffer events.
func NewBus(buffer int) *Bus {
	if buffer < 1 {
		buffer = 1
	}
	return &Bus{buffer: buffer}
}

// Subscribe returns a channel receiving every later event.
// The channel is closed by Close.
func (b *Bus) Subscribe() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.buffer)
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

// Unsubscribe detaches ch and closes it. Unknown channels are ignored.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subs {
		if sub == ch {
			close(sub)
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers event to every subscriber without blocking.
func (b *Bus) Publish(event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBusClosed
	}
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

// OnEvent lets a Bus be used directly as a Workflow listener.
func (b *Bus) OnEvent(_ context.Context, event Event) {
	_ = b.Publish(event)
}

// Close closes every subscriber channel. Further publishes fail.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
