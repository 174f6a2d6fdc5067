package edge

import (
	"errors"
	"sync"

	"github.com/joss/todoai/internal/stream"
)

var errAlreadyWatching = errors.New("todo already being watched")

// TodoStream is one live subscription to a todo's events.
type TodoStream struct {
	in     chan stream.Event
	events chan stream.Event

	done     chan struct{}
	failOnce sync.Once
	err      error
}

func newTodoStream() *TodoStream {
	return &TodoStream{
		in:     make(chan stream.Event, 64),
		events: make(chan stream.Event),
		done:   make(chan struct{}),
	}
}

// Events returns the ordered event channel. Closed when the stream ends.
func (t *TodoStream) Events() <-chan stream.Event {
	return t.events
}

// Err reports why the stream ended. Valid once Events is closed; nil
// after a terminal event.
func (t *TodoStream) Err() error {
	return t.err
}

// deliver hands an event from the read loop to the pump. Blocks when the
// consumer is behind (backpressure keeps ordering; nothing is dropped).
func (t *TodoStream) deliver(ev stream.Event) {
	select {
	case t.in <- ev:
	case <-t.done:
	}
}

// pump forwards events in order and returns after a terminal event or
// failure. The caller closes the events channel once cleanup is done,
// so a new watch on the same todo never races stream teardown.
func (t *TodoStream) pump() {
	for {
		select {
		case <-t.done:
			return
		case ev := <-t.in:
			select {
			case t.events <- ev:
			case <-t.done:
				return
			}
			if stream.Classify(ev).Class == stream.ClassTerminal {
				t.failOnce.Do(func() { close(t.done) })
				return
			}
		}
	}
}

// fail ends the stream with a cause. First cause wins; later calls are
// no-ops, so cancellation is idempotent.
func (t *TodoStream) fail(err error) {
	t.failOnce.Do(func() {
		t.err = err
		close(t.done)
	})
}
