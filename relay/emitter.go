package relay

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/papercomputeco/genrelay/pkg/event"
	"github.com/papercomputeco/genrelay/pkg/sse"
)

// Emitter delivers normalized events to the consumer. Emit blocks until the
// consumer has accepted the event; the relay reads no further upstream data
// while an Emit is in progress.
type Emitter interface {
	Emit(ev event.Event) error
}

// StreamEmitter writes each event as one `data: {json}` frame.
type StreamEmitter struct {
	w *sse.Writer
}

// NewStreamEmitter creates a StreamEmitter over w, typically the write half of
// an io.Pipe whose read half is the HTTP response body.
func NewStreamEmitter(w io.Writer) *StreamEmitter {
	return &StreamEmitter{w: sse.NewWriter(w)}
}

// Emit writes ev. A write failure means the consumer is gone and is reported
// as ErrDownstreamGone.
func (e *StreamEmitter) Emit(ev event.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", ev.Type, err)
	}
	if err := e.w.WriteData(payload); err != nil {
		return fmt.Errorf("%w: %w", ErrDownstreamGone, err)
	}
	return nil
}

// CollectEmitter records events in memory for the buffered mode and tests.
type CollectEmitter struct {
	mu     sync.Mutex
	events []event.Event
}

// NewCollectEmitter creates an empty CollectEmitter.
func NewCollectEmitter() *CollectEmitter {
	return &CollectEmitter{}
}

// Emit records ev.
func (e *CollectEmitter) Emit(ev event.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return nil
}

// Events returns a copy of the recorded events in emission order.
func (e *CollectEmitter) Events() []event.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]event.Event(nil), e.events...)
}

// Progress returns the recorded progress percentages.
func (e *CollectEmitter) Progress() []int {
	e.mu.Lock()
	defer e.mu.Unlock()

	percents := make([]int, 0, len(e.events))
	for _, ev := range e.events {
		if ev.Type == event.TypeProgress {
			percents = append(percents, ev.Percent)
		}
	}
	return percents
}

// Terminal returns the terminal event, if one was recorded.
func (e *CollectEmitter) Terminal() (event.Event, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, ev := range e.events {
		if ev.Terminal() {
			return ev, true
		}
	}
	return event.Event{}, false
}

// discardEmitter drops every event. Pass-through sessions use it: the
// consumer receives raw upstream bytes instead of normalized events.
type discardEmitter struct{}

func (discardEmitter) Emit(event.Event) error { return nil }
