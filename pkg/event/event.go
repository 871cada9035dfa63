// Package event defines the normalized events a relay session emits to its
// downstream consumer.
package event

import (
	"encoding/json"
	"fmt"
)

// Type discriminates normalized events on the wire.
type Type string

const (
	// TypeProgress carries a percentage in 0..100.
	TypeProgress Type = "progress"

	// TypeResult is the terminal success event carrying the media URL.
	TypeResult Type = "result"

	// TypeError is the terminal failure event carrying a short message.
	TypeError Type = "error"
)

// Event is one normalized event. Only the field matching Type is meaningful.
type Event struct {
	Type    Type
	Percent int
	URL     string
	Message string
}

// Progress returns a progress event.
func Progress(percent int) Event {
	return Event{Type: TypeProgress, Percent: percent}
}

// Result returns a terminal result event.
func Result(url string) Event {
	return Event{Type: TypeResult, URL: url}
}

// Error returns a terminal error event.
func Error(message string) Event {
	return Event{Type: TypeError, Message: message}
}

// Terminal reports whether e ends a session.
func (e Event) Terminal() bool {
	return e.Type == TypeResult || e.Type == TypeError
}

type progressWire struct {
	Type    Type `json:"type"`
	Percent int  `json:"percent"`
}

type resultWire struct {
	Type Type   `json:"type"`
	URL  string `json:"url"`
}

type errorWire struct {
	Type    Type   `json:"type"`
	Message string `json:"message"`
}

// MarshalJSON encodes only the fields that belong to the event's type.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case TypeProgress:
		return json.Marshal(progressWire{Type: e.Type, Percent: e.Percent})
	case TypeResult:
		return json.Marshal(resultWire{Type: e.Type, URL: e.URL})
	case TypeError:
		return json.Marshal(errorWire{Type: e.Type, Message: e.Message})
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
}

// UnmarshalJSON decodes any of the three wire shapes.
func (e *Event) UnmarshalJSON(data []byte) error {
	var wire struct {
		Type    Type   `json:"type"`
		Percent int    `json:"percent"`
		URL     string `json:"url"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	switch wire.Type {
	case TypeProgress, TypeResult, TypeError:
	default:
		return fmt.Errorf("unknown event type %q", wire.Type)
	}

	*e = Event{
		Type:    wire.Type,
		Percent: wire.Percent,
		URL:     wire.URL,
		Message: wire.Message,
	}
	return nil
}

// String renders e for logs.
func (e Event) String() string {
	switch e.Type {
	case TypeProgress:
		return fmt.Sprintf("progress:%d", e.Percent)
	case TypeResult:
		return "result:" + e.URL
	case TypeError:
		return "error:" + e.Message
	default:
		return string(e.Type)
	}
}
