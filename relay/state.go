package relay

import (
	"errors"
	"fmt"
	"slices"
)

// ErrIllegalTransition is returned when a session is asked to move between
// states its lifecycle does not allow.
var ErrIllegalTransition = errors.New("illegal session state transition")

// State is a session lifecycle state.
//
//	INIT ──▶ STREAMING ──▶ FINALIZING ──▶ DONE
//	  │          │              │
//	  └──────────┴──────────────┴──────▶ ERROR
type State int

const (
	StateInit State = iota
	StateStreaming
	StateFinalizing
	StateDone
	StateError
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateStreaming:
		return "streaming"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether s is DONE or ERROR.
func (s State) Terminal() bool {
	return s == StateDone || s == StateError
}

// transitions lists the allowed successor states. A session never re-enters
// STREAMING once it has left it.
var transitions = map[State][]State{
	StateInit:       {StateStreaming, StateError},
	StateStreaming:  {StateFinalizing, StateError},
	StateFinalizing: {StateDone, StateError},
}

// canTransition reports whether from -> to is allowed.
func canTransition(from, to State) bool {
	return slices.Contains(transitions[from], to)
}
