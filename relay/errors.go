package relay

import (
	"errors"
	"fmt"
)

var (
	// ErrDownstreamGone reports that the consumer stopped accepting events.
	// It is never surfaced to the consumer.
	ErrDownstreamGone = errors.New("downstream consumer is gone")

	// ErrSessionTimeout is the cancellation cause when a session exceeds its
	// maximum duration.
	ErrSessionTimeout = errors.New("session exceeded maximum duration")

	// ErrIdleTimeout is the cancellation cause when the upstream goes quiet
	// for longer than the idle timeout.
	ErrIdleTimeout = errors.New("upstream idle timeout exceeded")
)

// ErrorKind classifies why a session failed.
type ErrorKind int

const (
	KindNone ErrorKind = iota

	// KindUpstreamRejected: the upstream answered with a non-success status
	// before streaming began.
	KindUpstreamRejected

	// KindUpstreamTransport: the connection failed, timed out or delivered
	// an unusable stream.
	KindUpstreamTransport

	// KindMalformedFrame: one frame could not be parsed. Recovered locally
	// and never ends a session; it only appears in counters.
	KindMalformedFrame

	// KindNoResult: the stream ended cleanly without a resolvable URL.
	KindNoResult

	// KindDownstreamUnavailable: the consumer went away.
	KindDownstreamUnavailable
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return ""
	case KindUpstreamRejected:
		return "upstream_rejected"
	case KindUpstreamTransport:
		return "upstream_transport"
	case KindMalformedFrame:
		return "malformed_frame"
	case KindNoResult:
		return "no_result"
	case KindDownstreamUnavailable:
		return "downstream_unavailable"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// SessionError is the failure a session ended with.
type SessionError struct {
	Kind ErrorKind
	Err  error
}

func (e *SessionError) Error() string {
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *SessionError) Unwrap() error {
	return e.Err
}
