package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/papercomputeco/genrelay/pkg/delta"
	"github.com/papercomputeco/genrelay/pkg/event"
	"github.com/papercomputeco/genrelay/pkg/logger"
	"github.com/papercomputeco/genrelay/pkg/media"
	"github.com/papercomputeco/genrelay/pkg/sse"
	"github.com/papercomputeco/genrelay/pkg/upstream"
)

// Session outcomes reported in summaries.
const (
	OutcomeResult    = "result"
	OutcomeError     = "error"
	OutcomeAbandoned = "abandoned"
)

// Summary describes a finished session. It carries counters and the outcome,
// never content.
type Summary struct {
	ID        string
	State     State
	Outcome   string
	ErrorKind ErrorKind
	Message   string
	URL       string

	Frames          int
	MalformedFrames int
	ProgressEvents  int
	LastPercent     int
	ContentBytes    int

	StartedAt time.Time
	Duration  time.Duration
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSessionID overrides the generated session id.
func WithSessionID(id string) SessionOption {
	return func(s *Session) {
		s.id = id
	}
}

// WithMaxFrameSize bounds a single upstream frame.
func WithMaxFrameSize(n int) SessionOption {
	return func(s *Session) {
		s.maxFrameSize = n
	}
}

// WithTee forwards every raw upstream byte to w before it is interpreted.
func WithTee(w io.Writer) SessionOption {
	return func(s *Session) {
		s.tee = w
	}
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = l
	}
}

// Session relays one upstream stream to one Emitter. It is owned by a single
// goroutine and is not safe for concurrent use. A session is one-shot: once it
// reaches DONE or ERROR nothing more is emitted.
type Session struct {
	id           string
	state        State
	emitter      Emitter
	tee          io.Writer
	maxFrameSize int
	logger       *slog.Logger

	content     media.Accumulator
	lastPercent int

	frames          int
	malformedFrames int
	progressEvents  int

	startedAt time.Time
	endedAt   time.Time
	terminal  *event.Event
	failure   *SessionError
}

// NewSession creates a session in the INIT state.
func NewSession(emitter Emitter, opts ...SessionOption) *Session {
	s := &Session{
		id:           uuid.NewString(),
		state:        StateInit,
		emitter:      emitter,
		maxFrameSize: sse.DefaultMaxFrameSize,
		logger:       logger.Nop(),
		lastPercent:  -1,
		startedAt:    time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.state
}

// Reject ends a session whose upstream request never started streaming:
// either the upstream answered with a non-success status or the request could
// not be sent. It emits exactly one error event.
func (s *Session) Reject(err error) error {
	if s.state != StateInit {
		return fmt.Errorf("%w: reject from %s", ErrIllegalTransition, s.state)
	}

	kind := KindUpstreamTransport
	message := "upstream transport failure: " + err.Error()
	if rejected, ok := upstream.AsRejected(err); ok {
		kind = KindUpstreamRejected
		message = rejected.Error()
	}

	s.logger.Warn("upstream refused session", "error_kind", kind.String(), "error", err)
	return s.fail(kind, err, message)
}

// Stream consumes body until the terminal sentinel, end of input or a
// failure, emitting progress as it goes and exactly one terminal event at the
// end. body is always closed before Stream returns, including right after the
// sentinel so the upstream connection is released without reading past it.
//
// Stream returns nil when a result was emitted. Otherwise it returns a
// *SessionError; when its Kind is KindDownstreamUnavailable no terminal event
// was delivered.
func (s *Session) Stream(ctx context.Context, body io.ReadCloser) error {
	defer body.Close()

	if err := s.transition(StateStreaming); err != nil {
		return err
	}

	span := trace.SpanFromContext(ctx)
	reader := sse.NewReader(body, sse.WithMaxFrameSize(s.maxFrameSize))
	if s.tee != nil {
		reader = sse.NewTeeReader(body, s.tee, sse.WithMaxFrameSize(s.maxFrameSize))
	}

frames:
	for frame, err := range reader.Frames() {
		if err != nil {
			return s.readFailed(ctx, err)
		}
		s.frames++

		d := delta.Interpret(frame)
		switch d.Kind {
		case delta.KindIgnored:
			continue

		case delta.KindMalformed:
			s.malformedFrames++
			s.logger.Debug("skipping malformed frame", "error", d.Err, "frame", s.frames)
			continue

		case delta.KindTerminal:
			// Anything after the sentinel is ignored.
			_ = body.Close()
			break frames

		case delta.KindData:
			if d.HasProgress && d.Percent > s.lastPercent {
				s.lastPercent = d.Percent
				s.progressEvents++
				span.AddEvent("progress", trace.WithAttributes(attribute.Int("percent", d.Percent)))
				if err := s.emitter.Emit(event.Progress(d.Percent)); err != nil {
					return s.abandon(err)
				}
			}
			if d.HasContent {
				s.content.Append(d.Content)
			}
		}
	}

	return s.finalize()
}

// finalize extracts the result from the accumulated content.
func (s *Session) finalize() error {
	if err := s.transition(StateFinalizing); err != nil {
		return err
	}

	url, err := media.ExtractURL(s.content.Document())
	if err != nil {
		s.logger.Info("stream ended without a resolvable result",
			"content_bytes", s.content.Len(),
			"fragments", len(s.content.Fragments()),
		)
		return s.fail(KindNoResult, err, err.Error())
	}

	ev := event.Result(url)
	if err := s.emitter.Emit(ev); err != nil {
		return s.abandon(err)
	}
	s.terminal = &ev
	s.endedAt = time.Now()
	return s.transition(StateDone)
}

// readFailed classifies an error from the frame reader.
func (s *Session) readFailed(ctx context.Context, err error) error {
	cause := context.Cause(ctx)

	switch {
	case errors.Is(err, sse.ErrDestinationWrite), errors.Is(cause, ErrDownstreamGone):
		return s.abandon(err)

	case errors.Is(cause, ErrIdleTimeout), errors.Is(cause, ErrSessionTimeout):
		err = fmt.Errorf("%w: %w", cause, err)
		return s.fail(KindUpstreamTransport, err, "upstream transport failure: "+cause.Error())
	}

	return s.fail(KindUpstreamTransport, err, "upstream transport failure: "+err.Error())
}

// fail moves to ERROR and emits the terminal error event.
func (s *Session) fail(kind ErrorKind, err error, message string) error {
	if err := s.transition(StateError); err != nil {
		return err
	}
	s.failure = &SessionError{Kind: kind, Err: err}
	s.endedAt = time.Now()

	ev := event.Error(message)
	if emitErr := s.emitter.Emit(ev); emitErr != nil {
		s.logger.Debug("terminal error event not delivered", "error", emitErr)
		s.failure = &SessionError{Kind: KindDownstreamUnavailable, Err: emitErr}
		return s.failure
	}
	s.terminal = &ev
	return s.failure
}

// abandon moves to ERROR without emitting anything: the consumer is gone.
func (s *Session) abandon(err error) error {
	s.logger.Debug("downstream gone, abandoning session", "error", err, "state", s.state.String())
	if s.state != StateError {
		if terr := s.transition(StateError); terr != nil {
			return terr
		}
	}
	s.failure = &SessionError{Kind: KindDownstreamUnavailable, Err: fmt.Errorf("%w: %w", ErrDownstreamGone, err)}
	s.endedAt = time.Now()
	return s.failure
}

func (s *Session) transition(to State) error {
	if !canTransition(s.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, s.state, to)
	}
	s.logger.Debug("session state", "from", s.state.String(), "to", to.String())
	s.state = to
	return nil
}

// Summary reports the session outcome and counters.
func (s *Session) Summary() Summary {
	sum := Summary{
		ID:              s.id,
		State:           s.state,
		Frames:          s.frames,
		MalformedFrames: s.malformedFrames,
		ProgressEvents:  s.progressEvents,
		LastPercent:     max(s.lastPercent, 0),
		ContentBytes:    s.content.Len(),
		StartedAt:       s.startedAt,
	}

	end := s.endedAt
	if end.IsZero() {
		end = time.Now()
	}
	sum.Duration = end.Sub(s.startedAt)

	if s.failure != nil {
		sum.ErrorKind = s.failure.Kind
		sum.Message = s.failure.Err.Error()
	}

	switch {
	case s.terminal != nil && s.terminal.Type == event.TypeResult:
		sum.Outcome = OutcomeResult
		sum.URL = s.terminal.URL
	case s.terminal != nil:
		sum.Outcome = OutcomeError
		sum.Message = s.terminal.Message
	case s.state == StateError:
		sum.Outcome = OutcomeAbandoned
	}

	return sum
}
