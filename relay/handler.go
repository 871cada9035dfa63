package relay

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/papercomputeco/genrelay/pkg/event"
	"github.com/papercomputeco/genrelay/pkg/eventstream"
	"github.com/papercomputeco/genrelay/pkg/upstream"
	"github.com/papercomputeco/genrelay/pkg/utils"
	"github.com/papercomputeco/genrelay/relay/worker"
)

const serviceName = "genrelay"

// generateRequest is the consumer-facing request body.
type generateRequest struct {
	Prompt      string                `json:"prompt"`
	Model       string                `json:"model,omitempty"`
	Mode        string                `json:"mode,omitempty"`
	Attachments []upstream.Attachment `json:"attachments,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// bufferedResponse is the single JSON document answered in buffered mode.
type bufferedResponse struct {
	Type     event.Type `json:"type"`
	URL      string     `json:"url,omitempty"`
	Message  string     `json:"message,omitempty"`
	Progress []int      `json:"progress"`
}

// run carries everything one generate request needs across the handler and
// the streaming goroutine. fasthttp recycles the fiber.Ctx once the handler
// returns, so nothing here references it.
type run struct {
	id     string
	mode   Mode
	model  string
	ctx    context.Context
	span   trace.Span
	cancel context.CancelCauseFunc
	stop   context.CancelFunc
	logger *slog.Logger
}

// release cancels the session context with cause and frees its timer.
func (r *run) release(cause error) {
	r.cancel(cause)
	r.stop()
}

func (s *Server) handleGenerate(c *fiber.Ctx) error {
	var body generateRequest
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "invalid request body"})
	}

	mode, err := s.resolveMode(c.Query("mode"), body.Mode)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: err.Error()})
	}

	req := upstream.Request{
		Model:       body.Model,
		Prompt:      body.Prompt,
		Attachments: body.Attachments,
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: err.Error()})
	}

	r := s.newRun(mode, cmp.Or(req.Model, s.opener.Model()))
	s.headerHandler.SetSessionID(c, r.id)

	// The upstream stream outlives the handler, so its context must not be
	// derived from the fasthttp request context.
	resp, err := s.opener.Open(r.ctx, req)
	if errors.Is(err, upstream.ErrInvalidRequest) {
		r.span.End()
		r.release(err)
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: err.Error()})
	}

	switch mode {
	case ModePassthrough:
		return s.passthrough(c, r, resp, err)
	case ModeBuffered:
		return s.buffered(c, r, resp, err)
	default:
		return s.translate(c, r, resp, err)
	}
}

// resolveMode applies the precedence query > body > configured default.
func (s *Server) resolveMode(query, body string) (Mode, error) {
	if name := cmp.Or(query, body); name != "" {
		return ParseMode(name)
	}
	return s.config.Mode, nil
}

func (s *Server) newRun(mode Mode, model string) *run {
	r := &run{
		id:    uuid.NewString(),
		mode:  mode,
		model: model,
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	stop := context.CancelFunc(func() {})
	if s.config.MaxDuration > 0 {
		ctx, stop = context.WithTimeoutCause(ctx, s.config.MaxDuration, ErrSessionTimeout)
	}
	r.ctx, r.span = startSessionSpan(ctx, r.id, mode, model)
	r.cancel = cancel
	r.stop = stop
	r.logger = s.logger.With(
		"session_id", r.id,
		"mode", string(mode),
		"model", model,
	)
	return r
}

func (s *Server) newSession(r *run, emitter Emitter, opts ...SessionOption) *Session {
	opts = append([]SessionOption{
		WithSessionID(r.id),
		WithMaxFrameSize(s.config.MaxFrameBytes),
		WithLogger(r.logger),
	}, opts...)
	return NewSession(emitter, opts...)
}

// translate answers with the normalized event stream.
func (s *Server) translate(c *fiber.Ctx, r *run, resp *http.Response, openErr error) error {
	s.headerHandler.SetEventStreamHeaders(c)
	c.Status(fiber.StatusOK)

	if openErr != nil {
		var buf bytes.Buffer
		sess := s.newSession(r, NewStreamEmitter(&buf))
		_ = sess.Reject(openErr)
		s.finishSession(r, sess)
		r.release(nil)
		return c.Send(buf.Bytes())
	}

	// pw.Write blocks until fasthttp's chunked body writer has consumed the
	// frame, so emitting an event waits on the consumer.
	pr, pw := io.Pipe()
	out := &syncWriter{w: pw}
	sess := s.newSession(r, NewStreamEmitter(out))
	body := newIdleReader(resp.Body, s.config.IdleTimeout, r.cancel)

	stopKeepAlive := keepAlive(out, s.config.KeepAlive, func() {
		r.cancel(ErrDownstreamGone)
	})

	go func() {
		defer pw.Close()
		err := sess.Stream(r.ctx, body)
		stopKeepAlive()
		s.finishSession(r, sess)
		r.release(releaseCause(err))
	}()

	c.Context().Response.SetBodyStream(newConsumerBody(pr, r.cancel), -1)
	return nil
}

// passthrough forwards the upstream response verbatim while the session
// parses the same bytes for its summary.
func (s *Server) passthrough(c *fiber.Ctx, r *run, resp *http.Response, openErr error) error {
	if openErr != nil {
		sess := s.newSession(r, discardEmitter{})
		_ = sess.Reject(openErr)
		s.finishSession(r, sess)
		r.release(nil)

		if rejected, ok := upstream.AsRejected(openErr); ok {
			s.headerHandler.SetClientResponseHeaders(c, &http.Response{Header: rejected.Header})
			return c.Status(rejected.StatusCode).Send(rejected.Body)
		}
		return c.Status(fiber.StatusBadGateway).JSON(errorResponse{Error: "upstream request failed"})
	}

	s.headerHandler.SetClientResponseHeaders(c, resp)
	c.Status(resp.StatusCode)

	// Keep-alive comments would alter the verbatim bytes, so a gone consumer
	// is noticed at the next teed upstream chunk or when fasthttp closes the
	// body stream.
	pr, pw := io.Pipe()
	sess := s.newSession(r, discardEmitter{}, WithTee(pw))
	body := newIdleReader(resp.Body, s.config.IdleTimeout, r.cancel)

	go func() {
		err := sess.Stream(r.ctx, body)

		var sessErr *SessionError
		if errors.As(err, &sessErr) && sessErr.Kind == KindUpstreamTransport {
			// Abort the chunked response so the consumer sees a broken
			// stream rather than a clean end.
			pw.CloseWithError(sessErr)
		} else {
			pw.Close()
		}

		s.finishSession(r, sess)
		r.release(releaseCause(err))
	}()

	c.Context().Response.SetBodyStream(newConsumerBody(pr, r.cancel), -1)
	return nil
}

// buffered runs the session to completion and answers with one document.
func (s *Server) buffered(c *fiber.Ctx, r *run, resp *http.Response, openErr error) error {
	collector := NewCollectEmitter()
	sess := s.newSession(r, collector)

	var err error
	if openErr != nil {
		err = sess.Reject(openErr)
	} else {
		err = sess.Stream(r.ctx, newIdleReader(resp.Body, s.config.IdleTimeout, r.cancel))
	}
	s.finishSession(r, sess)
	r.release(releaseCause(err))

	terminal, ok := collector.Terminal()
	if !ok {
		terminal = event.Error("relay session ended without a result")
	}

	status := fiber.StatusOK
	if terminal.Type != event.TypeResult {
		status = fiber.StatusBadGateway
	}

	return c.Status(status).JSON(bufferedResponse{
		Type:     terminal.Type,
		URL:      terminal.URL,
		Message:  terminal.Message,
		Progress: collector.Progress(),
	})
}

// releaseCause maps a session outcome to the cancellation cause of its
// context: a gone consumer cancels the upstream request with
// ErrDownstreamGone.
func releaseCause(err error) error {
	var sessErr *SessionError
	if errors.As(err, &sessErr) && sessErr.Kind == KindDownstreamUnavailable {
		return ErrDownstreamGone
	}
	return nil
}

// maxLoggedMessage bounds upstream error text in log lines.
const maxLoggedMessage = 256

// finishSession records, logs and publishes a finished session.
func (s *Server) finishSession(r *run, sess *Session) {
	summary := sess.Summary()

	recordSession(r.ctx, r.mode, summary)
	endSessionSpan(r.span, summary)

	attrs := []any{
		"outcome", summary.Outcome,
		"frames", summary.Frames,
		"malformed_frames", summary.MalformedFrames,
		"progress_events", summary.ProgressEvents,
		"duration", summary.Duration,
	}
	switch summary.Outcome {
	case OutcomeResult:
		r.logger.Info("session completed", append(attrs, "url", summary.URL)...)
	case OutcomeAbandoned:
		r.logger.Info("session abandoned", attrs...)
	default:
		r.logger.Warn("session failed", append(attrs,
			"error_kind", summary.ErrorKind.String(),
			"message", utils.Truncate(summary.Message, maxLoggedMessage),
		)...)
	}

	s.workerPool.Enqueue(worker.Job{Event: s.summaryEvent(r, summary)})
}

func (s *Server) summaryEvent(r *run, summary Summary) *eventstream.SessionCompletedEvent {
	completedAt := summary.StartedAt.Add(summary.Duration)

	meta := eventstream.SessionMeta{
		ID:          summary.ID,
		Mode:        string(r.mode),
		Model:       r.model,
		Outcome:     summary.Outcome,
		Message:     summary.Message,
		URL:         summary.URL,
		StartedAt:   summary.StartedAt.UTC(),
		CompletedAt: completedAt.UTC(),
		DurationMs:  summary.Duration.Milliseconds(),
	}
	if summary.ErrorKind != KindNone {
		meta.ErrorKind = summary.ErrorKind.String()
	}

	return &eventstream.SessionCompletedEvent{
		SchemaVersion: eventstream.SchemaVersionV1,
		EventType:     eventstream.EventTypeSessionCompleted,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source: eventstream.EventSource{
			Service:  serviceName,
			Version:  s.config.Version,
			Upstream: s.opener.Endpoint(),
		},
		Session: meta,
		Stream: eventstream.StreamStats{
			Frames:          summary.Frames,
			MalformedFrames: summary.MalformedFrames,
			ProgressEvents:  summary.ProgressEvents,
			LastPercent:     summary.LastPercent,
			ContentBytes:    summary.ContentBytes,
		},
	}
}
