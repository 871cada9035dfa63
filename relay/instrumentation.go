package relay

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/papercomputeco/genrelay/relay"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)

	sessionsCounter, _ = meter.Int64Counter("genrelay.sessions",
		metric.WithDescription("Relay sessions by mode and outcome"),
	)
	sessionDuration, _ = meter.Float64Histogram("genrelay.session.duration",
		metric.WithDescription("Wall time of a relay session"),
		metric.WithUnit("s"),
	)
	malformedCounter, _ = meter.Int64Counter("genrelay.frames.malformed",
		metric.WithDescription("Upstream frames skipped because their payload was not valid JSON"),
	)
)

func recordSession(ctx context.Context, mode Mode, summary Summary) {
	attrs := metric.WithAttributes(
		attribute.String("mode", string(mode)),
		attribute.String("outcome", summary.Outcome),
		attribute.String("error_kind", summary.ErrorKind.String()),
	)
	sessionsCounter.Add(ctx, 1, attrs)
	sessionDuration.Record(ctx, summary.Duration.Seconds(), attrs)
	if summary.MalformedFrames > 0 {
		malformedCounter.Add(ctx, int64(summary.MalformedFrames), metric.WithAttributes(attribute.String("mode", string(mode))))
	}
}

func startSessionSpan(ctx context.Context, id string, mode Mode, model string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "relay.session",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("genrelay.session.id", id),
			attribute.String("genrelay.mode", string(mode)),
			attribute.String("genrelay.model", model),
		),
	)
}

func endSessionSpan(span trace.Span, summary Summary) {
	span.SetAttributes(
		attribute.String("genrelay.outcome", summary.Outcome),
		attribute.Int("genrelay.frames", summary.Frames),
		attribute.Int("genrelay.frames.malformed", summary.MalformedFrames),
		attribute.Int("genrelay.progress.last", summary.LastPercent),
	)
	if summary.ErrorKind != KindNone {
		span.SetStatus(codes.Error, summary.ErrorKind.String())
	}
	span.End()
}
