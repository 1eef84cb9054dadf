package observability

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// LoggerWithTrace returns a zerolog.Logger enriched with trace_id/span_id from the context, if available.
func LoggerWithTrace(ctx context.Context) *zerolog.Logger {
	l := log.Logger
	if ctx == nil {
		return &l
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		l = l.With().Str("trace_id", sc.TraceID().String()).Logger()
		if sc.HasSpanID() {
			l = l.With().Str("span_id", sc.SpanID().String()).Logger()
		}
		if sc.IsSampled() {
			l = l.With().Bool("trace_sampled", true).Logger()
		}
	}
	return &l
}

// LoggerWithTask returns LoggerWithTrace(ctx) further enriched with the
// ingestion task id, so the worker loop and pipeline stages log a
// consistent "task_id" field instead of each call site spelling out its own
// .Str("task_id", ...).
func LoggerWithTask(ctx context.Context, taskID string) *zerolog.Logger {
	l := LoggerWithTrace(ctx).With().Str("task_id", taskID).Logger()
	return &l
}

// LoggerWithUser returns LoggerWithTrace(ctx) further enriched with the
// owning user id, for request-scoped logging in the HTTP handlers and
// retrieval entry points where every operation is user-scoped.
func LoggerWithUser(ctx context.Context, userID string) *zerolog.Logger {
	l := LoggerWithTrace(ctx).With().Str("user_id", userID).Logger()
	return &l
}
