// Package logging wraps structured logging (log/slog) with OpenTelemetry
// trace correlation, the same shape the proxy's teacher codebase uses for
// its HTTP middleware logger, adapted here for a raw-socket proxy that has
// no http.Handler chain to hang a logging middleware off of.
package logging

import (
	"context"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Logger pairs a structured logger with a tracer so every log line can
// carry the trace/span IDs of the connection it belongs to.
type Logger struct {
	slogger *slog.Logger
	tracer  trace.Tracer
}

// New creates a logger that emits JSON to stdout and correlates with the
// named tracer. service is attached to every log line.
func New(service string) *Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Key = "timestamp"
			}
			return a
		},
	})
	return &Logger{
		slogger: slog.New(handler).With(slog.String("service", service)),
		tracer:  otel.Tracer(service),
	}
}

// NewNop returns a logger that discards everything; useful for tests.
func NewNop() *Logger {
	return &Logger{
		slogger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1})),
		tracer:  otel.Tracer("nop"),
	}
}

// Debug logs at debug level with trace correlation.
func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelDebug, msg, args...)
}

// Info logs at info level with trace correlation.
func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelInfo, msg, args...)
}

// Warn logs at warn level with trace correlation.
func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelWarn, msg, args...)
}

// Error logs msg at error level and, if a recording span is present in ctx,
// marks the span as failed.
func (l *Logger) Error(ctx context.Context, msg string, err error, args ...any) {
	if err != nil {
		args = append(args, "error", err.Error())
		if span := trace.SpanFromContext(ctx); span.IsRecording() {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		}
	}
	l.log(ctx, slog.LevelError, msg, args...)
}

func (l *Logger) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		args = append(args,
			"trace_id", span.SpanContext().TraceID().String(),
			"span_id", span.SpanContext().SpanID().String(),
		)
	}
	l.slogger.Log(ctx, level, msg, args...)
}

// StartSpan opens a span named operationName with the given attributes,
// returning the derived context to thread through the rest of the
// connection's lifetime.
func (l *Logger) StartSpan(ctx context.Context, operationName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return l.tracer.Start(ctx, operationName, trace.WithAttributes(attrs...))
}

// WithFields returns a derived logger with args attached to every
// subsequent line, without mutating the receiver.
func (l *Logger) WithFields(args ...any) *Logger {
	return &Logger{slogger: l.slogger.With(args...), tracer: l.tracer}
}
