package logging

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// NewTracingLogHandler wraps base so that records logged with a span in the
// context carry its trace and span ids.
//
// With a Google Cloud project the ids use the Cloud Logging special fields
// so the entries are linked to Cloud Trace. Without one they are plain
// traceId, spanId and traceSampled attributes.
//
// NOTE: Only the *Context slog methods see the span
func NewTracingLogHandler(base slog.Handler, project string) slog.Handler {
	return &tracingLogHandler{base: base, project: project}
}

type tracingLogHandler struct {
	base    slog.Handler
	project string
}

func (h *tracingLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

func (h *tracingLogHandler) Handle(ctx context.Context, r slog.Record) error {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return h.base.Handle(ctx, r)
	}

	if h.project == "" {
		r.AddAttrs(
			slog.String("traceId", sc.TraceID().String()),
			slog.String("spanId", sc.SpanID().String()),
			slog.Bool("traceSampled", sc.IsSampled()),
		)
		return h.base.Handle(ctx, r)
	}

	// https://docs.cloud.google.com/logging/docs/agent/logging/configuration#special-fields
	r.AddAttrs(
		slog.String("logging.googleapis.com/trace", fmt.Sprintf("projects/%s/traces/%s", h.project, sc.TraceID())),
		slog.String("logging.googleapis.com/spanId", sc.SpanID().String()),
		slog.Bool("logging.googleapis.com/trace_sampled", sc.IsSampled()),
	)
	return h.base.Handle(ctx, r)
}

func (h *tracingLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &tracingLogHandler{base: h.base.WithAttrs(attrs), project: h.project}
}

func (h *tracingLogHandler) WithGroup(name string) slog.Handler {
	return &tracingLogHandler{base: h.base.WithGroup(name), project: h.project}
}
