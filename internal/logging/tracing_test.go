package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/Amund211/msgstore/internal/domain"
	"github.com/Amund211/msgstore/internal/logging"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestTracingLogHandler(t *testing.T) {
	t.Parallel()

	spanContext := func(t *testing.T, flags trace.TraceFlags) context.Context {
		t.Helper()

		traceID, err := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
		require.NoError(t, err)
		spanID, err := trace.SpanIDFromHex("0102030405060708")
		require.NoError(t, err)

		return trace.ContextWithSpanContext(t.Context(), trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    traceID,
			SpanID:     spanID,
			TraceFlags: flags,
		}))
	}

	logLine := func(t *testing.T, ctx context.Context, project string) map[string]any {
		t.Helper()

		buf := &bytes.Buffer{}
		logger := slog.New(logging.NewTracingLogHandler(slog.NewJSONHandler(buf, nil), project))
		ctx = logging.AddToContext(ctx, logger)
		ctx = logging.AddKeyToContext(ctx, domain.NewMessageKey("folderA", "msg1.txt"))
		logging.FromContext(ctx).InfoContext(ctx, "Read message")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		require.Equal(t, "folderA/msg1.txt", entry["key"])
		return entry
	}

	t.Run("cloud trace fields with a project", func(t *testing.T) {
		t.Parallel()

		entry := logLine(t, spanContext(t, trace.FlagsSampled), "my-project")
		require.Equal(t, "projects/my-project/traces/0102030405060708090a0b0c0d0e0f10", entry["logging.googleapis.com/trace"])
		require.Equal(t, "0102030405060708", entry["logging.googleapis.com/spanId"])
		require.Equal(t, true, entry["logging.googleapis.com/trace_sampled"])
		require.NotContains(t, entry, "traceId")
	})

	t.Run("plain ids without a project", func(t *testing.T) {
		t.Parallel()

		entry := logLine(t, spanContext(t, 0), "")
		require.Equal(t, "0102030405060708090a0b0c0d0e0f10", entry["traceId"])
		require.Equal(t, "0102030405060708", entry["spanId"])
		require.Equal(t, false, entry["traceSampled"])
		require.NotContains(t, entry, "logging.googleapis.com/trace")
	})

	t.Run("no ids without a span", func(t *testing.T) {
		t.Parallel()

		for _, project := range []string{"", "my-project"} {
			entry := logLine(t, t.Context(), project)
			require.NotContains(t, entry, "traceId")
			require.NotContains(t, entry, "logging.googleapis.com/trace")
		}
	})
}
