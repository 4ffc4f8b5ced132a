package logging_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/Amund211/msgstore/internal/domain"
	"github.com/Amund211/msgstore/internal/logging"
	"github.com/stretchr/testify/require"
)

// lineRecorder collects one decoded JSON object per log line, without the time field
type lineRecorder struct {
	t   *testing.T
	buf bytes.Buffer
}

func (r *lineRecorder) Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(&r.buf, nil))
}

func (r *lineRecorder) Lines() []map[string]any {
	r.t.Helper()

	lines := []map[string]any{}
	for _, raw := range strings.Split(strings.TrimSpace(r.buf.String()), "\n") {
		if raw == "" {
			continue
		}
		var line map[string]any
		require.NoError(r.t, json.Unmarshal([]byte(raw), &line))
		require.Contains(r.t, line, "time")
		delete(line, "time")
		lines = append(lines, line)
	}
	r.buf.Reset()
	return lines
}

func TestFromContext(t *testing.T) {
	t.Parallel()

	t.Run("stored logger", func(t *testing.T) {
		t.Parallel()

		logger := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
		ctx := logging.AddToContext(t.Context(), logger)
		require.Same(t, logger, logging.FromContext(ctx))
	})

	t.Run("fallback", func(t *testing.T) {
		t.Parallel()

		require.NotNil(t, logging.FromContext(t.Context()))
		require.NotNil(t, logging.FromContext(logging.AddToContext(t.Context(), nil)))
	})
}

func TestAddMetaToContext(t *testing.T) {
	t.Parallel()

	recorder := &lineRecorder{t: t}
	ctx := logging.AddToContext(t.Context(), recorder.Logger().With(slog.String("port", "message")))

	ctx = logging.AddMetaToContext(ctx, slog.String("folder", "folderA"))
	logging.FromContext(ctx).Info("Fetching message")

	ctx = logging.AddMetaToContext(ctx, slog.String("folder", "folderB"), slog.String("name", "msg1.txt"))
	logging.FromContext(ctx).Info("Fetching message")

	require.Same(t, logging.FromContext(ctx), logging.FromContext(logging.AddMetaToContext(ctx)))

	require.Equal(t, []map[string]any{
		{"level": "INFO", "msg": "Fetching message", "port": "message", "folder": "folderA"},
		{"level": "INFO", "msg": "Fetching message", "port": "message", "folder": "folderB", "name": "msg1.txt"},
	}, recorder.Lines())
}

func TestAddKeyToContext(t *testing.T) {
	t.Parallel()

	recorder := &lineRecorder{t: t}
	ctx := logging.AddToContext(t.Context(), recorder.Logger())

	ctx = logging.AddKeyToContext(ctx, domain.NewMessageKey("folderA", "msg1.txt"))
	logging.FromContext(ctx).Info("Fetching message", "cache", "miss")
	logging.FromContext(ctx).Warn("Stopped waiting for message read")

	require.Equal(t, []map[string]any{
		{"level": "INFO", "msg": "Fetching message", "key": "folderA/msg1.txt", "cache": "miss"},
		{"level": "WARN", "msg": "Stopped waiting for message read", "key": "folderA/msg1.txt"},
	}, recorder.Lines())
}
