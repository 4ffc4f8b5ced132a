package logging

import (
	"context"
	"log/slog"
	"os"

	"github.com/Amund211/msgstore/internal/domain"
)

type loggerContextKey struct{}

// FromContext returns the logger stored in ctx, or a JSON logger on stderr
// tagged as the fallback when there is none.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerContextKey{}).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, nil)).With(slog.String("logger", "fallback"))
}

func AddToContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, logger)
}

func AddMetaToContext(ctx context.Context, attrs ...slog.Attr) context.Context {
	if len(attrs) == 0 {
		return ctx
	}

	args := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		args = append(args, attr)
	}

	return AddToContext(ctx, FromContext(ctx).With(args...))
}

// AddKeyToContext tags every later log line in ctx with the message key
func AddKeyToContext(ctx context.Context, key domain.MessageKey) context.Context {
	return AddMetaToContext(ctx, slog.String("key", key.String()))
}
