package ports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Amund211/msgstore/internal/app"
	"github.com/Amund211/msgstore/internal/domain"
	"github.com/Amund211/msgstore/internal/logging"
	"github.com/Amund211/msgstore/internal/ratelimiting"
	"github.com/Amund211/msgstore/internal/reporting"
	"github.com/Amund211/msgstore/internal/strutils"
	"github.com/Amund211/msgstore/internal/workerpool"
)

const requestTimeout = 30 * time.Second

type messageResponse struct {
	Success     bool   `json:"success"`
	Folder      string `json:"folder"`
	Name        string `json:"name"`
	ContentType string `json:"contentType,omitempty"`
	Length      *int   `json:"length,omitempty"`
	ElapsedMs   *int64 `json:"elapsedMs,omitempty"`
	Cause       string `json:"cause,omitempty"`
}

func MakeGetMessageHandler(
	fetchMessage app.FetchMessage,
	ipRateLimiter ratelimiting.RequestRateLimiter,
	rootLogger *slog.Logger,
	sentryMiddleware func(http.HandlerFunc) http.HandlerFunc,
) http.HandlerFunc {
	onLimitExceeded := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"success":false,"cause":"rate limit exceeded"}`))
	}

	middleware := ComposeMiddlewares(
		buildMetricsMiddleware("message"),
		logging.NewRequestLoggerMiddleware(rootLogger),
		sentryMiddleware,
		reporting.NewAddMetaMiddleware("message"),
		NewRateLimitMiddleware(ipRateLimiter, onLimitExceeded),
	)

	handler := func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		folder := r.PathValue("folder")
		name := r.PathValue("name")

		handleError := func(ctx context.Context, cause string, statusCode int) {
			response, err := makeErrorResponse(folder, name, cause)
			if err != nil {
				reporting.Report(ctx, fmt.Errorf("failed to marshal error response: %w", err))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(`{"success":false,"cause":"internal server error"}`))
				return
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(statusCode)
			w.Write(response)
		}

		ctx = reporting.AddExtrasToContext(ctx,
			map[string]string{
				"folder": folder,
				"name":   name,
			},
		)

		if err := strutils.ValidatePathSegment(folder); err != nil {
			folder = "<invalid>"
			handleError(ctx, "invalid folder", http.StatusBadRequest)
			return
		}
		if err := strutils.ValidatePathSegment(name); err != nil {
			name = "<invalid>"
			handleError(ctx, "invalid name", http.StatusBadRequest)
			return
		}

		message, err := fetchMessage(ctx, domain.NewMessageKey(folder, name))
		switch {
		case errors.Is(err, domain.ErrInvalidKey):
			handleError(ctx, "invalid key", http.StatusBadRequest)
			return
		case errors.Is(err, domain.ErrMessageNotFound):
			handleError(ctx, "not found", http.StatusNotFound)
			return
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			logging.FromContext(ctx).WarnContext(ctx, "Timed out waiting for message", "error", err.Error())
			handleError(ctx, "timed out", http.StatusGatewayTimeout)
			return
		case errors.Is(err, workerpool.ErrPoolClosed):
			handleError(ctx, "temporarily unavailable", http.StatusServiceUnavailable)
			return
		case errors.Is(err, domain.ErrReadFailed):
			// NOTE: The reader reports its own failures
			handleError(ctx, "failed to read message", http.StatusBadGateway)
			return
		case err != nil:
			reporting.Report(ctx, fmt.Errorf("unexpected error fetching message: %w", err))
			handleError(ctx, "internal server error", http.StatusInternalServerError)
			return
		}

		response, err := makeSuccessResponse(folder, name, message)
		if err != nil {
			reporting.Report(ctx, fmt.Errorf("failed to create success response: %w", err))
			handleError(ctx, "internal server error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(response)
	}

	return middleware(handler)
}

func makeSuccessResponse(folder, name string, message domain.Message) ([]byte, error) {
	length := message.Length
	elapsedMs := message.Elapsed.Milliseconds()
	data, err := json.Marshal(messageResponse{
		Success:     true,
		Folder:      folder,
		Name:        name,
		ContentType: message.ContentType,
		Length:      &length,
		ElapsedMs:   &elapsedMs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}
	return data, nil
}

func makeErrorResponse(folder, name, cause string) ([]byte, error) {
	data, err := json.Marshal(messageResponse{
		Success: false,
		Folder:  folder,
		Name:    name,
		Cause:   cause,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}
	return data, nil
}
