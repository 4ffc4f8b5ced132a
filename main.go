package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Amund211/msgstore/internal/adapters/messagereader"
	"github.com/Amund211/msgstore/internal/app"
	"github.com/Amund211/msgstore/internal/config"
	"github.com/Amund211/msgstore/internal/logging"
	"github.com/Amund211/msgstore/internal/ports"
	"github.com/Amund211/msgstore/internal/ratelimiting"
	"github.com/Amund211/msgstore/internal/reporting"
	"github.com/Amund211/msgstore/internal/telemetry"
	"github.com/Amund211/msgstore/internal/watcher"
	"github.com/Amund211/msgstore/internal/workerpool"
	"github.com/google/uuid"
	"github.com/viant/afs"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	_ "golang.org/x/crypto/x509roots/fallback"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	instanceID := uuid.New().String()

	handler := logging.NewTracingLogHandler(slog.NewJSONHandler(os.Stdout, nil), os.Getenv("GOOGLE_CLOUD_PROJECT"))
	logger := slog.New(handler).With("instanceID", instanceID)
	ctx = logging.AddToContext(ctx, logger)

	fail := func(msg string, args ...any) {
		logger.Error(msg, args...)
		os.Exit(1)
	}

	config, err := config.ConfigFromEnv()
	if err != nil {
		fail("Failed to load config", "error", err.Error())
	}
	logger.Info("Loaded config", "config", config.NonSensitiveString())

	if config.OTLPEndpoint() != "" {
		shutdownOTel, err := telemetry.SetupOTelSDK(ctx, "msgstore")
		if err != nil {
			fail("Failed to set up OpenTelemetry", "error", err.Error())
		}
		defer func() {
			if err := shutdownOTel(context.Background()); err != nil {
				logger.Error("Failed to shut down OpenTelemetry", "error", err.Error())
			}
		}()
		logger.Info("Initialized OpenTelemetry")
	}

	sentryMiddleware, flush, err := reporting.NewSentryMiddlewareOrMock(config)
	if err != nil {
		fail("Failed to initialize Sentry", "error", err.Error())
	}
	defer flush()
	logger.Info("Initialized Sentry middleware")

	reader := messagereader.New(afs.New(), config.Root(), config.ReadDelay(), time.Now, time.After)

	pool := workerpool.New(config.Workers())
	defer pool.Close()

	failurePolicy := app.CacheFailures
	if !config.CacheFailures() {
		failurePolicy = app.RetryFailures
	}

	messageStore, err := app.NewMessageStore(reader, pool, config.CacheCapacity(), failurePolicy)
	if err != nil {
		fail("Failed to initialize message store", "error", err.Error())
	}
	logger.Info("Initialized message store", "workers", pool.Workers(), "failurePolicy", failurePolicy.String())

	if config.Watch() {
		w, err := watcher.New(config.Root(), messageStore)
		if err != nil {
			fail("Failed to initialize watcher", "error", err.Error())
		}
		watcherCtx := logging.AddToContext(reporting.WithHub(ctx), logger.With("component", "watcher"))
		go func() {
			if err := w.Run(watcherCtx); err != nil {
				logger.Error("Watcher stopped", "error", err.Error())
			}
		}()
		logger.Info("Watching root for changes")
	}

	ipRateLimiter, stopRateLimiter := ratelimiting.NewTokenBucketRateLimiter(
		ratelimiting.RefillPerSecond(50),
		ratelimiting.BurstSize(500),
	)
	defer stopRateLimiter()

	mux := http.NewServeMux()
	mux.HandleFunc(
		"GET /v1/message/{folder}/{name}",
		ports.MakeGetMessageHandler(
			messageStore.Fetch,
			ratelimiting.NewRequestBasedRateLimiter(ipRateLimiter, ratelimiting.IPKeyFunc),
			logger.With("port", "message"),
			sentryMiddleware,
		),
	)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", config.Port()),
		Handler:           otelhttp.NewHandler(mux, "msgstore"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Failed to shut down server", "error", err.Error())
		}
	}()

	logger.Info("Init complete")
	err = server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		logger.Info("Server shutdown")
	} else {
		fail("Server error", "error", err.Error())
	}
}
