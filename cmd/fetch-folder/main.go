package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"sync/atomic"
	"time"

	"github.com/Amund211/msgstore/internal/adapters/messagereader"
	"github.com/Amund211/msgstore/internal/app"
	"github.com/Amund211/msgstore/internal/domain"
	"github.com/Amund211/msgstore/internal/logging"
	"github.com/Amund211/msgstore/internal/workerpool"
	flags "github.com/jessevdk/go-flags"
	"github.com/viant/afs"
	"golang.org/x/sync/errgroup"
)

// Options defines CLI flags for fetch-folder.
type Options struct {
	Root          string        `long:"root" env:"MSGSTORE_ROOT" required:"true" description:"Directory or afs URL containing the message folders"`
	Folder        string        `long:"folder" required:"true" description:"Folder to fetch every message from"`
	Workers       int           `long:"workers" default:"4" description:"Number of concurrent reads"`
	Capacity      int           `long:"capacity" default:"100" description:"Number of messages kept in the cache"`
	Concurrency   int           `long:"concurrency" default:"16" description:"Number of fetches in flight"`
	Repeat        int           `long:"repeat" default:"2" description:"Number of times each message is fetched"`
	Delay         time.Duration `long:"delay" default:"0s" description:"Artificial latency added to every read"`
	RetryFailures bool          `long:"retry-failures" description:"Do not cache failed reads"`
}

func main() {
	var opts Options
	if _, err := flags.NewParser(&opts, flags.Default).Parse(); err != nil {
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("folder", opts.Folder)
	ctx = logging.AddToContext(ctx, logger)

	fail := func(msg string, args ...any) {
		logger.Error(msg, args...)
		os.Exit(1)
	}

	reader := messagereader.New(afs.New(), opts.Root, opts.Delay, time.Now, time.After)

	pool := workerpool.New(opts.Workers)
	defer pool.Close()

	failurePolicy := app.CacheFailures
	if opts.RetryFailures {
		failurePolicy = app.RetryFailures
	}

	store, err := app.NewMessageStore(reader, pool, opts.Capacity, failurePolicy)
	if err != nil {
		fail("Failed to initialize message store", "error", err.Error())
	}

	names, err := reader.ListMessages(ctx, opts.Folder)
	if err != nil {
		fail("Failed to list folder", "error", err.Error())
	}
	logger.Info("Listed folder", "messages", len(names))

	start := time.Now()
	var fetched, failed atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	if opts.Concurrency > 0 {
		g.SetLimit(opts.Concurrency)
	}
	for round := range max(opts.Repeat, 1) {
		for _, name := range names {
			g.Go(func() error {
				key := domain.NewMessageKey(opts.Folder, name)
				message, err := store.Fetch(ctx, key)
				fetched.Add(1)
				if err != nil {
					failed.Add(1)
					logger.Warn("Failed to fetch message", "round", round, "name", name, "error", err.Error())
					return nil
				}

				logger.Info(
					"Fetched message",
					"round", round,
					"name", name,
					"contentType", message.ContentType,
					"length", message.Length,
					"elapsedMs", message.Elapsed.Milliseconds(),
				)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		fail("Failed to fetch folder", "error", err.Error())
	}

	uncached := slices.DeleteFunc(slices.Clone(names), func(name string) bool {
		return store.Cached(domain.NewMessageKey(opts.Folder, name))
	})

	logger.Info(
		"Done",
		"fetched", fetched.Load(),
		"failed", failed.Load(),
		"cached", store.Len(),
		"uncached", uncached,
		"durationMs", time.Since(start).Milliseconds(),
	)
}
