package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/Amund211/msgstore/internal/adapters/cache"
	"github.com/Amund211/msgstore/internal/domain"
	"github.com/Amund211/msgstore/internal/logging"
	"github.com/Amund211/msgstore/internal/workerpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const DefaultCapacity = 100

type FetchMessage func(ctx context.Context, key domain.MessageKey) (domain.Message, error)

type messageReader interface {
	ReadMessage(ctx context.Context, key domain.MessageKey) (domain.Message, error)
}

// FailurePolicy decides whether a failed read is stored in the cache
type FailurePolicy int

const (
	// CacheFailures stores failed reads so later fetches get the same error until evicted
	CacheFailures FailurePolicy = iota
	// RetryFailures hands a failed read to the current waiters only
	RetryFailures
)

func (p FailurePolicy) String() string {
	switch p {
	case CacheFailures:
		return "cache"
	case RetryFailures:
		return "retry"
	}
	return fmt.Sprintf("FailurePolicy(%d)", int(p))
}

type cachedMessage struct {
	message domain.Message
	err     error
}

// MessageStore serves messages from an LRU cache, coalescing concurrent
// fetches of the same key into a single read on the worker pool.
//
// mu guards cache, pending and stale. It is never held while waiting on a read.
type MessageStore struct {
	reader        messageReader
	pool          *workerpool.Pool
	failurePolicy FailurePolicy

	mu      sync.Mutex
	cache   *cache.LRU[domain.MessageKey, cachedMessage]
	pending *cache.PendingRegistry[domain.MessageKey, domain.Message]
	// Pending keys forgotten while their read was in flight. Their result is not cached.
	stale map[domain.MessageKey]struct{}

	tracer trace.Tracer
}

func NewMessageStore(
	reader messageReader,
	pool *workerpool.Pool,
	capacity int,
	failurePolicy FailurePolicy,
) (*MessageStore, error) {
	lru, err := cache.NewLRU[domain.MessageKey, cachedMessage](capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create message cache: %w", err)
	}

	return &MessageStore{
		reader:        reader,
		pool:          pool,
		failurePolicy: failurePolicy,

		cache:   lru,
		pending: cache.NewPendingRegistry[domain.MessageKey, domain.Message](),
		stale:   make(map[domain.MessageKey]struct{}),

		tracer: otel.Tracer("msgstore/app/messagestore"),
	}, nil
}

// Fetch returns the message for key, reading it on the worker pool at most
// once no matter how many callers ask for it concurrently.
func (s *MessageStore) Fetch(ctx context.Context, key domain.MessageKey) (domain.Message, error) {
	ctx, span := s.tracer.Start(ctx, "MessageStore.Fetch", trace.WithAttributes(
		attribute.String("key", key.String()),
	))
	defer span.End()

	ctx = logging.AddKeyToContext(ctx, key)
	logger := logging.FromContext(ctx)

	s.mu.Lock()
	if entry, ok := s.cache.Get(key); ok {
		s.mu.Unlock()
		logger.InfoContext(ctx, "Fetching message", "cache", "hit")
		return entry.message, entry.err
	}

	handle, inFlight := s.pending.Lookup(key)
	if !inFlight {
		s.pending.Register(key)
	}
	s.mu.Unlock()

	if inFlight {
		logger.InfoContext(ctx, "Fetching message", "cache", "pending")
		return handle.Wait(ctx)
	}

	logger.InfoContext(ctx, "Fetching message", "cache", "miss")
	return s.read(ctx, key)
}

// read dispatches the read for a key this caller registered and records the outcome
func (s *MessageStore) read(ctx context.Context, key domain.MessageKey) (domain.Message, error) {
	// The read outlives the originator's cancellation since others may be waiting on it
	readCtx := context.WithoutCancel(ctx)

	future, err := workerpool.Submit(readCtx, s.pool, func(ctx context.Context) (domain.Message, error) {
		return s.reader.ReadMessage(ctx, key)
	})
	if err != nil {
		err := fmt.Errorf("failed to submit read for %s: %w", key, err)
		s.abandon(key, err)
		return domain.Message{}, err
	}

	select {
	case <-future.Done():
		message, err := future.Result()
		s.complete(key, message, err)
		return message, err
	case <-ctx.Done():
		logging.FromContext(ctx).WarnContext(ctx, "Stopped waiting for message read", "ctx_error", ctx.Err())
		go func() {
			<-future.Done()
			message, err := future.Result()
			s.complete(key, message, err)
		}()
		return domain.Message{}, ctx.Err()
	}
}

func (s *MessageStore) complete(key domain.MessageKey, message domain.Message, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, stale := s.stale[key]
	delete(s.stale, key)

	if !stale && (err == nil || s.failurePolicy == CacheFailures) {
		s.cache.Add(key, cachedMessage{message: message, err: err})
	}

	s.resolvePending(key, message, err)
}

// abandon releases waiters on a read that never ran, without caching anything
func (s *MessageStore) abandon(key domain.MessageKey, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.stale, key)
	s.resolvePending(key, domain.Message{}, err)
}

// resolvePending must be called with mu held
func (s *MessageStore) resolvePending(key domain.MessageKey, message domain.Message, err error) {
	handle, ok := s.pending.Lookup(key)
	if !ok {
		return
	}

	s.pending.Remove(key)
	// Resolving an already resolved handle is a no-op
	handle.Resolve(message, err)
}

// Forget drops the cached entry for key so the next Fetch reads it again.
// A read in flight for key still resolves its waiters, but its result is not cached.
// Reports whether there was anything to forget.
func (s *MessageStore) Forget(key domain.MessageKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, inFlight := s.pending.Lookup(key)
	if inFlight {
		s.stale[key] = struct{}{}
	}

	return s.cache.Remove(key) || inFlight
}

// Cached reports whether key has a cached result, without marking it as recently used
func (s *MessageStore) Cached(key domain.MessageKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cache.Contains(key)
}

func (s *MessageStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cache.Len()
}

// Keys returns the cached keys from least to most recently used
func (s *MessageStore) Keys() []domain.MessageKey {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cache.Keys()
}

func (s *MessageStore) staleLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.stale)
}

func (s *MessageStore) pendingLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.pending.Len()
}

// Type assertion
var _ FetchMessage = (*MessageStore)(nil).Fetch
