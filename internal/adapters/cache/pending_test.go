package cache_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Amund211/msgstore/internal/adapters/cache"
	"github.com/stretchr/testify/require"
)

func TestHandle(t *testing.T) {
	t.Parallel()

	t.Run("all waiters get the same result", func(t *testing.T) {
		t.Parallel()

		registry := cache.NewPendingRegistry[string, string]()
		handle := registry.Register("key")

		const waiters = 10
		results := make(chan string, waiters)
		wg := sync.WaitGroup{}
		for range waiters {
			wg.Add(1)
			go func() {
				defer wg.Done()
				value, err := handle.Wait(context.Background())
				require.NoError(t, err)
				results <- value
			}()
		}

		require.True(t, handle.Resolve("data1", nil))
		wg.Wait()
		close(results)

		for value := range results {
			require.Equal(t, "data1", value)
		}
	})

	t.Run("second resolve is ignored", func(t *testing.T) {
		t.Parallel()

		registry := cache.NewPendingRegistry[string, string]()
		handle := registry.Register("key")

		require.True(t, handle.Resolve("first", nil))
		require.False(t, handle.Resolve("second", errors.New("error1")))

		value, err := handle.Wait(context.Background())
		require.NoError(t, err)
		require.Equal(t, "first", value)
	})

	t.Run("error is delivered", func(t *testing.T) {
		t.Parallel()

		registry := cache.NewPendingRegistry[string, string]()
		handle := registry.Register("key")
		errRead := errors.New("read failed")

		handle.Resolve("", errRead)

		_, err := handle.Wait(context.Background())
		require.ErrorIs(t, err, errRead)
	})

	t.Run("wait respects context", func(t *testing.T) {
		t.Parallel()

		registry := cache.NewPendingRegistry[string, string]()
		handle := registry.Register("key")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		_, err := handle.Wait(ctx)
		require.ErrorIs(t, err, context.DeadlineExceeded)

		select {
		case <-handle.Done():
			t.Fatal("handle should not be resolved by a cancelled waiter")
		default:
		}
	})
}

func TestPendingRegistry(t *testing.T) {
	t.Parallel()

	t.Run("lookup register remove", func(t *testing.T) {
		t.Parallel()

		registry := cache.NewPendingRegistry[string, int]()

		_, ok := registry.Lookup("key")
		require.False(t, ok)

		handle := registry.Register("key")
		found, ok := registry.Lookup("key")
		require.True(t, ok)
		require.Same(t, handle, found)
		require.Equal(t, 1, registry.Len())

		registry.Remove("key")
		_, ok = registry.Lookup("key")
		require.False(t, ok)
		require.Equal(t, 0, registry.Len())

		// Removing a missing key is a no-op
		registry.Remove("key")
	})

	t.Run("register twice panics", func(t *testing.T) {
		t.Parallel()

		registry := cache.NewPendingRegistry[string, int]()
		registry.Register("key")

		require.PanicsWithError(t, "key already has a pending handle: key", func() {
			registry.Register("key")
		})
	})

	t.Run("register after remove creates a fresh handle", func(t *testing.T) {
		t.Parallel()

		registry := cache.NewPendingRegistry[string, int]()
		first := registry.Register("key")
		first.Resolve(1, nil)
		registry.Remove("key")

		second := registry.Register("key")
		require.NotSame(t, first, second)

		select {
		case <-second.Done():
			t.Fatal("fresh handle should not be resolved")
		default:
		}
	})
}
