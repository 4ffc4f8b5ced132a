package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var ErrAlreadyPending = errors.New("key already has a pending handle")

// Handle is a write-once result slot shared by every caller waiting on the same key
type Handle[V any] struct {
	done chan struct{}
	once sync.Once

	value V
	err   error
}

func newHandle[V any]() *Handle[V] {
	return &Handle[V]{done: make(chan struct{})}
}

// Resolve stores the result and releases all waiters.
// Only the first call has an effect, later calls return false.
func (h *Handle[V]) Resolve(value V, err error) bool {
	resolved := false
	h.once.Do(func() {
		h.value = value
		h.err = err
		close(h.done)
		resolved = true
	})
	return resolved
}

func (h *Handle[V]) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the handle is resolved or ctx is done
func (h *Handle[V]) Wait(ctx context.Context) (V, error) {
	select {
	case <-h.done:
		return h.value, h.err
	case <-ctx.Done():
		var empty V
		return empty, ctx.Err()
	}
}

// PendingRegistry maps keys to the handle of their in-flight fetch.
//
// PendingRegistry does no locking of its own. Callers must serialize access,
// and must call Lookup before Register within the same critical section.
type PendingRegistry[K comparable, V any] struct {
	handles map[K]*Handle[V]
}

func NewPendingRegistry[K comparable, V any]() *PendingRegistry[K, V] {
	return &PendingRegistry[K, V]{
		handles: make(map[K]*Handle[V]),
	}
}

func (r *PendingRegistry[K, V]) Lookup(key K) (*Handle[V], bool) {
	handle, ok := r.handles[key]
	return handle, ok
}

// Register creates the handle for key. Panics if key is already pending.
func (r *PendingRegistry[K, V]) Register(key K) *Handle[V] {
	if _, ok := r.handles[key]; ok {
		panic(fmt.Errorf("%w: %v", ErrAlreadyPending, key))
	}

	handle := newHandle[V]()
	r.handles[key] = handle
	return handle
}

func (r *PendingRegistry[K, V]) Remove(key K) {
	delete(r.handles, key)
}

func (r *PendingRegistry[K, V]) Len() int {
	return len(r.handles)
}
