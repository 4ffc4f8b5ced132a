package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

const DefaultWorkers = 4

var (
	ErrPoolClosed   = errors.New("worker pool is closed")
	ErrTaskPanicked = errors.New("task panicked")
)

// Pool runs submitted tasks on a fixed set of worker goroutines.
// Tasks beyond the number of workers wait in a queue.
type Pool struct {
	workers int
	active  atomic.Int32

	mu     sync.Mutex
	ready  *sync.Cond
	queue  []func()
	closed bool
	wg     sync.WaitGroup
}

func New(workers int) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	p := &Pool{workers: workers}
	p.ready = sync.NewCond(&p.mu)

	p.wg.Add(workers)
	for range workers {
		go p.work()
	}

	return p
}

func (p *Pool) work() {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.ready.Wait()
		}
		if len(p.queue) == 0 {
			// Closed and drained
			p.mu.Unlock()
			return
		}
		run := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.mu.Unlock()

		run()
	}
}

func (p *Pool) Workers() int {
	return p.workers
}

// Active returns the number of tasks currently holding a worker
func (p *Pool) Active() int {
	return int(p.active.Load())
}

// Queued returns the number of tasks waiting for a worker
func (p *Pool) Queued() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.queue)
}

// Close stops accepting tasks and waits for queued and running tasks to finish
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.ready.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()
}

// Future is the eventual result of a submitted task
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Result returns the task result. Only valid after Done is closed.
func (f *Future[T]) Result() (T, error) {
	return f.value, f.err
}

func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var empty T
		return empty, ctx.Err()
	}
}

// Submit queues task on the pool and returns a future for its result.
//
// Submit never blocks. If ctx is done before a worker picks the task up the
// task is skipped and the future resolves with ctx.Err() right away.
func Submit[T any](ctx context.Context, p *Pool, task func(ctx context.Context) (T, error)) (*Future[T], error) {
	future := &Future[T]{done: make(chan struct{})}

	// Whoever claims the future first resolves it
	var claimed atomic.Bool
	stop := context.AfterFunc(ctx, func() {
		if claimed.CompareAndSwap(false, true) {
			future.err = ctx.Err()
			close(future.done)
		}
	})

	run := func() {
		stop()
		if !claimed.CompareAndSwap(false, true) {
			return
		}
		defer close(future.done)

		p.active.Add(1)
		defer p.active.Add(-1)

		future.value, future.err = runTask(ctx, task)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		stop()
		return nil, ErrPoolClosed
	}

	p.queue = append(p.queue, run)
	p.ready.Signal()

	return future, nil
}

func runTask[T any](ctx context.Context, task func(ctx context.Context) (T, error)) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var empty T
			value = empty
			err = fmt.Errorf("%w: %v", ErrTaskPanicked, r)
		}
	}()

	return task(ctx)
}
