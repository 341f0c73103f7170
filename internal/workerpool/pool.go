// Package workerpool provides a bounded-concurrency task queue keyed
// by deduplication identity. It exists to cap how many interpreter
// probe subprocesses run at once on machines with many environments.
package workerpool

import (
	"context"
	"errors"
	"sync"
)

var errTaskPanicked = errors.New("workerpool: task panicked")

// Priority selects which end of the pending queue a task joins.
type Priority int

const (
	// PriorityBack appends the task behind all pending work.
	PriorityBack Priority = iota
	// PriorityFront inserts ahead of pending default-priority items
	// (never ahead of work already executing).
	PriorityFront
)

// TaskFunc computes a result. A returned error resolves the future to
// absence; it is never propagated to callers.
type TaskFunc[T any] func(ctx context.Context) (T, error)

// Future is the handle returned by Submit. All callers that submitted
// the same key before resolution share one Future and the task runs
// exactly once.
type Future[T any] struct {
	done   chan struct{}
	result T
	ok     bool
}

// Wait blocks until the task resolves or ctx is done. The bool is
// false when the task failed or ctx expired first; callers must treat
// that as "could not determine", not as an error.
func (f *Future[T]) Wait(ctx context.Context) (T, bool) {
	select {
	case <-f.done:
		return f.result, f.ok
	case <-ctx.Done():
		var zero T
		return zero, false
	}
}

// Done returns a channel closed when the task resolves.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

type item[T any] struct {
	key    string
	fn     TaskFunc[T]
	future *Future[T]
}

// Pool executes submitted tasks on a fixed number of workers. The
// queue is unbounded; only concurrency is capped.
type Pool[T any] struct {
	mu      sync.Mutex
	cond    *sync.Cond
	front   []*item[T]
	back    []*item[T]
	futures map[string]*Future[T]
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New starts a pool with the given worker count (minimum 1).
func New[T any](workers int) *Pool[T] {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool[T]{
		futures: make(map[string]*Future[T]),
		ctx:     ctx,
		cancel:  cancel,
	}
	p.cond = sync.NewCond(&p.mu)
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

// Submit enqueues fn under key. If key already has an in-flight task
// or a successfully completed one, the existing Future is returned and
// fn is dropped. Failed tasks vacate their key so a later Submit may
// retry.
func (p *Pool[T]) Submit(key string, priority Priority, fn TaskFunc[T]) *Future[T] {
	p.mu.Lock()
	defer p.mu.Unlock()

	if f, ok := p.futures[key]; ok {
		return f
	}

	f := &Future[T]{done: make(chan struct{})}
	if p.closed {
		// Resolve immediately to absence rather than hanging callers.
		close(f.done)
		return f
	}
	p.futures[key] = f

	it := &item[T]{key: key, fn: fn, future: f}
	if priority == PriorityFront {
		p.front = append(p.front, it)
	} else {
		p.back = append(p.back, it)
	}
	p.cond.Signal()
	return f
}

// Close stops accepting work, cancels the task context and waits for
// in-flight tasks to finish. Pending tasks resolve to absence.
func (p *Pool[T]) Close() {
	p.mu.Lock()
	p.closed = true
	pending := append(p.front, p.back...)
	p.front, p.back = nil, nil
	for _, it := range pending {
		delete(p.futures, it.key)
		close(it.future.done)
	}
	p.cond.Broadcast()
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}

func (p *Pool[T]) worker() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for !p.closed && len(p.front) == 0 && len(p.back) == 0 {
			p.cond.Wait()
		}
		if p.closed {
			p.mu.Unlock()
			return
		}
		it := p.pop()
		p.mu.Unlock()

		result, err := p.run(it)

		p.mu.Lock()
		if err != nil {
			// Absence is retryable: vacate the key so the next Submit
			// re-runs the task.
			delete(p.futures, it.key)
		} else {
			it.future.result = result
			it.future.ok = true
		}
		close(it.future.done)
		p.mu.Unlock()
	}
}

// pop takes the next item, front band first, FIFO within each band.
// Caller holds the lock.
func (p *Pool[T]) pop() *item[T] {
	if len(p.front) > 0 {
		it := p.front[0]
		p.front = p.front[1:]
		return it
	}
	it := p.back[0]
	p.back = p.back[1:]
	return it
}

// run executes the task, converting panics into failures so one bad
// probe never takes the pool down.
func (p *Pool[T]) run(it *item[T]) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			result = zero
			err = errTaskPanicked
		}
	}()
	return it.fn(p.ctx)
}
