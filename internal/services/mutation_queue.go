package services

import (
	"context"
	"sync"
)

type mutation struct {
	ctx  context.Context
	fn   func(context.Context) error
	done chan error
}

// mutationQueue runs submitted functions one at a time, in submission order,
// on a single worker goroutine.
type mutationQueue struct {
	tasks   chan mutation
	stopped chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

func newMutationQueue(buffer int) *mutationQueue {
	q := &mutationQueue{
		tasks:   make(chan mutation, buffer),
		stopped: make(chan struct{}),
	}
	q.wg.Add(1)
	go q.worker()
	return q
}

func (q *mutationQueue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.stopped:
			return
		case m := <-q.tasks:
			if err := m.ctx.Err(); err != nil {
				m.done <- err
				continue
			}
			m.done <- m.fn(m.ctx)
		}
	}
}

// Do queues fn and waits for its result. A caller whose context ends while
// waiting gets the context error; fn itself still runs if it was dequeued.
func (q *mutationQueue) Do(ctx context.Context, fn func(context.Context) error) error {
	m := mutation{ctx: ctx, fn: fn, done: make(chan error, 1)}
	select {
	case <-q.stopped:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	case q.tasks <- m:
	}
	select {
	case err := <-m.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-q.stopped:
		// The worker may have finished m just before stopping.
		select {
		case err := <-m.done:
			return err
		default:
			return ErrQueueClosed
		}
	}
}

// Close stops the worker after the mutation in flight, if any.
func (q *mutationQueue) Close() {
	q.once.Do(func() { close(q.stopped) })
	q.wg.Wait()
}
