package session

import (
	"context"
	"sync"
)

type task struct {
	ctx  context.Context
	fn   func(context.Context) error
	err  error
	done chan struct{}
}

// Queue runs tasks one at a time on a single worker goroutine. Tasks run in
// submission order, except that DoFront submissions form a separate segment
// that always drains first (FIFO within each segment). A task error resolves
// only that task; the worker keeps going.
type Queue struct {
	mu     sync.Mutex
	front  []*task
	back   []*task
	closed bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

func NewQueue() *Queue {
	q := &Queue{
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

// Do submits fn and blocks until it has run, returning its error. When ctx
// ends first the caller is released with ctx.Err(); the task is then skipped
// if it has not started, but a task that already started runs to completion.
func (q *Queue) Do(ctx context.Context, fn func(context.Context) error) error {
	return q.submit(ctx, fn, false)
}

// DoFront submits fn ahead of every task waiting in the normal segment.
func (q *Queue) DoFront(ctx context.Context, fn func(context.Context) error) error {
	return q.submit(ctx, fn, true)
}

func (q *Queue) submit(ctx context.Context, fn func(context.Context) error, front bool) error {
	t := &task{ctx: ctx, fn: fn, done: make(chan struct{})}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	if front {
		q.front = append(q.front, t)
	} else {
		q.back = append(q.back, t)
	}
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}

	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) run() {
	defer close(q.done)

	for {
		select {
		case <-q.stop:
			q.failPending()
			return
		default:
		}

		t := q.next()
		if t == nil {
			select {
			case <-q.wake:
				continue
			case <-q.stop:
				q.failPending()
				return
			}
		}
		// A canceled task is resolved without running so one abandoned
		// caller cannot make the worker do stale work.
		if err := t.ctx.Err(); err != nil {
			t.err = err
			close(t.done)
			continue
		}
		t.err = t.fn(t.ctx)
		close(t.done)
	}
}

// next pops the oldest waiting task, front segment first.
func (q *Queue) next() *task {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.front) > 0 {
		t := q.front[0]
		q.front = q.front[1:]
		return t
	}
	if len(q.back) > 0 {
		t := q.back[0]
		q.back = q.back[1:]
		return t
	}
	return nil
}

// failPending resolves every waiting task with ErrQueueClosed.
func (q *Queue) failPending() {
	q.mu.Lock()
	pending := append(q.front, q.back...)
	q.front, q.back = nil, nil
	q.mu.Unlock()

	for _, t := range pending {
		t.err = ErrQueueClosed
		close(t.done)
	}
}

// Close stops the worker after the running task finishes. Tasks still
// waiting, and any submitted later, fail with ErrQueueClosed.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	close(q.stop)
	<-q.done
}
