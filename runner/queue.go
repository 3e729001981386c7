package runner

import (
	"sync"
)

// submission is one queued unit of device work
type submission struct {
	run  func() error
	done *Future[struct{}]
}

// Queue is a FIFO submission channel drained by a single worker goroutine.
// Units run in submission order and each completes exactly once. The
// backlog is unbounded so completion callbacks may submit more work, but a
// callback must not call Close.
type Queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending []submission
	closed  bool
	stopped chan struct{}
}

// NewQueue starts the worker goroutine
func NewQueue() *Queue {
	q := &Queue{stopped: make(chan struct{})}
	q.cond = sync.NewCond(&q.mu)
	go q.loop()
	return q
}

// Submit enqueues run and returns its completion future. After Close the
// future fails with ErrQueueClosed.
func (q *Queue) Submit(run func() error) *Future[struct{}] {
	done := NewFuture[struct{}]()
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		done.Fulfill(struct{}{}, ErrQueueClosed)
		return done
	}
	q.pending = append(q.pending, submission{run: run, done: done})
	q.cond.Signal()
	q.mu.Unlock()
	return done
}

func (q *Queue) loop() {
	defer close(q.stopped)
	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.pending) == 0 && q.closed {
			q.mu.Unlock()
			return
		}
		next := q.pending[0]
		q.pending[0] = submission{}
		q.pending = q.pending[1:]
		q.mu.Unlock()

		err := next.run()
		next.done.Fulfill(struct{}{}, err)
	}
}

// Close stops intake and waits for queued work to drain
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		q.cond.Broadcast()
	}
	q.mu.Unlock()
	<-q.stopped
}
