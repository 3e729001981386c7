package runner

import (
	"context"
	"sync"
)

// Future is the result of an asynchronous device operation. It is fulfilled
// exactly once; later fulfillments are ignored.
type Future[T any] struct {
	once  sync.Once
	done  chan struct{}
	mu    sync.Mutex
	value T
	err   error
	conts []func(T, error)
}

// NewFuture returns an unfulfilled future
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns a future that is already fulfilled
func Resolved[T any](value T, err error) *Future[T] {
	f := NewFuture[T]()
	f.Fulfill(value, err)
	return f
}

// Fulfill sets the outcome and runs registered continuations in registration
// order on the calling goroutine. It reports whether this call won.
func (f *Future[T]) Fulfill(value T, err error) bool {
	won := false
	f.once.Do(func() {
		won = true
		f.mu.Lock()
		f.value, f.err = value, err
		conts := f.conts
		f.conts = nil
		close(f.done)
		f.mu.Unlock()

		for _, fn := range conts {
			fn(value, err)
		}
	})
	return won
}

// Done is closed once the future is fulfilled
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Result returns the outcome without blocking; ok is false while pending
func (f *Future[T]) Result() (value T, ok bool, err error) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.value, true, f.err
	default:
		return value, false, nil
	}
}

// Wait blocks until the future is fulfilled or ctx is done. A cancelled wait
// leaves the future untouched.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// OnComplete registers fn to run once with the outcome. If the future is
// already fulfilled fn runs immediately on the calling goroutine.
func (f *Future[T]) OnComplete(fn func(T, error)) {
	f.mu.Lock()
	select {
	case <-f.done:
		value, err := f.value, f.err
		f.mu.Unlock()
		fn(value, err)
		return
	default:
	}
	f.conts = append(f.conts, fn)
	f.mu.Unlock()
}

// Then chains a continuation that produces the outcome of a new future
func Then[T, U any](f *Future[T], fn func(T, error) (U, error)) *Future[U] {
	next := NewFuture[U]()
	f.OnComplete(func(v T, err error) {
		next.Fulfill(fn(v, err))
	})
	return next
}
