package threadbound

import (
	"context"
	"sync"
)

// Operation is an asynchronous operation that completes exactly once.
// [Future] and [context.Context] both implement it.
type Operation interface {
	// Done is closed when the operation completes.
	Done() <-chan struct{}

	// Err returns the failure, if any, once Done is closed.
	Err() error
}

var (
	_ Operation = (*Future[any])(nil)
	_ Operation = context.Context(nil)
)

// Future is the eventual result of an operation.
type Future[T any] struct {
	value T
	err   error
	done  chan struct{}
	once  sync.Once
}

// NewFuture returns a pending future, and the func that completes it. Only
// the first call to complete has any effect.
func NewFuture[T any]() (*Future[T], func(T, error)) {
	f := &Future[T]{done: make(chan struct{})}
	return f, f.complete
}

// Go runs fn on a new goroutine, returning a future for its result. Panics
// are recovered as a [PanicError].
func Go[T any](fn func() (T, error)) *Future[T] {
	f, complete := NewFuture[T]()
	go func() {
		var (
			value T
			err   error
		)
		defer func() {
			if r := recover(); r != nil {
				err = newPanicError(r)
			}
			complete(value, err)
		}()
		value, err = fn()
	}()
	return f
}

func (f *Future[T]) complete(value T, err error) {
	f.once.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
	})
}

// Done implements [Operation].
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Err implements [Operation]. It returns nil until the future completes.
func (f *Future[T]) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// Result returns the value and error, which are zero until the future
// completes.
func (f *Future[T]) Result() (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	default:
		var zero T
		return zero, nil
	}
}

// Wait blocks until the future completes, or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
