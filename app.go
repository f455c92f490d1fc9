package threadbound

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// current is the process-wide App, if any.
var current atomic.Pointer[App]

// App binds a [Dispatcher] as the process-wide current instance, and
// provides typed helpers for scheduling work onto it.
type App struct {
	d         Dispatcher
	closeOnce sync.Once
}

// abandonObserver is implemented by all dispatchers in this package.
type abandonObserver interface {
	postObserved(fn Continuation, arg any, onAbandon func(error)) error
}

// NewApp installs a new App over d, as the current App. It fails with
// [ErrCurrentAlreadySet] if the current App has not been closed, unless its
// dispatcher has terminated.
func NewApp(d Dispatcher) (*App, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: nil dispatcher", ErrInvalidOption)
	}
	a := &App{d: d}
	for {
		prev := current.Load()
		if prev != nil && prev.d.State() != StateTerminated {
			return nil, ErrCurrentAlreadySet
		}
		if current.CompareAndSwap(prev, a) {
			return a, nil
		}
	}
}

// Current returns the current App, or nil.
func Current() *App {
	return current.Load()
}

// Dispatcher returns the underlying dispatcher.
func (a *App) Dispatcher() Dispatcher {
	return a.d
}

// Close shuts down the dispatcher, and uninstalls a as the current App.
// It is safe to call more than once.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		a.d.Shutdown()
		current.CompareAndSwap(a, nil)
	})
	return nil
}

// Run runs the dispatcher. See [Dispatcher.Run].
func (a *App) Run(main Operation) error {
	return a.d.Run(main)
}

// RunFunc runs the dispatcher until fn, called on a new goroutine, returns.
// An error from fn is treated as an unhandled failure.
func (a *App) RunFunc(fn func() error) error {
	return a.d.Run(Go(func() (struct{}, error) {
		return struct{}{}, fn()
	}))
}

// Shutdown requests that the dispatcher's run loop exit.
func (a *App) Shutdown() {
	a.d.Shutdown()
}

// Invoke runs fn on the bound thread, and waits for it.
func (a *App) Invoke(fn func() error) error {
	return a.d.Send(func(any) error {
		return fn()
	}, nil)
}

// BeginInvoke schedules fn on the bound thread, without waiting.
func (a *App) BeginInvoke(fn func()) error {
	return a.d.Post(func(any) error {
		fn()
		return nil
	}, nil)
}

// InvokeValue runs fn on the bound thread of a, and waits for its result.
func InvokeValue[T any](a *App, fn func() (T, error)) (T, error) {
	var value T
	err := a.d.Send(func(any) (err error) {
		value, err = fn()
		return err
	}, nil)
	return value, err
}

// InvokeAsync schedules fn on the bound thread of a, returning a future for
// its result. Failures of fn are reported through the future only.
func InvokeAsync[T any](a *App, fn func() (T, error)) *Future[T] {
	f, complete := NewFuture[T]()

	task := func(any) error {
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
		return nil
	}
	fail := func(err error) {
		var zero T
		complete(zero, err)
	}

	var err error
	if x, ok := a.d.(abandonObserver); ok {
		err = x.postObserved(task, nil, fail)
	} else {
		err = a.d.Post(task, nil)
	}
	if err != nil {
		fail(err)
	}

	return f
}

type appContextKey struct{}

// NewContext returns a copy of ctx carrying a.
func NewContext(ctx context.Context, a *App) context.Context {
	return context.WithValue(ctx, appContextKey{}, a)
}

// FromContext returns the App carried by ctx, or nil.
func FromContext(ctx context.Context) *App {
	a, _ := ctx.Value(appContextKey{}).(*App)
	return a
}
