package threadbound

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
)

// Worker is a [Dispatcher] that owns a dedicated goroutine, locked to its OS
// thread for its lifetime. The goroutine exists from construction, so the
// worker's identity is known before it is started.
type Worker struct {
	*dispatcher
	err     error
	start   chan Operation
	exited  chan struct{}
	started atomic.Bool
}

var _ Dispatcher = (*Worker)(nil)

// NewWorker creates a new Worker, returning once its goroutine is bound.
// The binding options, [WithBoundThread] and [WithDeferredBinding], are not
// supported.
func NewWorker(opts ...Option) (*Worker, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	if cfg.bound != 0 || cfg.deferred {
		return nil, fmt.Errorf("%w: worker binds to its own goroutine", ErrInvalidOption)
	}
	return startWorker(newDispatcher("worker", newQueueProvider(), cfg))
}

// startWorker spawns the worker goroutine over d, returning once it is
// bound to d.
func startWorker(d *dispatcher) (*Worker, error) {
	w := &Worker{
		dispatcher: d,
		start:      make(chan Operation, 1),
		exited:     make(chan struct{}),
	}
	ready := make(chan error, 1)
	go w.loop(ready)
	if err := <-ready; err != nil {
		return nil, fmt.Errorf("threadbound: bind worker: %w", err)
	}
	return w, nil
}

func (w *Worker) loop(ready chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(w.exited)

	if err := w.dispatcher.Bind(); err != nil {
		ready <- err
		return
	}
	ready <- nil

	var main Operation
	select {
	case main = <-w.start:
	case <-w.dispatcher.shutdown:
		select {
		case main = <-w.start:
		default:
		}
	}

	w.err = w.dispatcher.Run(main)
}

// Start begins draining continuations on the worker's goroutine, without
// waiting. See [Dispatcher.Run] for the semantics of main.
func (w *Worker) Start(main Operation) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	w.start <- main
	return nil
}

// Wait blocks until the worker's run loop has exited, returning its result,
// or until ctx is done.
func (w *Worker) Wait(ctx context.Context) error {
	select {
	case <-w.exited:
		return w.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts the worker then waits for it. It may not be called from the
// worker itself.
func (w *Worker) Run(main Operation) error {
	if w.CheckAccess() {
		return ErrReentrantRun
	}
	if err := w.Start(main); err != nil {
		return err
	}
	return w.Wait(context.Background())
}
