package threadbound

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// Standard errors.
var (
	// ErrShutdown is returned when a continuation is submitted after shutdown
	// was requested.
	ErrShutdown = errors.New("threadbound: dispatcher is shutting down")

	// ErrTerminated is returned when the run loop has exited, including to
	// Send callers whose continuation was still queued at that point.
	ErrTerminated = errors.New("threadbound: dispatcher has terminated")

	// ErrAlreadyRunning is returned when Run (or Start) is called more than once.
	ErrAlreadyRunning = errors.New("threadbound: run loop already started")

	// ErrReentrantRun is returned when a Worker is run from its own goroutine.
	ErrReentrantRun = errors.New("threadbound: cannot run a worker from within itself")

	// ErrAlreadyBound is returned when binding a dispatcher that already has
	// a bound thread.
	ErrAlreadyBound = errors.New("threadbound: dispatcher is already bound to a thread")

	// ErrNilContinuation is returned when Send or Post receive a nil continuation.
	ErrNilContinuation = errors.New("threadbound: nil continuation")

	// ErrCurrentAlreadySet is returned by NewApp while another App is current.
	ErrCurrentAlreadySet = errors.New("threadbound: current app is already set")

	// ErrInvalidOption is returned when an option is not valid for a back-end.
	ErrInvalidOption = errors.New("threadbound: invalid option")
)

// ThreadMismatchError reports an operation attempted from a thread other than
// the one it requires, e.g. Run called from outside the bound thread.
type ThreadMismatchError struct {
	Expected ThreadID
	Actual   ThreadID
}

// Error implements the error interface.
func (e *ThreadMismatchError) Error() string {
	return fmt.Sprintf("threadbound: thread mismatch between bound and running: bound=%d, running=%d", e.Expected, e.Actual)
}

// PanicError wraps a value recovered from a panicking continuation.
type PanicError struct {
	Value any
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("threadbound: continuation panicked: %v", e.Value)
}

func newPanicError(value any) *PanicError {
	return &PanicError{Value: value, Stack: debug.Stack()}
}

// Unwrap returns the panic value, if it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// UnhandledError is passed to each subscriber registered with
// [Dispatcher.OnUnhandledError], on the bound thread. Setting Handled
// prevents the failure from terminating the run loop.
type UnhandledError struct {
	// Err is the failure, with single-child wrappers removed.
	Err error

	// Handled may be set by any subscriber.
	Handled bool
}

// Error implements the error interface.
func (e *UnhandledError) Error() string {
	return fmt.Sprintf("threadbound: unhandled error: %v", e.Err)
}

// Unwrap returns Err.
func (e *UnhandledError) Unwrap() error {
	return e.Err
}

// unwrapCause strips layers that carry no information beyond their sole
// cause: aggregates of exactly one error, and panics whose value is itself
// an error.
func unwrapCause(err error) error {
	for err != nil {
		switch e := err.(type) {
		case *PanicError:
			if inner, ok := e.Value.(error); ok && inner != nil {
				err = inner
				continue
			}
		case interface{ Unwrap() []error }:
			if errs := e.Unwrap(); len(errs) == 1 && errs[0] != nil {
				err = errs[0]
				continue
			}
		}
		return err
	}
	return nil
}
