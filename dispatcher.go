package threadbound

import (
	"sync"
	"sync/atomic"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

// MaxInlineDepth bounds how many nested Post calls, made on the bound
// thread, are executed inline. Beyond it, continuations are queued.
const MaxInlineDepth = 50

// Continuation is a unit of work executed on the bound thread.
type Continuation func(arg any) error

// Dispatcher schedules continuations onto a single bound thread.
//
// Implemented by [Queue], [Worker] and [Pump].
type Dispatcher interface {
	// BoundIdentity returns the bound thread, or zero if unbound.
	BoundIdentity() ThreadID

	// CheckAccess reports whether the caller is the bound thread.
	CheckAccess() bool

	// Bind binds an unbound dispatcher to the calling thread.
	Bind() error

	// Send runs fn on the bound thread, and waits for it to complete.
	// Called on the bound thread, fn runs immediately. If the run loop exits
	// before fn is executed, ErrTerminated is returned.
	Send(fn Continuation, arg any) error

	// Post schedules fn on the bound thread, without waiting. The returned
	// error only indicates whether fn was accepted. Failures of fn are
	// delivered to OnUnhandledError subscribers.
	Post(fn Continuation, arg any) error

	// Run drains continuations on the bound thread until shutdown. If main is
	// non-nil, its completion requests shutdown, and its failure is handled
	// like any other unhandled failure.
	Run(main Operation) error

	// Shutdown requests that the run loop exit, once all continuations
	// accepted so far have been executed. Safe to call more than once.
	Shutdown()

	// Done is closed once the run loop has exited.
	Done() <-chan struct{}

	// State returns the current lifecycle state.
	State() LoopState

	// OnUnhandledError registers fn to observe failures that have no
	// caller to return to. The returned func removes the subscription.
	OnUnhandledError(fn func(*UnhandledError)) (remove func())
}

// provider is the back-end specific part of a dispatcher: how continuations
// reach the bound thread, and how they are drained there.
type provider interface {
	// currentThreadID identifies the calling thread, in the back-end's terms.
	currentThreadID() ThreadID

	// enqueue delivers e to target, or returns ErrShutdown or ErrTerminated.
	enqueue(target ThreadID, e entry) error

	// drain blocks on target, passing each entry to exec, until shutdown.
	// A false return from exec means a fatal failure occurred.
	drain(target ThreadID, exec func(entry) bool) error

	// shutdown wakes the drain loop so it may exit.
	shutdown(target ThreadID, cause error)

	// release stops accepting entries, returning any not yet drained.
	release() []entry
}

// syncCall is the completion of a Send made off the bound thread.
type syncCall struct {
	err  error
	done chan struct{}
}

func (x *syncCall) complete(err error) {
	x.err = err
	close(x.done)
}

// entry is a queued continuation.
type entry struct {
	fn        Continuation
	arg       any
	call      *syncCall
	onAbandon func(error)
	// force entries are accepted after shutdown, until released
	force bool
}

var dispatcherIDs atomic.Uint64

// dispatcher implements the back-end independent parts of [Dispatcher].
type dispatcher struct {
	provider  provider
	logger    *logiface.Logger[logiface.Event]
	logLimits *catrate.Limiter
	fatal     error
	backend   string
	done      chan struct{}
	shutdown  chan struct{}

	subscribers subscriberList

	id      uint64
	bound   atomic.Uint64
	started atomic.Bool
	state   loopState

	// depth is only accessed on the bound thread.
	depth int

	fatalMu      sync.Mutex
	shutdownOnce sync.Once
}

func newDispatcher(backend string, p provider, cfg *options) *dispatcher {
	d := &dispatcher{
		provider:  p,
		logger:    cfg.logger,
		logLimits: cfg.logLimits,
		backend:   backend,
		done:      make(chan struct{}),
		shutdown:  make(chan struct{}),
		id:        dispatcherIDs.Add(1),
	}
	d.bound.Store(uint64(cfg.bound))
	return d
}

func (d *dispatcher) BoundIdentity() ThreadID {
	return ThreadID(d.bound.Load())
}

func (d *dispatcher) CheckAccess() bool {
	bound := d.BoundIdentity()
	return bound != 0 && bound == d.provider.currentThreadID()
}

func (d *dispatcher) Bind() error {
	if d.bound.CompareAndSwap(0, uint64(d.provider.currentThreadID())) {
		return nil
	}
	return ErrAlreadyBound
}

func (d *dispatcher) Done() <-chan struct{} {
	return d.done
}

func (d *dispatcher) State() LoopState {
	return d.state.Load()
}

func (d *dispatcher) OnUnhandledError(fn func(*UnhandledError)) (remove func()) {
	return d.subscribers.add(fn)
}

func (d *dispatcher) Send(fn Continuation, arg any) error {
	if fn == nil {
		return ErrNilContinuation
	}
	if d.CheckAccess() {
		if d.state.Load() == StateTerminated {
			return ErrTerminated
		}
		return d.invoke(fn, arg)
	}
	call := &syncCall{done: make(chan struct{})}
	if err := d.provider.enqueue(d.BoundIdentity(), entry{fn: fn, arg: arg, call: call}); err != nil {
		return err
	}
	<-call.done
	return call.err
}

func (d *dispatcher) Post(fn Continuation, arg any) error {
	if fn == nil {
		return ErrNilContinuation
	}
	if d.CheckAccess() && d.depth < MaxInlineDepth {
		if d.state.Load() == StateTerminated || d.fatalCause() != nil {
			return ErrTerminated
		}
		d.depth++
		err := d.invoke(fn, arg)
		d.depth--
		if err != nil {
			d.raise(err)
		}
		return nil
	}
	return d.provider.enqueue(d.BoundIdentity(), entry{fn: fn, arg: arg})
}

// postObserved is Post, calling onAbandon if fn is accepted but never run.
func (d *dispatcher) postObserved(fn Continuation, arg any, onAbandon func(error)) error {
	if fn == nil {
		return ErrNilContinuation
	}
	if d.CheckAccess() && d.depth < MaxInlineDepth {
		return d.Post(fn, arg)
	}
	return d.provider.enqueue(d.BoundIdentity(), entry{fn: fn, arg: arg, onAbandon: onAbandon})
}

func (d *dispatcher) Shutdown() {
	d.requestShutdown(nil)
}

func (d *dispatcher) Run(main Operation) error {
	current := d.provider.currentThreadID()
	if !d.bound.CompareAndSwap(0, uint64(current)) {
		if bound := d.BoundIdentity(); bound != current {
			return &ThreadMismatchError{Expected: bound, Actual: current}
		}
	}
	if !d.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	d.state.TryTransition(StateAwake, StateRunning)

	d.logRunStarted(current)

	if main != nil {
		go d.watch(current, main)
	}

	err := d.provider.drain(current, d.execute)

	d.terminate()

	if cause := d.fatalCause(); cause != nil {
		err = cause
	}

	d.logRunStopped(err)

	return err
}

// execute runs a drained entry, returning false once a fatal failure has
// occurred. Entries received after that point are abandoned.
func (d *dispatcher) execute(e entry) bool {
	if d.fatalCause() != nil {
		d.abandon([]entry{e}, ErrTerminated)
		return false
	}
	err := d.invoke(e.fn, e.arg)
	if e.call != nil {
		e.call.complete(err)
	} else if err != nil {
		d.raise(err)
	}
	return d.fatalCause() == nil
}

// invoke calls fn, converting any panic into a *PanicError, and unwrapping
// the outcome to its sole cause, if any. Failures therefore read the same
// whether fn ran inline or was queued.
func (d *dispatcher) invoke(fn Continuation, arg any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newPanicError(r)
		}
		err = unwrapCause(err)
	}()
	return fn(arg)
}

// raise delivers an asynchronous failure to subscribers, on the bound
// thread. Unless a subscriber marks it handled, it becomes fatal.
func (d *dispatcher) raise(err error) {
	err = unwrapCause(err)
	if err == nil {
		return
	}
	ue := &UnhandledError{Err: err}
	d.notify(ue)
	if !ue.Handled {
		d.fail(err)
	}
}

// fail records the first fatal cause, and requests shutdown.
func (d *dispatcher) fail(err error) {
	d.fatalMu.Lock()
	first := d.fatal == nil
	if first {
		d.fatal = err
	}
	d.fatalMu.Unlock()
	if first {
		d.logFatal(err)
		d.requestShutdown(err)
	}
}

func (d *dispatcher) fatalCause() error {
	d.fatalMu.Lock()
	defer d.fatalMu.Unlock()
	return d.fatal
}

func (d *dispatcher) requestShutdown(cause error) {
	d.shutdownOnce.Do(func() {
		d.state.TransitionAny([]LoopState{StateAwake, StateRunning}, StateTerminating)
		close(d.shutdown)
		d.provider.shutdown(d.BoundIdentity(), cause)
	})
}

// watch waits for the main operation, then completes it on the bound thread.
func (d *dispatcher) watch(bound ThreadID, main Operation) {
	select {
	case <-main.Done():
	case <-d.done:
		return
	}
	select {
	case <-d.done:
		return
	default:
	}
	cause := unwrapCause(main.Err())
	lost := func(reason error) {
		if cause != nil {
			d.logMainLost(cause, reason)
		}
	}
	err := d.provider.enqueue(bound, entry{
		fn: func(any) error {
			d.completeMain(cause)
			return nil
		},
		onAbandon: lost,
		force:     true,
	})
	if err != nil {
		lost(err)
	}
}

func (d *dispatcher) completeMain(cause error) {
	if cause != nil {
		d.raise(cause)
	}
	d.requestShutdown(nil)
}

// terminate is called on the bound thread, after the drain loop exits.
func (d *dispatcher) terminate() {
	d.state.Store(StateTerminated)
	// consumed without waking the provider, as the loop has already exited
	d.shutdownOnce.Do(func() { close(d.shutdown) })
	d.abandon(d.provider.release(), ErrTerminated)
	close(d.done)
}

// abandon resolves entries that will never be executed.
func (d *dispatcher) abandon(entries []entry, reason error) {
	var dropped int
	for _, e := range entries {
		switch {
		case e.call != nil:
			e.call.complete(reason)
		case e.onAbandon != nil:
			e.onAbandon(reason)
		default:
			dropped++
		}
	}
	d.logAbandoned(dropped)
}
