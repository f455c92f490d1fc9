package threadbound

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// NativeEvent is an event delivered by a [NativePump].
type NativeEvent struct {
	// Native is the host's own representation of the event, if any.
	Native any

	// Param1 and Param2 are the event parameters.
	Param1, Param2 uintptr

	// Tag identifies the kind of event.
	Tag uint32
}

// NativePump models a host-owned event loop, with per-thread event queues,
// e.g. a Win32 message loop. See the nativepump package for implementations.
type NativePump interface {
	// CurrentOSThreadID returns the host's id for the calling OS thread.
	CurrentOSThreadID() ThreadID

	// RegisterEventTag returns the tag for a custom event name. The same
	// name yields the same tag.
	RegisterEventTag(name string) (uint32, error)

	// WaitNextEvent blocks until an event is available for the calling
	// thread, returning false when the quit sentinel was received.
	WaitNextEvent() (NativeEvent, bool, error)

	// PostCustomEvent enqueues an event on the given thread, without waiting.
	PostCustomEvent(thread ThreadID, tag uint32, param1, param2 uintptr) error

	// PostQuit enqueues the quit sentinel on the given thread.
	PostQuit(thread ThreadID) error

	// TranslateEvent applies any host translation, prior to dispatch.
	TranslateEvent(ev *NativeEvent)

	// DispatchEvent delivers an event to the host's handlers.
	DispatchEvent(ev *NativeEvent)
}

// Pump is a [Dispatcher] that delivers continuations through a host-owned
// [NativePump], as custom events, interleaved with the host's own events.
//
// A Pump is bound to an OS thread. The goroutine that constructs (unless
// [WithBoundThread] is used) and runs it must be locked to its thread, via
// [runtime.LockOSThread]. [WithDeferredBinding] is not supported.
type Pump struct {
	*dispatcher
	native  NativePump
	handles *handleTable
	tagName string
	tag     uint32
}

var _ Dispatcher = (*Pump)(nil)

// NewPump creates a new Pump, registering a custom event tag unique to it.
func NewPump(native NativePump, opts ...Option) (*Pump, error) {
	if native == nil {
		return nil, fmt.Errorf("%w: nil native pump", ErrInvalidOption)
	}
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	if cfg.deferred {
		return nil, fmt.Errorf("%w: pump does not support deferred binding", ErrInvalidOption)
	}

	p := &Pump{
		native:  native,
		handles: newHandleTable(),
		tagName: "threadbound.pump." + uuid.New().String(),
	}

	if p.tag, err = native.RegisterEventTag(p.tagName); err != nil {
		return nil, fmt.Errorf("threadbound: register event tag %q: %w", p.tagName, err)
	}

	if cfg.bound == 0 {
		cfg.bound = native.CurrentOSThreadID()
	}

	p.dispatcher = newDispatcher("pump", &pumpProvider{pump: p}, cfg)

	return p, nil
}

// Tag returns the custom event tag used to deliver continuations.
func (p *Pump) Tag() uint32 {
	return p.tag
}

// TagName returns the name the custom event tag was registered under.
func (p *Pump) TagName() string {
	return p.tagName
}

// Pending returns the number of continuations posted to the host but not
// yet received.
func (p *Pump) Pending() int {
	return p.handles.len()
}

type pumpProvider struct {
	pump     *Pump
	mu       sync.Mutex
	closed   bool
	released bool
}

func (x *pumpProvider) currentThreadID() ThreadID {
	return x.pump.native.CurrentOSThreadID()
}

func (x *pumpProvider) enqueue(target ThreadID, e entry) error {
	x.mu.Lock()
	if x.released {
		x.mu.Unlock()
		return ErrTerminated
	}
	if x.closed && !e.force {
		x.mu.Unlock()
		return ErrShutdown
	}
	cont, arg := x.pump.handles.alloc(e)
	x.mu.Unlock()

	if err := x.pump.native.PostCustomEvent(target, x.pump.tag, cont, arg); err != nil {
		// reclaim, unless already released
		x.pump.handles.take(cont, arg)
		return fmt.Errorf("threadbound: post custom event: %w", err)
	}

	return nil
}

// drain pumps native events until the quit sentinel. After a fatal failure,
// exec abandons each continuation received, but pumping continues until
// quit, so that the sentinel is consumed.
func (x *pumpProvider) drain(_ ThreadID, exec func(entry) bool) error {
	native := x.pump.native
	for {
		ev, ok, err := native.WaitNextEvent()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		if ev.Tag == x.pump.tag {
			e, ok := x.pump.handles.take(ev.Param1, ev.Param2)
			if !ok {
				x.pump.logUnknownHandle(ev.Param1, ev.Param2)
				continue
			}
			exec(e)
			continue
		}

		native.TranslateEvent(&ev)
		native.DispatchEvent(&ev)
	}
}

func (x *pumpProvider) shutdown(target ThreadID, _ error) {
	x.mu.Lock()
	x.closed = true
	x.mu.Unlock()
	if err := x.pump.native.PostQuit(target); err != nil {
		x.pump.logShutdownFailed(err)
	}
}

func (x *pumpProvider) release() []entry {
	x.mu.Lock()
	x.closed = true
	x.released = true
	x.mu.Unlock()
	return x.pump.handles.drainAll()
}
