package nativepump

import (
	"errors"

	"github.com/joeycumines/go-threadbound"
)

// Standard errors.
var (
	ErrClosed              = errors.New("nativepump: host closed")
	ErrAlreadyOpen         = errors.New("nativepump: host already open on this thread")
	ErrNoHost              = errors.New("nativepump: no host open on the target thread")
	ErrWrongThread         = errors.New("nativepump: host used from a thread other than its own")
	ErrInvalidTagName      = errors.New("nativepump: invalid event tag name")
	ErrFDOutOfRange        = errors.New("nativepump: fd out of range")
	ErrFDAlreadyRegistered = errors.New("nativepump: fd already registered")
	ErrFDNotRegistered     = errors.New("nativepump: fd not registered")
)

// Handler handles a native event. Events carrying a Handler as their
// [threadbound.NativeEvent.Native] value are dispatched to it.
type Handler func(ev *threadbound.NativeEvent)

// IOEvents represents the type of I/O readiness to monitor.
type IOEvents uint32

const (
	// EventRead indicates the file descriptor is ready for reading.
	EventRead IOEvents = 1 << iota
	// EventWrite indicates the file descriptor is ready for writing.
	EventWrite
	// EventError indicates an error condition on the file descriptor.
	EventError
	// EventHangup indicates the peer closed its end of the connection.
	EventHangup
)

// IOCallback is the callback type for I/O events.
type IOCallback func(IOEvents)

// options holds Host configuration.
type options struct {
	translator     Handler
	defaultHandler Handler
}

// Option configures a Host.
type Option interface {
	apply(*options)
}

type optionImpl struct {
	applyFunc func(*options)
}

func (x *optionImpl) apply(opts *options) {
	x.applyFunc(opts)
}

// WithTranslator sets a hook, called by TranslateEvent for every event
// that is not a continuation.
func WithTranslator(fn Handler) Option {
	return &optionImpl{func(opts *options) {
		opts.translator = fn
	}}
}

// WithDefaultHandler sets the handler for events that carry no handler of
// their own, e.g. those sent via PostEvent.
func WithDefaultHandler(fn Handler) Option {
	return &optionImpl{func(opts *options) {
		opts.defaultHandler = fn
	}}
}

func resolveOptions(opts []Option) options {
	var cfg options
	for _, opt := range opts {
		if opt != nil {
			opt.apply(&cfg)
		}
	}
	return cfg
}

// dispatch delivers ev to its own handler, else to the default handler.
func (x *options) dispatch(ev *threadbound.NativeEvent) {
	if h, ok := ev.Native.(Handler); ok && h != nil {
		h(ev)
		return
	}
	if x.defaultHandler != nil {
		x.defaultHandler(ev)
	}
}

func (x *options) translate(ev *threadbound.NativeEvent) {
	if x.translator != nil {
		x.translator(ev)
	}
}
