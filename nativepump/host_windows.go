//go:build windows

package nativepump

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/joeycumines/go-threadbound"
	"golang.org/x/sys/windows"
)

const (
	wmQuit     = 0x0012
	pmNoRemove = 0x0000
)

var (
	user32                  = windows.NewLazySystemDLL("user32.dll")
	procGetMessageW         = user32.NewProc("GetMessageW")
	procPeekMessageW        = user32.NewProc("PeekMessageW")
	procPostThreadMessageW  = user32.NewProc("PostThreadMessageW")
	procTranslateMessage    = user32.NewProc("TranslateMessage")
	procDispatchMessageW    = user32.NewProc("DispatchMessageW")
	procRegisterWindowMessW = user32.NewProc("RegisterWindowMessageW")
)

// Msg mirrors the Win32 MSG structure. It is the Native value of events
// returned by [Host.WaitNextEvent].
type Msg struct {
	Hwnd     windows.HWND
	Message  uint32
	WParam   uintptr
	LParam   uintptr
	Time     uint32
	Pt       struct{ X, Y int32 }
	LPrivate uint32
}

// Host drives the user32 message queue of the thread that opened it,
// implementing [threadbound.NativePump].
type Host struct {
	opts   options
	tid    threadbound.ThreadID
	mu     sync.Mutex
	closed bool
}

var _ threadbound.NativePump = (*Host)(nil)

// Open creates a Host for the calling OS thread, forcing the creation of
// its message queue. The caller must be locked to its thread.
func Open(opts ...Option) (*Host, error) {
	if err := user32.Load(); err != nil {
		return nil, fmt.Errorf("nativepump: load user32: %w", err)
	}
	var m Msg
	_, _, _ = procPeekMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, wmQuit, wmQuit, pmNoRemove)
	return &Host{
		opts: resolveOptions(opts),
		tid:  threadbound.ThreadID(windows.GetCurrentThreadId()),
	}, nil
}

// Thread returns the OS thread the host belongs to.
func (h *Host) Thread() threadbound.ThreadID {
	return h.tid
}

// Close marks the host closed. The thread's message queue is owned by the
// system, and outlives it.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

func (h *Host) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// CurrentOSThreadID implements [threadbound.NativePump].
func (h *Host) CurrentOSThreadID() threadbound.ThreadID {
	return threadbound.ThreadID(windows.GetCurrentThreadId())
}

// RegisterEventTag implements [threadbound.NativePump], via
// RegisterWindowMessageW.
func (h *Host) RegisterEventTag(name string) (uint32, error) {
	if name == "" {
		return 0, ErrInvalidTagName
	}
	p, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidTagName, err)
	}
	r, _, e := procRegisterWindowMessW.Call(uintptr(unsafe.Pointer(p)))
	if r == 0 {
		return 0, fmt.Errorf("nativepump: RegisterWindowMessageW: %w", e)
	}
	return uint32(r), nil
}

// WaitNextEvent implements [threadbound.NativePump], via GetMessageW.
func (h *Host) WaitNextEvent() (threadbound.NativeEvent, bool, error) {
	if h.CurrentOSThreadID() != h.tid {
		return threadbound.NativeEvent{}, false, ErrWrongThread
	}
	if h.isClosed() {
		return threadbound.NativeEvent{}, false, ErrClosed
	}
	m := new(Msg)
	r, _, e := procGetMessageW.Call(uintptr(unsafe.Pointer(m)), 0, 0, 0)
	switch int32(r) {
	case -1:
		return threadbound.NativeEvent{}, false, fmt.Errorf("nativepump: GetMessageW: %w", e)
	case 0:
		return threadbound.NativeEvent{}, false, nil
	}
	return threadbound.NativeEvent{
		Tag:    m.Message,
		Param1: m.WParam,
		Param2: m.LParam,
		Native: m,
	}, true, nil
}

// PostCustomEvent implements [threadbound.NativePump], via
// PostThreadMessageW.
func (h *Host) PostCustomEvent(thread threadbound.ThreadID, tag uint32, param1, param2 uintptr) error {
	return postThreadMessage(thread, tag, param1, param2)
}

// PostQuit implements [threadbound.NativePump], posting WM_QUIT.
func (h *Host) PostQuit(thread threadbound.ThreadID) error {
	return postThreadMessage(thread, wmQuit, 0, 0)
}

// PostEvent posts a thread message to this host. Thread messages carry no
// Go values, so it is delivered to the default handler.
func (h *Host) PostEvent(tag uint32, param1, param2 uintptr) error {
	if h.isClosed() {
		return ErrClosed
	}
	return postThreadMessage(h.tid, tag, param1, param2)
}

// TranslateEvent implements [threadbound.NativePump], via TranslateMessage.
func (h *Host) TranslateEvent(ev *threadbound.NativeEvent) {
	if m, ok := ev.Native.(*Msg); ok {
		_, _, _ = procTranslateMessage.Call(uintptr(unsafe.Pointer(m)))
	}
	h.opts.translate(ev)
}

// DispatchEvent implements [threadbound.NativePump]. Window messages are
// dispatched to their window procedure, via DispatchMessageW, and thread
// messages to the default handler.
func (h *Host) DispatchEvent(ev *threadbound.NativeEvent) {
	if m, ok := ev.Native.(*Msg); ok && m.Hwnd != 0 {
		_, _, _ = procDispatchMessageW.Call(uintptr(unsafe.Pointer(m)))
		return
	}
	h.opts.dispatch(ev)
}

func postThreadMessage(thread threadbound.ThreadID, msg uint32, wParam, lParam uintptr) error {
	r, _, e := procPostThreadMessageW.Call(uintptr(thread), uintptr(msg), wParam, lParam)
	if r == 0 {
		return fmt.Errorf("nativepump: PostThreadMessageW: %w", e)
	}
	return nil
}
