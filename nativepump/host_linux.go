//go:build linux

package nativepump

import (
	"errors"
	"fmt"
	"sync"

	"github.com/joeycumines/go-threadbound"
	"golang.org/x/sys/unix"
)

const (
	// firstCustomTag is the first tag issued by RegisterEventTag, matching
	// the range Windows uses for registered messages.
	firstCustomTag = 0xC000

	// TagIO is the tag of events reporting readiness of registered file
	// descriptors. Param1 is the fd, and Param2 the [IOEvents].
	TagIO uint32 = 0x0400
)

// MaxFDLimit is the largest fd that may be registered.
const MaxFDLimit = 100000000

// hosts maps OS thread ids to the host open on that thread.
var hosts struct {
	m  map[threadbound.ThreadID]*Host
	mu sync.Mutex
}

// tags maps event tag names to their ids, process-wide.
var tags struct {
	m    map[string]uint32
	next uint32
	mu   sync.Mutex
}

// item is a queued event, or the quit sentinel.
type item struct {
	ev   threadbound.NativeEvent
	quit bool
}

type fdInfo struct {
	callback IOCallback
	events   IOEvents
}

// Host is a per-thread event queue, implementing [threadbound.NativePump].
// Events may be posted from any goroutine, but only the thread that opened
// the host may wait for them.
type Host struct { // betteralign:ignore
	opts     options
	queue    []item
	fds      map[int]fdInfo
	tid      threadbound.ThreadID
	epfd     int
	wakefd   int
	eventBuf [64]unix.EpollEvent
	mu       sync.Mutex
	closed   bool
}

var _ threadbound.NativePump = (*Host)(nil)

// Open creates a Host for the calling OS thread. The caller must be locked
// to its thread, and must Close the host once its event loop has exited.
func Open(opts ...Option) (*Host, error) {
	tid := threadbound.ThreadID(unix.Gettid())

	hosts.mu.Lock()
	defer hosts.mu.Unlock()

	if _, ok := hosts.m[tid]; ok {
		return nil, ErrAlreadyOpen
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("nativepump: epoll_create1: %w", err)
	}

	wakefd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("nativepump: eventfd: %w", err)
	}

	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(wakefd),
	}); err != nil {
		_ = unix.Close(wakefd)
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("nativepump: epoll_ctl: %w", err)
	}

	h := &Host{
		opts:   resolveOptions(opts),
		fds:    make(map[int]fdInfo),
		tid:    tid,
		epfd:   epfd,
		wakefd: wakefd,
	}

	if hosts.m == nil {
		hosts.m = make(map[threadbound.ThreadID]*Host)
	}
	hosts.m[tid] = h

	return h, nil
}

// Thread returns the OS thread the host belongs to.
func (h *Host) Thread() threadbound.ThreadID {
	return h.tid
}

// Close releases the host. It must not be called while waiting for events.
func (h *Host) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.queue = nil
	h.mu.Unlock()

	hosts.mu.Lock()
	if hosts.m[h.tid] == h {
		delete(hosts.m, h.tid)
	}
	hosts.mu.Unlock()

	return errors.Join(unix.Close(h.wakefd), unix.Close(h.epfd))
}

// CurrentOSThreadID implements [threadbound.NativePump].
func (h *Host) CurrentOSThreadID() threadbound.ThreadID {
	return threadbound.ThreadID(unix.Gettid())
}

// RegisterEventTag implements [threadbound.NativePump]. Tags are shared by
// all hosts in the process.
func (h *Host) RegisterEventTag(name string) (uint32, error) {
	if name == "" {
		return 0, ErrInvalidTagName
	}

	tags.mu.Lock()
	defer tags.mu.Unlock()

	if tag, ok := tags.m[name]; ok {
		return tag, nil
	}
	if tags.m == nil {
		tags.m = make(map[string]uint32)
		tags.next = firstCustomTag
	}
	if tags.next == 0xFFFF {
		return 0, errors.New("nativepump: event tags exhausted")
	}

	tag := tags.next
	tags.next++
	tags.m[name] = tag

	return tag, nil
}

// WaitNextEvent implements [threadbound.NativePump].
func (h *Host) WaitNextEvent() (threadbound.NativeEvent, bool, error) {
	if h.CurrentOSThreadID() != h.tid {
		return threadbound.NativeEvent{}, false, ErrWrongThread
	}
	for {
		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			return threadbound.NativeEvent{}, false, ErrClosed
		}
		if len(h.queue) != 0 {
			it := h.queue[0]
			h.queue[0] = item{}
			h.queue = h.queue[1:]
			h.mu.Unlock()
			if it.quit {
				return threadbound.NativeEvent{}, false, nil
			}
			return it.ev, true, nil
		}
		h.mu.Unlock()

		if err := h.poll(); err != nil {
			return threadbound.NativeEvent{}, false, err
		}
	}
}

// poll blocks until the queue is woken, or a registered fd is ready,
// queueing an event for each ready fd.
func (h *Host) poll() error {
	n, err := unix.EpollWait(h.epfd, h.eventBuf[:], -1)
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return fmt.Errorf("nativepump: epoll_wait: %w", err)
	}

	for i := 0; i < n; i++ {
		fd := int(h.eventBuf[i].Fd)

		if fd == h.wakefd {
			var buf [8]byte
			if _, err := unix.Read(h.wakefd, buf[:]); err != nil && err != unix.EAGAIN {
				return fmt.Errorf("nativepump: read eventfd: %w", err)
			}
			continue
		}

		h.mu.Lock()
		info, ok := h.fds[fd]
		if ok {
			events := epollToEvents(h.eventBuf[i].Events)
			cb := info.callback
			h.queue = append(h.queue, item{ev: threadbound.NativeEvent{
				Tag:    TagIO,
				Param1: uintptr(fd),
				Param2: uintptr(events),
				Native: Handler(func(*threadbound.NativeEvent) {
					cb(events)
				}),
			}})
		}
		h.mu.Unlock()
	}

	return nil
}

// PostCustomEvent implements [threadbound.NativePump].
func (h *Host) PostCustomEvent(thread threadbound.ThreadID, tag uint32, param1, param2 uintptr) error {
	target, err := lookupHost(thread)
	if err != nil {
		return err
	}
	return target.push(item{ev: threadbound.NativeEvent{
		Tag:    tag,
		Param1: param1,
		Param2: param2,
	}})
}

// PostQuit implements [threadbound.NativePump].
func (h *Host) PostQuit(thread threadbound.ThreadID) error {
	target, err := lookupHost(thread)
	if err != nil {
		return err
	}
	return target.push(item{quit: true})
}

// PostEvent queues an event on this host, to be delivered to handler, or
// the default handler if handler is nil.
func (h *Host) PostEvent(tag uint32, param1, param2 uintptr, handler Handler) error {
	ev := threadbound.NativeEvent{
		Tag:    tag,
		Param1: param1,
		Param2: param2,
	}
	if handler != nil {
		ev.Native = handler
	}
	return h.push(item{ev: ev})
}

// TranslateEvent implements [threadbound.NativePump].
func (h *Host) TranslateEvent(ev *threadbound.NativeEvent) {
	h.opts.translate(ev)
}

// DispatchEvent implements [threadbound.NativePump].
func (h *Host) DispatchEvent(ev *threadbound.NativeEvent) {
	h.opts.dispatch(ev)
}

// RegisterFD registers a file descriptor for readiness monitoring. The
// callback runs on the host's thread, when the resulting event is
// dispatched.
func (h *Host) RegisterFD(fd int, events IOEvents, cb IOCallback) error {
	if fd < 0 || fd >= MaxFDLimit {
		return ErrFDOutOfRange
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	if _, ok := h.fds[fd]; ok {
		h.mu.Unlock()
		return ErrFDAlreadyRegistered
	}
	h.fds[fd] = fdInfo{callback: cb, events: events}
	h.mu.Unlock()

	if err := unix.EpollCtl(h.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: eventsToEpoll(events),
		Fd:     int32(fd),
	}); err != nil {
		h.mu.Lock()
		delete(h.fds, fd)
		h.mu.Unlock()
		return err
	}

	return nil
}

// UnregisterFD removes a file descriptor from monitoring. Events already
// queued for it are still dispatched.
func (h *Host) UnregisterFD(fd int) error {
	h.mu.Lock()
	if _, ok := h.fds[fd]; !ok {
		h.mu.Unlock()
		return ErrFDNotRegistered
	}
	delete(h.fds, fd)
	h.mu.Unlock()

	return unix.EpollCtl(h.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// push appends it to the queue, waking the owning thread on the empty to
// non-empty transition.
func (h *Host) push(it item) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}

	h.queue = append(h.queue, it)

	if len(h.queue) == 1 {
		var buf [8]byte
		buf[0] = 1 // any non-zero counter wakes the reader
		if _, err := unix.Write(h.wakefd, buf[:]); err != nil && err != unix.EAGAIN {
			return fmt.Errorf("nativepump: write eventfd: %w", err)
		}
	}

	return nil
}

func lookupHost(thread threadbound.ThreadID) (*Host, error) {
	hosts.mu.Lock()
	defer hosts.mu.Unlock()
	if h, ok := hosts.m[thread]; ok {
		return h, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoHost, thread)
}

func eventsToEpoll(events IOEvents) uint32 {
	var epollEvents uint32
	if events&EventRead != 0 {
		epollEvents |= unix.EPOLLIN
	}
	if events&EventWrite != 0 {
		epollEvents |= unix.EPOLLOUT
	}
	return epollEvents
}

func epollToEvents(epollEvents uint32) IOEvents {
	var events IOEvents
	if epollEvents&unix.EPOLLIN != 0 {
		events |= EventRead
	}
	if epollEvents&unix.EPOLLOUT != 0 {
		events |= EventWrite
	}
	if epollEvents&unix.EPOLLERR != 0 {
		events |= EventError
	}
	if epollEvents&unix.EPOLLHUP != 0 {
		events |= EventHangup
	}
	return events
}
