// Package nativepump provides [threadbound.NativePump] implementations,
// for use with [threadbound.NewPump].
//
// On Windows, [Host] drives the user32 thread message queue of the calling
// thread (GetMessageW, PostThreadMessageW, and friends), so a
// [threadbound.Pump] may share a thread with existing window procedures.
//
// On Linux, [Host] provides equivalent per-thread event queues, built on an
// eventfd and epoll. File descriptors may be registered with the host, their
// readiness being delivered as native events, in order with any custom
// events.
//
// Other platforms are not supported, [Open] returning
// [errors.ErrUnsupported].
//
// A Host belongs to the OS thread that opened it, so callers must
// [runtime.LockOSThread] first, and must wait for events on that thread.
package nativepump
