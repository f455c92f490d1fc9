// Package threadbound provides thread-affine continuation dispatchers: any
// number of producer goroutines may schedule work ("continuations") onto a
// single owner thread, which drains them from a run loop until shut down.
//
// # Architecture
//
// Every back-end implements the [Dispatcher] interface, over an unexported
// provider that supplies the queue and the drain loop:
//
//   - [Queue]: a managed FIFO, drained by the goroutine that calls
//     [Queue.Run] (normally the goroutine that constructed it).
//   - [Worker]: owns a dedicated goroutine, locked to its OS thread, which
//     drains its own queue once started.
//   - [Pump]: bridges to a host-owned native event loop (see [NativePump] and
//     the nativepump subpackage), interleaving continuations with native
//     events on the same OS thread.
//
// The [App] facade binds one dispatcher as the process-wide current instance,
// and layers invoke helpers (synchronous, fire-and-forget, and
// [Future]-returning) over the [Dispatcher] contract.
//
// # Dispatch
//
// [Dispatcher.Send] blocks until the continuation has run on the bound
// thread, then returns its outcome. [Dispatcher.Post] returns immediately.
// Both run the continuation inline when called from the bound thread, Post
// being limited to [MaxInlineDepth] nested inline calls, after which work is
// queued, bounding stack growth for continuations that re-post themselves.
//
// # Failures
//
// Continuations report failure by returning an error or by panicking, which
// is recovered as a [PanicError]. Either way, joined errors of exactly one
// cause, and panics whose value is an error, are reduced to that cause, so a
// failure reads the same however it was dispatched. Failures are never
// dropped: a Send caller
// always receives the failure of its continuation, and a Post failure is
// offered to the [UnhandledError] subscribers registered via
// [Dispatcher.OnUnhandledError]. If no subscriber marks it handled, the
// failure terminates the run loop and is returned by Run.
//
// # Thread Identity
//
// [Queue] and [Worker] identify their owner by goroutine. [Pump] identifies
// its owner by OS thread, as reported by the host, so the goroutine that
// creates and runs a Pump must first call [runtime.LockOSThread].
//
// # Usage
//
//	q, err := threadbound.NewQueue()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	main := threadbound.Go(func() (struct{}, error) {
//	    return struct{}{}, q.Send(func(any) error {
//	        fmt.Println("running on the owner goroutine")
//	        return nil
//	    }, nil)
//	})
//
//	if err := q.Run(main); err != nil {
//	    log.Fatal(err)
//	}
package threadbound
