package threadbound

// Queue is a [Dispatcher] backed by a managed in-process FIFO, drained by
// the goroutine that calls [Queue.Run].
//
// Unless configured with [WithBoundThread] or [WithDeferredBinding], a Queue
// is bound to the goroutine that constructed it.
type Queue struct {
	*dispatcher
}

var _ Dispatcher = (*Queue)(nil)

// NewQueue creates a new Queue.
func NewQueue(opts ...Option) (*Queue, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	if cfg.bound == 0 && !cfg.deferred {
		cfg.bound = CurrentGoroutineID()
	}
	return &Queue{
		dispatcher: newDispatcher("queue", newQueueProvider(), cfg),
	}, nil
}

// Len returns the number of queued continuations.
func (q *Queue) Len() int {
	return q.provider.(*queueProvider).len()
}

// queueProvider implements provider over an ingress, identifying threads by
// goroutine. Shared by [Queue] and [Worker].
type queueProvider struct {
	in *ingress
}

func newQueueProvider() *queueProvider {
	return &queueProvider{in: newIngress()}
}

func (x *queueProvider) currentThreadID() ThreadID {
	return CurrentGoroutineID()
}

func (x *queueProvider) enqueue(_ ThreadID, e entry) error {
	return x.in.push(e)
}

func (x *queueProvider) drain(_ ThreadID, exec func(entry) bool) error {
	for {
		e, ok := x.in.pop()
		if !ok {
			return nil
		}
		if !exec(e) {
			return nil
		}
	}
}

func (x *queueProvider) shutdown(ThreadID, error) {
	x.in.close()
}

func (x *queueProvider) release() []entry {
	return x.in.release()
}

func (x *queueProvider) len() int {
	x.in.mu.Lock()
	defer x.in.mu.Unlock()
	return x.in.list.len()
}
