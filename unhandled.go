package threadbound

import (
	"sync"
)

type subscriber struct {
	fn func(*UnhandledError)
}

// subscriberList is safe for concurrent use. Subscribers are invoked from a
// snapshot, so they may add or remove subscriptions.
type subscriberList struct {
	subs []*subscriber
	mu   sync.Mutex
}

func (x *subscriberList) add(fn func(*UnhandledError)) (remove func()) {
	if fn == nil {
		return func() {}
	}
	s := &subscriber{fn: fn}
	x.mu.Lock()
	x.subs = append(x.subs, s)
	x.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			x.mu.Lock()
			defer x.mu.Unlock()
			for i, v := range x.subs {
				if v == s {
					x.subs = append(x.subs[:i:i], x.subs[i+1:]...)
					break
				}
			}
		})
	}
}

func (x *subscriberList) snapshot() []*subscriber {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.subs
}

// notify calls each subscriber in registration order. A panicking
// subscriber is logged and skipped.
func (d *dispatcher) notify(ue *UnhandledError) {
	for _, s := range d.subscribers.snapshot() {
		d.callSubscriber(s, ue)
	}
}

func (d *dispatcher) callSubscriber(s *subscriber, ue *UnhandledError) {
	defer func() {
		if r := recover(); r != nil {
			d.logSubscriberPanic(r, ue.Err)
		}
	}()
	s.fn(ue)
}
