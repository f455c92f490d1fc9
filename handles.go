package threadbound

import (
	"slices"
	"sync"
)

// handleTable maps opaque integer handles to Go values, so they may be
// carried through a native event queue as plain integers. Each handle is
// taken exactly once.
type handleTable struct {
	// conts stores continuations, keyed by handle, along with the handle of
	// their argument.
	conts map[uintptr]contSlot

	// args stores arguments, keyed by handle.
	args map[uintptr]any

	// nextID is the counter for generating handles. Zero is never issued.
	nextID uintptr
	mu     sync.Mutex
}

type contSlot struct {
	e   entry
	arg uintptr
}

func newHandleTable() *handleTable {
	return &handleTable{
		conts:  make(map[uintptr]contSlot),
		args:   make(map[uintptr]any),
		nextID: 1,
	}
}

// alloc registers e, returning the continuation and argument handles.
func (x *handleTable) alloc(e entry) (cont, arg uintptr) {
	x.mu.Lock()
	defer x.mu.Unlock()

	arg = x.nextID
	x.nextID++
	x.args[arg] = e.arg

	cont = x.nextID
	x.nextID++
	e.arg = nil
	x.conts[cont] = contSlot{e: e, arg: arg}

	return cont, arg
}

// take frees the given handles, returning the entry they were allocated
// for. It returns false if either handle is unknown, or they do not belong
// together, in which case neither is freed.
func (x *handleTable) take(cont, arg uintptr) (entry, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()

	slot, ok := x.conts[cont]
	if !ok || slot.arg != arg {
		return entry{}, false
	}
	v, ok := x.args[arg]
	if !ok {
		return entry{}, false
	}

	delete(x.conts, cont)
	delete(x.args, arg)

	e := slot.e
	e.arg = v
	return e, true
}

// drainAll frees every outstanding handle, returning the entries in
// allocation order.
func (x *handleTable) drainAll() []entry {
	x.mu.Lock()
	defer x.mu.Unlock()

	ids := make([]uintptr, 0, len(x.conts))
	for id := range x.conts {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	out := make([]entry, 0, len(ids))
	for _, id := range ids {
		slot := x.conts[id]
		e := slot.e
		e.arg = x.args[slot.arg]
		out = append(out, e)
	}

	clear(x.conts)
	clear(x.args)

	return out
}

func (x *handleTable) len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.conts)
}
