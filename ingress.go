package threadbound

import (
	"sync"
)

// chunkSize is the number of entries per node in the chunkedList.
const chunkSize = 128

// chunkedList is a chunked linked-list FIFO of entries.
//
// Thread Safety: NOT thread-safe, the caller must hold the ingress mutex.
type chunkedList struct { // betteralign:ignore
	head   *chunk
	tail   *chunk
	length int
}

// chunkPool recycles exhausted chunks.
var chunkPool = sync.Pool{
	New: func() any {
		return &chunk{}
	},
}

// chunk is a fixed-size node, with read and write cursors.
type chunk struct {
	entries [chunkSize]entry
	next    *chunk
	readPos int
	pos     int
}

func newChunk() *chunk {
	c := chunkPool.Get().(*chunk)
	c.pos = 0
	c.readPos = 0
	c.next = nil
	return c
}

// returnChunk clears any retained closures, then pools c.
func returnChunk(c *chunk) {
	for i := 0; i < c.pos; i++ {
		c.entries[i] = entry{}
	}
	c.pos = 0
	c.readPos = 0
	c.next = nil
	chunkPool.Put(c)
}

func (q *chunkedList) push(e entry) {
	if q.tail == nil {
		q.tail = newChunk()
		q.head = q.tail
	}
	if q.tail.pos == len(q.tail.entries) {
		next := newChunk()
		q.tail.next = next
		q.tail = next
	}
	q.tail.entries[q.tail.pos] = e
	q.tail.pos++
	q.length++
}

func (q *chunkedList) pop() (entry, bool) {
	if q.head == nil || q.length == 0 {
		return entry{}, false
	}
	if q.head.readPos >= q.head.pos {
		old := q.head
		q.head = q.head.next
		returnChunk(old)
	}
	e := q.head.entries[q.head.readPos]
	q.head.entries[q.head.readPos] = entry{}
	q.head.readPos++
	q.length--
	if q.head.readPos >= q.head.pos {
		if q.head == q.tail {
			q.head.pos = 0
			q.head.readPos = 0
		} else {
			old := q.head
			q.head = q.head.next
			returnChunk(old)
		}
	}
	return e, true
}

func (q *chunkedList) len() int {
	return q.length
}

// ingress is the unbounded multi-producer queue backing [Queue] and
// [Worker]. Consumers block (without spinning) until an entry is available,
// or the ingress is closed and empty.
type ingress struct {
	list     chunkedList
	cond     *sync.Cond
	mu       sync.Mutex
	closed   bool
	released bool
}

func newIngress() *ingress {
	x := &ingress{}
	x.cond = sync.NewCond(&x.mu)
	return x
}

// push appends e, unless the ingress is closed. Forced entries are still
// accepted while closed, until released.
func (x *ingress) push(e entry) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.released {
		return ErrTerminated
	}
	if x.closed && !e.force {
		return ErrShutdown
	}
	x.list.push(e)
	if x.list.len() == 1 {
		x.cond.Signal()
	}
	return nil
}

// pop blocks until an entry is available, returning false once the ingress
// is closed and empty.
func (x *ingress) pop() (entry, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for {
		if e, ok := x.list.pop(); ok {
			return e, true
		}
		if x.closed || x.released {
			return entry{}, false
		}
		x.cond.Wait()
	}
}

// close rejects further (non-forced) entries, and wakes the consumer.
func (x *ingress) close() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.closed = true
	x.cond.Broadcast()
}

// release closes the ingress permanently, returning the remaining entries.
func (x *ingress) release() []entry {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.closed = true
	x.released = true
	x.cond.Broadcast()
	var out []entry
	if n := x.list.len(); n != 0 {
		out = make([]entry, 0, n)
	}
	for {
		e, ok := x.list.pop()
		if !ok {
			break
		}
		out = append(out, e)
	}
	return out
}
