package threadbound

import (
	"runtime"
	"strconv"
)

// ThreadID identifies the owner of a dispatcher. The zero value means
// unbound. Depending on the back-end it is either a goroutine id or an OS
// thread id.
type ThreadID uint64

// String implements fmt.Stringer.
func (x ThreadID) String() string {
	if x == 0 {
		return "unbound"
	}
	return strconv.FormatUint(uint64(x), 10)
}

// CurrentGoroutineID returns the id of the calling goroutine, the identity
// used by the [Queue] and [Worker] back-ends.
func CurrentGoroutineID() ThreadID {
	return ThreadID(getGoroutineID())
}

// getGoroutineID returns the current goroutine's ID.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
