package threadbound

import (
	"fmt"
)

// Log categories, used as rate limit keys.
const (
	logCategorySubscriber = "subscriber"
	logCategoryAbandoned  = "abandoned"
	logCategoryHandle     = "handle"
)

// allowLog reports whether an event in the given category may be logged,
// per the configured rate limits.
func (d *dispatcher) allowLog(category string) bool {
	if d.logLimits == nil {
		return true
	}
	_, ok := d.logLimits.Allow(category)
	return ok
}

func (d *dispatcher) logRunStarted(bound ThreadID) {
	d.logger.Debug().
		Uint64("dispatcher", d.id).
		Str("backend", d.backend).
		Uint64("thread", uint64(bound)).
		Log("threadbound: run loop started")
}

func (d *dispatcher) logRunStopped(err error) {
	d.logger.Debug().
		Uint64("dispatcher", d.id).
		Str("backend", d.backend).
		Err(err).
		Log("threadbound: run loop stopped")
}

func (d *dispatcher) logFatal(err error) {
	d.logger.Err().
		Uint64("dispatcher", d.id).
		Str("backend", d.backend).
		Err(err).
		Log("threadbound: unhandled failure, terminating run loop")
}

func (d *dispatcher) logSubscriberPanic(r any, cause error) {
	if !d.allowLog(logCategorySubscriber) {
		return
	}
	d.logger.Warning().
		Uint64("dispatcher", d.id).
		Str("panic", fmt.Sprint(r)).
		Err(cause).
		Log("threadbound: unhandled error subscriber panicked")
}

func (d *dispatcher) logAbandoned(n int) {
	if n == 0 || !d.allowLog(logCategoryAbandoned) {
		return
	}
	d.logger.Warning().
		Uint64("dispatcher", d.id).
		Str("backend", d.backend).
		Int("count", n).
		Log("threadbound: dropped queued continuations after termination")
}

func (d *dispatcher) logMainLost(cause, reason error) {
	d.logger.Err().
		Uint64("dispatcher", d.id).
		Str("backend", d.backend).
		Err(cause).
		Str("reason", reason.Error()).
		Log("threadbound: main operation completed after the run loop stopped accepting work")
}

func (d *dispatcher) logShutdownFailed(err error) {
	d.logger.Err().
		Uint64("dispatcher", d.id).
		Str("backend", d.backend).
		Err(err).
		Log("threadbound: failed to signal shutdown")
}

func (d *dispatcher) logUnknownHandle(param1, param2 uintptr) {
	if !d.allowLog(logCategoryHandle) {
		return
	}
	d.logger.Warning().
		Uint64("dispatcher", d.id).
		Uint64("param1", uint64(param1)).
		Uint64("param2", uint64(param2)).
		Log("threadbound: received custom event with unknown handles")
}
