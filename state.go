package threadbound

import (
	"sync/atomic"
)

// LoopState represents the lifecycle state of a dispatcher.
//
// State Machine:
//
//	StateAwake → StateRunning            [Run()]
//	StateAwake → StateTerminating        [Shutdown() before Run()]
//	StateRunning → StateTerminating      [Shutdown(), main operation completed, fatal failure]
//	StateRunning → StateTerminated       [drain loop exited]
//	StateTerminating → StateTerminated   [drain loop exited]
//	StateTerminated → (terminal)
//
// A dispatcher in StateTerminating may still be Run, once, to drain the
// continuations queued before shutdown was requested.
type LoopState uint32

const (
	// StateAwake indicates the dispatcher has been created but not run.
	StateAwake LoopState = iota
	// StateRunning indicates the run loop is draining continuations.
	StateRunning
	// StateTerminating indicates shutdown has been requested.
	StateTerminating
	// StateTerminated indicates the run loop has exited.
	StateTerminated
)

// String returns a human-readable representation of the state.
func (s LoopState) String() string {
	switch s {
	case StateAwake:
		return "Awake"
	case StateRunning:
		return "Running"
	case StateTerminating:
		return "Terminating"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// loopState is a lock-free state machine.
type loopState struct {
	v atomic.Uint32
}

func (s *loopState) Load() LoopState {
	return LoopState(s.v.Load())
}

// Store is only valid for the terminal state.
func (s *loopState) Store(state LoopState) {
	s.v.Store(uint32(state))
}

func (s *loopState) TryTransition(from, to LoopState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}

// TransitionAny attempts each source state in order, returning true on the
// first successful transition.
func (s *loopState) TransitionAny(validFrom []LoopState, to LoopState) bool {
	for _, from := range validFrom {
		if s.TryTransition(from, to) {
			return true
		}
	}
	return false
}
