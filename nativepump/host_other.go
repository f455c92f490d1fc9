//go:build !linux && !windows

package nativepump

import (
	"errors"

	"github.com/joeycumines/go-threadbound"
)

// Host is not supported on this platform.
type Host struct{}

var _ threadbound.NativePump = (*Host)(nil)

// Open returns [errors.ErrUnsupported] on this platform.
func Open(...Option) (*Host, error) {
	return nil, errors.ErrUnsupported
}

func (h *Host) Thread() threadbound.ThreadID { return 0 }

func (h *Host) Close() error { return nil }

func (h *Host) CurrentOSThreadID() threadbound.ThreadID { return 0 }

func (h *Host) RegisterEventTag(string) (uint32, error) { return 0, errors.ErrUnsupported }

func (h *Host) WaitNextEvent() (threadbound.NativeEvent, bool, error) {
	return threadbound.NativeEvent{}, false, errors.ErrUnsupported
}

func (h *Host) PostCustomEvent(threadbound.ThreadID, uint32, uintptr, uintptr) error {
	return errors.ErrUnsupported
}

func (h *Host) PostQuit(threadbound.ThreadID) error { return errors.ErrUnsupported }

func (h *Host) TranslateEvent(*threadbound.NativeEvent) {}

func (h *Host) DispatchEvent(*threadbound.NativeEvent) {}
