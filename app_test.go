package threadbound

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T, d Dispatcher) *App {
	t.Helper()
	a, err := NewApp(d)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestApp_Current(t *testing.T) {
	q, err := NewQueue()
	require.NoError(t, err)

	a := newTestApp(t, q)
	assert.Same(t, a, Current())
	assert.Same(t, q, a.Dispatcher())

	q2, err := NewQueue()
	require.NoError(t, err)
	a2, err := NewApp(q2)
	assert.Nil(t, a2)
	assert.ErrorIs(t, err, ErrCurrentAlreadySet)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	assert.Nil(t, Current())
	assert.Equal(t, StateTerminating, q.State())

	a2 = newTestApp(t, q2)
	assert.Same(t, a2, Current())
}

func TestApp_ReplacesTerminated(t *testing.T) {
	q, err := NewQueue()
	require.NoError(t, err)
	a := newTestApp(t, q)

	a.Shutdown()
	require.NoError(t, a.Run(nil))

	q2, err := NewQueue()
	require.NoError(t, err)
	a2 := newTestApp(t, q2)
	assert.Same(t, a2, Current())

	// closing the replaced app leaves the current app installed
	require.NoError(t, a.Close())
	assert.Same(t, a2, Current())
}

func TestApp_NilDispatcher(t *testing.T) {
	a, err := NewApp(nil)
	assert.Nil(t, a)
	assert.ErrorIs(t, err, ErrInvalidOption)
}

func TestApp_Invoke(t *testing.T) {
	q, err := NewQueue()
	require.NoError(t, err)
	a := newTestApp(t, q)

	var (
		invoked, begun bool
		value          string
		asyncValue     int
	)

	err = a.RunFunc(func() error {
		if err := a.Invoke(func() error {
			invoked = q.CheckAccess()
			return nil
		}); err != nil {
			return err
		}

		if err := a.BeginInvoke(func() {
			begun = q.CheckAccess()
		}); err != nil {
			return err
		}

		v, err := InvokeValue(a, func() (string, error) {
			return "value", nil
		})
		if err != nil {
			return err
		}
		value = v

		asyncValue, err = InvokeAsync(a, func() (int, error) {
			return 42, nil
		}).Wait(context.Background())
		return err
	})
	require.NoError(t, err)

	assert.True(t, invoked)
	assert.True(t, begun)
	assert.Equal(t, "value", value)
	assert.Equal(t, 42, asyncValue)
}

func TestApp_InvokeFailures(t *testing.T) {
	q, err := NewQueue()
	require.NoError(t, err)
	a := newTestApp(t, q)

	errX := errors.New("X")

	err = a.RunFunc(func() error {
		if err := a.Invoke(func() error { return errX }); !errors.Is(err, errX) {
			return errors.New("invoke did not return the failure")
		}

		if _, err := InvokeValue(a, func() (int, error) { return 0, errX }); !errors.Is(err, errX) {
			return errors.New("invoke value did not return the failure")
		}

		_, err := InvokeAsync(a, func() (int, error) { panic(errX) }).Wait(context.Background())
		var pe *PanicError
		if !errors.As(err, &pe) || !errors.Is(err, errX) {
			return errors.New("invoke async did not return the panic")
		}

		return nil
	})
	require.NoError(t, err)
}

func TestApp_RunFuncFailure(t *testing.T) {
	q, err := NewQueue()
	require.NoError(t, err)
	a := newTestApp(t, q)

	errX := errors.New("X")
	assert.Same(t, errX, a.RunFunc(func() error { return errX }))
}

func TestApp_InvokeAsyncAbandoned(t *testing.T) {
	q, err := NewQueue(WithDeferredBinding())
	require.NoError(t, err)
	a := newTestApp(t, q)

	errX := errors.New("X")
	require.NoError(t, q.Post(func(any) error { return errX }, nil))
	f := InvokeAsync(a, func() (int, error) { return 1, nil })

	assert.Same(t, errX, a.Run(nil))

	waitClosed(t, f.Done())
	assert.ErrorIs(t, f.Err(), ErrTerminated)
}

func TestApp_InvokeAsyncRejected(t *testing.T) {
	q, err := NewQueue(WithDeferredBinding())
	require.NoError(t, err)
	a := newTestApp(t, q)

	a.Shutdown()
	f := InvokeAsync(a, func() (int, error) { return 1, nil })
	waitClosed(t, f.Done())
	assert.ErrorIs(t, f.Err(), ErrShutdown)
}

func TestApp_Context(t *testing.T) {
	q, err := NewQueue()
	require.NoError(t, err)
	a := newTestApp(t, q)

	ctx := NewContext(context.Background(), a)
	assert.Same(t, a, FromContext(ctx))
	assert.Nil(t, FromContext(context.Background()))
}
