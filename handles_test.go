package threadbound

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleTable_TakeOnce(t *testing.T) {
	x := newHandleTable()

	cont, arg := x.alloc(entry{arg: "value", force: true})
	assert.NotZero(t, cont)
	assert.NotZero(t, arg)
	assert.NotEqual(t, cont, arg)
	assert.Equal(t, 1, x.len())

	e, ok := x.take(cont, arg)
	require.True(t, ok)
	assert.Equal(t, "value", e.arg)
	assert.True(t, e.force)
	assert.Zero(t, x.len())

	_, ok = x.take(cont, arg)
	assert.False(t, ok)
}

func TestHandleTable_MismatchedHandles(t *testing.T) {
	x := newHandleTable()

	c1, a1 := x.alloc(entry{arg: 1})
	c2, a2 := x.alloc(entry{arg: 2})

	_, ok := x.take(c1, a2)
	assert.False(t, ok)
	_, ok = x.take(0, 0)
	assert.False(t, ok)
	assert.Equal(t, 2, x.len())

	e, ok := x.take(c2, a2)
	require.True(t, ok)
	assert.Equal(t, 2, e.arg)

	e, ok = x.take(c1, a1)
	require.True(t, ok)
	assert.Equal(t, 1, e.arg)
}

func TestHandleTable_DrainAll(t *testing.T) {
	x := newHandleTable()

	for i := range 5 {
		x.alloc(entry{arg: i})
	}
	c, a := x.alloc(entry{arg: 5})
	_, ok := x.take(c, a)
	require.True(t, ok)

	drained := x.drainAll()
	require.Len(t, drained, 5)
	for i, e := range drained {
		assert.Equal(t, i, e.arg)
	}
	assert.Zero(t, x.len())
	assert.Empty(t, x.drainAll())
}
