package threadbound

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntry(v int) entry {
	return entry{arg: v}
}

func TestChunkedList_FIFOAcrossChunks(t *testing.T) {
	var q chunkedList

	_, ok := q.pop()
	assert.False(t, ok)

	const n = chunkSize*3 + 7
	for i := range n {
		q.push(testEntry(i))
	}
	assert.Equal(t, n, q.len())

	for i := range n {
		e, ok := q.pop()
		require.True(t, ok)
		require.Equal(t, i, e.arg)
	}
	assert.Zero(t, q.len())

	_, ok = q.pop()
	assert.False(t, ok)

	// reuse after draining
	q.push(testEntry(1))
	e, ok := q.pop()
	require.True(t, ok)
	assert.Equal(t, 1, e.arg)
}

func TestChunkedList_Interleaved(t *testing.T) {
	var q chunkedList
	next, expect := 0, 0
	for round := range 50 {
		for range round % 7 * 40 {
			q.push(testEntry(next))
			next++
		}
		for range round % 5 * 30 {
			e, ok := q.pop()
			if !ok {
				break
			}
			require.Equal(t, expect, e.arg)
			expect++
		}
	}
	for {
		e, ok := q.pop()
		if !ok {
			break
		}
		require.Equal(t, expect, e.arg)
		expect++
	}
	assert.Equal(t, next, expect)
}

func TestIngress_PopBlocksUntilPush(t *testing.T) {
	x := newIngress()

	popped := make(chan entry, 1)
	go func() {
		e, ok := x.pop()
		if ok {
			popped <- e
		}
	}()

	select {
	case <-popped:
		t.Fatal("pop returned before push")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, x.push(testEntry(1)))
	select {
	case e := <-popped:
		assert.Equal(t, 1, e.arg)
	case <-time.After(5 * time.Second):
		t.Fatal("pop did not wake")
	}
}

func TestIngress_CloseAndRelease(t *testing.T) {
	x := newIngress()

	require.NoError(t, x.push(testEntry(1)))
	x.close()

	assert.ErrorIs(t, x.push(testEntry(2)), ErrShutdown)
	require.NoError(t, x.push(entry{arg: 3, force: true}))

	e, ok := x.pop()
	require.True(t, ok)
	assert.Equal(t, 1, e.arg)

	leftover := x.release()
	require.Len(t, leftover, 1)
	assert.Equal(t, 3, leftover[0].arg)

	assert.ErrorIs(t, x.push(entry{arg: 4, force: true}), ErrTerminated)
	_, ok = x.pop()
	assert.False(t, ok)
	assert.Empty(t, x.release())
}

func TestIngress_CloseWakesConsumer(t *testing.T) {
	x := newIngress()
	result := make(chan bool, 1)
	go func() {
		_, ok := x.pop()
		result <- ok
	}()
	time.Sleep(10 * time.Millisecond)
	x.close()
	select {
	case ok := <-result:
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("close did not wake the consumer")
	}
}
