package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFIFO_EnqueueDequeue(t *testing.T) {
	q := New[string]()

	ok := q.Enqueue("a")
	require.True(t, ok, "enqueue should succeed")

	got, ok := q.TryDequeue()
	require.True(t, ok, "dequeue should succeed")
	assert.Equal(t, "a", got)
}

func TestFIFO_Order(t *testing.T) {
	q := New[int]()
	for i := 1; i <= 3; i++ {
		q.Enqueue(i)
	}

	for want := 1; want <= 3; want++ {
		got, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
}

func TestFIFO_TryDequeue_Empty(t *testing.T) {
	q := New[int]()

	_, ok := q.TryDequeue()
	assert.False(t, ok, "dequeue from empty queue should return false")
}

func TestFIFO_DuplicatesAllowed(t *testing.T) {
	q := New[*int]()
	v := 7
	q.Enqueue(&v)
	q.Enqueue(&v)

	assert.Equal(t, 2, q.Len())
}

func TestFIFO_EnqueueAfterClose(t *testing.T) {
	q := New[int]()
	q.Close()

	assert.False(t, q.Enqueue(1))
	assert.True(t, q.Closed())
}

func TestFIFO_CloseTwice(t *testing.T) {
	q := New[int]()
	q.Close()
	assert.NotPanics(t, q.Close)
}

func TestFIFO_WaitSignals(t *testing.T) {
	q := New[int]()

	go func() {
		time.Sleep(5 * time.Millisecond)
		q.Enqueue(42)
	}()

	select {
	case <-q.Wait():
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for signal")
	}

	got, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, 42, got)
}

func TestFIFO_ConcurrentEnqueue(t *testing.T) {
	q := New[int]()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				q.Enqueue(n)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1000, q.Len())
}
