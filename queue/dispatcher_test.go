package queue

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerialOrder(t *testing.T) {
	d := NewDispatcher(4)
	s := d.NewSerial("ordered")

	var mu sync.Mutex
	var got []int
	n := 500
	for i := 0; i < n; i++ {
		i := i
		err := s.Put(TaskFunc(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
		require.NoError(t, err)
	}
	assert.NoError(t, d.Close())

	assert.Len(t, got, n)
	for i, v := range got {
		if v != i {
			t.Fatalf("task %d ran at position %d", v, i)
		}
	}
}

func TestSerialRunsOneAtATime(t *testing.T) {
	d := NewDispatcher(8)
	s := d.NewSerial("exclusive")
	var running, maxRunning int32
	for i := 0; i < 100; i++ {
		s.Put(TaskFunc(func() {
			n := atomic.AddInt32(&running, 1)
			for {
				m := atomic.LoadInt32(&maxRunning)
				if n <= m || atomic.CompareAndSwapInt32(&maxRunning, m, n) {
					break
				}
			}
			time.Sleep(10 * time.Microsecond)
			atomic.AddInt32(&running, -1)
		}))
	}
	d.Close()
	assert.Equal(t, int32(1), maxRunning)
}

func TestQueuesRunConcurrently(t *testing.T) {
	d := NewDispatcher(2)
	defer d.Close()
	a := d.NewSerial("a")
	b := d.NewSerial("b")

	// a's task can only finish once b's task has run
	bRan := make(chan struct{})
	aDone := make(chan struct{})
	a.Put(TaskFunc(func() {
		select {
		case <-bRan:
		case <-time.After(5 * time.Second):
		}
		close(aDone)
	}))
	b.Put(TaskFunc(func() { close(bRan) }))

	select {
	case <-aDone:
	case <-time.After(5 * time.Second):
		t.Fatal("tasks on different queues did not run concurrently")
	}
	select {
	case <-bRan:
	default:
		t.Fatal("a finished without b running")
	}
}

func TestBatchYields(t *testing.T) {
	d := NewDispatcher(1)
	busy := d.NewSerial("busy")
	other := d.NewSerial("other")

	// hold the only worker until both queues are loaded
	start := make(chan struct{})
	busy.Put(TaskFunc(func() { <-start }))
	var mu sync.Mutex
	var order []string
	for i := 0; i < 3*batchSize; i++ {
		busy.Put(TaskFunc(func() {
			mu.Lock()
			order = append(order, "busy")
			mu.Unlock()
		}))
	}
	other.Put(TaskFunc(func() {
		mu.Lock()
		order = append(order, "other")
		mu.Unlock()
	}))
	close(start)
	d.Close()

	require.Len(t, order, 3*batchSize+1)
	pos := 0
	for i, name := range order {
		if name == "other" {
			pos = i
		}
	}
	assert.Less(t, pos, 2*batchSize, "other queue should run after the first batch")
}

func TestCloseDrains(t *testing.T) {
	d := NewDispatcher(2)
	var executed int32
	for i := 0; i < 10; i++ {
		s := d.NewSerial("q")
		for j := 0; j < 20; j++ {
			s.Put(TaskFunc(func() {
				time.Sleep(time.Microsecond)
				atomic.AddInt32(&executed, 1)
			}))
		}
	}
	assert.NoError(t, d.Close())
	assert.Equal(t, int32(200), atomic.LoadInt32(&executed), "all tasks should have run")
	assert.NoError(t, d.Close(), "second close should be a no-op")
}

func TestPutAfterClose(t *testing.T) {
	d := NewDispatcher(1)
	s := d.NewSerial("q")
	d.Close()
	assert.ErrorIs(t, s.Put(TaskFunc(func() {})), ErrClosed)
	assert.ErrorIs(t, d.Submit(TaskFunc(func() {})), ErrClosed)
}

func TestSubmit(t *testing.T) {
	d := NewDispatcher(0)
	done := make(chan struct{})
	require.NoError(t, d.Submit(TaskFunc(func() { close(done) })))
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("submitted task did not run")
	}
	d.Close()
}

func TestPanicKeepsWorker(t *testing.T) {
	d := NewDispatcher(1)
	s := d.NewSerial("q")
	ran := false
	s.Put(TaskFunc(func() { panic("task failure") }))
	s.Put(TaskFunc(func() { ran = true }))
	d.Close()
	assert.True(t, ran, "tasks after a panic should still run")
}
