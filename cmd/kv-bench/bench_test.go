package main

import (
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatsReports(t *testing.T) {
	assert := assert.New(t)
	now := time.Now()
	s := stats{
		Ops:   1000,
		Bytes: 1024 * 1024,
		Start: now.Add(-1 * time.Second),
		End:   &now,
	}
	assert.Equal(1.0, s.seconds())
	assert.Equal(1000.0, s.MicrosPerOp())
	assert.Equal(1.0, s.MegabytesPerSec())
	s.Errors = 2
	assert.Contains(s.formatStats(), "(2 errors)")
}

func TestKeysSortNumerically(t *testing.T) {
	g := newGenerator()
	var keys []string
	for i := 0; i < 20; i++ {
		keys = append(keys, g.NextKey())
	}
	assert.True(t, sort.StringsAreSorted(keys))
	assert.Len(t, keys[0], 16)
}

func TestWindowBoundsInflight(t *testing.T) {
	w := newWindow(4)
	var inflight, max int32
	for i := 0; i < 50; i++ {
		release := w.Acquire()
		n := atomic.AddInt32(&inflight, 1)
		if n > atomic.LoadInt32(&max) {
			atomic.StoreInt32(&max, n)
		}
		go func() {
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inflight, -1)
			release()
		}()
	}
	w.Wait()
	assert.LessOrEqual(t, max, int32(4))
	assert.Equal(t, int32(0), atomic.LoadInt32(&inflight))
}
