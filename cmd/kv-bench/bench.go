package main

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

const valueSize = 100

type generator struct {
	*rand.Rand
	key uint64
}

func newGenerator() *generator {
	r := rand.New(rand.NewSource(0))
	return &generator{r, 0}
}

func (g generator) ReSeed(i int64) {
	g.Rand.Seed(i)
}

// formatKey gives fixed-width keys so that key order matches numeric order.
func formatKey(k uint64) string {
	return fmt.Sprintf("%016d", k)
}

func (g *generator) NextKey() string {
	k := g.key
	g.key++
	return formatKey(k)
}

func (g generator) RandomKey(max int) string {
	n := g.Rand.Int63n(int64(max))
	return formatKey(uint64(n))
}

func (g generator) Value() []byte {
	b := make([]byte, valueSize)
	g.Read(b)
	return b
}

type stats struct {
	// mu guards Ops and Bytes, which callbacks update from worker
	// goroutines
	mu     sync.Mutex
	Ops    int
	Bytes  int
	Errors int
	Start  time.Time
	End    *time.Time
}

func newStats() *stats {
	return &stats{Ops: 0, Bytes: 0, Start: time.Now()}
}

// FinishedSingleOp records finishing an operation that processed some number of
// bytes.
func (s *stats) FinishedSingleOp(bytes int) {
	s.mu.Lock()
	s.Ops++
	s.Bytes += bytes
	s.mu.Unlock()
}

// Failed records an operation that completed with an error.
func (s *stats) Failed() {
	s.mu.Lock()
	s.Errors++
	s.mu.Unlock()
}

// done marks the benchmark finished.
//
// Records a final timestamp in a stats object.
func (s *stats) done() {
	if s.End != nil {
		panic("stats object marked done multiple times")
	}
	t := time.Now()
	s.End = &t
}

func (s *stats) seconds() float64 {
	return s.End.Sub(s.Start).Seconds()
}

func (s *stats) MicrosPerOp() float64 {
	return (s.seconds() * 1e6) / float64(s.Ops)
}

func (s *stats) MegabytesPerSec() float64 {
	mb := float64(s.Bytes) / (1024 * 1024)
	return mb / s.seconds()
}

func (s *stats) formatStats() string {
	var out string
	if s.Bytes == 0 {
		if s.Ops == 1 {
			out = fmt.Sprintf("%7.3f micros", s.MicrosPerOp())
		} else {
			out = fmt.Sprintf("%7.3f micros/op", s.MicrosPerOp())
		}
	} else {
		out = fmt.Sprintf("%7.3f micros/op; %6.1f MB/s",
			s.MicrosPerOp(),
			s.MegabytesPerSec())
	}
	if s.Errors > 0 {
		out += fmt.Sprintf(" (%d errors)", s.Errors)
	}
	return out
}

// window bounds the number of operations in flight, since submitting never
// blocks.
type window struct {
	slots chan struct{}
	wg    sync.WaitGroup
}

func newWindow(size int) *window {
	return &window{slots: make(chan struct{}, size)}
}

// Acquire waits for a free slot; the operation's callback must call the
// returned function.
func (w *window) Acquire() func() {
	w.slots <- struct{}{}
	w.wg.Add(1)
	return func() {
		<-w.slots
		w.wg.Done()
	}
}

// Wait waits for every acquired slot to be released.
func (w *window) Wait() {
	w.wg.Wait()
}

// BenchState tracks information for a single benchmark.
type BenchState struct {
	name string
	*generator
	*stats
	*window
}

// NewBench initializes a BenchState.
func NewBench(name string, inflight int) BenchState {
	return BenchState{name, newGenerator(), newStats(), newWindow(inflight)}
}

// Report waits for outstanding operations, finishes the benchmark and prints
// final statistics.
func (s BenchState) Report() {
	s.window.Wait()
	s.stats.done()
	fmt.Printf("%-20s : %s\n", s.name, s.stats.formatStats())
}
