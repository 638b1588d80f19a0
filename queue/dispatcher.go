// Package queue runs background tasks on a fixed pool of workers.
//
// Work is submitted to serial queues. Each serial queue runs its tasks one at
// a time in submission order, while different queues run in parallel.
package queue

import (
	"errors"
	"runtime"
	"sync"

	"go.uber.org/zap"
)

// ErrClosed is returned when submitting to a closed dispatcher.
var ErrClosed = errors.New("queue: dispatcher is closed")

// batchSize bounds how many tasks a worker runs from one queue before
// letting other ready queues go first.
const batchSize = 64

// Dispatcher owns the worker pool.
type Dispatcher struct {
	mu   sync.Mutex
	cond *sync.Cond
	// ready holds queues with pending tasks that no worker is running, in
	// the order they became ready
	ready  []*Serial
	closed bool
	wg     sync.WaitGroup
}

// Serial is a FIFO queue of tasks that run one at a time.
//
// A serial queue is scheduled onto a worker whenever it has pending tasks, so
// it never occupies a worker while empty.
type Serial struct {
	d    *Dispatcher
	name string
	// tasks and scheduled are guarded by d.mu
	tasks []Task
	// scheduled is set while the queue is in the ready list or being run
	scheduled bool
}

// NewDispatcher starts workers goroutines; workers <= 0 means GOMAXPROCS.
func NewDispatcher(workers int) *Dispatcher {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	d := &Dispatcher{}
	d.cond = sync.NewCond(&d.mu)
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.work()
	}
	return d
}

// NewSerial creates an empty serial queue. The name is used for logging.
func (d *Dispatcher) NewSerial(name string) *Serial {
	return &Serial{d: d, name: name}
}

// Submit runs task on some worker, unordered with respect to other work.
func (d *Dispatcher) Submit(task Task) error {
	return d.NewSerial("").Put(task)
}

// Put appends task to the queue.
func (s *Serial) Put(task Task) error {
	d := s.d
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	s.tasks = append(s.tasks, task)
	if !s.scheduled {
		s.scheduled = true
		d.ready = append(d.ready, s)
		d.cond.Signal()
	}
	return nil
}

// Name returns the name the queue was created with.
func (s *Serial) Name() string {
	return s.name
}

// next pops the next ready queue, blocking until there is one. It returns
// nil once the dispatcher is closed and no work remains.
func (d *Dispatcher) next() *Serial {
	d.mu.Lock()
	defer d.mu.Unlock()
	for len(d.ready) == 0 && !d.closed {
		d.cond.Wait()
	}
	if len(d.ready) == 0 {
		return nil
	}
	s := d.ready[0]
	d.ready[0] = nil
	d.ready = d.ready[1:]
	return s
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for {
		s := d.next()
		if s == nil {
			return
		}
		d.run(s)
	}
}

func (d *Dispatcher) pop(s *Serial) Task {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(s.tasks) == 0 {
		s.scheduled = false
		return nil
	}
	t := s.tasks[0]
	s.tasks[0] = nil
	s.tasks = s.tasks[1:]
	return t
}

// run executes up to batchSize tasks from s and then puts s back at the end
// of the ready list if it still has work.
func (d *Dispatcher) run(s *Serial) {
	for i := 0; i < batchSize; i++ {
		t := d.pop(s)
		if t == nil {
			return
		}
		execute(s, t)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(s.tasks) == 0 {
		s.scheduled = false
		return
	}
	d.ready = append(d.ready, s)
	d.cond.Signal()
}

func execute(s *Serial, t Task) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("task panicked", zap.String("queue", s.name), zap.Any("panic", r))
		}
	}()
	t.Execute()
}

// Close stops accepting tasks, waits for every queued task to run, and then
// stops the workers. Close is idempotent and must not be called from a task.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	d.closed = true
	d.cond.Broadcast()
	d.mu.Unlock()
	d.wg.Wait()
	return nil
}
