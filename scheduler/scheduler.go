// Package scheduler provides the persistent worker pool used to overlap free
// motion with collision detection and to split per-body work.
package scheduler

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// DefaultThreshold is the minimum item count ParallelFor splits across
// workers. Below this, single-threaded is faster due to goroutine overhead.
const DefaultThreshold = 8

// Status tracks completion of a group of tasks.
type Status struct {
	remaining atomic.Int64
	done      chan struct{}
	closeOnce sync.Once
}

// NewStatus returns a status with no pending task.
func NewStatus() *Status {
	return &Status{done: make(chan struct{})}
}

// Done reports whether every task attached to the status has finished.
func (s *Status) Done() bool {
	return s.remaining.Load() == 0
}

func (s *Status) add() {
	s.remaining.Add(1)
}

func (s *Status) finish() {
	if s.remaining.Add(-1) == 0 {
		s.closeOnce.Do(func() { close(s.done) })
	}
}

type job struct {
	fn     func()
	status *Status
}

// TaskScheduler runs tasks on a fixed set of worker goroutines. A scheduler
// with one worker (or one that was never started) runs tasks inline.
type TaskScheduler struct {
	numWorkers int
	threshold  int

	// Worker pool channels
	workChan chan job      // sends work to workers
	stopChan chan struct{} // signals workers to exit
	wg       sync.WaitGroup
	running  bool
}

// New creates a scheduler. workers <= 0 uses GOMAXPROCS.
func New(workers int) *TaskScheduler {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &TaskScheduler{numWorkers: workers, threshold: DefaultThreshold}
}

// Workers returns the pool size.
func (s *TaskScheduler) Workers() int {
	return s.numWorkers
}

// SetThreshold changes the ParallelFor split threshold.
func (s *TaskScheduler) SetThreshold(n int) {
	s.threshold = max(n, 1)
}

// Parallel reports whether tasks actually run on other goroutines.
func (s *TaskScheduler) Parallel() bool {
	return s != nil && s.running && s.numWorkers > 1
}

// Start launches the persistent workers.
func (s *TaskScheduler) Start() {
	if s.running || s.numWorkers <= 1 {
		return
	}
	s.workChan = make(chan job, s.numWorkers*4)
	s.stopChan = make(chan struct{})
	s.running = true
	for i := 0; i < s.numWorkers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
}

// Stop signals all workers to exit and waits for them.
func (s *TaskScheduler) Stop() {
	if !s.running {
		return
	}
	close(s.stopChan)
	s.wg.Wait()
	s.running = false
}

func (s *TaskScheduler) worker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopChan:
			return
		case j := <-s.workChan:
			run(j)
		}
	}
}

func run(j job) {
	defer j.status.finish()
	j.fn()
}

// AddTask queues fn and returns a status to wait on.
func (s *TaskScheduler) AddTask(fn func()) *Status {
	st := NewStatus()
	s.AddTaskTo(st, fn)
	return st
}

// AddTaskTo queues fn under an existing status.
func (s *TaskScheduler) AddTaskTo(st *Status, fn func()) {
	st.add()
	j := job{fn: fn, status: st}
	if !s.Parallel() {
		run(j)
		return
	}
	s.workChan <- j
}

// WorkUntilDone blocks until st completes. The calling goroutine helps drain
// the queue while it waits.
func (s *TaskScheduler) WorkUntilDone(st *Status) {
	if st.Done() {
		return
	}
	if !s.Parallel() {
		<-st.done
		return
	}
	for {
		select {
		case <-st.done:
			return
		case j := <-s.workChan:
			run(j)
		}
	}
}

// ParallelFor calls fn over [0,n) split into contiguous chunks, one per
// worker, and returns once all chunks finish.
func (s *TaskScheduler) ParallelFor(n int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	if !s.Parallel() || n < s.threshold {
		fn(0, n)
		return
	}
	chunkSize := (n + s.numWorkers - 1) / s.numWorkers
	st := NewStatus()
	for w := 0; w < s.numWorkers; w++ {
		start := w * chunkSize
		end := min(start+chunkSize, n)
		if start >= end {
			continue
		}
		s.AddTaskTo(st, func() { fn(start, end) })
	}
	s.WorkUntilDone(st)
}
