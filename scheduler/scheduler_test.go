package scheduler

import (
	"sync/atomic"
	"testing"
)

func TestAddTask_WorkUntilDone(t *testing.T) {
	for _, workers := range []int{1, 4} {
		s := New(workers)
		s.Start()

		var count atomic.Int64
		st := NewStatus()
		for i := 0; i < 100; i++ {
			s.AddTaskTo(st, func() { count.Add(1) })
		}
		s.WorkUntilDone(st)
		if got := count.Load(); got != 100 {
			t.Errorf("workers=%d: count = %d, want 100", workers, got)
		}
		if !st.Done() {
			t.Errorf("workers=%d: status not done", workers)
		}
		s.Stop()
	}
}

func TestParallelFor_CoversRange(t *testing.T) {
	s := New(3)
	s.SetThreshold(1)
	s.Start()
	defer s.Stop()

	const n = 1000
	hits := make([]int32, n)
	s.ParallelFor(n, func(start, end int) {
		for i := start; i < end; i++ {
			atomic.AddInt32(&hits[i], 1)
		}
	})
	for i, h := range hits {
		if h != 1 {
			t.Fatalf("index %d visited %d times, want 1", i, h)
		}
	}
}

func TestNotStarted_RunsInline(t *testing.T) {
	s := New(8)
	ran := false
	st := s.AddTask(func() { ran = true })
	if !ran {
		t.Error("task should run inline when the pool is not started")
	}
	s.WorkUntilDone(st)
}
