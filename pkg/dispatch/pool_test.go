package dispatch

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestAsyncRunsJob(t *testing.T) {
	p := NewPool(4, nil)
	defer p.Stop()

	var ran atomic.Bool
	done := make(chan struct{})
	if err := p.Async(func() { ran.Store(true); close(done) }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job did not run in time")
	}
	if !ran.Load() {
		t.Fatalf("expected job to have run")
	}
}

func TestAsyncAfterRespectsDelay(t *testing.T) {
	p := NewPool(2, nil)
	defer p.Stop()

	start := time.Now()
	done := make(chan time.Time, 1)
	if err := p.AsyncAfter(50*time.Millisecond, func() { done <- time.Now() }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case ranAt := <-done:
		if ranAt.Sub(start) < 40*time.Millisecond {
			t.Fatalf("job ran too early: %v", ranAt.Sub(start))
		}
	case <-time.After(time.Second):
		t.Fatal("job did not run in time")
	}
}

func TestParallelForVisitsEveryIndex(t *testing.T) {
	p := NewPool(4, nil)
	defer p.Stop()

	const n = 37
	var hits [n]atomic.Int32
	err := p.ParallelFor(0, n, 1, func(i int) { hits[i].Add(1) })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range hits {
		if hits[i].Load() != 1 {
			t.Fatalf("index %d visited %d times", i, hits[i].Load())
		}
	}
}

func TestStopFailsFastOnFutureScheduling(t *testing.T) {
	p := NewPool(2, nil)
	p.Stop()

	if err := p.Async(func() {}); err != ErrDispatcherStopped {
		t.Fatalf("expected ErrDispatcherStopped, got %v", err)
	}
	if err := p.AsyncAfter(time.Millisecond, func() {}); err != ErrDispatcherStopped {
		t.Fatalf("expected ErrDispatcherStopped, got %v", err)
	}
	if err := p.ParallelFor(0, 1, 1, func(i int) {}); err != ErrDispatcherStopped {
		t.Fatalf("expected ErrDispatcherStopped, got %v", err)
	}
}

func TestReentrantAsyncFromWithinJob(t *testing.T) {
	p := NewPool(2, nil)
	defer p.Stop()

	done := make(chan struct{})
	var first Job
	first = func() {
		close(done)
	}
	if err := p.Async(func() { p.Async(first) }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reentrant reschedule did not run")
	}
}
