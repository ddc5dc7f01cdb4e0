// Package dispatch implements a fixed-size job pool: a pool of size n
// executing small Job values, supporting immediate scheduling, delayed
// scheduling, and a blocking parallel-for. Workers are re-entrant safe, a
// job may call Async again, which is how an island worker reschedules
// itself after a state transition.
//
// Concurrency admission is a golang.org/x/sync/semaphore.Weighted sized
// to the pool, and parallel_for is a golang.org/x/sync/errgroup.Group
// fork-join. Both dependencies are carried in the teacher's go.mod but
// never imported by its own code; this is where this module actually
// exercises them.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/solstice-phys/islands/pkg/axlog"
)

var ErrDispatcherStopped = errors.New("dispatch: scheduling onto a stopped pool")

type Job func()

type Pool struct {
	sem    *semaphore.Weighted
	size   int64
	logger axlog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup

	timersMu sync.Mutex
	timers   []*time.Timer
}

func NewPool(size int, logger axlog.Logger) *Pool {
	if logger == nil {
		logger = axlog.Nop{}
	}
	if size < 1 {
		size = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		sem:    semaphore.NewWeighted(int64(size)),
		size:   int64(size),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start marks the pool open for scheduling. A freshly constructed Pool is
// already open; Start only matters after Stop.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.stopped {
		return
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.stopped = false
}

// Stop cancels outstanding delayed timers and fails fast on every
// subsequent Async/AsyncAfter/ParallelFor call. Jobs already admitted to
// the semaphore keep running to completion; Stop does not wait for them
// (use Wait for that).
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.cancel()
	p.mu.Unlock()

	p.timersMu.Lock()
	for _, t := range p.timers {
		if t.Stop() {
			// The timer's job will never run, so release its Wait slot here.
			p.wg.Done()
		}
	}
	p.timers = nil
	p.timersMu.Unlock()
}

// Wait blocks until every job admitted via Async/AsyncAfter has returned
// or, for a delayed job, been cancelled by Stop. ParallelFor iterations
// are not tracked here; ParallelFor waits for its own.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) isStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

// Async runs j as soon as a pool slot is free.
func (p *Pool) Async(j Job) error {
	if p.isStopped() {
		return ErrDispatcherStopped
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			return
		}
		defer p.sem.Release(1)
		runJob(p.logger, j)
	}()
	return nil
}

// AsyncAfter runs j no sooner than delay from now, then admits it the
// same way Async does.
func (p *Pool) AsyncAfter(delay time.Duration, j Job) error {
	if p.isStopped() {
		return ErrDispatcherStopped
	}
	p.wg.Add(1)
	t := time.AfterFunc(delay, func() {
		defer p.wg.Done()
		if p.isStopped() {
			return
		}
		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			return
		}
		defer p.sem.Release(1)
		runJob(p.logger, j)
	})
	p.timersMu.Lock()
	p.timers = append(p.timers, t)
	p.timersMu.Unlock()
	return nil
}

// ParallelFor is a blocking fork-join over [begin, end) in steps of
// step, bounded by the pool's concurrency cap. Iterations cannot report
// errors: it returns nil once every iteration has run, ErrDispatcherStopped
// on a stopped pool, or the context error when the pool is stopped while
// iterations are still being admitted, in which case it returns at once
// without waiting for the iterations already started.
func (p *Pool) ParallelFor(begin, end, step int, fn func(i int)) error {
	if p.isStopped() {
		return ErrDispatcherStopped
	}
	if step <= 0 {
		step = 1
	}

	g, ctx := errgroup.WithContext(p.ctx)
	for i := begin; i < end; i += step {
		i := i
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return err
		}
		g.Go(func() error {
			defer p.sem.Release(1)
			fn(i)
			return nil
		})
	}
	return g.Wait()
}

func runJob(logger axlog.Logger, j Job) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("dispatch: job panicked", "recover", r)
		}
	}()
	j()
}
