package groutine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
)

// DefaultExecutorCapacity is the job ring size used when NewExecutor gets 0
const DefaultExecutorCapacity uint32 = 64

// Executor runs posted jobs one at a time, in order, on a single named goroutine.
//
// Post never blocks: jobs are stored in an overlapped ring buffer, so when the
// worker falls behind the oldest pending jobs are overwritten and counted as dropped.
// This makes it safe to Post from BLE notification callbacks.
//
// An Executor is single-use: Start at most once, Stop when done.
type Executor struct {
	name    string
	jobs    mpmc.RichOverlappedRingBuffer[func()]
	wake    chan struct{}
	stop    chan struct{}
	done    chan struct{}
	started atomic.Bool
	stopped sync.Once

	posted  atomic.Uint64
	dropped atomic.Uint64

	// OnPanic is invoked with the worker goroutine name and the recovered value when
	// a job panics; the worker keeps running.
	OnPanic func(name string, recovered any)
}

// NewExecutor creates an executor whose worker goroutine is labelled name.
func NewExecutor(name string, capacity uint32) *Executor {
	if capacity == 0 {
		capacity = DefaultExecutorCapacity
	}
	return &Executor{
		name: name,
		jobs: mpmc.NewOverlappedRingBuffer[func()](capacity),
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Start launches the worker goroutine.
func (e *Executor) Start(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return fmt.Errorf("executor %q already started", e.name)
	}

	Go(ctx, e.name, func(ctx context.Context) {
		defer close(e.done)
		for {
			select {
			case <-e.stop:
				e.drain(ctx)
				return
			case <-ctx.Done():
				return
			case <-e.wake:
				e.drain(ctx)
			}
		}
	})
	return nil
}

// Post schedules job for execution. It returns false if the executor is stopped.
func (e *Executor) Post(job func()) bool {
	select {
	case <-e.stop:
		return false
	default:
	}

	overwrites, err := e.jobs.EnqueueM(job)
	if err != nil {
		e.dropped.Add(1)
		return false
	}
	e.posted.Add(1)
	e.dropped.Add(uint64(overwrites))

	select {
	case e.wake <- struct{}{}:
	default:
	}
	return true
}

// Stop runs the jobs still queued, then terminates the worker and waits for it.
// Calling Stop on a never-started executor only marks it stopped.
func (e *Executor) Stop() {
	e.stopped.Do(func() {
		close(e.stop)
	})
	if e.started.Load() {
		<-e.done
	}
}

// Posted returns the number of jobs accepted by Post
func (e *Executor) Posted() uint64 { return e.posted.Load() }

// Dropped returns the number of jobs overwritten before they could run
func (e *Executor) Dropped() uint64 { return e.dropped.Load() }

func (e *Executor) drain(ctx context.Context) {
	for !e.jobs.IsEmpty() {
		job, err := e.jobs.Dequeue()
		if err != nil {
			return
		}
		if job != nil {
			e.run(ctx, job)
		}
	}
}

func (e *Executor) run(ctx context.Context, job func()) {
	defer func() {
		if r := recover(); r != nil && e.OnPanic != nil {
			e.OnPanic(GetName(ctx), r)
		}
	}()
	job()
}
