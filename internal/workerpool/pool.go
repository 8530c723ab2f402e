// Package workerpool runs submitted work on a fixed number of goroutines
// behind a bounded queue. A full queue rejects new work instead of growing.
package workerpool

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

var (
	// ErrQueueFull is returned by Submit when every queue slot is taken.
	ErrQueueFull = errors.New("workerpool: queue full")
	// ErrPoolClosed is returned by Submit after Close.
	ErrPoolClosed = errors.New("workerpool: closed")
)

const (
	taskPending int32 = iota
	taskRunning
	taskCancelled
)

type task struct {
	ctx   context.Context
	state atomic.Int32
	run   func(ctx context.Context)
	// abort resolves the task's result when it is cancelled before starting.
	abort func(err error)
	stop  func() bool
}

// Pool is a fixed set of workers reading from a bounded queue.
type Pool struct {
	tasks  chan *task
	wg     sync.WaitGroup
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// New starts workers goroutines sharing a queue of queueSize pending tasks.
// Values below 1 are raised to 1.
func New(workers, queueSize int, logger *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{tasks: make(chan *task, queueSize), logger: logger}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for t := range p.tasks {
		if !t.state.CompareAndSwap(taskPending, taskRunning) {
			continue
		}
		t.stop()
		// Work that has started runs to completion even if the caller
		// gives up waiting.
		t.run(context.WithoutCancel(t.ctx))
	}
}

// Submit queues fn. It fails with ErrQueueFull when the queue has no free
// slot and ErrPoolClosed after Close. If ctx is done before a worker picks
// the task up, fn is never called.
func (p *Pool) Submit(ctx context.Context, fn func(ctx context.Context)) error {
	return p.submit(ctx, fn, func(error) {})
}

func (p *Pool) submit(ctx context.Context, run func(context.Context), abort func(error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := &task{ctx: ctx, run: run, abort: abort}
	t.stop = context.AfterFunc(ctx, func() {
		if t.state.CompareAndSwap(taskPending, taskCancelled) {
			t.abort(ctx.Err())
		}
	})

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		t.stop()
		return ErrPoolClosed
	}
	select {
	case p.tasks <- t:
		return nil
	default:
		t.stop()
		p.logger.Warn("worker pool queue full", "capacity", cap(p.tasks))
		return ErrQueueFull
	}
}

// Pending returns the number of queued tasks not yet picked up.
func (p *Pool) Pending() int { return len(p.tasks) }

// Close stops accepting work, lets the workers drain the queue and waits
// for them to exit. It is safe to call more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()
	p.wg.Wait()
}
