// Package tasks runs fire-and-forget background work (LED activation, event
// publishing) on a bounded worker pool so failures are logged and counted
// instead of disappearing.
package tasks

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Func is one unit of background work. ctx carries the per-task timeout.
type Func func(ctx context.Context) error

type task struct {
	name string
	fn   Func
}

// Stats are cumulative counters since start.
type Stats struct {
	Submitted int64 `json:"submitted"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
	Queued    int   `json:"queued"`
	Workers   int   `json:"workers"`
}

type Runner struct {
	items   chan task
	workers int
	timeout time.Duration
	logger  *zap.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.RWMutex
	running bool

	submitted atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// NewRunner starts workers immediately. timeout <= 0 disables the per-task
// deadline.
func NewRunner(workers, queueSize int, timeout time.Duration, logger *zap.Logger) *Runner {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		items:   make(chan task, queueSize),
		workers: workers,
		timeout: timeout,
		logger:  logger,
		baseCtx: ctx,
		cancel:  cancel,
		running: true,
	}
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
	return r
}

func (r *Runner) worker(id int) {
	defer r.wg.Done()
	for t := range r.items {
		r.run(id, t)
	}
}

func (r *Runner) run(workerID int, t task) {
	ctx := r.baseCtx
	var cancel context.CancelFunc
	if r.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	err := func() (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("task panic: %v", rec)
			}
		}()
		return t.fn(ctx)
	}()

	if err != nil {
		r.failed.Add(1)
		r.logger.Warn("Background task failed",
			zap.String("task", t.name),
			zap.Int("worker", workerID),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return
	}
	r.succeeded.Add(1)
	r.logger.Debug("Background task done",
		zap.String("task", t.name),
		zap.Duration("elapsed", time.Since(start)),
	)
}

// Submit enqueues fn without blocking. It returns false, and counts a drop,
// when the queue is full or the runner is shutting down.
func (r *Runner) Submit(name string, fn Func) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.running {
		r.dropped.Add(1)
		r.logger.Warn("Background task dropped, runner stopped", zap.String("task", name))
		return false
	}
	select {
	case r.items <- task{name: name, fn: fn}:
		r.submitted.Add(1)
		return true
	default:
		r.dropped.Add(1)
		r.logger.Warn("Background task dropped, queue full",
			zap.String("task", name),
			zap.Int("capacity", cap(r.items)),
		)
		return false
	}
}

func (r *Runner) Stats() Stats {
	return Stats{
		Submitted: r.submitted.Load(),
		Succeeded: r.succeeded.Load(),
		Failed:    r.failed.Load(),
		Dropped:   r.dropped.Load(),
		Queued:    len(r.items),
		Workers:   r.workers,
	}
}

// Shutdown stops accepting work and lets workers drain the queue. Tasks still
// running when timeout expires have their context cancelled.
func (r *Runner) Shutdown(timeout time.Duration) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	close(r.items)
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		return nil
	case <-time.After(timeout):
		r.cancel()
		return fmt.Errorf("task runner shutdown timeout exceeded (%d queued)", len(r.items))
	}
}
