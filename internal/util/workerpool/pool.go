package workerpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/devrev/designer/internal/errors"
	"go.uber.org/zap"
)

// Task is one unit of work, typically a single design evaluation
type Task struct {
	ID  string
	Run func(context.Context) error
}

// Observer receives pool activity, typically to export it as metrics
type Observer interface {
	WorkerBusy(pool string, active int)
	TaskFinished(pool string, outcome string, duration time.Duration)
}

// Task outcomes reported to the Observer
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomePanicked  = "panicked"
	OutcomeDrained   = "drained"
)

// Config holds worker pool configuration
type Config struct {
	Name       string
	MaxWorkers int
	QueueSize  int
	Logger     *zap.Logger
	Observer   Observer
}

type job struct {
	task Task
	ctx  context.Context
}

type counters struct {
	active    atomic.Int32
	submitted atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	rejected  atomic.Uint64
	drained   atomic.Uint64
}

// WorkerPool runs tasks on a fixed set of goroutines fed by a bounded queue.
// Stopping the pool never loses an accepted task: whatever is still queued is
// handed to its Run with an already canceled context, so callers waiting on a
// task always hear back.
type WorkerPool struct {
	name     string
	workers  int
	queue    chan job
	logger   *zap.Logger
	observer Observer

	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	drainCtx context.Context
	wg       sync.WaitGroup
	stopOnce sync.Once
	counters counters
}

// NewWorkerPool creates a pool and starts its workers
func NewWorkerPool(cfg *Config) *WorkerPool {
	workers := cfg.MaxWorkers
	if workers <= 0 {
		workers = 4
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = workers * 4
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	drainCtx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &WorkerPool{
		name:     cfg.Name,
		workers:  workers,
		queue:    make(chan job, queueSize),
		logger:   logger,
		observer: cfg.Observer,
		done:     make(chan struct{}),
		drainCtx: drainCtx,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.loop(i)
	}

	p.logger.Info("Worker pool started",
		zap.String("name", p.name),
		zap.Int("workers", workers),
		zap.Int("queue_size", queueSize))
	return p
}

func (p *WorkerPool) loop(worker int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			p.drain(worker)
			return
		default:
		}

		select {
		case j := <-p.queue:
			p.run(worker, j, false)
		case <-p.done:
			p.drain(worker)
			return
		}
	}
}

// drain runs what is left in the queue with a canceled context. Submit cannot
// enqueue once done is closed, so this empties the queue for good.
func (p *WorkerPool) drain(worker int) {
	for {
		select {
		case j := <-p.queue:
			j.ctx = p.drainCtx
			p.run(worker, j, true)
		default:
			return
		}
	}
}

func (p *WorkerPool) run(worker int, j job, draining bool) {
	p.busy(p.counters.active.Add(1))
	defer func() { p.busy(p.counters.active.Add(-1)) }()

	start := time.Now()
	panicked, err := p.call(j)
	elapsed := time.Since(start)

	var outcome string
	switch {
	case draining:
		outcome = OutcomeDrained
		p.counters.drained.Add(1)
	case panicked:
		outcome = OutcomePanicked
		p.counters.failed.Add(1)
	case err != nil:
		outcome = OutcomeFailed
		p.counters.failed.Add(1)
	default:
		outcome = OutcomeCompleted
		p.counters.completed.Add(1)
	}

	fields := []zap.Field{
		zap.String("pool", p.name),
		zap.Int("worker", worker),
		zap.String("task_id", j.task.ID),
		zap.String("outcome", outcome),
		zap.Duration("duration", elapsed),
	}
	if err != nil && !draining {
		p.logger.Warn("Task failed", append(fields, zap.Error(err))...)
	} else {
		p.logger.Debug("Task finished", fields...)
	}

	if p.observer != nil {
		p.observer.TaskFinished(p.name, outcome, elapsed)
	}
}

func (p *WorkerPool) busy(active int32) {
	if p.observer != nil {
		p.observer.WorkerBusy(p.name, int(active))
	}
}

func (p *WorkerPool) call(j job) (panicked bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			err = errors.InternalError(fmt.Sprintf("task %s panicked", j.task.ID), fmt.Errorf("%v", r))
			p.logger.Error("Task panic recovered",
				zap.String("pool", p.name),
				zap.String("task_id", j.task.ID),
				zap.Any("panic", r))
		}
	}()
	ctx := j.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return false, j.task.Run(ctx)
}

// Submit enqueues task, waiting for room in the queue until ctx is done. The
// task later runs with ctx.
func (p *WorkerPool) Submit(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return p.reject(errors.Unavailable(fmt.Sprintf("worker pool '%s' is stopped", p.name), nil))
	}

	select {
	case p.queue <- job{task: task, ctx: ctx}:
		p.counters.submitted.Add(1)
		return nil
	case <-ctx.Done():
		return p.reject(errors.Canceled(fmt.Sprintf("submission of task %s canceled", task.ID), ctx.Err()))
	}
}

// TrySubmit enqueues task only if the queue has room right now
func (p *WorkerPool) TrySubmit(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return p.reject(errors.Unavailable(fmt.Sprintf("worker pool '%s' is stopped", p.name), nil))
	}

	select {
	case p.queue <- job{task: task, ctx: ctx}:
		p.counters.submitted.Add(1)
		return nil
	default:
		return p.reject(errors.Unavailable(fmt.Sprintf("worker pool '%s' queue is full", p.name), nil))
	}
}

func (p *WorkerPool) reject(err error) error {
	p.counters.rejected.Add(1)
	return err
}

// Stop refuses further tasks, drains the queue and waits up to timeout for the
// workers to exit
func (p *WorkerPool) Stop(timeout time.Duration) error {
	var err error
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.done)
		p.mu.Unlock()

		exited := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(exited)
		}()

		select {
		case <-exited:
			p.logger.Info("Worker pool stopped",
				zap.String("name", p.name),
				zap.Uint64("drained", p.counters.drained.Load()))
		case <-time.After(timeout):
			err = errors.Unavailable(fmt.Sprintf("worker pool '%s' stop timeout after %v", p.name, timeout), nil)
			p.logger.Warn("Worker pool stop timeout", zap.String("name", p.name))
		}
	})
	return err
}

// Stats is a point-in-time view of the pool counters
type Stats struct {
	Name      string
	Workers   int
	Active    int
	Queued    int
	Submitted uint64
	Completed uint64
	Failed    uint64
	Rejected  uint64
	Drained   uint64
}

// Stats returns the current pool counters
func (p *WorkerPool) Stats() Stats {
	return Stats{
		Name:      p.name,
		Workers:   p.workers,
		Active:    int(p.counters.active.Load()),
		Queued:    len(p.queue),
		Submitted: p.counters.submitted.Load(),
		Completed: p.counters.completed.Load(),
		Failed:    p.counters.failed.Load(),
		Rejected:  p.counters.rejected.Load(),
		Drained:   p.counters.drained.Load(),
	}
}

// SuccessRate returns the share of accepted tasks that completed, in percent
func (s Stats) SuccessRate() float64 {
	if s.Submitted == 0 {
		return 100.0
	}
	return float64(s.Completed) / float64(s.Submitted) * 100.0
}
