package jobs

import (
	"context"
	"runtime"
	"sync"

	"github.com/alitto/pond/v2"
	"github.com/google/uuid"
	"github.com/memmaker/voxelstore/engine/util"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ErrSchedulerClosed = errors.New("scheduler closed")
	ErrCancelled       = errors.New("task cancelled")
)

// Task is one unit of work. Run must return promptly once ctx is done.
type Task interface {
	Name() string
	Run(ctx context.Context) (any, error)
}

// TaskFunc adapts a function to Task.
type TaskFunc struct {
	Label string
	Fn    func(ctx context.Context) (any, error)
}

func (t TaskFunc) Name() string {
	return t.Label
}

func (t TaskFunc) Run(ctx context.Context) (any, error) {
	return t.Fn(ctx)
}

// Scheduler accepts prioritised tasks and hands back futures.
type Scheduler interface {
	Submit(priority int, task Task) *Future
	Close()
}

// Future is the pending result of a submitted task.
type Future struct {
	id     uuid.UUID
	name   string
	done   chan struct{}
	cancel context.CancelFunc

	value any
	err   error
}

func newFuture(name string, cancel context.CancelFunc) *Future {
	return &Future{
		id:     uuid.New(),
		name:   name,
		done:   make(chan struct{}),
		cancel: cancel,
	}
}

func (f *Future) ID() uuid.UUID {
	return f.id
}

func (f *Future) Name() string {
	return f.name
}

func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Cancel drops the task if it is still queued and cancels its context if it runs.
func (f *Future) Cancel() {
	f.cancel()
}

// Wait blocks until the task finished or ctx ends.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *Future) finish(value any, err error) {
	f.value = value
	f.err = err
	f.cancel()
	close(f.done)
}

type job struct {
	ctx    context.Context
	task   Task
	future *Future
}

var (
	queuedTasks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "jobs_queued_tasks",
		Help: "Tasks waiting for a worker.",
	})

	finishedTasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jobs_finished_tasks_total",
		Help: "Finished tasks by outcome.",
	}, []string{
		"status",
	})
)

// PoolScheduler runs tasks on a pond worker pool. Every pool slot pops the
// highest priority task that is queued at the time it starts.
type PoolScheduler struct {
	pool   pond.Pool
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	queue  queue[*job]
	closed bool
}

// NewPoolScheduler starts a scheduler with the given number of workers;
// zero or less means one per CPU.
func NewPoolScheduler(workers int) *PoolScheduler {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	ctx, cancel := context.WithCancel(context.Background())
	util.LogJobsInfo("scheduler started with %d workers", workers)
	return &PoolScheduler{
		pool:   pond.NewPool(workers),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *PoolScheduler) Submit(priority int, task Task) *Future {
	ctx, cancel := context.WithCancel(s.ctx)
	f := newFuture(task.Name(), cancel)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		f.finish(nil, errors.Wrap(ErrSchedulerClosed, task.Name()))
		return f
	}
	s.queue.push(&job{ctx: ctx, task: task, future: f}, priority)
	queuedTasks.Inc()
	// the pool slot is handed over before Close can stop the pool
	s.pool.Submit(s.runNext)
	s.mu.Unlock()

	util.LogJobsDebug("queued %s (%s) at priority %d", task.Name(), f.id, priority)
	return f
}

// Go submits fn and forgets about the result.
func (s *PoolScheduler) Go(priority int, name string, fn func(ctx context.Context) error) {
	s.Submit(priority, TaskFunc{Label: name, Fn: func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	}})
}

// Pending is the number of queued tasks that have not started.
func (s *PoolScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.len()
}

// Close waits for every queued task to finish. Submitting afterwards fails.
func (s *PoolScheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.pool.StopAndWait()
	s.cancel()

	s.mu.Lock()
	var left []*job
	for j, ok := s.queue.pop(); ok; j, ok = s.queue.pop() {
		left = append(left, j)
	}
	s.mu.Unlock()
	for _, j := range left {
		queuedTasks.Dec()
		finishedTasks.WithLabelValues("dropped").Inc()
		j.future.finish(nil, errors.Wrap(ErrSchedulerClosed, j.task.Name()))
	}
}

func (s *PoolScheduler) runNext() {
	s.mu.Lock()
	j, ok := s.queue.pop()
	s.mu.Unlock()
	if !ok {
		return
	}
	queuedTasks.Dec()

	if err := j.ctx.Err(); err != nil {
		finishedTasks.WithLabelValues("dropped").Inc()
		util.LogJobsDebug("dropped %s (%s) before it started", j.task.Name(), j.future.id)
		j.future.finish(nil, errors.Wrap(ErrCancelled, j.task.Name()))
		return
	}

	value, err := s.run(j)
	switch {
	case err == nil:
		finishedTasks.WithLabelValues("ok").Inc()
	case j.ctx.Err() != nil:
		finishedTasks.WithLabelValues("cancelled").Inc()
	default:
		finishedTasks.WithLabelValues("failed").Inc()
		util.LogJobsError("%s (%s) failed: %v", j.task.Name(), j.future.id, err)
	}
	j.future.finish(value, err)
}

// run turns a panic inside the task into its error.
func (s *PoolScheduler) run(j *job) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = errors.Wrapf(e, "%s panicked", j.task.Name())
			} else {
				err = errors.Errorf("%s panicked: %v", j.task.Name(), r)
			}
		}
	}()
	return j.task.Run(j.ctx)
}
