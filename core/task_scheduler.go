package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// TaskScheduler is the work source behind a worker pool: a ready queue, a
// wakeup signal for idle workers, and a DelayManager for delayed tasks.
type TaskScheduler struct {
	queue       TaskQueue
	signal      chan struct{}
	workerCount int

	delayManager *DelayManager

	metricQueued atomic.Int32 // Waiting in the ready queue
	metricActive atomic.Int32 // Executing in a worker

	panicHandler PanicHandler
	logger       Logger

	// postMu orders posts against the shutdown flag so nothing lands in the
	// queue after it has been drained.
	postMu       sync.RWMutex
	shuttingDown bool
}

// TaskSchedulerConfig holds configuration options for TaskScheduler.
type TaskSchedulerConfig struct {
	// PanicHandler is called when a task panics on a worker. Defaults to DefaultPanicHandler.
	PanicHandler PanicHandler

	// Logger defaults to NoOpLogger.
	Logger Logger
}

// DefaultTaskSchedulerConfig returns a config with default handlers.
func DefaultTaskSchedulerConfig() *TaskSchedulerConfig {
	return &TaskSchedulerConfig{
		PanicHandler: &DefaultPanicHandler{},
		Logger:       NewNoOpLogger(),
	}
}

func NewFIFOTaskScheduler(workerCount int) *TaskScheduler {
	return NewFIFOTaskSchedulerWithConfig(workerCount, DefaultTaskSchedulerConfig())
}

func NewFIFOTaskSchedulerWithConfig(workerCount int, config *TaskSchedulerConfig) *TaskScheduler {
	if workerCount < 1 {
		workerCount = 1
	}
	s := &TaskScheduler{
		queue:       NewFIFOTaskQueue(),
		signal:      make(chan struct{}, workerCount*2),
		workerCount: workerCount,
	}
	s.delayManager = NewDelayManager(s.dispatchDelayed)

	if config != nil {
		s.panicHandler = config.PanicHandler
		s.logger = config.Logger
	}
	if s.panicHandler == nil {
		s.panicHandler = &DefaultPanicHandler{}
	}
	if s.logger == nil {
		s.logger = NewNoOpLogger()
	}

	return s
}

// PostInternal queues task for the next idle worker.
func (s *TaskScheduler) PostInternal(task Task) error {
	s.postMu.RLock()
	defer s.postMu.RUnlock()

	if s.shuttingDown {
		return ErrExecutorClosed
	}

	s.queue.Push(task)
	s.metricQueued.Add(1)

	select {
	case s.signal <- struct{}{}:
	default:
		// Signal channel full, but task is already queued
	}
	return nil
}

// PostDelayedInternal hands task to the DelayManager.
func (s *TaskScheduler) PostDelayedInternal(task Task, delay time.Duration) error {
	s.postMu.RLock()
	defer s.postMu.RUnlock()

	if s.shuttingDown {
		return ErrExecutorClosed
	}
	s.delayManager.AddDelayedTask(task, delay)
	return nil
}

// dispatchDelayed moves an expired task to the ready queue. A task that
// expires while the scheduler stops is drained in place.
func (s *TaskScheduler) dispatchDelayed(task Task) {
	if err := s.PostInternal(task); err != nil {
		RunDrained(task, s.panicHandler)
	}
}

// GetWork (Called by Worker)
func (s *TaskScheduler) GetWork(stopCh <-chan struct{}) (Task, bool) {
	for {
		if task, ok := s.queue.Pop(); ok {
			s.metricQueued.Add(-1)
			return task, true
		}

		select {
		case <-s.signal:
			continue
		case <-stopCh:
			return nil, false
		}
	}
}

func (s *TaskScheduler) markShuttingDown() {
	s.postMu.Lock()
	s.shuttingDown = true
	s.postMu.Unlock()
}

// Shutdown stops accepting tasks and returns everything that was still
// delayed or queued, delayed tasks first.
func (s *TaskScheduler) Shutdown() []Task {
	s.markShuttingDown()

	drained := s.delayManager.Stop()
	queued := s.queue.Drain()
	s.metricQueued.Add(-int32(len(queued)))

	return append(drained, queued...)
}

// ShutdownGraceful stops accepting tasks and waits for queued and active
// tasks to complete. Delayed tasks are returned right away since their
// timers will no longer fire. If timeout expires first, the remaining queue
// is returned together with an error.
func (s *TaskScheduler) ShutdownGraceful(timeout time.Duration) ([]Task, error) {
	s.markShuttingDown()

	drained := s.delayManager.Stop()

	deadline := time.After(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if s.QueuedTaskCount() == 0 && s.ActiveTaskCount() == 0 {
			return drained, nil
		}
		select {
		case <-deadline:
			queued := s.queue.Drain()
			s.metricQueued.Add(-int32(len(queued)))
			return append(drained, queued...), fmt.Errorf("shutdown graceful timeout after %v, forced draining", timeout)
		case <-ticker.C:
		}
	}
}

// IsShuttingDown reports whether Shutdown or ShutdownGraceful was called.
func (s *TaskScheduler) IsShuttingDown() bool {
	s.postMu.RLock()
	defer s.postMu.RUnlock()
	return s.shuttingDown
}

// Metrics
func (s *TaskScheduler) WorkerCount() int      { return s.workerCount }
func (s *TaskScheduler) QueuedTaskCount() int  { return int(s.metricQueued.Load()) }
func (s *TaskScheduler) ActiveTaskCount() int  { return int(s.metricActive.Load()) }
func (s *TaskScheduler) DelayedTaskCount() int { return s.delayManager.TaskCount() }

func (s *TaskScheduler) OnTaskStart() { s.metricActive.Add(1) }
func (s *TaskScheduler) OnTaskEnd()   { s.metricActive.Add(-1) }

// GetPanicHandler returns the panic handler for this scheduler
func (s *TaskScheduler) GetPanicHandler() PanicHandler {
	return s.panicHandler
}

// GetLogger returns the logger for this scheduler
func (s *TaskScheduler) GetLogger() Logger {
	return s.logger
}

// =============================================================================
// Drained tasks
// =============================================================================

var drainedCtx = func() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}()

// DrainedContext returns the already-cancelled context executors pass to
// tasks they release without running them.
func DrainedContext() context.Context {
	return drainedCtx
}

// RunDrained invokes task with DrainedContext, recovering any panic.
func RunDrained(task Task, handler PanicHandler) {
	defer func() {
		if r := recover(); r != nil && handler != nil {
			handler.HandlePanic(drainedCtx, "drain", -1, r, nil)
		}
	}()
	task(drainedCtx)
}
