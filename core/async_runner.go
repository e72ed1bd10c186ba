package core

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

// AsyncRunner schedules tasks onto an Executor and keeps track of the ones
// that have not finished yet, so that callers can Join them.
//
// Every accepted task is registered before it is handed to the executor and
// deregistered on every exit path: normal return, panic, Cancel, or being
// drained by an executor that shuts down with the task still queued.
type AsyncRunner struct {
	id       string
	cfg      AsyncRunnerConfig
	executor Executor
	registry *TaskRegistry
	history  *executionHistory

	// admission is nil when MaxInFlight is 0
	admission *semaphore.Weighted

	shutdown atomic.Bool

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	canceled  atomic.Int64
	rejected  atomic.Int64
}

// NewAsyncRunner creates an AsyncRunner with the default configuration.
// A nil executor is replaced by a GoExecutor.
func NewAsyncRunner(executor Executor) *AsyncRunner {
	return NewAsyncRunnerWithConfig(executor, nil)
}

// NewAsyncRunnerWithConfig creates an AsyncRunner; unset config fields take their defaults.
func NewAsyncRunnerWithConfig(executor Executor, config *AsyncRunnerConfig) *AsyncRunner {
	if executor == nil {
		executor = NewGoExecutor(context.Background())
	}
	cfg := config.withDefaults()

	r := &AsyncRunner{
		id:       uuid.NewString(),
		cfg:      cfg,
		executor: executor,
		registry: NewTaskRegistry(),
		history:  newExecutionHistory(cfg.HistoryCapacity),
	}
	if cfg.MaxInFlight > 0 {
		r.admission = semaphore.NewWeighted(cfg.MaxInFlight)
	}
	return r
}

// Name returns the configured runner name.
func (r *AsyncRunner) Name() string { return r.cfg.Name }

// ID returns the unique instance ID of the runner.
func (r *AsyncRunner) ID() string { return r.id }

// Executor returns the concurrency context the runner schedules onto.
func (r *AsyncRunner) Executor() Executor { return r.executor }

// =============================================================================
// Scheduling
// =============================================================================

// Run schedules task to execute after delay (immediately when delay <= 0) and
// returns without waiting for it. A nil task is accepted and completes
// without doing anything.
//
// Errors are *SchedulingError values wrapping ErrRunnerShutdown,
// ErrRunnerSaturated, or the executor's error.
func (r *AsyncRunner) Run(task Task, delay time.Duration) (TaskHandle, error) {
	if r.IsShutdown() {
		return 0, r.reject(0, ErrRunnerShutdown)
	}
	if r.admission != nil && !r.admission.TryAcquire(1) {
		return 0, r.reject(0, ErrRunnerSaturated)
	}

	info := TaskInfo{
		Name:        resolveTaskName(task),
		Delay:       max(delay, 0),
		SubmittedAt: time.Now(),
	}
	h := r.registry.Register(info)
	r.submitted.Add(1)
	r.cfg.Metrics.RecordInFlight(r.cfg.Name, r.registry.Len())

	wrapped := r.wrap(h, info, task)

	var err error
	if delay > 0 {
		err = r.executor.SubmitAfter(wrapped, delay)
	} else {
		err = r.executor.Submit(wrapped)
	}
	if err != nil {
		r.registry.Deregister(h)
		r.releaseSlot()
		r.cfg.Metrics.RecordInFlight(r.cfg.Name, r.registry.Len())
		return 0, r.reject(h, err)
	}

	r.cfg.Logger.Debug("task scheduled",
		F("runner", r.cfg.Name),
		F("task", h),
		F("name", info.Name),
		F("delay", info.Delay))
	return h, nil
}

// wrap binds task to its registry entry. The returned Task is what the executor runs.
func (r *AsyncRunner) wrap(h TaskHandle, info TaskInfo, task Task) Task {
	return func(ctx context.Context) {
		// Executors hand over queued work with a done context when they stop.
		if ctx.Err() != nil {
			r.Cancel(h)
			return
		}
		if !r.registry.begin(h) {
			return
		}
		r.execute(ctx, h, info, task)
	}
}

func (r *AsyncRunner) execute(ctx context.Context, h TaskHandle, info TaskInfo, task Task) {
	ctx, span := r.cfg.Tracer.Start(ctx, "AsyncRunner.Run", trace.WithAttributes(
		attribute.String("asyncrunner.runner", r.cfg.Name),
		attribute.String("asyncrunner.task", h.String()),
		attribute.String("asyncrunner.task_name", info.Name),
		attribute.Int64("asyncrunner.delay_ms", info.Delay.Milliseconds()),
	))
	ctx = withTask(ctx, r, h)
	startedAt := time.Now()

	defer func() {
		outcome := TaskSucceeded
		if rec := recover(); rec != nil {
			outcome = TaskFailed
			r.failed.Add(1)
			stack := debug.Stack()

			span.RecordError(fmt.Errorf("panic: %v", rec))
			span.SetStatus(codes.Error, "task panicked")
			r.cfg.Metrics.RecordTaskPanic(r.cfg.Name, rec)
			r.cfg.Logger.Error("task panicked",
				F("runner", r.cfg.Name),
				F("task", h),
				F("name", info.Name),
				F("panic", rec))
			r.cfg.PanicHandler.HandlePanic(ctx, r.cfg.Name, WorkerIDFrom(ctx), rec, stack)
		} else {
			r.completed.Add(1)
		}

		finishedAt := time.Now()
		duration := finishedAt.Sub(startedAt)
		span.SetAttributes(attribute.String("asyncrunner.outcome", string(outcome)))
		span.End()

		r.cfg.Metrics.RecordTaskDuration(r.cfg.Name, duration)
		r.history.Add(TaskExecutionRecord{
			Handle:     h,
			Name:       info.Name,
			RunnerName: r.cfg.Name,
			Delay:      info.Delay,
			StartedAt:  startedAt,
			FinishedAt: finishedAt,
			Duration:   duration,
			Outcome:    outcome,
		})

		// Deregistration goes last so that Join observes the recorded outcome.
		r.registry.end(h)
		r.releaseSlot()
		r.cfg.Metrics.RecordInFlight(r.cfg.Name, r.registry.Len())
	}()

	if task != nil {
		task(ctx)
	}
}

// Cancel withdraws a task that has not started yet. Its body never runs and
// its handle is deregistered immediately. Cancel returns false when the task
// already started, already finished, or is unknown.
func (r *AsyncRunner) Cancel(h TaskHandle) bool {
	info, ok := r.registry.cancel(h)
	if !ok {
		return false
	}
	r.releaseSlot()
	r.canceled.Add(1)

	now := time.Now()
	r.history.Add(TaskExecutionRecord{
		Handle:     h,
		Name:       info.Name,
		RunnerName: r.cfg.Name,
		Delay:      info.Delay,
		StartedAt:  now,
		FinishedAt: now,
		Outcome:    TaskCanceled,
	})
	r.cfg.Metrics.RecordTaskCanceled(r.cfg.Name)
	r.cfg.Metrics.RecordInFlight(r.cfg.Name, r.registry.Len())
	r.cfg.Logger.Debug("task canceled", F("runner", r.cfg.Name), F("task", h))
	return true
}

func (r *AsyncRunner) releaseSlot() {
	if r.admission != nil {
		r.admission.Release(1)
	}
}

func (r *AsyncRunner) reject(h TaskHandle, err error) error {
	reason := rejectReason(err)
	r.rejected.Add(1)
	r.cfg.RejectedTaskHandler.HandleRejectedTask(r.cfg.Name, reason)
	r.cfg.Metrics.RecordTaskRejected(r.cfg.Name, reason)
	r.cfg.Logger.Warn("task rejected",
		F("runner", r.cfg.Name),
		F("reason", reason),
		F("error", err))
	return &SchedulingError{Runner: r.cfg.Name, Handle: h, Err: err}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrRunnerShutdown):
		return "shutdown"
	case errors.Is(err, ErrRunnerSaturated):
		return "saturated"
	case errors.Is(err, ErrExecutorClosed):
		return "executor_closed"
	default:
		return "executor_error"
	}
}

// =============================================================================
// Join
// =============================================================================

// Join blocks until every task registered when Join was called has finished,
// successfully or not. Tasks submitted while Join is waiting are not part of
// the snapshot.
func (r *AsyncRunner) Join() {
	_ = r.registry.Wait(context.Background())
}

// JoinContext is Join bounded by ctx. It returns ctx.Err() if ctx ends first.
func (r *AsyncRunner) JoinContext(ctx context.Context) error {
	return r.registry.Wait(ctx)
}

// InFlight returns the number of registered tasks.
func (r *AsyncRunner) InFlight() int {
	return r.registry.Len()
}

// Handles returns the handles of registered tasks in submission order.
func (r *AsyncRunner) Handles() []TaskHandle {
	return r.registry.Handles()
}

// IsRegistered reports whether h has been submitted and not yet finished.
func (r *AsyncRunner) IsRegistered(h TaskHandle) bool {
	return r.registry.Contains(h)
}

// =============================================================================
// Sleep / lifecycle / locks
// =============================================================================

// Sleep pauses the caller according to the configured SleepMode.
func (r *AsyncRunner) Sleep(d time.Duration) {
	_ = r.SleepContext(context.Background(), d)
}

// SleepContext is Sleep that gives up when ctx ends.
func (r *AsyncRunner) SleepContext(ctx context.Context, d time.Duration) error {
	switch r.cfg.SleepMode {
	case SleepBlock:
		time.Sleep(d)
		return nil
	case SleepCooperative:
		return r.executor.Suspend(ctx, d)
	default:
		return nil
	}
}

// Shutdown stops the runner from accepting new tasks in ShutdownReject mode
// and is ignored otherwise. Tasks already registered keep running and can
// still be joined.
func (r *AsyncRunner) Shutdown() {
	if r.cfg.ShutdownMode != ShutdownReject {
		r.cfg.Logger.Debug("shutdown ignored", F("runner", r.cfg.Name), F("mode", r.cfg.ShutdownMode))
		return
	}
	if r.shutdown.CompareAndSwap(false, true) {
		r.cfg.Logger.Info("runner shut down",
			F("runner", r.cfg.Name),
			F("in_flight", r.registry.Len()))
	}
}

// IsShutdown reports whether Shutdown took effect. It is always false in ShutdownNoop mode.
func (r *AsyncRunner) IsShutdown() bool {
	return r.cfg.ShutdownMode == ShutdownReject && r.shutdown.Load()
}

// GetLock returns a fresh Lock bound to the runner's executor, so waiting
// on it releases the executor slot of the waiting task. Locks are not tracked.
func (r *AsyncRunner) GetLock() *Lock {
	return NewLockWithBlocker(r.executor)
}

// =============================================================================
// Observability
// =============================================================================

// Stats returns a snapshot of the runner counters.
func (r *AsyncRunner) Stats() RunnerStats {
	stats := RunnerStats{
		Name:      r.cfg.Name,
		ID:        r.id,
		InFlight:  r.registry.Len(),
		Submitted: r.submitted.Load(),
		Completed: r.completed.Load(),
		Failed:    r.failed.Load(),
		Canceled:  r.canceled.Load(),
		Rejected:  r.rejected.Load(),
		Shutdown:  r.IsShutdown(),
	}
	if last, ok := r.history.Last(); ok {
		stats.LastTaskName = last.Name
		stats.LastTaskAt = last.FinishedAt
	}
	return stats
}

// RecentTasks returns up to limit finished tasks, newest first.
func (r *AsyncRunner) RecentTasks(limit int) []TaskExecutionRecord {
	return r.history.Recent(limit)
}

// LastTask returns the most recently finished task.
func (r *AsyncRunner) LastTask() (TaskExecutionRecord, bool) {
	return r.history.Last()
}
