package core

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// =============================================================================
// Executor: the concurrency context an AsyncRunner schedules onto
// =============================================================================

// Executor is the capability an AsyncRunner needs from the engine that
// actually runs work: a worker pool, a goroutine-per-task executor, or an
// adapter over some other event loop.
type Executor interface {
	// Submit schedules task for asynchronous execution.
	// It returns an error (usually wrapping ErrExecutorClosed) when the task is not accepted.
	Submit(task Task) error

	// SubmitAfter schedules task to run once delay has elapsed.
	// The wait must use a timer, never a blocked worker.
	SubmitAfter(task Task, delay time.Duration) error

	// Suspend parks the calling task for d without holding up other tasks.
	// It returns ctx.Err() if ctx ends first.
	Suspend(ctx context.Context, d time.Duration) error

	// Block runs fn, which may park the calling task, and keeps the rest of
	// the executor's work moving until fn returns.
	Block(fn func())
}

// WaitFor blocks the calling goroutine for d or until ctx ends, whichever
// comes first. It is the Suspend implementation of the bundled executors.
func WaitFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// =============================================================================
// GoExecutor: one goroutine per task
// =============================================================================

// GoExecutor runs every task on its own goroutine and uses time.AfterFunc for
// delays. Tasks receive a context that is cancelled by Close or by the
// parent context; either one makes further submissions fail.
//
// Delayed tasks whose timer has not fired when Close is called are still
// invoked, with the cancelled context, so that their owners observe completion.
type GoExecutor struct {
	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool

	panicHandler PanicHandler

	mu      sync.Mutex
	pending map[*time.Timer]Task
	running sync.WaitGroup // Add only under mu while not closed
}

var _ Executor = (*GoExecutor)(nil)

// NewGoExecutor creates a GoExecutor bound to parent.
func NewGoExecutor(parent context.Context) *GoExecutor {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	return &GoExecutor{
		ctx:          ctx,
		cancel:       cancel,
		panicHandler: &DefaultPanicHandler{},
		pending:      make(map[*time.Timer]Task),
	}
}

// SetPanicHandler replaces the handler used for panics escaping a task.
func (e *GoExecutor) SetPanicHandler(handler PanicHandler) {
	if handler != nil {
		e.panicHandler = handler
	}
}

func (e *GoExecutor) run(task Task) {
	defer e.running.Done()
	defer func() {
		if r := recover(); r != nil {
			e.panicHandler.HandlePanic(e.ctx, "go-executor", -1, r, debug.Stack())
		}
	}()
	task(e.ctx)
}

// acceptingLocked reports whether new work may start. Caller holds mu.
func (e *GoExecutor) acceptingLocked() error {
	if e.closed.Load() || e.ctx.Err() != nil {
		return ErrExecutorClosed
	}
	return nil
}

// Submit starts task on a new goroutine.
func (e *GoExecutor) Submit(task Task) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.acceptingLocked(); err != nil {
		return err
	}
	e.running.Add(1)
	go e.run(task)
	return nil
}

// SubmitAfter starts task on a new goroutine once delay has elapsed.
func (e *GoExecutor) SubmitAfter(task Task, delay time.Duration) error {
	if delay <= 0 {
		return e.Submit(task)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.acceptingLocked(); err != nil {
		return err
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		e.mu.Lock()
		_, ok := e.pending[timer]
		delete(e.pending, timer)
		if ok {
			e.running.Add(1)
		}
		e.mu.Unlock()
		if ok {
			e.run(task)
		}
	})
	e.pending[timer] = task
	return nil
}

// Suspend parks the calling goroutine for d.
func (e *GoExecutor) Suspend(ctx context.Context, d time.Duration) error {
	return WaitFor(ctx, d)
}

// Block runs fn inline. Every task owns its goroutine, so nothing else waits on it.
func (e *GoExecutor) Block(fn func()) {
	fn()
}

// PendingDelayed returns the number of delayed tasks whose timer has not fired.
func (e *GoExecutor) PendingDelayed() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Close rejects further submissions, cancels the task context, drains
// timers that have not fired yet and waits for running tasks to return.
// Repeated calls are no-ops. Close must not be called from one of its own tasks.
func (e *GoExecutor) Close() {
	e.mu.Lock()
	if !e.closed.CompareAndSwap(false, true) {
		e.mu.Unlock()
		return
	}
	e.cancel()

	// A timer that already fired is blocked on mu and will find its entry gone.
	drained := make([]Task, 0, len(e.pending))
	for timer, task := range e.pending {
		timer.Stop()
		drained = append(drained, task)
	}
	e.pending = make(map[*time.Timer]Task)
	e.mu.Unlock()

	for _, task := range drained {
		RunDrained(task, e.panicHandler)
	}
	e.running.Wait()
}

// IsClosed reports whether Close has been called.
func (e *GoExecutor) IsClosed() bool {
	return e.closed.Load()
}
