package asyncrunner

import (
	"context"

	"github.com/Swind/go-async-runner/core"
)

// Re-export commonly used types from core package for convenience.
// This allows users to import only the asyncrunner package for most use cases.

// Task is the unit of work (Closure)
type Task = core.Task

// TaskHandle identifies a task submitted to an AsyncRunner
type TaskHandle = core.TaskHandle

// AsyncRunner schedules tasks and tracks them until they finish
type AsyncRunner = core.AsyncRunner

// AsyncRunnerConfig configures an AsyncRunner
type AsyncRunnerConfig = core.AsyncRunnerConfig

// Lock is the rendezvous primitive returned by AsyncRunner.GetLock
type Lock = core.Lock

// Executor is the concurrency context an AsyncRunner schedules onto
type Executor = core.Executor

// GoExecutor runs each task on its own goroutine
type GoExecutor = core.GoExecutor

// SchedulingError is returned by AsyncRunner.Run when a task is not accepted
type SchedulingError = core.SchedulingError

// Mode constants
const (
	SleepNoop        = core.SleepNoop
	SleepBlock       = core.SleepBlock
	SleepCooperative = core.SleepCooperative

	ShutdownNoop   = core.ShutdownNoop
	ShutdownReject = core.ShutdownReject
)

// Errors
var (
	ErrExecutorClosed  = core.ErrExecutorClosed
	ErrRunnerShutdown  = core.ErrRunnerShutdown
	ErrRunnerSaturated = core.ErrRunnerSaturated
)

// DefaultAsyncRunnerConfig returns a config with default handlers
var DefaultAsyncRunnerConfig = core.DefaultAsyncRunnerConfig

// NewLock returns an idle Lock
var NewLock = core.NewLock

// NewLockWithBlocker returns an idle Lock whose waiters park through an executor
var NewLockWithBlocker = core.NewLockWithBlocker

// GetCurrentAsyncRunner retrieves the running task's AsyncRunner from context
var GetCurrentAsyncRunner = core.GetCurrentAsyncRunner

// NewAsyncRunner creates an AsyncRunner on executor with default settings.
// A nil executor is replaced by a GoExecutor.
func NewAsyncRunner(executor Executor) *AsyncRunner {
	return core.NewAsyncRunner(executor)
}

// NewAsyncRunnerWithConfig creates an AsyncRunner on executor with config.
func NewAsyncRunnerWithConfig(executor Executor, config *AsyncRunnerConfig) *AsyncRunner {
	return core.NewAsyncRunnerWithConfig(executor, config)
}

// NewGoExecutor creates a goroutine-per-task executor bound to ctx.
func NewGoExecutor(ctx context.Context) *GoExecutor {
	return core.NewGoExecutor(ctx)
}
