package core

import (
	"context"
	"strconv"
)

// Task is the unit of work (Closure)
type Task func(ctx context.Context)

// TaskHandle identifies one task submitted to an AsyncRunner.
// Handles increase monotonically per runner and are never reused.
type TaskHandle uint64

func (h TaskHandle) String() string {
	return "task-" + strconv.FormatUint(uint64(h), 10)
}

// =============================================================================
// Context Helper
// =============================================================================
type asyncRunnerKeyType struct{}
type taskHandleKeyType struct{}

var (
	asyncRunnerKey asyncRunnerKeyType
	taskHandleKey  taskHandleKeyType
)

// GetCurrentAsyncRunner returns the runner executing the task that owns ctx.
func GetCurrentAsyncRunner(ctx context.Context) *AsyncRunner {
	if v := ctx.Value(asyncRunnerKey); v != nil {
		return v.(*AsyncRunner)
	}
	return nil
}

// GetCurrentTaskHandle returns the handle of the running task, if any.
func GetCurrentTaskHandle(ctx context.Context) (TaskHandle, bool) {
	h, ok := ctx.Value(taskHandleKey).(TaskHandle)
	return h, ok
}

func withTask(ctx context.Context, r *AsyncRunner, h TaskHandle) context.Context {
	ctx = context.WithValue(ctx, asyncRunnerKey, r)
	return context.WithValue(ctx, taskHandleKey, h)
}

type workerIDKeyType struct{}

var workerIDKey workerIDKeyType

// WithWorkerID tags ctx with the pool worker that runs the task.
func WithWorkerID(ctx context.Context, id int) context.Context {
	return context.WithValue(ctx, workerIDKey, id)
}

// WorkerIDFrom returns the pool worker ID stored in ctx, or -1.
func WorkerIDFrom(ctx context.Context) int {
	if id, ok := ctx.Value(workerIDKey).(int); ok {
		return id
	}
	return -1
}
