package core

import (
	"errors"
	"fmt"
)

var (
	// ErrExecutorClosed is returned by an Executor that no longer accepts work.
	ErrExecutorClosed = errors.New("executor closed")

	// ErrRunnerShutdown is returned by Run after Shutdown in ShutdownReject mode.
	ErrRunnerShutdown = errors.New("async runner is shut down")

	// ErrRunnerSaturated is returned by Run when MaxInFlight tasks are already registered.
	ErrRunnerSaturated = errors.New("async runner saturated")
)

// SchedulingError reports that a task could not be handed to the executor.
// The task's handle has already been removed from the registry when Run returns it.
type SchedulingError struct {
	Runner string
	Handle TaskHandle
	Err    error
}

func (e *SchedulingError) Error() string {
	return fmt.Sprintf("runner %s: schedule %s: %v", e.Runner, e.Handle, e.Err)
}

func (e *SchedulingError) Unwrap() error {
	return e.Err
}
