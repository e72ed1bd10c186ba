package core

import "time"

// TaskOutcome is the terminal state of one task.
type TaskOutcome string

const (
	TaskSucceeded TaskOutcome = "succeeded"
	TaskFailed    TaskOutcome = "failed"
	TaskCanceled  TaskOutcome = "canceled"
)

// TaskExecutionRecord captures a finished task.
type TaskExecutionRecord struct {
	Handle     TaskHandle
	Name       string
	RunnerName string
	Delay      time.Duration
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Outcome    TaskOutcome
}

// RunnerStats represents runtime observability state for an AsyncRunner.
type RunnerStats struct {
	Name         string
	ID           string
	InFlight     int
	Submitted    int64
	Completed    int64
	Failed       int64
	Canceled     int64
	Rejected     int64
	Shutdown     bool
	LastTaskName string
	LastTaskAt   time.Time
}

// PoolStats represents runtime observability state for a thread pool.
type PoolStats struct {
	ID      string
	Workers int
	Queued  int
	Active  int
	Delayed int
	Running bool
}
