package core

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a task panics during execution.
// This allows custom panic handling, logging, and recovery strategies.
//
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called when a task panics.
	//
	// Parameters:
	// - ctx: The context of the panicked task (carries the runner and task handle)
	// - runnerName: The name of the runner where the panic occurred
	// - workerID: The ID of the pool worker, -1 when the task did not run on a pool worker
	// - panicInfo: The panic value recovered from the task
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, runnerName string, workerID int, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler provides a basic panic handler that logs to stdout.
type DefaultPanicHandler struct{}

// HandlePanic prints panic information to stdout.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, runnerName string, workerID int, panicInfo any, stackTrace []byte) {
	if workerID >= 0 {
		fmt.Printf("[Worker %d @ %s] Panic: %v\nStack trace:\n%s",
			workerID, runnerName, panicInfo, stackTrace)
	} else {
		fmt.Printf("[Runner %s] Panic: %v\nStack trace:\n%s",
			runnerName, panicInfo, stackTrace)
	}
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting task execution metrics.
// Implementations can send metrics to monitoring systems (see observability/prometheus).
//
// Methods should be non-blocking and fast to avoid impacting task execution performance.
type Metrics interface {
	// RecordTaskDuration records how long a task body took to execute.
	RecordTaskDuration(runnerName string, duration time.Duration)

	// RecordTaskPanic records that a task panicked during execution.
	RecordTaskPanic(runnerName string, panicInfo any)

	// RecordInFlight records the number of registered (not yet finished) tasks.
	RecordInFlight(runnerName string, inFlight int)

	// RecordTaskRejected records that a task was not accepted by Run.
	RecordTaskRejected(runnerName string, reason string)

	// RecordTaskCanceled records that a task was cancelled before it started.
	RecordTaskCanceled(runnerName string)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordTaskDuration(runnerName string, duration time.Duration) {}
func (m *NilMetrics) RecordTaskPanic(runnerName string, panicInfo any)             {}
func (m *NilMetrics) RecordInFlight(runnerName string, inFlight int)               {}
func (m *NilMetrics) RecordTaskRejected(runnerName string, reason string)          {}
func (m *NilMetrics) RecordTaskCanceled(runnerName string)                         {}

// =============================================================================
// RejectedTaskHandler: Interface for handling rejected tasks
// =============================================================================

// RejectedTaskHandler is called when Run does not accept a task.
// This can happen when:
// - The runner was shut down in ShutdownReject mode
// - MaxInFlight tasks are already registered
// - The executor refused the submission
//
// Implementations should be thread-safe as they may be called concurrently.
type RejectedTaskHandler interface {
	HandleRejectedTask(runnerName string, reason string)
}

// DefaultRejectedTaskHandler provides a basic handler that logs rejected tasks.
type DefaultRejectedTaskHandler struct{}

// HandleRejectedTask logs the rejected task.
func (h *DefaultRejectedTaskHandler) HandleRejectedTask(runnerName string, reason string) {
	fmt.Printf("[Runner %s] Task rejected: %s\n", runnerName, reason)
}

// =============================================================================
// AsyncRunnerConfig
// =============================================================================

// SleepMode selects what AsyncRunner.Sleep does.
type SleepMode string

const (
	// SleepNoop makes Sleep return immediately.
	SleepNoop SleepMode = "noop"
	// SleepBlock blocks the calling goroutine with time.Sleep.
	SleepBlock SleepMode = "block"
	// SleepCooperative parks the caller through Executor.Suspend.
	SleepCooperative SleepMode = "cooperative"
)

// ShutdownMode selects what AsyncRunner.Shutdown does.
type ShutdownMode string

const (
	// ShutdownNoop ignores Shutdown; IsShutdown always reports false.
	ShutdownNoop ShutdownMode = "noop"
	// ShutdownReject marks the runner shut down; later Run calls fail with ErrRunnerShutdown.
	ShutdownReject ShutdownMode = "reject"
)

const (
	defaultRunnerName  = "async-runner"
	tracerInstrumentID = "github.com/Swind/go-async-runner/core"
)

// AsyncRunnerConfig holds configuration options for AsyncRunner.
// All handlers are optional; if not provided, default implementations will be used.
type AsyncRunnerConfig struct {
	// Name labels logs, metrics and spans. Defaults to "async-runner".
	Name string

	// SleepMode defaults to SleepNoop.
	SleepMode SleepMode

	// ShutdownMode defaults to ShutdownNoop.
	ShutdownMode ShutdownMode

	// MaxInFlight bounds the number of registered tasks; 0 means unbounded.
	MaxInFlight int64

	// HistoryCapacity is the number of execution records kept. Defaults to 100.
	HistoryCapacity int

	// PanicHandler is called when a task panics. Defaults to DefaultPanicHandler.
	PanicHandler PanicHandler

	// Metrics is called to record task execution metrics. Defaults to NilMetrics.
	Metrics Metrics

	// RejectedTaskHandler is called when Run rejects a task. Defaults to DefaultRejectedTaskHandler.
	RejectedTaskHandler RejectedTaskHandler

	// Logger defaults to NoOpLogger.
	Logger Logger

	// Tracer defaults to the tracer of the global OpenTelemetry provider.
	Tracer trace.Tracer
}

// DefaultAsyncRunnerConfig returns a config with default handlers.
func DefaultAsyncRunnerConfig() *AsyncRunnerConfig {
	return &AsyncRunnerConfig{
		Name:                defaultRunnerName,
		SleepMode:           SleepNoop,
		ShutdownMode:        ShutdownNoop,
		HistoryCapacity:     defaultTaskHistoryCapacity,
		PanicHandler:        &DefaultPanicHandler{},
		Metrics:             &NilMetrics{},
		RejectedTaskHandler: &DefaultRejectedTaskHandler{},
		Logger:              NewNoOpLogger(),
		Tracer:              otel.Tracer(tracerInstrumentID),
	}
}

// withDefaults returns a copy of c with every unset field filled in.
func (c *AsyncRunnerConfig) withDefaults() AsyncRunnerConfig {
	def := DefaultAsyncRunnerConfig()
	if c == nil {
		return *def
	}

	out := *c
	if out.Name == "" {
		out.Name = def.Name
	}
	if out.SleepMode == "" {
		out.SleepMode = def.SleepMode
	}
	if out.ShutdownMode == "" {
		out.ShutdownMode = def.ShutdownMode
	}
	if out.HistoryCapacity <= 0 {
		out.HistoryCapacity = def.HistoryCapacity
	}
	if out.PanicHandler == nil {
		out.PanicHandler = def.PanicHandler
	}
	if out.Metrics == nil {
		out.Metrics = def.Metrics
	}
	if out.RejectedTaskHandler == nil {
		out.RejectedTaskHandler = def.RejectedTaskHandler
	}
	if out.Logger == nil {
		out.Logger = def.Logger
	}
	if out.Tracer == nil {
		out.Tracer = def.Tracer
	}
	return out
}
