// Package asyncrunner provides a scheduler-agnostic asynchronous task runner for Go.
//
// An AsyncRunner accepts a unit of work plus an optional delay, executes it on
// an injected concurrency context (an Executor), and keeps every unfinished
// task in a registry so that callers can wait for completion with Join. It
// also hands out Locks, a single-slot rendezvous that lets one task block
// until another signals it.
//
// # Quick Start
//
// Initialize the global thread pool at application startup:
//
//	asyncrunner.InitGlobalThreadPool(4) // 4 workers
//	defer asyncrunner.ShutdownGlobalThreadPool()
//
// Create an AsyncRunner on top of it and submit work:
//
//	runner := asyncrunner.CreateAsyncRunner(nil)
//	runner.Run(func(ctx context.Context) {
//		// Your code here
//	}, 0)
//	runner.Run(func(ctx context.Context) {
//		// Runs no earlier than 200ms from now
//	}, 200*time.Millisecond)
//	runner.Join()
//
// # Key Concepts
//
// Executor: the capability an AsyncRunner schedules onto. It submits a task,
// submits a task after a delay using a timer, and suspends the caller without
// blocking other tasks. GoroutineThreadPool (a fixed set of workers with a
// heap-based delay manager) and GoExecutor (one goroutine per task) are
// bundled; anything else can be adapted by implementing the three methods.
//
// Registry and Join: a task's handle is registered before the task is
// handed to the executor and deregistered on every exit path, including a
// panic, Cancel, or an executor draining its queue on shutdown. Join waits
// for the tasks registered when it was called (snapshot semantics). It is a
// completion barrier, not a success barrier.
//
// Lock: Await blocks until SignalAll or a timeout. A signal sent while nobody
// waits is dropped, never queued.
//
// Sleep and Shutdown: no-ops by default. AsyncRunnerConfig.SleepMode and
// AsyncRunnerConfig.ShutdownMode turn them into a blocking sleep, a
// cooperative suspend, or a shutdown that rejects further Run calls.
//
// For more details, see https://github.com/Swind/go-async-runner
package asyncrunner
