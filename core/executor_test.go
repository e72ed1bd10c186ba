package core_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Swind/go-async-runner/core"
)

func TestGoExecutor_Submit(t *testing.T) {
	exec := core.NewGoExecutor(context.Background())
	defer exec.Close()

	done := make(chan struct{})
	if err := exec.Submit(func(ctx context.Context) { close(done) }); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("submitted task did not run")
	}
}

func TestGoExecutor_SubmitAfter(t *testing.T) {
	exec := core.NewGoExecutor(context.Background())
	defer exec.Close()

	start := time.Now()
	fired := make(chan time.Duration, 1)
	_ = exec.SubmitAfter(func(ctx context.Context) { fired <- time.Since(start) }, 50*time.Millisecond)

	if exec.PendingDelayed() != 1 {
		t.Errorf("PendingDelayed() = %d, want 1", exec.PendingDelayed())
	}
	if d := <-fired; d < 50*time.Millisecond {
		t.Errorf("task ran after %v, want >= 50ms", d)
	}
}

// TestGoExecutor_CloseDrainsTimers verifies pending timers are released with a cancelled context
// Given: a GoExecutor with two far-future delayed tasks
// When: Close is called
// Then: both tasks are invoked once with a done context and further submissions fail
func TestGoExecutor_CloseDrainsTimers(t *testing.T) {
	exec := core.NewGoExecutor(context.Background())

	var canceled atomic.Int32
	for range 2 {
		_ = exec.SubmitAfter(func(ctx context.Context) {
			if ctx.Err() != nil {
				canceled.Add(1)
			}
		}, time.Hour)
	}

	exec.Close()
	exec.Close()

	if n := canceled.Load(); n != 2 {
		t.Errorf("drained with cancelled context = %d, want 2", n)
	}
	if !exec.IsClosed() || exec.PendingDelayed() != 0 {
		t.Error("executor should be closed with no pending timers")
	}
	if err := exec.Submit(func(ctx context.Context) {}); !errors.Is(err, core.ErrExecutorClosed) {
		t.Errorf("Submit after Close = %v, want ErrExecutorClosed", err)
	}
	if err := exec.SubmitAfter(func(ctx context.Context) {}, time.Second); !errors.Is(err, core.ErrExecutorClosed) {
		t.Errorf("SubmitAfter after Close = %v, want ErrExecutorClosed", err)
	}
}

// TestGoExecutor_ParentContextDone verifies a cancelled parent closes the executor to new work
// Given: a GoExecutor whose parent context has been cancelled
// When: tasks are submitted directly and through a runner
// Then: every submission fails with ErrExecutorClosed and nothing stays registered
func TestGoExecutor_ParentContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	exec := core.NewGoExecutor(ctx)
	defer exec.Close()
	cancel()

	var ran atomic.Bool
	if err := exec.Submit(func(ctx context.Context) { ran.Store(true) }); !errors.Is(err, core.ErrExecutorClosed) {
		t.Errorf("Submit = %v, want ErrExecutorClosed", err)
	}
	if err := exec.SubmitAfter(func(ctx context.Context) { ran.Store(true) }, time.Millisecond); !errors.Is(err, core.ErrExecutorClosed) {
		t.Errorf("SubmitAfter = %v, want ErrExecutorClosed", err)
	}

	runner := core.NewAsyncRunnerWithConfig(exec, &core.AsyncRunnerConfig{RejectedTaskHandler: silentRejections{}})
	if _, err := runner.Run(func(ctx context.Context) { ran.Store(true) }, 0); !errors.Is(err, core.ErrExecutorClosed) {
		t.Errorf("Run = %v, want ErrExecutorClosed", err)
	}
	if n := runner.InFlight(); n != 0 {
		t.Errorf("in flight: got = %d, want 0", n)
	}
	if ran.Load() {
		t.Error("task ran on an executor whose context is done")
	}
}

// TestGoExecutor_CloseWaitsForRunningTasks verifies Close returns only after running tasks finish
// Given: a runner on a GoExecutor with one task in progress
// When: Close is called
// Then: the task has completed and the runner has nothing in flight once Close returns
func TestGoExecutor_CloseWaitsForRunningTasks(t *testing.T) {
	exec := core.NewGoExecutor(context.Background())
	runner := core.NewAsyncRunner(exec)

	started := make(chan struct{})
	var finished atomic.Bool
	_, _ = runner.Run(func(ctx context.Context) {
		close(started)
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
	}, 0)
	<-started

	exec.Close()

	if !finished.Load() {
		t.Error("Close returned before the running task finished")
	}
	if n := runner.InFlight(); n != 0 {
		t.Errorf("in flight after Close: got = %d, want 0", n)
	}
}

func TestGoExecutor_BlockRunsInline(t *testing.T) {
	exec := core.NewGoExecutor(context.Background())
	defer exec.Close()

	called := false
	exec.Block(func() { called = true })
	if !called {
		t.Error("Block did not run fn")
	}
}

func TestGoExecutor_PanicHandler(t *testing.T) {
	exec := core.NewGoExecutor(context.Background())
	defer exec.Close()

	handler := &countingPanicHandler{}
	exec.SetPanicHandler(handler)

	_ = exec.Submit(func(ctx context.Context) { panic("loose") })

	deadline := time.Now().Add(time.Second)
	for handler.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if handler.calls.Load() != 1 {
		t.Errorf("panic handler calls = %d, want 1", handler.calls.Load())
	}
}

func TestWaitFor(t *testing.T) {
	if err := core.WaitFor(context.Background(), 10*time.Millisecond); err != nil {
		t.Errorf("WaitFor = %v, want nil", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := core.WaitFor(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("WaitFor on cancelled ctx = %v, want Canceled", err)
	}
	if err := core.WaitFor(context.Background(), 0); err != nil {
		t.Errorf("WaitFor(0) = %v, want nil", err)
	}
}

func TestTaskHandle_String(t *testing.T) {
	if got := core.TaskHandle(42).String(); got != "task-42" {
		t.Errorf("String() = %q, want task-42", got)
	}
}
