package core

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// TestFIFOTaskScheduler_ExecutionOrder verifies GetWork hands out tasks in post order
func TestFIFOTaskScheduler_ExecutionOrder(t *testing.T) {
	// Arrange
	s := NewFIFOTaskScheduler(1)
	defer s.Shutdown()

	var order []int
	for i := range 3 {
		if err := s.PostInternal(func(ctx context.Context) { order = append(order, i) }); err != nil {
			t.Fatalf("PostInternal failed: %v", err)
		}
	}

	// Act
	stop := make(chan struct{})
	for range 3 {
		task, ok := s.GetWork(stop)
		if !ok {
			t.Fatal("GetWork returned no task")
		}
		task(context.Background())
	}

	// Assert
	if len(order) != 3 || order[0] != 0 || order[2] != 2 {
		t.Errorf("order = %v, want [0 1 2]", order)
	}
	if s.QueuedTaskCount() != 0 {
		t.Errorf("QueuedTaskCount() = %d, want 0", s.QueuedTaskCount())
	}
}

func TestTaskScheduler_GetWorkStops(t *testing.T) {
	s := NewFIFOTaskScheduler(1)
	defer s.Shutdown()

	stop := make(chan struct{})
	close(stop)

	if _, ok := s.GetWork(stop); ok {
		t.Error("GetWork on an empty queue with a closed stop channel should return false")
	}
}

// TestTaskScheduler_Shutdown verifies Shutdown drains delayed and queued tasks
// Given: A scheduler with 2 queued and 1 delayed task
// When: Shutdown is called
// Then: All 3 tasks are returned, delayed first, and posting fails afterwards
func TestTaskScheduler_Shutdown(t *testing.T) {
	// Arrange
	s := NewFIFOTaskScheduler(2)
	var marks []string
	_ = s.PostInternal(func(ctx context.Context) { marks = append(marks, "queued") })
	_ = s.PostInternal(func(ctx context.Context) { marks = append(marks, "queued") })
	_ = s.PostDelayedInternal(func(ctx context.Context) { marks = append(marks, "delayed") }, time.Hour)

	// Act
	drained := s.Shutdown()

	// Assert
	if len(drained) != 3 {
		t.Fatalf("len(drained) = %d, want 3", len(drained))
	}
	for _, task := range drained {
		task(DrainedContext())
	}
	if marks[0] != "delayed" {
		t.Errorf("first drained task = %s, want delayed", marks[0])
	}
	if !s.IsShuttingDown() {
		t.Error("IsShuttingDown() = false after Shutdown")
	}
	if err := s.PostInternal(func(ctx context.Context) {}); !errors.Is(err, ErrExecutorClosed) {
		t.Errorf("PostInternal after Shutdown = %v, want ErrExecutorClosed", err)
	}
	if err := s.PostDelayedInternal(func(ctx context.Context) {}, time.Second); !errors.Is(err, ErrExecutorClosed) {
		t.Errorf("PostDelayedInternal after Shutdown = %v, want ErrExecutorClosed", err)
	}
	if s.QueuedTaskCount() != 0 || s.DelayedTaskCount() != 0 {
		t.Errorf("counts after Shutdown = %d/%d, want 0/0", s.QueuedTaskCount(), s.DelayedTaskCount())
	}
}

// TestTaskScheduler_DelayedTask verifies a delayed task reaches the ready queue after its delay
func TestTaskScheduler_DelayedTask(t *testing.T) {
	s := NewFIFOTaskScheduler(1)
	defer s.Shutdown()

	start := time.Now()
	_ = s.PostDelayedInternal(func(ctx context.Context) {}, 50*time.Millisecond)
	if s.DelayedTaskCount() != 1 {
		t.Errorf("DelayedTaskCount() = %d, want 1", s.DelayedTaskCount())
	}

	stop := make(chan struct{})
	time.AfterFunc(time.Second, func() { close(stop) })
	if _, ok := s.GetWork(stop); !ok {
		t.Fatal("delayed task never became ready")
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("delayed task ready after %v, want >= 50ms", elapsed)
	}
}

func TestTaskScheduler_Metrics(t *testing.T) {
	s := NewFIFOTaskScheduler(1)
	defer s.Shutdown()

	_ = s.PostInternal(func(ctx context.Context) {})
	if s.QueuedTaskCount() != 1 {
		t.Errorf("QueuedTaskCount() = %d, want 1", s.QueuedTaskCount())
	}

	s.OnTaskStart()
	if s.ActiveTaskCount() != 1 {
		t.Errorf("ActiveTaskCount() = %d, want 1", s.ActiveTaskCount())
	}
	s.OnTaskEnd()
	if s.ActiveTaskCount() != 0 {
		t.Errorf("ActiveTaskCount() = %d, want 0", s.ActiveTaskCount())
	}
}

func TestTaskScheduler_ShutdownGraceful_EmptyQueue(t *testing.T) {
	s := NewFIFOTaskScheduler(1)

	drained, err := s.ShutdownGraceful(time.Second)
	if err != nil || len(drained) != 0 {
		t.Errorf("ShutdownGraceful = %d tasks, %v; want 0, nil", len(drained), err)
	}
}

// TestTaskScheduler_ShutdownGraceful_Timeout verifies the remaining queue is handed back on timeout
func TestTaskScheduler_ShutdownGraceful_Timeout(t *testing.T) {
	s := NewFIFOTaskScheduler(1)
	_ = s.PostInternal(func(ctx context.Context) {})

	start := time.Now()
	drained, err := s.ShutdownGraceful(50 * time.Millisecond)

	if err == nil {
		t.Error("ShutdownGraceful with no worker should time out")
	}
	if len(drained) != 1 {
		t.Errorf("len(drained) = %d, want 1", len(drained))
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("ShutdownGraceful took %v", elapsed)
	}
}

func TestRunDrained_RecoversPanic(t *testing.T) {
	var handled atomic.Int32
	handler := panicHandlerFunc(func(ctx context.Context, runnerName string, workerID int, panicInfo any, stackTrace []byte) {
		handled.Add(1)
	})

	var sawCancel bool
	RunDrained(func(ctx context.Context) {
		sawCancel = ctx.Err() != nil
		panic("drain")
	}, handler)

	if !sawCancel {
		t.Error("drained task should receive a cancelled context")
	}
	if handled.Load() != 1 {
		t.Errorf("panic handler calls = %d, want 1", handled.Load())
	}
}

type panicHandlerFunc func(ctx context.Context, runnerName string, workerID int, panicInfo any, stackTrace []byte)

func (f panicHandlerFunc) HandlePanic(ctx context.Context, runnerName string, workerID int, panicInfo any, stackTrace []byte) {
	f(ctx, runnerName, workerID, panicInfo, stackTrace)
}
