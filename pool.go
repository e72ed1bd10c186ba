package asyncrunner

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Swind/go-async-runner/core"
)

// GoroutineThreadPool manages a set of worker goroutines
// Responsible for pulling tasks from its TaskScheduler and executing them
//
// It implements core.Executor. Tasks may be submitted before Start; they
// wait in the queue. The pool stops when Stop is called or when the context
// given to Start ends. After that every task that never ran is invoked once
// with core.DrainedContext so that its owner can release bookkeeping.
type GoroutineThreadPool struct {
	id        string
	workers   int
	scheduler *core.TaskScheduler
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	unwatch   func() bool // detaches the Stop hook on the Start context
	running   bool
	runningMu sync.RWMutex

	standIns atomic.Int32 // workers standing in for tasks parked in Block
}

var _ core.Executor = (*GoroutineThreadPool)(nil)

// NewGoroutineThreadPool creates a new GoroutineThreadPool
func NewGoroutineThreadPool(id string, workers int) *GoroutineThreadPool {
	return NewGoroutineThreadPoolWithConfig(id, workers, core.DefaultTaskSchedulerConfig())
}

// NewGoroutineThreadPoolWithConfig creates a pool whose scheduler uses config's handlers.
func NewGoroutineThreadPoolWithConfig(id string, workers int, config *core.TaskSchedulerConfig) *GoroutineThreadPool {
	if workers < 1 {
		workers = 1
	}
	return &GoroutineThreadPool{
		id:        id,
		workers:   workers,
		scheduler: core.NewFIFOTaskSchedulerWithConfig(workers, config),
	}
}

// Start starts all worker goroutines
func (tg *GoroutineThreadPool) Start(ctx context.Context) {
	tg.runningMu.Lock()
	defer tg.runningMu.Unlock()

	if tg.running || tg.scheduler.IsShuttingDown() {
		return
	}

	tg.ctx, tg.cancel = context.WithCancel(ctx)
	tg.running = true

	for i := 0; i < tg.workers; i++ {
		tg.wg.Add(1)
		go tg.workerLoop(i, tg.ctx)
	}
	tg.unwatch = context.AfterFunc(ctx, func() {
		tg.scheduler.GetLogger().Info("thread pool context done, stopping", core.F("pool", tg.id))
		tg.Stop()
	})
	tg.scheduler.GetLogger().Debug("thread pool started", core.F("pool", tg.id), core.F("workers", tg.workers))
}

// Stop stops the thread pool without waiting for queued tasks
func (tg *GoroutineThreadPool) Stop() {
	// Always shut the scheduler down so that queued and delayed tasks are
	// released, even if the pool was never started
	drained := tg.scheduler.Shutdown()
	tg.stopWorkers()
	tg.releaseDrained(drained)
}

// StopGraceful stops the thread pool gracefully, waiting for queued tasks to complete
// Returns error if timeout is exceeded before tasks complete
func (tg *GoroutineThreadPool) StopGraceful(timeout time.Duration) error {
	drained, err := tg.scheduler.ShutdownGraceful(timeout)
	tg.stopWorkers()
	tg.releaseDrained(drained)
	return err
}

func (tg *GoroutineThreadPool) stopWorkers() {
	tg.runningMu.Lock()
	if !tg.running {
		tg.runningMu.Unlock()
		return
	}
	// No worker is added once running is false.
	tg.running = false
	cancel, unwatch := tg.cancel, tg.unwatch
	tg.runningMu.Unlock()

	if unwatch != nil {
		unwatch()
	}
	if cancel != nil {
		cancel()
	}
	tg.Join()
}

func (tg *GoroutineThreadPool) releaseDrained(drained []core.Task) {
	if len(drained) == 0 {
		return
	}
	tg.scheduler.GetLogger().Info("thread pool released unexecuted tasks",
		core.F("pool", tg.id),
		core.F("count", len(drained)))
	for _, task := range drained {
		core.RunDrained(task, tg.scheduler.GetPanicHandler())
	}
}

// ID returns the ID of the thread pool
func (tg *GoroutineThreadPool) ID() string {
	return tg.id
}

// IsRunning returns whether the thread pool is running
func (tg *GoroutineThreadPool) IsRunning() bool {
	tg.runningMu.RLock()
	defer tg.runningMu.RUnlock()
	return tg.running
}

// workerLoop is the main loop for each worker
func (tg *GoroutineThreadPool) workerLoop(id int, ctx context.Context) {
	defer tg.wg.Done()
	stopCh := ctx.Done()
	workerCtx := core.WithWorkerID(ctx, id)

	for {
		task, ok := tg.scheduler.GetWork(stopCh)
		if !ok {
			return
		}
		tg.runTask(workerCtx, id, task)
	}
}

// standInLoop serves the queue while a task is parked in Block. It exits
// once ctx ends, after finishing the task it holds.
func (tg *GoroutineThreadPool) standInLoop(id int, ctx context.Context) {
	defer tg.wg.Done()
	defer tg.standIns.Add(-1)
	workerCtx := core.WithWorkerID(ctx, id)

	for ctx.Err() == nil {
		task, ok := tg.scheduler.GetWork(ctx.Done())
		if !ok {
			return
		}
		tg.runTask(workerCtx, id, task)
	}
}

func (tg *GoroutineThreadPool) runTask(workerCtx context.Context, id int, task core.Task) {
	tg.scheduler.OnTaskStart()
	defer func() {
		tg.scheduler.OnTaskEnd()
		if r := recover(); r != nil {
			tg.scheduler.GetPanicHandler().HandlePanic(workerCtx, tg.id, id, r, debug.Stack())
		}
	}()
	task(workerCtx)
}

// Join waits for all worker goroutines to finish
func (tg *GoroutineThreadPool) Join() {
	tg.wg.Wait()
}

// WorkerCount returns the number of workers
func (tg *GoroutineThreadPool) WorkerCount() int {
	return tg.workers
}

func (tg *GoroutineThreadPool) QueuedTaskCount() int {
	return tg.scheduler.QueuedTaskCount()
}

func (tg *GoroutineThreadPool) ActiveTaskCount() int {
	return tg.scheduler.ActiveTaskCount()
}

func (tg *GoroutineThreadPool) DelayedTaskCount() int {
	return tg.scheduler.DelayedTaskCount()
}

// Stats returns a snapshot for observability exporters.
func (tg *GoroutineThreadPool) Stats() core.PoolStats {
	return core.PoolStats{
		ID:      tg.id,
		Workers: tg.workers,
		Queued:  tg.QueuedTaskCount(),
		Active:  tg.ActiveTaskCount(),
		Delayed: tg.DelayedTaskCount(),
		Running: tg.IsRunning(),
	}
}

// =============================================================================
// core.Executor
// =============================================================================

// Submit queues task for the next idle worker.
func (tg *GoroutineThreadPool) Submit(task core.Task) error {
	return tg.scheduler.PostInternal(task)
}

// SubmitAfter queues task once delay has elapsed. Waiting does not occupy a worker.
func (tg *GoroutineThreadPool) SubmitAfter(task core.Task, delay time.Duration) error {
	if delay <= 0 {
		return tg.Submit(task)
	}
	return tg.scheduler.PostDelayedInternal(task, delay)
}

// Suspend parks the calling task for d or until ctx ends. The caller's
// worker is covered by a stand-in for the duration.
func (tg *GoroutineThreadPool) Suspend(ctx context.Context, d time.Duration) error {
	var err error
	tg.Block(func() { err = core.WaitFor(ctx, d) })
	return err
}

// Block runs fn while a stand-in worker serves the queue, so a task parked
// in fn does not take a worker away from the pool. On a stopped pool fn
// simply runs.
func (tg *GoroutineThreadPool) Block(fn func()) {
	tg.runningMu.RLock()
	if !tg.running {
		tg.runningMu.RUnlock()
		fn()
		return
	}
	standInCtx, done := context.WithCancel(tg.ctx)
	id := tg.workers + int(tg.standIns.Add(1)) - 1
	tg.wg.Add(1)
	go tg.standInLoop(id, standInCtx)
	tg.runningMu.RUnlock()

	defer done()
	fn()
}

// StandInCount returns the number of workers currently covering parked tasks.
func (tg *GoroutineThreadPool) StandInCount() int {
	return int(tg.standIns.Load())
}

// =============================================================================
// Global Thread Pool Helper (Singleton)
// =============================================================================

var (
	globalThreadPool *GoroutineThreadPool
	globalMu         sync.Mutex
)

// InitGlobalThreadPool initializes the global thread pool with specified number of workers.
// It starts the pool immediately.
func InitGlobalThreadPool(workers int) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalThreadPool != nil {
		return // Already initialized
	}

	globalThreadPool = NewGoroutineThreadPool("global-pool", workers)
	globalThreadPool.Start(context.Background())
}

// GetGlobalThreadPool returns the global thread pool instance.
// It panics if InitGlobalThreadPool has not been called.
func GetGlobalThreadPool() *GoroutineThreadPool {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalThreadPool == nil {
		panic("GlobalThreadPool not initialized. Call InitGlobalThreadPool() first.")
	}
	return globalThreadPool
}

// ShutdownGlobalThreadPool stops the global thread pool.
func ShutdownGlobalThreadPool() {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalThreadPool != nil {
		globalThreadPool.Stop()
		globalThreadPool = nil
	}
}

// CreateAsyncRunner creates an AsyncRunner backed by the global thread pool.
// A nil config uses core.DefaultAsyncRunnerConfig.
func CreateAsyncRunner(config *AsyncRunnerConfig) *AsyncRunner {
	return core.NewAsyncRunnerWithConfig(GetGlobalThreadPool(), config)
}
