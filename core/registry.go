package core

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// task lifecycle inside the registry
const (
	taskPending int32 = iota
	taskRunning
	taskFinished
	taskCanceled
)

// TaskInfo describes a registered task.
type TaskInfo struct {
	Name        string
	Delay       time.Duration
	SubmittedAt time.Time
}

type registryEntry struct {
	info  TaskInfo
	state atomic.Int32
	done  chan struct{}
	once  sync.Once
}

// finish closes done exactly once.
func (e *registryEntry) finish() {
	e.once.Do(func() { close(e.done) })
}

// TaskRegistry is the set of tasks an AsyncRunner has accepted and not yet
// finished. A handle is present iff its task was registered and has not
// reached a terminal state.
type TaskRegistry struct {
	mu      sync.Mutex
	entries map[TaskHandle]*registryEntry
	next    atomic.Uint64
}

// NewTaskRegistry creates an empty registry.
func NewTaskRegistry() *TaskRegistry {
	return &TaskRegistry{
		entries: make(map[TaskHandle]*registryEntry),
	}
}

// Register allocates a new handle and adds it to the registry.
func (r *TaskRegistry) Register(info TaskInfo) TaskHandle {
	h := TaskHandle(r.next.Add(1))
	entry := &registryEntry{info: info, done: make(chan struct{})}

	r.mu.Lock()
	r.entries[h] = entry
	r.mu.Unlock()
	return h
}

// Deregister removes h and releases everyone waiting on it.
// Removing an unknown or already removed handle is a no-op.
func (r *TaskRegistry) Deregister(h TaskHandle) {
	r.mu.Lock()
	entry, ok := r.entries[h]
	delete(r.entries, h)
	r.mu.Unlock()

	if ok {
		entry.finish()
	}
}

// begin moves h from pending to running. It returns false if the task was
// cancelled or is no longer registered.
func (r *TaskRegistry) begin(h TaskHandle) bool {
	entry := r.lookup(h)
	if entry == nil {
		return false
	}
	return entry.state.CompareAndSwap(taskPending, taskRunning)
}

// end marks h finished and removes it.
func (r *TaskRegistry) end(h TaskHandle) {
	if entry := r.lookup(h); entry != nil {
		entry.state.CompareAndSwap(taskRunning, taskFinished)
	}
	r.Deregister(h)
}

// cancel removes h if it has not started yet.
func (r *TaskRegistry) cancel(h TaskHandle) (TaskInfo, bool) {
	entry := r.lookup(h)
	if entry == nil {
		return TaskInfo{}, false
	}
	if !entry.state.CompareAndSwap(taskPending, taskCanceled) {
		return TaskInfo{}, false
	}
	r.Deregister(h)
	return entry.info, true
}

func (r *TaskRegistry) lookup(h TaskHandle) *registryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[h]
}

// Info returns what was registered for h.
func (r *TaskRegistry) Info(h TaskHandle) (TaskInfo, bool) {
	entry := r.lookup(h)
	if entry == nil {
		return TaskInfo{}, false
	}
	return entry.info, true
}

// Contains reports whether h is registered.
func (r *TaskRegistry) Contains(h TaskHandle) bool {
	return r.lookup(h) != nil
}

// Len returns the number of registered tasks.
func (r *TaskRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Handles returns the registered handles in ascending order.
func (r *TaskRegistry) Handles() []TaskHandle {
	r.mu.Lock()
	handles := make([]TaskHandle, 0, len(r.entries))
	for h := range r.entries {
		handles = append(handles, h)
	}
	r.mu.Unlock()

	slices.Sort(handles)
	return handles
}

// snapshot returns the completion channels of every registered task.
func (r *TaskRegistry) snapshot() []<-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	done := make([]<-chan struct{}, 0, len(r.entries))
	for _, entry := range r.entries {
		done = append(done, entry.done)
	}
	return done
}

// Wait blocks until every task registered at the time of the call has been
// deregistered. Tasks registered afterwards are not waited for.
func (r *TaskRegistry) Wait(ctx context.Context) error {
	for _, done := range r.snapshot() {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
