package core

import (
	"context"
	"sync"
	"time"
)

// Lock is a rendezvous between a waiting task and the tasks that signal it.
//
// A signal is delivered only to a waiter that is already blocked in Await;
// SignalAll with no waiter is dropped and never queued. When several tasks
// wait at once they share the same rendezvous and all of them wake on the
// next SignalAll.
//
// A Lock bound to a Blocker parks waiters through it, so a task waiting on
// a pool worker does not keep the tasks that would signal it from running.
// The zero value waits on the calling goroutine and is ready to use.
type Lock struct {
	mu      sync.Mutex
	waiters int
	ch      chan struct{} // closed by SignalAll; created lazily by Await

	blocker Blocker
}

// Blocker runs a blocking call on behalf of the current task. Every Executor is a Blocker.
type Blocker interface {
	Block(fn func())
}

// NewLock returns an idle Lock that waits on the calling goroutine.
func NewLock() *Lock {
	return &Lock{}
}

// NewLockWithBlocker returns an idle Lock whose waiters park through b.
func NewLockWithBlocker(b Blocker) *Lock {
	return &Lock{blocker: b}
}

// Await blocks until SignalAll is called or timeout elapses.
// A timeout <= 0 waits indefinitely. It reports whether a signal was observed.
func (l *Lock) Await(timeout time.Duration) bool {
	return l.AwaitContext(context.Background(), timeout)
}

// AwaitContext is like Await but also returns false once ctx is done.
func (l *Lock) AwaitContext(ctx context.Context, timeout time.Duration) bool {
	ch := l.enter()
	defer l.leave()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	var signaled bool
	wait := func() {
		select {
		case <-ch:
			signaled = true
		case <-expired:
		case <-ctx.Done():
		}
	}
	if l.blocker != nil {
		l.blocker.Block(wait)
	} else {
		wait()
	}
	return signaled
}

func (l *Lock) enter() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ch == nil {
		l.ch = make(chan struct{})
	}
	l.waiters++
	return l.ch
}

func (l *Lock) leave() {
	l.mu.Lock()
	l.waiters--
	l.mu.Unlock()
}

// IsAwaiting reports whether a call to Await is currently blocked.
func (l *Lock) IsAwaiting() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.waiters > 0
}

// SignalAll releases the current waiters. It never blocks.
func (l *Lock) SignalAll() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.waiters == 0 || l.ch == nil {
		return
	}
	close(l.ch)
	l.ch = nil
}
