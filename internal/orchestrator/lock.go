package orchestrator

import "sync/atomic"

// RunLock provides non-blocking lock semantics using atomic operations.
// An orchestrator holds it for the whole lifetime of one run.
type RunLock struct {
	state atomic.Int32 // 0 = unlocked, 1 = locked
}

// TryAcquire attempts to acquire the lock without blocking.
// Returns true if the lock was successfully acquired, false otherwise.
func (l *RunLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release releases the lock. A run releases it once, when it reaches a
// terminal state, possibly from a different goroutine than the one that
// acquired it.
func (l *RunLock) Release() {
	l.state.Store(0)
}

// Held reports whether a run currently holds the lock
func (l *RunLock) Held() bool {
	return l.state.Load() == 1
}
