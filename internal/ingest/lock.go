package ingest

import "sync/atomic"

// RunLock admits at most one ingestion run. Acquisition never blocks.
type RunLock struct {
	held atomic.Bool
}

// TryAcquire takes the lock if it is free and reports whether it did.
func (l *RunLock) TryAcquire() bool {
	return l.held.CompareAndSwap(false, true)
}

// Release frees the lock. Releasing a free lock is a no-op.
func (l *RunLock) Release() {
	l.held.Store(false)
}

// Held reports whether a run currently owns the lock.
func (l *RunLock) Held() bool {
	return l.held.Load()
}
