package diag

import (
	"sync"
	"sync/atomic"
	"time"
)

// Accnt accumulates per-thread timing used for diagnostics: time spent
// actually running (Runns) versus time spent blocked on a
// lock/condition/sleep (Waitns), protected by an embedded mutex for
// consistent snapshots. There is no separate user/kernel-mode time split
// here since this kernel tracks no distinct user-mode time budget.
type Accnt struct {
	mu    sync.Mutex
	Runns int64 // nanoseconds spent running
	Waitns int64 // nanoseconds spent blocked (lock/cond/sleep)
}

// Now returns the current time in nanoseconds.
func Now() int64 { return time.Now().UnixNano() }

// AddRun adds delta nanoseconds of running time.
func (a *Accnt) AddRun(delta int64) { atomic.AddInt64(&a.Runns, delta) }

// AddWait adds delta nanoseconds of blocked/waiting time.
func (a *Accnt) AddWait(delta int64) { atomic.AddInt64(&a.Waitns, delta) }

// Snapshot returns a consistent (Runns, Waitns) pair.
func (a *Accnt) Snapshot() (int64, int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return atomic.LoadInt64(&a.Runns), atomic.LoadInt64(&a.Waitns)
}

// Merge folds another record into this one, used to roll a dying thread's
// usage into a parent's aggregate.
func (a *Accnt) Merge(o *Accnt) {
	r, w := o.Snapshot()
	a.mu.Lock()
	a.Runns += r
	a.Waitns += w
	a.mu.Unlock()
}
