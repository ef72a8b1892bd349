// Package ksync implements the kernel's synchronization primitives --
// semaphores, priority-donating locks, and Mesa-style condition variables
// -- built directly on thread.Scheduler's block/unblock/yield operations.
// These primitives exist to interact with a hand-rolled single-CPU
// scheduler rather than Go's own runtime scheduler, so they can't simply
// be sync.Mutex/sync.Cond: every wait has to route through the
// cooperative block/unblock protocol so donation and ready-queue ordering
// stay visible to the scheduler. The waiter-list and donation logic is the
// novel part here, since ordinary goroutine synchronization has no notion
// of priority at all.
package ksync

import (
	"eduos/errs"
	"eduos/thread"
	"sort"
)

// Semaphore is a non-negative counter with an ordered waiter list, sorted
// by descending effective priority so the highest-priority waiter is
// always released first.
type Semaphore struct {
	sched   *thread.Scheduler
	value   int
	waiters []*thread.Thread // kept sorted by descending effective priority
}

// NewSemaphore returns a semaphore with the given initial value.
func NewSemaphore(s *thread.Scheduler, value int) *Semaphore {
	return &Semaphore{sched: s, value: value}
}

// Resort re-sorts the waiter list by descending effective priority,
// implementing thread.Waitable so a donation that raises a waiter's
// effective priority keeps the list ordered.
func (sem *Semaphore) Resort() {
	sort.SliceStable(sem.waiters, func(i, j int) bool {
		return sem.waiters[i].Effective() > sem.waiters[j].Effective()
	})
}

func (sem *Semaphore) insert(t *thread.Thread) {
	sem.waiters = append(sem.waiters, t)
	sem.Resort()
	t.SetWaitingIn(sem)
}

func (sem *Semaphore) removeTop() *thread.Thread {
	t := sem.waiters[0]
	sem.waiters = sem.waiters[1:]
	t.SetWaitingIn(nil)
	return t
}

// Down blocks the current thread until the counter is positive, then
// decrements it.
func (sem *Semaphore) Down() {
	if sem.sched.Intr.InContext() {
		errs.Fatal("ksync: sema_down called from interrupt context")
	}
	old := sem.sched.Intr.Disable()
	cur := sem.sched.Current()
	for sem.value == 0 {
		sem.insert(cur)
		sem.sched.Block()
	}
	sem.value--
	sem.sched.Intr.SetLevel(old)
}

// TryDown decrements the counter and returns true only if it was already
// positive, without blocking.
func (sem *Semaphore) TryDown() bool {
	old := sem.sched.Intr.Disable()
	ok := false
	if sem.value > 0 {
		sem.value--
		ok = true
	}
	sem.sched.Intr.SetLevel(old)
	return ok
}

// Up increments the counter and, if a waiter is present, wakes the
// highest-effective-priority one and requests a yield if it now outranks
// the running thread.
func (sem *Semaphore) Up() {
	old := sem.sched.Intr.Disable()
	sem.value++
	if len(sem.waiters) > 0 {
		w := sem.removeTop()
		sem.sched.Unblock(w)
	}
	sem.sched.Intr.SetLevel(old)
}

// TopWaiterEffective reports the effective priority of the highest-
// priority waiter, used by ksync.Lock to satisfy thread.OwnedLock.
func (sem *Semaphore) TopWaiterEffective() (int, bool) {
	if len(sem.waiters) == 0 {
		return 0, false
	}
	return sem.waiters[0].Effective(), true
}
