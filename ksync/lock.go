package ksync

import (
	"eduos/errs"
	"eduos/kconfig"
	"eduos/thread"
)

// Lock is a binary semaphore with an owning thread and transitive
// priority donation. It implements
// thread.OwnedLock so a holder can recompute its own effective priority
// on release without thread importing ksync.
type Lock struct {
	sched  *thread.Scheduler
	sem    *Semaphore
	holder *thread.Thread
}

// NewLock returns an unheld lock.
func NewLock(s *thread.Scheduler) *Lock {
	return &Lock{sched: s, sem: NewSemaphore(s, 1)}
}

// Holder returns the thread currently holding the lock, or nil.
func (l *Lock) Holder() *thread.Thread { return l.holder }

// TopWaiterEffective satisfies thread.OwnedLock.
func (l *Lock) TopWaiterEffective() (int, bool) { return l.sem.TopWaiterEffective() }

// donate walks the chain current -> holder -> holder.blocked_on -> ...
// up to kconfig.DonationDepth hops, raising each donee's effective
// priority to the donor's where it's lower. The 8-hop cap silently masks
// pathological chains rather than proving the donation graph acyclic --
// documented here instead of enforced, since a correctly built kernel
// never forms a cycle in the first place.
func donate(donor, donee *thread.Thread, depth int) {
	if depth >= kconfig.DonationDepth || donee == nil {
		return
	}
	if donor.Effective() <= donee.Effective() {
		return
	}
	donee.SetEffective(donor.Effective())
	donate(donor, donee.BlockedOn(), depth+1)
}

// Acquire blocks until the lock is free, donating priority to the
// current holder (and transitively, its own blocker) while it waits.
func (l *Lock) Acquire() {
	old := l.sched.Intr.Disable()
	cur := l.sched.Current()
	if l.holder == cur {
		errs.Fatal("ksync: recursive acquisition of lock held by thread %d", cur.Tid)
	}
	if l.holder != nil {
		cur.SetBlockedOn(l.holder)
		donate(cur, l.holder, 0)
	}
	l.sched.Intr.SetLevel(old)

	l.sem.Down()

	old = l.sched.Intr.Disable()
	l.holder = cur
	cur.SetBlockedOn(nil)
	cur.AddOwnedLock(l)
	l.sched.Intr.SetLevel(old)
}

// TryAcquire acquires the lock only if it is free, without waiting or
// donating. A failed attempt leaves the caller's priority untouched since
// it never actually waits.
func (l *Lock) TryAcquire() bool {
	old := l.sched.Intr.Disable()
	cur := l.sched.Current()
	if l.holder == cur {
		errs.Fatal("ksync: recursive acquisition of lock held by thread %d", cur.Tid)
	}
	ok := false
	if l.sem.TryDown() {
		l.holder = cur
		cur.AddOwnedLock(l)
		ok = true
	}
	l.sched.Intr.SetLevel(old)
	return ok
}

// Release gives up the lock, drops its donation, and yields whenever doing
// so lowers the caller's effective priority, whether or not a ready thread
// now outranks it.
func (l *Lock) Release() {
	old := l.sched.Intr.Disable()
	cur := l.sched.Current()
	if l.holder != cur {
		errs.Fatal("ksync: release of lock not held by calling thread %d", cur.Tid)
	}
	l.holder = nil
	cur.RemoveOwnedLock(l)
	before := cur.Effective()
	after := cur.RecomputeEffective()
	l.sem.Up()
	if after < before {
		l.sched.Yield()
	}
	l.sched.Intr.SetLevel(old)
}
