// Package thread implements the kernel's thread control blocks and
// scheduler. Each kernel thread is backed by a genuine Go goroutine, but
// this package models a single non-preemptive logical CPU on top of that:
// exactly one goroutine is ever allowed to run at a time, handed a
// wake-up "baton" by the previous holder, so the concurrency the Go
// runtime would otherwise give us is constrained down to the cooperative
// scheduling a real kernel thread-control-block model expects.
package thread

import (
	"eduos/diag"
	"eduos/fixedpoint"
	"eduos/vm"
	"math"
)

// Tid identifies a thread. Zero is never assigned.
type Tid int64

// Status is a thread's scheduling state.
type Status int

const (
	StatusBlocked Status = iota
	StatusReady
	StatusRunning
	StatusDying
)

func (s Status) String() string {
	switch s {
	case StatusBlocked:
		return "blocked"
	case StatusReady:
		return "ready"
	case StatusRunning:
		return "running"
	case StatusDying:
		return "dying"
	default:
		return "unknown"
	}
}

// threadMagic is the stack-overflow sentinel stored in a thread's
// descriptor: on real hardware, where the descriptor is co-resident with
// the kernel stack, a stack that has overrun its page will have clobbered
// this value by the time current() next reads it.
const threadMagic = 0xcafe4242

// NoDeadline marks a thread that is not sleeping.
const NoDeadline = math.MaxInt64

// OwnedLock is the subset of ksync.Lock's behavior a Thread needs to
// recompute its own effective priority without thread importing ksync.
// ksync.Lock implements this interface; thread only ever calls it.
type OwnedLock interface {
	// TopWaiterEffective returns the effective priority of the lock's
	// highest-priority current waiter, and false if it has none.
	TopWaiterEffective() (int, bool)
}

// Waitable lets a Thread's donation code ask whatever waiter list it
// currently sits in to re-sort itself after its effective priority
// changes, without thread importing ksync.
type Waitable interface {
	Resort()
}

// Thread is a kernel thread control block.
type Thread struct {
	sched *Scheduler

	Tid  Tid
	Name string
	User bool

	magic uint32

	status    Status
	base      int
	effective int
	nice      int
	recentCPU fixedpoint.FP

	wakeDeadline int64

	ownedLocks []OwnedLock
	blockedOn  *Thread
	waitingIn  Waitable

	AS *vm.SPT

	exitStatus int
	exitCh     chan int

	accnt diag.Accnt

	ticksThisSlice int
	idle           bool

	baton chan struct{}
	fn    func()
}

// assertMagic panics the way a stack-overflow-corrupted thread descriptor
// would be expected to on the next scheduler inspection.
func (t *Thread) assertMagic() {
	if t.magic != threadMagic {
		panic("thread: magic sentinel corrupted, stack overflow")
	}
}

// Effective returns the thread's current effective priority.
func (t *Thread) Effective() int { return t.effective }

// Base returns the thread's base priority.
func (t *Thread) Base() int { return t.base }

// Nice returns the thread's MLFQS niceness.
func (t *Thread) Nice() int { return t.nice }

// RecentCPU returns the thread's MLFQS recent-CPU accumulator.
func (t *Thread) RecentCPU() fixedpoint.FP { return t.recentCPU }

// Status returns the thread's scheduling status.
func (t *Thread) Status() Status { return t.status }

// WakeDeadline returns the thread's recorded wake tick. It is NoDeadline
// from creation on and nothing updates it: ktime.SleepList keeps sleepers'
// deadlines in its own entries, so this does not report them.
func (t *Thread) WakeDeadline() int64 { return t.wakeDeadline }

// BlockedOn returns the thread this one is transitively waiting on via a
// lock, or nil.
func (t *Thread) BlockedOn() *Thread { return t.blockedOn }

// SetBlockedOn records the lock holder this thread is now waiting behind.
func (t *Thread) SetBlockedOn(h *Thread) { t.blockedOn = h }

// OwnedLocks returns the locks currently held by this thread.
func (t *Thread) OwnedLocks() []OwnedLock { return t.ownedLocks }

// AddOwnedLock appends l to the thread's owned-locks list.
func (t *Thread) AddOwnedLock(l OwnedLock) {
	t.ownedLocks = append(t.ownedLocks, l)
}

// RemoveOwnedLock drops l from the thread's owned-locks list.
func (t *Thread) RemoveOwnedLock(l OwnedLock) {
	for i, o := range t.ownedLocks {
		if o == l {
			t.ownedLocks = append(t.ownedLocks[:i], t.ownedLocks[i+1:]...)
			return
		}
	}
}

// SetWaitingIn records which waiter list this thread currently sits in, so
// a donation can ask it to re-sort; nil clears it.
func (t *Thread) SetWaitingIn(w Waitable) { t.waitingIn = w }

// SetEffective raises or lowers the thread's effective priority directly,
// re-sorting whatever waiter list it's parked in if it's currently
// waiting. Used by donation and by RecomputeEffective.
func (t *Thread) SetEffective(p int) {
	if p == t.effective {
		return
	}
	t.effective = p
	if t.waitingIn != nil {
		t.waitingIn.Resort()
	}
}

// RecomputeEffective restores the thread's effective priority to the max
// of its base priority and the top waiter's effective priority across
// each of its remaining owned locks. Called on lock release, after the
// released lock's donation no longer applies.
func (t *Thread) RecomputeEffective() int {
	p := t.base
	for _, l := range t.ownedLocks {
		if top, ok := l.TopWaiterEffective(); ok && top > p {
			p = top
		}
	}
	t.SetEffective(p)
	return p
}

// Accnt returns the thread's CPU/wait accounting record.
func (t *Thread) Accnt() *diag.Accnt { return &t.accnt }
