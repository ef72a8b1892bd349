package thread

import (
	"eduos/diag"
	"eduos/errs"
	"eduos/fixedpoint"
	"eduos/hal"
	"eduos/kconfig"
	"runtime"
)

// Scheduler owns every thread's lifecycle and the ready queue, kept
// as an explicit struct (rather than package-level globals) so multiple
// scheduler instances can exist side by side in tests.
//
// Exactly one goroutine is ever unparked at a time: Spawn starts a thread's
// goroutine blocked on its own baton channel, and every context switch
// hands the baton to exactly one successor before the outgoing thread
// parks on its own channel. Because of that protocol, scheduler state is
// only ever touched by the single currently-running goroutine (the
// handoff itself is a channel send/receive pair, which is always
// synchronized), so no additional mutex is needed -- the single-active-
// goroutine invariant *is* the critical section, mirroring "non-preemptive
// inside the kernel scheduler's critical section" on real
// single-CPU hardware.
type Scheduler struct {
	Intr *hal.Intr
	Disc kconfig.Discipline

	reg    *Registry
	nextID Tid

	ready []*Thread
	idle  *Thread
	cur   *Thread

	ticks   int64
	loadAvg fixedpoint.FP

	Profiler *diag.Profiler
}

// NewScheduler builds a scheduler under the given discipline and starts
// its idle thread. The idle thread is excluded from MLFQS load accounting
// and is only ever selected when the ready list is empty.
func NewScheduler(disc kconfig.Discipline) *Scheduler {
	s := &Scheduler{
		Intr:     hal.NewIntr(),
		Disc:     disc,
		reg:      NewRegistry(64),
		nextID:   1,
		Profiler: diag.NewProfiler(),
	}
	// The idle thread has no backing goroutine or body of its own: it is
	// never scheduled in through the normal spawn path. At boot, the
	// calling goroutine (whatever sets up the initial threads) plays
	// idle's role directly -- it "is" idle's execution context without
	// ever having to receive on idle's baton, since nothing has handed
	// control away from it yet. From then on, switchTo treats idle like
	// any other thread: parking on its baton when switched away from,
	// and resuming (by another thread's switchTo sending to it) when
	// picked again by pickNext.
	s.idle = s.newThread("idle", kconfig.PriMin, nil)
	s.idle.idle = true
	s.idle.status = StatusRunning
	s.cur = s.idle
	return s
}

func (s *Scheduler) newThread(name string, prio int, fn func()) *Thread {
	if prio < kconfig.PriMin || prio > kconfig.PriMax {
		errs.Fatal("thread: spawn priority %d out of range", prio)
	}
	t := &Thread{
		sched:        s,
		Tid:          s.nextID,
		Name:         name,
		magic:        threadMagic,
		status:       StatusBlocked,
		base:         prio,
		effective:    prio,
		wakeDeadline: NoDeadline,
		exitCh:       make(chan int, 1),
		baton:        make(chan struct{}, 1),
		fn:           fn,
	}
	s.nextID++
	s.reg.Set(t.Tid, t)
	return t
}

// runLoop is the body every non-idle thread goroutine executes: wait for
// the baton, run the thread body, then exit.
func (s *Scheduler) runLoop(t *Thread) {
	<-t.baton
	t.fn()
	s.exit(t)
}

// Spawn creates a new thread in blocked state and immediately unblocks it
// into ready.
func (s *Scheduler) Spawn(name string, prio int, fn func()) *Thread {
	t := s.newThread(name, prio, fn)
	go s.runLoop(t)
	old := s.Intr.Disable()
	s.unblockLocked(t)
	s.Intr.SetLevel(old)
	return t
}

// Current returns the running thread, after checking its stack-overflow
// sentinel.
func (s *Scheduler) Current() *Thread {
	s.cur.assertMagic()
	return s.cur
}

// Lookup finds a thread by id, or nil.
func (s *Scheduler) Lookup(id Tid) *Thread {
	t, ok := s.reg.Get(id)
	if !ok {
		return nil
	}
	return t
}

// maxReadyEffective returns the highest effective priority among ready
// threads, and whether the ready list is non-empty.
func (s *Scheduler) maxReadyEffective() (int, bool) {
	if len(s.ready) == 0 {
		return 0, false
	}
	best := s.ready[0].effective
	for _, t := range s.ready[1:] {
		if t.effective > best {
			best = t.effective
		}
	}
	return best, true
}

// pickNext selects and removes the highest-effective-priority ready
// thread, or the idle thread if none is ready.
func (s *Scheduler) pickNext() *Thread {
	if len(s.ready) == 0 {
		return s.idle
	}
	bi := 0
	for i, t := range s.ready[1:] {
		if t.effective > s.ready[bi].effective {
			bi = i + 1
		}
	}
	t := s.ready[bi]
	s.ready = append(s.ready[:bi], s.ready[bi+1:]...)
	return t
}

// switchTo performs the actual context switch: hand the baton to next and,
// if it differs from the outgoing thread, park the outgoing thread on its
// own baton until it is scheduled back in. Must be called with interrupts
// disabled; returns with interrupts still disabled, so the resumed thread
// continues as if it still held the scheduler's implicit lock.
func (s *Scheduler) switchTo(next *Thread) {
	prev := s.cur
	if next == prev {
		return
	}
	next.status = StatusRunning
	s.cur = next
	next.baton <- struct{}{}
	if prev.status != StatusDying {
		<-prev.baton
	}
}

// unblockLocked moves t from blocked to ready and appends it to the ready
// list. Caller must hold interrupts disabled.
func (s *Scheduler) unblockLocked(t *Thread) {
	if t.status != StatusBlocked && t.status != StatusReady {
		errs.Fatal("thread: unblock of thread %d not in blocked state (%s)", t.Tid, t.status)
	}
	if t.status == StatusReady {
		return
	}
	t.status = StatusReady
	s.ready = append(s.ready, t)
	s.maybePreempt()
}

// Unblock is the public entry point for unblockLocked, disabling
// interrupts around the mutation.
func (s *Scheduler) Unblock(t *Thread) {
	old := s.Intr.Disable()
	s.unblockLocked(t)
	s.Intr.SetLevel(old)
}

// maybePreempt yields the running thread immediately if a ready thread now
// strictly outranks it. Must be called
// with interrupts disabled.
func (s *Scheduler) maybePreempt() {
	if s.cur.idle {
		if _, ok := s.maxReadyEffective(); ok {
			s.yieldLocked()
		}
		return
	}
	if best, ok := s.maxReadyEffective(); ok && best > s.cur.effective {
		s.yieldLocked()
	}
}

// block moves the current thread to blocked and reschedules. Must be
// called with interrupts disabled by the caller (e.g. inside a semaphore
// down); returns with interrupts still disabled.
func (s *Scheduler) block() {
	t := s.cur
	t.status = StatusBlocked
	s.switchTo(s.pickNext())
}

// Block is the exported entry for voluntary suspension, handling the interrupt bracket itself.
func (s *Scheduler) Block() {
	old := s.Intr.Disable()
	s.block()
	s.Intr.SetLevel(old)
}

// yieldLocked places the current thread back in ready (unless it's idle)
// and reschedules. Must be called with interrupts disabled.
func (s *Scheduler) yieldLocked() {
	t := s.cur
	if !t.idle {
		t.status = StatusReady
		s.ready = append(s.ready, t)
	}
	s.switchTo(s.pickNext())
}

// Yield voluntarily gives up the CPU, re-entering the ready queue.
func (s *Scheduler) Yield() {
	old := s.Intr.Disable()
	s.yieldLocked()
	s.Intr.SetLevel(old)
}

// exit marks t dying, wakes anyone waiting on its exit status, and
// reschedules away from it permanently.
// Frame/page reclamation for a user thread's address space is driven by
// vm.Kill, invoked by the caller of Exit before calling it if the thread
// owns an address space; the registry entry is removed here since nothing
// can look the thread up by id usefully after this point except to read
// ExitStatus via WaitChild.
func (s *Scheduler) exit(t *Thread) {
	s.Intr.Disable()
	t.status = StatusDying
	s.reg.Del(t.Tid)
	t.exitCh <- t.exitStatus
	close(t.exitCh)
	s.switchTo(s.pickNext())
	// switchTo does not park a dying thread, so its goroutine ends here:
	// nothing of it runs once the baton has been handed on.
	runtime.Goexit()
}

// Exit is called by a thread to end itself with the given status.
func (s *Scheduler) Exit(status int) {
	t := s.cur
	t.exitStatus = status
	s.exit(t)
}

// SetExitStatus records status without exiting, for a user process
// terminated by a contract violation from outside its own call stack.
func (t *Thread) SetExitStatus(status int) { t.exitStatus = status }

// WaitChild blocks until the given child thread exits, returning its exit
// status. This is kept minimal since full process-tree semantics are out
// of this core's scope.
func (s *Scheduler) WaitChild(child *Thread) int {
	return <-child.exitCh
}

// SetPriority changes the current thread's base priority. Under MLFQS
// it's a no-op.
// Raising the effective priority along with the base does not itself
// cause a yield if the new effective equals the old, but if a
// higher-priority thread is now ready the caller yields before returning.
func (s *Scheduler) SetPriority(t *Thread, prio int) {
	if s.Disc == kconfig.MLFQS {
		return
	}
	if prio < kconfig.PriMin || prio > kconfig.PriMax {
		errs.Fatal("thread: set_priority %d out of range", prio)
	}
	old := s.Intr.Disable()
	t.base = prio
	t.RecomputeEffective()
	if t == s.cur {
		s.maybePreempt()
	}
	s.Intr.SetLevel(old)
}
