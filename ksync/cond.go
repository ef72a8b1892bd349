package ksync

import (
	"eduos/errs"
	"eduos/thread"
)

// Cond is a Mesa-style condition variable: a list of private per-waiter
// semaphores.
type Cond struct {
	sched   *thread.Scheduler
	waiters []*Semaphore
}

// NewCond returns an empty condition variable.
func NewCond(s *thread.Scheduler) *Cond {
	return &Cond{sched: s}
}

// Wait atomically releases l and blocks on a private semaphore placed in
// the condition's waiter list; on signal it reacquires l before
// returning.
func (c *Cond) Wait(l *Lock) {
	if l.Holder() != c.sched.Current() {
		errs.Fatal("ksync: cond wait without holding the associated lock")
	}
	priv := NewSemaphore(c.sched, 0)
	c.waiters = append(c.waiters, priv)
	l.Release()
	priv.Down()
	l.Acquire()
}

// Signal wakes the waiter whose private semaphore's head thread has the
// highest effective priority, if any. l must be held by the caller.
func (c *Cond) Signal(l *Lock) {
	if l.Holder() != c.sched.Current() {
		errs.Fatal("ksync: cond signal without holding the associated lock")
	}
	if len(c.waiters) == 0 {
		return
	}
	bi, best := -1, -1
	for i, w := range c.waiters {
		eff, ok := w.TopWaiterEffective()
		if ok && eff > best {
			best = eff
			bi = i
		}
	}
	if bi < 0 {
		return
	}
	w := c.waiters[bi]
	c.waiters = append(c.waiters[:bi], c.waiters[bi+1:]...)
	w.Up()
}

// Broadcast wakes every current waiter in descending effective-priority
// order.
func (c *Cond) Broadcast(l *Lock) {
	for len(c.waiters) > 0 {
		c.Signal(l)
	}
}
