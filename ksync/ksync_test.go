package ksync

import (
	"eduos/kconfig"
	"eduos/thread"
	"testing"
)

// TestDonationChainRaisesHolder confirms that a high-priority thread
// blocked on a lock held by a low-priority thread donates its priority to
// the holder.
func TestDonationChainRaisesHolder(t *testing.T) {
	s := thread.NewScheduler(kconfig.Priority)
	l := NewLock(s)
	gate := NewSemaphore(s, 0)
	var low *thread.Thread

	s.Spawn("starter", 40, func() {
		low = s.Spawn("low", 10, func() {
			l.Acquire()
			gate.Down()
			l.Release()
		})
	})

	s.Spawn("starter2", 40, func() {
		s.Spawn("high", 30, func() {
			l.Acquire()
			l.Release()
		})
	})

	if low.Effective() < 30 {
		t.Errorf("low's effective priority = %d after donation from a priority-30 waiter, want >= 30", low.Effective())
	}

	gate.Up()
}

// TestTryAcquireDoesNotDonate confirms a failed TryAcquire leaves the
// caller's own effective priority unchanged.
func TestTryAcquireDoesNotDonate(t *testing.T) {
	s := thread.NewScheduler(kconfig.Priority)
	l := NewLock(s)
	gate := NewSemaphore(s, 0)
	var holder *thread.Thread

	s.Spawn("starter", 40, func() {
		holder = s.Spawn("holder", 10, func() {
			l.Acquire()
			gate.Down()
			l.Release()
		})
	})

	s.Spawn("starter2", 40, func() {
		s.Spawn("tryer", 30, func() {
			if l.TryAcquire() {
				t.Error("TryAcquire succeeded on a held lock")
			}
		})
	})

	if holder.Effective() != 10 {
		t.Errorf("holder effective priority = %d after a failed TryAcquire, want unchanged 10", holder.Effective())
	}

	gate.Up()
}

// TestCondSignalWakesHighestPriorityWaiter confirms that when multiple
// threads wait on the same condition, a broadcast wakes them in
// highest-effective-priority-first order.
func TestCondSignalWakesHighestPriorityWaiter(t *testing.T) {
	s := thread.NewScheduler(kconfig.Priority)
	l := NewLock(s)
	cond := NewCond(s)
	order := make(chan string, 2)

	s.Spawn("starter", 50, func() {
		s.Spawn("waiter-low", 10, func() {
			l.Acquire()
			cond.Wait(l)
			order <- "waiter-low"
			l.Release()
		})
		s.Spawn("waiter-high", 20, func() {
			l.Acquire()
			cond.Wait(l)
			order <- "waiter-high"
			l.Release()
		})
	})

	l.Acquire()
	cond.Broadcast(l)
	l.Release()

	got := []string{<-order, <-order}
	if got[0] != "waiter-high" || got[1] != "waiter-low" {
		t.Errorf("wake order = %v, want [waiter-high waiter-low]", got)
	}
}
