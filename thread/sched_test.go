package thread

import (
	"eduos/kconfig"
	"testing"
)

// TestHigherPriorityRunsFirst spawns three threads of increasing priority
// from inside a higher-priority starter thread, so all three land in ready
// together, then checks they run in highest-effective-first order.
func TestHigherPriorityRunsFirst(t *testing.T) {
	s := NewScheduler(kconfig.Priority)
	order := make(chan string, 3)

	s.Spawn("starter", 40, func() {
		s.Spawn("low", 10, func() { order <- "low" })
		s.Spawn("mid", 20, func() { order <- "mid" })
		s.Spawn("high", 30, func() { order <- "high" })
	})

	got := []string{<-order, <-order, <-order}
	want := []string{"high", "mid", "low"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("run order[%d] = %s, want %s (got %v)", i, got[i], want[i], got)
		}
	}
}

// TestIdleRunsWhenNothingReady confirms Current() falls back to the idle
// thread once every spawned thread has exited.
func TestIdleRunsWhenNothingReady(t *testing.T) {
	s := NewScheduler(kconfig.Priority)
	done := make(chan struct{})
	s.Spawn("only", kconfig.PriDefault, func() { close(done) })
	<-done
	if cur := s.Current(); !cur.idle {
		t.Errorf("Current() = %q, want the idle thread", cur.Name)
	}
}

// TestSetPriorityNoopUnderMLFQS confirms SetPriority leaves base priority
// untouched when the scheduler runs under MLFQS.
func TestSetPriorityNoopUnderMLFQS(t *testing.T) {
	s := NewScheduler(kconfig.MLFQS)
	th := s.newThread("t", kconfig.PriDefault, func() {})
	s.SetPriority(th, kconfig.PriMax)
	if th.Base() != kconfig.PriDefault {
		t.Errorf("Base() = %d after SetPriority under MLFQS, want unchanged %d", th.Base(), kconfig.PriDefault)
	}
}

// TestSetPriorityUpdatesEffective confirms SetPriority changes both base
// and effective priority when not under MLFQS and the thread owns no locks.
func TestSetPriorityUpdatesEffective(t *testing.T) {
	s := NewScheduler(kconfig.Priority)
	th := s.newThread("t", kconfig.PriDefault, func() {})
	s.SetPriority(th, 5)
	if th.Base() != 5 || th.Effective() != 5 {
		t.Errorf("Base()=%d Effective()=%d after SetPriority(5), want both 5", th.Base(), th.Effective())
	}
}
