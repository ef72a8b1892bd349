package thread

import (
	"eduos/fixedpoint"
	"eduos/kconfig"
	"eduos/util"
)

// Tick runs the per-raw-tick accounting: account the running thread's CPU
// time, request a deferred yield once TIME_SLICE (4) ticks have elapsed,
// and every 100 ticks run the MLFQS per-second recompute. This is the
// timer-IRQ handler's hook, generalized to both scheduling disciplines;
// it must be invoked from outside any suspension point, and the deferred
// yield is only actually taken after LeaveIRQ.
func (s *Scheduler) Tick() {
	old := s.Intr.Disable()
	s.Intr.EnterIRQ()

	s.ticks++
	if !s.cur.idle {
		s.cur.ticksThisSlice++
		if s.Disc == kconfig.MLFQS {
			s.cur.recentCPU = s.cur.recentCPU.AddInt(1)
		}
	}

	if s.Disc == kconfig.MLFQS && s.ticks%kconfig.TicksPerSecond == 0 {
		s.secTick()
	} else if s.Disc == kconfig.MLFQS && s.cur.ticksThisSlice >= kconfig.TimeSlice {
		s.recomputeMLFQSPriority(s.cur)
	}

	if s.cur.ticksThisSlice >= kconfig.TimeSlice {
		s.cur.ticksThisSlice = 0
		s.Intr.RequestYieldOnReturn()
	}

	deferred := s.Intr.LeaveIRQ()
	s.Intr.SetLevel(old)
	if deferred {
		s.Yield()
	}
}

// secTick runs the once-per-second MLFQS recompute: update
// load_avg from the current ready count, then recompute every thread's
// recent_cpu and derived priority.
func (s *Scheduler) secTick() {
	readyCount := len(s.ready)
	if !s.cur.idle {
		readyCount++
	}
	fiftyNine := fixedpoint.FromInt(59).DivInt(60)
	oneSixtieth := fixedpoint.FromInt(1).DivInt(60)
	s.loadAvg = fiftyNine.Mul(s.loadAvg).Add(oneSixtieth.MulInt(readyCount))

	s.reg.Each(func(t *Thread) {
		if t.idle {
			return
		}
		s.recomputeRecentCPU(t)
		s.recomputeMLFQSPriority(t)
	})
}

// recomputeRecentCPU applies recent_cpu = (2*load_avg)/(2*load_avg+1) *
// recent_cpu + nice.
func (s *Scheduler) recomputeRecentCPU(t *Thread) {
	twoLA := s.loadAvg.MulInt(2)
	coeff := twoLA.Div(twoLA.AddInt(1))
	t.recentCPU = coeff.Mul(t.recentCPU).AddInt(t.nice)
}

// recomputeMLFQSPriority applies priority = clamp(PRI_MAX - recent_cpu/4 -
// nice*2, 0, 63) and installs it as the thread's effective priority.
func (s *Scheduler) recomputeMLFQSPriority(t *Thread) {
	p := kconfig.PriMax - t.recentCPU.DivInt(4).ToIntRound() - t.nice*2
	p = util.Clamp(p, kconfig.PriMin, kconfig.PriMax)
	t.base = p
	t.SetEffective(p)
}

// SetNice sets a thread's MLFQS niceness and immediately recomputes its
// priority, yielding if it's no longer highest.
func (s *Scheduler) SetNice(t *Thread, nice int) {
	if nice < kconfig.NiceMin || nice > kconfig.NiceMax {
		panic("thread: nice out of range")
	}
	old := s.Intr.Disable()
	t.nice = nice
	if s.Disc == kconfig.MLFQS {
		s.recomputeMLFQSPriority(t)
		if t == s.cur {
			s.maybePreempt()
		}
	}
	s.Intr.SetLevel(old)
}

// LoadAvg returns the current system load average (17.14 fixed point).
func (s *Scheduler) LoadAvg() fixedpoint.FP { return s.loadAvg }
