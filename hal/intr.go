package hal

// Intr models the slice of the interrupt-dispatch glue the core actually
// consumes rather than a full IDT/GDT bring-up, which is out of scope.
// There is exactly one logical CPU, so the
// whole kernel shares a single instance. Disable/Enable behave like
// intr_disable()/intr_set_level(): a plain boolean flag, not a mutex --
// on real hardware, disabling interrupts is idempotent and never blocks,
// and eduos's cooperative goroutine-per-thread scheduler (thread.Scheduler)
// already guarantees only one logical thread is ever unparked at a time, so
// there is nothing here for a mutex to protect. Disable/Enable exist purely
// so callers can assert the expected level and so thread can track
// IRQ-context and deferred-yield bookkeeping.
type Intr struct {
	enabled  bool
	inIntr   bool
	deferred bool // intr_yield_on_return: a yield was requested from IRQ context
}

// NewIntr returns a controller with interrupts enabled, matching post-boot
// steady state.
func NewIntr() *Intr {
	return &Intr{enabled: true}
}

// Disable marks interrupts off and returns the previous level, for use with
// SetLevel to restore it (mirrors intr_disable()'s return value).
func (in *Intr) Disable() bool {
	old := in.enabled
	in.enabled = false
	return old
}

// Enable marks interrupts on, matching intr_enable().
func (in *Intr) Enable() { in.enabled = true }

// SetLevel restores a previously saved level (intr_set_level semantics).
func (in *Intr) SetLevel(old bool) { in.enabled = old }

// Enabled reports whether interrupts are currently enabled.
func (in *Intr) Enabled() bool { return in.enabled }

// EnterIRQ marks the start of simulated interrupt-handler context, used by
// thread.Scheduler's Tick so that suspension-point assertions elsewhere can check
// InContext.
func (in *Intr) EnterIRQ() { in.inIntr = true }

// LeaveIRQ ends simulated interrupt-handler context and reports whether a
// deferred yield was requested while inside it (intr_yield_on_return).
func (in *Intr) LeaveIRQ() bool {
	in.inIntr = false
	d := in.deferred
	in.deferred = false
	return d
}

// InContext reports whether the caller is executing inside the simulated
// IRQ handler (intr_context()).
func (in *Intr) InContext() bool { return in.inIntr }

// RequestYieldOnReturn defers a preemption request until LeaveIRQ, the way
// the timer IRQ defers thread_yield until the trap returns to user/kernel
// code instead of yielding from inside the handler.
func (in *Intr) RequestYieldOnReturn() { in.deferred = true }
