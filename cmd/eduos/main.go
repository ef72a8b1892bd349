// Command eduos boots a small demonstration of the scheduler and
// synchronization core: it spawns a priority-donation chain and prints
// the resulting run order. It plays the role a kernel's boot sequence
// would -- selecting runtime configuration, starting the initial threads
// -- at a tiny fraction of the scope, since cmd/eduos exists only to
// exercise the library packages end to end rather than boot a real
// machine.
package main

import (
	"flag"
	"fmt"
	"os"

	"eduos/kconfig"
	"eduos/ksync"
	"eduos/thread"
)

func main() {
	disc := flag.String("discipline", "priority", "scheduling discipline: priority or mlfqs")
	evict := flag.String("evict", "clock", "eviction policy: fifo, lru, or clock")
	flag.Parse()

	cfg := kconfig.Default()
	switch *disc {
	case "mlfqs":
		cfg.Discipline = kconfig.MLFQS
	case "priority":
		cfg.Discipline = kconfig.Priority
	default:
		fmt.Fprintf(os.Stderr, "unknown discipline %q\n", *disc)
		os.Exit(1)
	}
	switch *evict {
	case "fifo":
		cfg.Evict = kconfig.FIFO
	case "lru":
		cfg.Evict = kconfig.LRU
	case "clock":
		cfg.Evict = kconfig.Clock
	default:
		fmt.Fprintf(os.Stderr, "unknown eviction policy %q\n", *evict)
		os.Exit(1)
	}

	sched := thread.NewScheduler(cfg.Discipline)
	runDonationDemo(sched)
}

// runDonationDemo demonstrates priority donation: a low-priority thread
// holding a lock is boosted by a chain of higher-priority waiters, and
// releases happen in priority order.
func runDonationDemo(sched *thread.Scheduler) {
	l1 := ksync.NewLock(sched)
	l2 := ksync.NewLock(sched)
	gate := ksync.NewSemaphore(sched, 0)

	order := make(chan string, 3)

	low := sched.Spawn("low", 10, func() {
		l1.Acquire()
		fmt.Printf("low acquired l1, effective=%d\n", sched.Current().Effective())
		// hold the lock long enough for med and high to pile on, by
		// blocking on gate until main has spawned both of them.
		gate.Down()
		l1.Release()
		order <- "low"
	})
	_ = low

	med := sched.Spawn("med", 20, func() {
		l2.Acquire()
		l1.Acquire()
		fmt.Printf("med acquired l1, effective=%d\n", sched.Current().Effective())
		l1.Release()
		l2.Release()
		order <- "med"
	})
	_ = med

	high := sched.Spawn("high", 30, func() {
		l2.Acquire()
		l2.Release()
		order <- "high"
	})
	_ = high

	gate.Up()
	for i := 0; i < 3; i++ {
		fmt.Printf("finished: %s\n", <-order)
	}
}
