// Package ktime implements the wall-clock tick/sleep-list component: a
// sorted-insert-plus-sweep list, in the same style as the thread
// package's other small ordered lists, favoring a plain slice over a
// generic container type.
package ktime

import (
	"eduos/thread"
	"math"
	"sort"
	"sync"
)

type sleeper struct {
	deadline int64
	t        *thread.Thread
}

// SleepList orders blocked threads by ascending wake deadline and wakes
// them from the timer tick.
type SleepList struct {
	mu      sync.Mutex
	sched   *thread.Scheduler
	entries []*sleeper
}

// NewSleepList returns an empty sleep list driven by sched.
func NewSleepList(sched *thread.Scheduler) *SleepList {
	return &SleepList{sched: sched}
}

// SleepUntil places the current thread in the sleep list and blocks it
// until Wake is called with now >= deadline.
// Boundary behaviour: sleep_until(now) still takes one scheduling turn
// before returning, since the thread blocks unconditionally and is only
// ever woken by a subsequent Wake call.
func (sl *SleepList) SleepUntil(deadline int64) {
	cur := sl.sched.Current()
	sl.mu.Lock()
	e := &sleeper{deadline: deadline, t: cur}
	i := sort.Search(len(sl.entries), func(i int) bool { return sl.entries[i].deadline > deadline })
	sl.entries = append(sl.entries, nil)
	copy(sl.entries[i+1:], sl.entries[i:])
	sl.entries[i] = e
	sl.mu.Unlock()
	sl.sched.Block()
}

// Wake pops and unblocks every sleeper whose deadline has passed,
// returning the next-earliest remaining deadline or math.MaxInt64 if
// none remain.
func (sl *SleepList) Wake(now int64) int64 {
	sl.mu.Lock()
	i := 0
	for i < len(sl.entries) && sl.entries[i].deadline <= now {
		i++
	}
	woken := sl.entries[:i]
	sl.entries = sl.entries[i:]
	next := int64(math.MaxInt64)
	if len(sl.entries) > 0 {
		next = sl.entries[0].deadline
	}
	sl.mu.Unlock()
	for _, e := range woken {
		sl.sched.Unblock(e.t)
	}
	return next
}

// Len reports how many threads are currently asleep.
func (sl *SleepList) Len() int {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return len(sl.entries)
}
