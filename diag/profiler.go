package diag

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/pprof/profile"
)

// Profiler accumulates per-thread CPU time, donation-wait time and
// frame-eviction counts as pprof samples, so a session can be dumped as a
// standard pprof profile and inspected with `go tool pprof` the same way a
// real kernel's perf counters would be: an always-present, independently
// lockable accumulator any package can reach into.
type Profiler struct {
	mu      sync.Mutex
	samples map[string]*sample
}

type sample struct {
	runNs    int64
	waitNs   int64
	evicts   int64
}

// NewProfiler returns an empty profiler.
func NewProfiler() *Profiler {
	return &Profiler{samples: make(map[string]*sample)}
}

func (p *Profiler) entry(thread string) *sample {
	s, ok := p.samples[thread]
	if !ok {
		s = &sample{}
		p.samples[thread] = s
	}
	return s
}

// RecordRun adds d of running time to thread's sample.
func (p *Profiler) RecordRun(thread string, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entry(thread).runNs += int64(d)
}

// RecordWait adds d of donation/condition/sleep wait time to thread's
// sample.
func (p *Profiler) RecordWait(thread string, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entry(thread).waitNs += int64(d)
}

// RecordEvict increments thread's frame-eviction count by one.
func (p *Profiler) RecordEvict(thread string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entry(thread).evicts++
}

// WriteProfile serializes the accumulated samples as a pprof profile.Profile
// with three sample types (run and wait in nanoseconds, evictions as a
// count), one sample per
// thread, and writes it in the standard gzip'd protobuf wire format.
func (p *Profiler) WriteProfile(w io.Writer) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	valueTypes := []*profile.ValueType{
		{Type: "run", Unit: "nanoseconds"},
		{Type: "wait", Unit: "nanoseconds"},
		{Type: "evictions", Unit: "count"},
	}
	threadLoc := &profile.Location{ID: 1}
	fn := &profile.Function{ID: 1, Name: "thread"}
	threadLoc.Line = []profile.Line{{Function: fn}}

	prof := &profile.Profile{
		SampleType: valueTypes,
		Function:   []*profile.Function{fn},
		Location:   []*profile.Location{threadLoc},
		TimeNanos:  1,
	}

	for name, s := range p.samples {
		prof.Sample = append(prof.Sample, &profile.Sample{
			Location: []*profile.Location{threadLoc},
			Value:    []int64{s.runNs, s.waitNs, s.evicts},
			Label:    map[string][]string{"thread": {name}},
		})
	}
	if err := prof.CheckValid(); err != nil {
		return fmt.Errorf("diag: invalid profile: %w", err)
	}
	return prof.Write(w)
}
