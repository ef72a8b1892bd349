package diag

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/ianlancetaylor/demangle"
)

// CallerDump prints the call stack starting at the given depth, for
// diagnosing unexpected kernel panics. It prints only each frame's
// file:line, not its function name, so nothing here is demangled;
// FatalBacktrace is the variant that prints demangled function names.
func CallerDump(start int) {
	i := start
	s := ""
	for {
		_, f, l, ok := runtime.Caller(i)
		if !ok {
			break
		}
		i++
		if s == "" {
			s = fmt.Sprintf("%s:%d\n", f, l)
		} else {
			s += fmt.Sprintf("\t<-%s:%d\n", f, l)
		}
	}
	fmt.Printf("%s", s)
}

// demangleName best-effort demangles a symbol name, returning it unchanged
// if it isn't a recognized mangling scheme.
func demangleName(name string) string {
	if out := demangle.Filter(name); out != name {
		return out
	}
	return name
}

// FatalBacktrace formats a panic backtrace for a fatal kernel invariant
// violation (errs.Fatal), demangling any foreign symbol names it finds.
func FatalBacktrace(skip int) string {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(skip+2, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	s := ""
	for {
		fr, more := frames.Next()
		s += fmt.Sprintf("\t%s (%s:%d)\n", demangleName(fr.Function), fr.File, fr.Line)
		if !more || fr.Function == "runtime.goexit" {
			break
		}
	}
	return s
}

// DistinctCaller tracks whether a call chain has been seen before, so
// repeated warnings from the same call site (e.g. repeated
// eviction-under-pressure logging) are only reported once.
type DistinctCaller struct {
	mu      sync.Mutex
	Enabled bool
	did     map[uintptr]bool
	Whitel  map[string]bool
}

func (dc *DistinctCaller) pcHash(pcs []uintptr) uintptr {
	if len(pcs) == 0 {
		panic("pcHash: empty stack")
	}
	var ret uintptr
	for _, pc := range pcs {
		pc = pc*1103515245 + 12345
		ret ^= pc
	}
	return ret
}

// Len returns the number of unique caller paths recorded.
func (dc *DistinctCaller) Len() int {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return len(dc.did)
}

// Distinct reports whether the current call chain is new, returning a
// formatted trace the first time it's seen.
func (dc *DistinctCaller) Distinct() (bool, string) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	if !dc.Enabled {
		return false, ""
	}
	if dc.did == nil {
		dc.did = make(map[uintptr]bool)
	}

	var pcs []uintptr
	for sz, got := 30, 30; got >= sz; sz *= 2 {
		pcs = make([]uintptr, sz)
		got = runtime.Callers(3, pcs)
		if got == 0 {
			panic("DistinctCaller: no callers")
		}
		pcs = pcs[:got]
	}
	h := dc.pcHash(pcs)
	if dc.did[h] {
		return false, ""
	}
	dc.did[h] = true
	frames := runtime.CallersFrames(pcs)
	fs := ""
	for {
		fr, more := frames.Next()
		if dc.Whitel[fr.Function] {
			return false, ""
		}
		fs += fmt.Sprintf("\t%s (%s:%d)\n", demangleName(fr.Function), fr.File, fr.Line)
		if !more || fr.Function == "runtime.goexit" {
			break
		}
	}
	return true, fs
}
