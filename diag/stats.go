package diag

import (
	"reflect"
	"strings"
	"sync/atomic"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Enabled gates whether counters actually accumulate: a runtime flag
// rather than a build-time switch, since there is no separate
// instrumented build here.
var Enabled = false

// Counter_t is a statistical counter: a plain int64 behind atomic ops so
// diagnostics can read it from any thread without taking a lock.
type Counter_t int64

// Inc increments the counter by one when diagnostics are enabled.
func (c *Counter_t) Inc() {
	if Enabled {
		atomic.AddInt64((*int64)(c), 1)
	}
}

// Add adds n to the counter when diagnostics are enabled.
func (c *Counter_t) Add(n int64) {
	if Enabled {
		atomic.AddInt64((*int64)(c), n)
	}
}

// printer formats counters with locale-aware grouping so a dump of, say,
// frame-eviction counts in the millions stays readable.
var printer = message.NewPrinter(language.English)

// Stats2String converts a struct of Counter_t fields into a printable
// report via reflection, for dumping per-package counters on request.
func Stats2String(st interface{}) string {
	if !Enabled {
		return ""
	}
	v := reflect.ValueOf(st)
	s := ""
	for i := 0; i < v.NumField(); i++ {
		t := v.Field(i).Type().String()
		if strings.HasSuffix(t, "Counter_t") {
			n := v.Field(i).Interface().(Counter_t)
			s += printer.Sprintf("\n\t#%s: %d", v.Type().Field(i).Name, int64(n))
		}
	}
	return s + "\n"
}
