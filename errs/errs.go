// Package errs defines the kernel's error-code convention: negative integer
// sentinels returned in place of a separate error value, threaded through
// every fallible call the way a small kernel typically avoids allocating a
// distinct error type per call site. Fatal conditions -- invariant
// violations the kernel cannot recover from -- use Fatal, which panics,
// guarding internal invariants the same way a bare panic("...") would in C.
package errs

import "fmt"

// Err_t is zero on success and a negative sentinel on failure.
type Err_t int

const (
	EFAULT       Err_t = -1 // bad user memory reference
	ENOMEM       Err_t = -2 // no free frame/page available
	EINVAL       Err_t = -3 // invalid argument
	ENOSPC       Err_t = -4 // swap disk or backing store exhausted
	ENAMETOOLONG Err_t = -5 // user string exceeded caller's bound
	EEXIST       Err_t = -6 // mapping already present
	ENODEV       Err_t = -7 // no backing file supplied
)

func (e Err_t) Error() string {
	switch e {
	case 0:
		return "success"
	case EFAULT:
		return "bad memory reference"
	case ENOMEM:
		return "out of memory"
	case EINVAL:
		return "invalid argument"
	case ENOSPC:
		return "no space left"
	case ENAMETOOLONG:
		return "name too long"
	case EEXIST:
		return "mapping already exists"
	case ENODEV:
		return "no such device"
	default:
		return fmt.Sprintf("err(%d)", int(e))
	}
}

// Ok reports whether e represents success.
func (e Err_t) Ok() bool { return e == 0 }

// Fatal panics with a formatted message. It is used for invariant violations
// that the kernel design treats as unrecoverable: stack overflow, recursive
// lock acquisition, unblocking a thread that isn't blocked, swap exhaustion,
// and similar conditions that a well-behaved kernel should never hit.
func Fatal(format string, args ...interface{}) {
	panic(fmt.Sprintf(format, args...))
}
