package coprocrt

import (
	"fmt"

	"github.com/pkg/errors"
)

// FatalError marks a condition the reference runtime would have handled
// by calling rust_srv::fatal and aborting the process: a violated
// invariant, not a recoverable guest mistake. The scheduler's Run loop
// stops and returns a FatalError rather than panicking, so embedders can
// decide how to surface it.
type FatalError struct {
	msg string
}

func (e *FatalError) Error() string { return e.msg }

// Fatalf builds a FatalError, mirroring the I(rt, expr) assertion macro's
// call sites: a condition the runtime itself guarantees, not input the
// guest controls.
func Fatalf(format string, args ...any) error {
	return &FatalError{msg: fmt.Sprintf(format, args...)}
}

// IsFatal reports whether err is (or wraps) a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// Recoverable wraps a guest-facing mistake the runtime logs and shrugs
// off rather than dying on — send/recv to a null port, for instance.
// Grounded on upcall_send/upcall_recv's "(possibly throw?)" log-and-return
// branches: the reference implementation treats these as non-fatal.
func Recoverable(format string, args ...any) error {
	return errors.Errorf(format, args...)
}
