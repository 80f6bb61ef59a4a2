package errors

import (
	"fmt"
	"runtime/debug"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// PanicError is a panic recovered inside a model or pipeline operation.
type PanicError struct {
	Operation string
	Value     interface{}
	Stack     string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Operation, e.Value)
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (e *PanicError) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("operation", e.Operation).
		Str("value", fmt.Sprint(e.Value)).
		Str("type", "PanicError")
}

// NewPanicError records value and the current goroutine stack.
func NewPanicError(operation string, value interface{}) *PanicError {
	return &PanicError{Operation: operation, Value: value, Stack: string(debug.Stack())}
}

// Recover turns a panic into an error assigned to *err. It must be deferred
// directly:
//
//	func (s *StandardScaler) Fit(X mat.Matrix) (err error) {
//	    defer scigoErrors.Recover(&err, "StandardScaler.Fit")
//	    ...
//	}
//
// An error already set by the function is kept as a secondary cause.
func Recover(err *error, operation string) {
	r := recover()
	if r == nil {
		return
	}
	panicErr := NewPanicError(operation, r)
	if *err != nil {
		*err = errors.WithSecondaryError(panicErr, *err)
		return
	}
	*err = panicErr
}

// PanicStack returns the stack recorded by the first PanicError in err's
// chain, or "".
func PanicStack(err error) string {
	var p *PanicError
	if errors.As(err, &p) {
		return p.Stack
	}
	return ""
}
