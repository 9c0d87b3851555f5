// Package hoare verifies contract-annotated functions by forward symbolic
// execution. Each function is reduced to a list of proof obligations which
// are discharged by an SMT solver.
package hoare

import (
	"errors"
	"fmt"
	"strings"
)

// Standard widths.
const (
	WidthBool = 1
	Width32   = 32
)

// Solver errors. Each one yields an Unknown verdict for the obligation.
var (
	ErrSolverTimeout       = errors.New("Solver timeout")
	ErrSolverCanceled      = errors.New("Solver canceled")
	ErrSolverResourceLimit = errors.New("Solver resource limit")
	ErrSolverUnknown       = errors.New("Solver unknown error")
	ErrNoCgo               = errors.New("Solver unavailable: built without cgo")
)

// Structural errors. These are reported before any obligation is checked.
var (
	ErrMissingInvariant  = errors.New("loop requires exactly one preceding invariant")
	ErrDanglingInvariant = errors.New("invariant not followed by a loop")
	ErrIfArity           = errors.New("if conditions and blocks differ in length")
	ErrImmutableAssign   = errors.New("cannot assign twice to immutable variable")
	ErrShadowed          = errors.New("variable shadows an existing binding")
	ErrUndefinedVariable = errors.New("undefined variable")
	ErrUninitialized     = errors.New("use of uninitialized variable")
	ErrUnknownType       = errors.New("type could not be inferred")
	ErrTypeMismatch      = errors.New("type mismatch")
	ErrUnknownFunction   = errors.New("unknown function")
	ErrRecursiveCall     = errors.New("recursive call")
	ErrReservedName      = errors.New("reserved name")
	ErrDuplicateFunction = errors.New("duplicate function")
)

// StructuralError reports a malformed function. The function is not verified.
type StructuralError struct {
	Function string
	Op       string
	Err      error
}

// Error returns the error message.
func (e *StructuralError) Error() string {
	var buf strings.Builder
	if e.Function != "" {
		buf.WriteString(e.Function + ": ")
	}
	if e.Op != "" {
		buf.WriteString(e.Op + ": ")
	}
	buf.WriteString(e.Err.Error())
	return buf.String()
}

// Unwrap returns the underlying sentinel error.
func (e *StructuralError) Unwrap() error { return e.Err }

// structuralf returns an error wrapping err with op formatted from format & args.
func structuralf(err error, format string, args ...interface{}) error {
	return &StructuralError{Op: fmt.Sprintf(format, args...), Err: err}
}

// withFunction sets the function name on a structural error, if unset.
func withFunction(err error, name string) error {
	var e *StructuralError
	if errors.As(err, &e) {
		if e.Function == "" {
			e.Function = name
		}
		return e
	}
	return &StructuralError{Function: name, Err: err}
}

// assert panics if condition is false.
func assert(condition bool, format string, args ...interface{}) {
	if !condition {
		panic(fmt.Sprintf("assert: "+format, args...))
	}
}
