package clarionc

import (
	"fmt"

	"github.com/gmofishsauce/clarionc/internal/diag"
)

// ErrorCode classifies a CompileError by the pipeline phase that raised it.
type ErrorCode int

const (
	ErrUnknown ErrorCode = iota

	// ErrDiagnostics means the diagnostic sink holds at least one
	// Error-severity entry after semantic analysis; Diagnostics on the
	// returned CompileError carries the full list.
	ErrDiagnostics

	// ErrConstFold means a module-level constant's initializer failed to
	// fold (overflow, divide-by-zero, or a non-constant subtree).
	ErrConstFold

	// ErrLayout means the storage layout planner could not place a
	// symbol, most commonly an explicit slot collision.
	ErrLayout

	// ErrIRBuild means the IR builder failed fast inside a function body
	// (spec.md §7's fail-fast phases begin here).
	ErrIRBuild

	// ErrSchedule means the register/stack scheduler failed: an
	// unresolvable storage symbol reference, or a function whose
	// operand-stack depth exceeds the VM's limit.
	ErrSchedule

	// ErrFinalize means bytecode finalization failed to resolve a jump
	// or call target.
	ErrFinalize
)

func (c ErrorCode) String() string {
	switch c {
	case ErrDiagnostics:
		return "diagnostics"
	case ErrConstFold:
		return "const-fold"
	case ErrLayout:
		return "layout"
	case ErrIRBuild:
		return "ir-build"
	case ErrSchedule:
		return "schedule"
	case ErrFinalize:
		return "finalize"
	default:
		return "unknown"
	}
}

// CompileError is the error type every Compile failure returns.
type CompileError struct {
	Code    ErrorCode
	Message string
	Cause   error

	// Diagnostics is populated only for ErrDiagnostics: every diagnostic
	// the analyzer accumulated, not just the one that triggered failure.
	Diagnostics []diag.Diagnostic
}

func (e *CompileError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("clarionc: %s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("clarionc: %s: %s", e.Code, e.Message)
}

func (e *CompileError) Unwrap() error {
	return e.Cause
}

func (e *CompileError) Is(target error) bool {
	t, ok := target.(*CompileError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}
