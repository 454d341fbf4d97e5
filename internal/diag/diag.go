// Package diag defines the structured diagnostic model shared by every
// compiler phase. The semantic analyzer never halts on the first problem;
// it appends to a Sink and keeps going, the way lang/sem.Analyzer.error
// accumulates into a.errors instead of panicking. The IR builder and later
// stages fail fast on their first error instead.
package diag

import "fmt"

// Severity classifies a Diagnostic.
type Severity int

const (
	Hint Severity = iota
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Hint:
		return "hint"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Span is a half-open byte range within a single source file, matching the
// input-artifact source-span format from spec.md §6.
type Span struct {
	FileID int
	Begin  int
	End    int
}

// Label attaches a short message to a secondary span.
type Label struct {
	Span    Span
	Message string
}

// Diagnostic is one reported problem: a severity, a primary span, zero or
// more secondary spans, a stable machine-readable ID, and a message.
type Diagnostic struct {
	Severity  Severity
	ID        string
	Message   string
	Primary   Span
	Secondary []Label
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s[%s]: %s", d.Severity, d.ID, d.Message)
}

// Sink is an append-only collector of diagnostics for one compilation.
// It is safe to read after the run completes (spec.md §5: "serializable
// after the run"); it is not safe for concurrent writers, matching the
// single-threaded-per-module concurrency model.
type Sink struct {
	diags []Diagnostic
}

func NewSink() *Sink {
	return &Sink{}
}

func (s *Sink) Add(d Diagnostic) {
	s.diags = append(s.diags, d)
}

// Errorf appends an Error-severity diagnostic at span with id and a
// formatted message.
func (s *Sink) Errorf(span Span, id, format string, args ...interface{}) {
	s.Add(Diagnostic{
		Severity: Error,
		ID:       id,
		Message:  fmt.Sprintf(format, args...),
		Primary:  span,
	})
}

// Warnf appends a Warning-severity diagnostic.
func (s *Sink) Warnf(span Span, id, format string, args ...interface{}) {
	s.Add(Diagnostic{
		Severity: Warning,
		ID:       id,
		Message:  fmt.Sprintf(format, args...),
		Primary:  span,
	})
}

// HasErrors reports whether any Error-severity diagnostic was recorded.
func (s *Sink) HasErrors() bool {
	for _, d := range s.diags {
		if d.Severity == Error {
			return true
		}
	}
	return false
}

// All returns every diagnostic recorded so far, in insertion order.
func (s *Sink) All() []Diagnostic {
	return s.diags
}

// InternalError is the distinguished "internal compiler error" diagnostic
// ID referenced in spec.md §6: a hard invariant violation, always reported
// with the source location closest to the failure.
const InternalError = "ICE"

// ICE records an internal-compiler-error diagnostic and additionally
// returns it as a Go error so callers following the fail-fast phases
// (IR builder onward, per spec.md §7) can propagate it immediately.
func (s *Sink) ICE(span Span, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	s.Add(Diagnostic{
		Severity: Error,
		ID:       InternalError,
		Message:  msg,
		Primary:  span,
	})
	return fmt.Errorf("internal compiler error: %s", msg)
}
