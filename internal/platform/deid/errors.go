package deid

import (
	"errors"

	"github.com/ehr/hl7deid/internal/platform/hl7v2"
	"github.com/ehr/hl7deid/internal/platform/report"
)

// sentinel is a comparable error value that also knows its report kind.
type sentinel struct {
	msg  string
	kind report.Kind
}

func (e *sentinel) Error() string           { return e.msg }
func (e *sentinel) ReportKind() report.Kind { return e.kind }

var (
	// ErrUnresolvedGenerator is reported when a configured generator name has
	// no registered implementation. The field stays unmodified.
	ErrUnresolvedGenerator error = &sentinel{"deid: generator not registered", report.KindUnresolvedGenerator}

	// ErrGeneratorFailure is reported when a bound generator returns an error
	// or panics. The field stays unmodified.
	ErrGeneratorFailure error = &sentinel{"deid: generator failed", report.KindGeneratorFailure}

	// ErrRewriteFailure aborts the whole message: no output is produced.
	ErrRewriteFailure error = &sentinel{"deid: message rewrite failed", report.KindRewriteFailure}

	// ErrInvalidConfig is returned by ValidateItems.
	ErrInvalidConfig = errors.New("deid: invalid PHI field configuration")

	// ErrAmbiguousIdentitySegment is returned when the message does not hold
	// exactly one identity segment.
	ErrAmbiguousIdentitySegment = hl7v2.ErrAmbiguousIdentitySegment
)

// FieldError is a field-level failure. It never aborts the message.
type FieldError struct {
	ID        string
	Generator string
	Err       error
}

func (e *FieldError) Error() string {
	if e.Generator != "" {
		return e.ID + " (" + e.Generator + "): " + e.Err.Error()
	}
	return e.ID + ": " + e.Err.Error()
}

func (e *FieldError) Unwrap() error { return e.Err }

func (e *FieldError) ComponentID() string   { return e.ID }
func (e *FieldError) GeneratorName() string { return e.Generator }
