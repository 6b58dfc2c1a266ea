// Package protoerr defines the closed error taxonomy shared by every
// stage of the USCN protocol engine (spec.md §7).
package protoerr

import (
	"errors"
	"fmt"
)

// Code is one member of the closed, wire-stable error taxonomy.
type Code string

const (
	Success              Code = "SUCCESS"
	InvalidInput         Code = "INVALID_INPUT"
	ValidationFailed     Code = "VALIDATION_FAILED"
	AuditRequired        Code = "AUDIT_REQUIRED"
	ZeroTrustViolation   Code = "ZERO_TRUST_VIOLATION"
	BufferOverflow       Code = "BUFFER_OVERFLOW"
	NumericalInstability Code = "NUMERICAL_INSTABILITY"
	SinphaseViolation    Code = "SINPHASE_VIOLATION"
	NormalizationFailed  Code = "NORMALIZATION_FAILED"
	DFATransitionFailed  Code = "DFA_TRANSITION_FAILED"
	SchemaMismatch       Code = "SCHEMA_MISMATCH"
)

// Stage identifies which pipeline stage produced an Error, for audit
// context and for tests that assert fail-fast ordering.
type Stage string

const (
	StageStructural  Stage = "structural"
	StageZeroTrust   Stage = "zero_trust"
	StageNormalize   Stage = "normalize"
	StageAutomaton   Stage = "automaton"
	StageFieldChecks Stage = "field_checks"
	StageCost        Stage = "cost"
	StageAudit       Stage = "audit"
	StageSchema      Stage = "schema"
)

// Error is the sum type every stage of the pipeline returns in place of
// an ad hoc error string. Msg carries a single-line, user-safe message;
// it must never include buffer contents, schema internals, or addresses.
type Error struct {
	Code  Code
	Stage Stage
	Msg   string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// New constructs a typed Error.
func New(code Code, stage Stage, msg string) error {
	return &Error{Code: code, Stage: stage, Msg: msg}
}

// Newf constructs a typed Error with a formatted message.
func Newf(code Code, stage Stage, format string, args ...any) error {
	return &Error{Code: code, Stage: stage, Msg: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the Code from err if it is (or wraps) a *Error, and
// reports whether extraction succeeded.
func CodeOf(err error) (Code, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code, true
	}
	return "", false
}
