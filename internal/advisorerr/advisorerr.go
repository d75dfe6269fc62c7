// Package advisorerr models the closed set of error kinds the advisor's
// core components can raise, and the policy attached to each (skip this
// statement, skip this reference, warn but continue, or fail the run).
// Grounded on the fmt.Errorf wrapping idiom used throughout
// pkg/pg_lineage/catalog.go and rewrite_pks.go, made into a closed type
// rather than ad hoc strings so callers can errors.Is/errors.As against
// a specific kind.
package advisorerr

import "errors"

// Kind is one of the seven recognized error classes.
type Kind int

const (
	// KindParseFailure: the SQL parser rejected a statement. Policy:
	// skip the statement, report to the caller.
	KindParseFailure Kind = iota
	// KindMissingLocation: an AST node lacks source offsets. Policy:
	// skip just that reference, continue.
	KindMissingLocation
	// KindZeroCostPlan: the baseline plan's Total Cost is 0. Policy:
	// skip the statement with a distinguished outcome.
	KindZeroCostPlan
	// KindEvaluationFailed: CREATE INDEX or EXPLAIN raised. Policy:
	// record the candidate as failed, continue, roll back.
	KindEvaluationFailed
	// KindStatsMismatch: a table is present in only one of
	// {export, target}, or its source-side reltuples is -1. Policy:
	// warning in the result; do not abort.
	KindStatsMismatch
	// KindTimeout: a probe exceeded its budget. Policy: as
	// KindEvaluationFailed.
	KindTimeout
	// KindDriverFailure: connection lost or authentication error.
	// Policy: fatal to the run.
	KindDriverFailure
)

func (k Kind) String() string {
	switch k {
	case KindParseFailure:
		return "ParseFailure"
	case KindMissingLocation:
		return "MissingLocation"
	case KindZeroCostPlan:
		return "ZeroCostPlan"
	case KindEvaluationFailed:
		return "EvaluationFailed"
	case KindStatsMismatch:
		return "StatsMismatch"
	case KindTimeout:
		return "Timeout"
	case KindDriverFailure:
		return "DriverFailure"
	default:
		return "Unknown"
	}
}

// Error wraps an underlying cause with its classified Kind. Use
// errors.As to recover the Kind from a wrapped error chain.
type Error struct {
	Kind  Kind
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error { return e.Cause }

// New wraps cause as an Error of the given kind.
func New(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

// Is reports whether err (or anything it wraps) is an *Error of kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Fatal reports whether an error of this kind should halt the whole
// run rather than just the current statement or reference.
func (k Kind) Fatal() bool {
	return k == KindDriverFailure
}
