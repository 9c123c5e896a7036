package integrity

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed set of failure kinds the engine reports.
type ErrorKind string

const (
	KindValidation           ErrorKind = "validation"
	KindConcurrency          ErrorKind = "concurrency"
	KindRuleExecution        ErrorKind = "rule_execution"
	KindFixPreconditionStale ErrorKind = "fix_precondition_stale"
	KindFixExecution         ErrorKind = "fix_execution"
	KindPersistence          ErrorKind = "persistence"
	KindNotFound             ErrorKind = "not_found"
)

// Sentinels so callers can use errors.Is(err, ErrConcurrency).
var (
	ErrValidation           = &Error{Kind: KindValidation}
	ErrConcurrency          = &Error{Kind: KindConcurrency}
	ErrRuleExecution        = &Error{Kind: KindRuleExecution}
	ErrFixPreconditionStale = &Error{Kind: KindFixPreconditionStale}
	ErrFixExecution         = &Error{Kind: KindFixExecution}
	ErrPersistence          = &Error{Kind: KindPersistence}
	ErrNotFound             = &Error{Kind: KindNotFound}
)

// Error is a typed engine failure.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// NewError wraps err with a kind and operation name.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a kinded error from a format string.
func Errorf(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
