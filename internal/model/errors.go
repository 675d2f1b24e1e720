package model

import (
	"errors"
	"fmt"
)

// Kind classifies an error for RPC surfacing and caller retry logic.
type Kind string

const (
	NotFound           Kind = "NotFound"
	AlreadyExists      Kind = "AlreadyExists"
	InvalidArgument    Kind = "InvalidArgument"
	OntologyViolation  Kind = "OntologyViolation"
	ConflictUnresolved Kind = "ConflictUnresolved"
	External           Kind = "External"
	Timeout            Kind = "Timeout"
	Cancelled          Kind = "Cancelled"
	Internal           Kind = "Internal"
)

// Error wraps an underlying error with a Kind and the operation that
// produced it, so callers can branch on classification without string
// matching.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the Kind of err if it (or something it wraps) is an
// *Error. Returns Internal for any other error, NotFound is never
// inferred implicitly — callers must wrap explicitly.
func KindOf(err error) Kind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return Internal
}

// Wrap constructs an *Error, convenient at call sites.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}
