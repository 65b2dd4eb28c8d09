// Package ot implements the operation algebra for collaborative
// document editing: leaf operations on text and arrays, structural
// operations on the document tree, and the transform rules that make
// concurrent operations converge.
package ot

import (
	"errors"
	"fmt"
)

var (
	ErrOutOfBounds    = errors.New("scribe: position out of bounds")
	ErrValueMismatch  = errors.New("scribe: recorded value does not match document")
	ErrWrongValueType = errors.New("scribe: value type does not match operation")
	ErrNoValue        = errors.New("scribe: no value at path")
	ErrUnknownOpType  = errors.New("scribe: unknown operation type")
)

// MalformedOpError reports a construction-time invariant violation. No
// mutation has been performed when it is returned.
type MalformedOpError struct {
	Reason string
}

func (e *MalformedOpError) Error() string {
	return "scribe: malformed op: " + e.Reason
}

// ConflictError is returned by Transform when conflict detection is
// requested and both operations touch the same path. It carries both
// operands so the caller can resolve or surface them.
type ConflictError struct {
	A, B *ObjectOp
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("scribe: conflicting operations at %s (%s vs %s)", e.A.Path, e.A.Type, e.B.Type)
}

// IllegalTransformError reports a pair of operations that cannot both
// have been produced from the same base state, such as two concurrent
// creates of one path.
type IllegalTransformError struct {
	A, B *ObjectOp
}

func (e *IllegalTransformError) Error() string {
	return fmt.Sprintf("scribe: cannot transform %s against %s at %s", e.A.Type, e.B.Type, e.A.Path)
}

// InvalidVersionError reports a client claiming a version ahead of the
// hub. It is fatal for the session.
type InvalidVersionError struct {
	Client, Server int
}

func (e *InvalidVersionError) Error() string {
	return fmt.Sprintf("scribe: invalid version %d, server is at %d", e.Client, e.Server)
}
