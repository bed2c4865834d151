// Package errs provides the discriminated error result returned by every
// clipboard operation.
//
// Each failure carries a Kind; callers branch on it with errors.Is against the
// package sentinels:
//
//	if errors.Is(err, errs.ErrMalformedData) { ... }
//
// The Error type also records the operation and format involved and wraps an
// optional cause.
package errs

import (
	"errors"
	"strings"

	"go.klb.dev/clipshare/internal/format"
)

// Kind categorizes a failure.
type Kind string

const (
	KindInvalidObject     Kind = "invalid_object"
	KindMalformedData     Kind = "malformed_data"
	KindAllocationFailure Kind = "allocation_failure"
	KindNotAvailable      Kind = "not_available"
	KindOwnerUnresponsive Kind = "owner_unresponsive"
	KindSessionState      Kind = "session_state"
)

// Sentinels for errors.Is. They match any *Error of the same Kind.
var (
	ErrInvalidObject     = &Error{Kind: KindInvalidObject}
	ErrMalformedData     = &Error{Kind: KindMalformedData}
	ErrAllocationFailure = &Error{Kind: KindAllocationFailure}
	ErrNotAvailable      = &Error{Kind: KindNotAvailable}
	ErrOwnerUnresponsive = &Error{Kind: KindOwnerUnresponsive}
	ErrSessionState      = &Error{Kind: KindSessionState}
)

// Error is a clipboard failure.
type Error struct {
	Op     string
	Format format.ID
	Kind   Kind
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Format != 0 {
		b.WriteString(" [")
		b.WriteString(e.Format.String())
		b.WriteByte(']')
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error with the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// New returns an error of the given kind.
func New(op string, f format.ID, kind Kind, detail string) *Error {
	return &Error{Op: op, Format: f, Kind: kind, Detail: detail}
}

// Wrap returns an error of the given kind caused by err.
func Wrap(op string, f format.ID, kind Kind, err error) *Error {
	return &Error{Op: op, Format: f, Kind: kind, Cause: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
