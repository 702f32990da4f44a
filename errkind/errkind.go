// Package errkind defines the three fatal error categories the on-chain
// resolution engine can terminate with (§7). Each wraps go-errors/errors so a
// stack trace is captured at the point of failure, matching the wrapping
// convention used elsewhere in the lnd family.
package errkind

import (
	"fmt"

	"github.com/go-errors/errors"
)

// Kind tags one of the three fatal error categories.
type Kind int

const (
	// BadCommand marks a malformed or unexpected message from the parent.
	BadCommand Kind = iota

	// InternalError marks a violated protocol invariant.
	InternalError

	// CryptoFailed marks a failed key-derivation or signature operation.
	CryptoFailed
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case BadCommand:
		return "BadCommand"
	case InternalError:
		return "InternalError"
	case CryptoFailed:
		return "CryptoFailed"
	default:
		return "UnknownErrorKind"
	}
}

// Error is a fatal error annotated with its kind and a captured stack trace.
type Error struct {
	Kind    Kind
	wrapped *errors.Error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.wrapped.Error())
}

// Unwrap allows errors.Is/errors.As to see through to the underlying cause.
func (e *Error) Unwrap() error {
	return e.wrapped.Err
}

// Stack returns the formatted stack trace captured when this error was
// created, for logging at the point the driver gives up.
func (e *Error) Stack() string {
	return string(e.wrapped.Stack())
}

// newf wraps a formatted message as a go-errors error with a stack trace
// captured one frame above the kind-specific constructor below.
func newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		wrapped: errors.Wrap(fmt.Errorf(format, args...), 2),
	}
}

// NewBadCommand reports a malformed or unexpected parent message.
func NewBadCommand(format string, args ...interface{}) *Error {
	return newf(BadCommand, format, args...)
}

// NewInternalError reports a violated protocol invariant.
func NewInternalError(format string, args ...interface{}) *Error {
	return newf(InternalError, format, args...)
}

// NewCryptoFailed reports a failed key-derivation or signature operation.
func NewCryptoFailed(format string, args ...interface{}) *Error {
	return newf(CryptoFailed, format, args...)
}

// Wrap annotates an existing error with a kind, preserving its message and
// attaching a stack trace at the call site.
func Wrap(kind Kind, err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return &Error{
		Kind:    kind,
		wrapped: errors.Wrap(err, 1),
	}
}
