package racer

import (
	stderrors "errors"
	"fmt"

	"github.com/pkg/errors"

	"github.com/racer-model/racer/path"
)

// ErrorKind enumerates the taxonomy from spec.md §7. It is not a Go
// error type itself — Error wraps one alongside the operation and path
// that produced it.
type ErrorKind string

const (
	// KindInvalidPath marks a malformed segment input.
	KindInvalidPath ErrorKind = "invalid_path"
	// KindPathTypeMismatch marks a write attempted through a scalar
	// intermediate.
	KindPathTypeMismatch ErrorKind = "path_type_mismatch"
	// KindNotAnArray marks an operation that requires an array target.
	KindNotAnArray ErrorKind = "not_an_array"
	// KindNotANumber marks an operation that requires a numeric target.
	KindNotANumber ErrorKind = "not_a_number"
	// KindMissingDoc marks a doc-scoped op issued with an incomplete
	// collection/id address.
	KindMissingDoc ErrorKind = "missing_doc"
	// KindCancelled marks a load aborted by a refcount drop to zero
	// before its ack arrived.
	KindCancelled ErrorKind = "cancelled"
	// KindBackendError wraps an error surfaced verbatim from the
	// DocStore.
	KindBackendError ErrorKind = "backend_error"
	// KindCorruptBundle marks a snapshot whose shape didn't match what
	// SnapshotCodec.Unbundle expects.
	KindCorruptBundle ErrorKind = "corrupt_bundle"
)

// Error is Racer's concrete error type: an ErrorKind plus the
// operation and path that produced it, wrapping cause (if any) with a
// stack trace captured at construction via github.com/pkg/errors.
// Error itself prints only the message; the stack is on the wrapped
// cause returned by Unwrap, which prints it under "%+v".
type Error struct {
	Kind  ErrorKind
	Op    string
	Path  path.Path
	cause error
}

func newError(kind ErrorKind, op string, p path.Path, cause error) *Error {
	wrapped := cause
	if wrapped != nil {
		wrapped = errors.WithStack(cause)
	}
	return &Error{Kind: kind, Op: op, Path: p, cause: wrapped}
}

func (e *Error) Error() string {
	if e.Path != nil {
		if e.cause != nil {
			return fmt.Sprintf("racer: %s %s: %s: %v", e.Op, e.Path.String(), e.Kind, e.cause)
		}
		return fmt.Sprintf("racer: %s %s: %s", e.Op, e.Path.String(), e.Kind)
	}
	if e.cause != nil {
		return fmt.Sprintf("racer: %s: %s: %v", e.Op, e.Kind, e.cause)
	}
	return fmt.Sprintf("racer: %s: %s", e.Op, e.Kind)
}

// Unwrap exposes the wrapped cause so errors.Is/errors.As can see
// through a racer.Error to a tree/docstore sentinel underneath.
func (e *Error) Unwrap() error { return e.cause }

// Is reports whether target is a *Error with the same Kind, so two
// sentinel errors built with the same kind compare equal under
// errors.Is.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// IsKind reports whether err is, or wraps, a *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if !stderrors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
