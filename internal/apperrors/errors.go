// Package apperrors carries the error taxonomy shared by every core
// operation. The boundary layer maps kinds to HTTP statuses; the core never
// produces user-facing text beyond the message here.
package apperrors

import "errors"

type Kind int

const (
	// KindInternal is a storage or transaction failure unrelated to the
	// voting invariants. It is the default kind for unrecognized errors.
	KindInternal Kind = iota
	// KindNotFound means the referenced session or biometric does not exist.
	KindNotFound
	// KindGone means the session existed but its time window has elapsed.
	KindGone
	// KindConflict means the operation would violate an at-most-once
	// invariant: duplicate credential, duplicate fingerprint hash, duplicate
	// vote, or a session that is already completed.
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindGone:
		return "gone"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NotFound(message string) error {
	return &Error{Kind: KindNotFound, Message: message}
}

func Gone(message string) error {
	return &Error{Kind: KindGone, Message: message}
}

func Conflict(message string) error {
	return &Error{Kind: KindConflict, Message: message}
}

func Internal(message string, err error) error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// KindOf extracts the kind from anywhere in the wrap chain. Errors without a
// kind are treated as internal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// MessageOf returns the kinded message if present, or the empty string for
// errors that never passed through this package.
func MessageOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return ""
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
