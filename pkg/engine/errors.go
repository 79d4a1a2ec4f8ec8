package engine

import (
	"errors"
	"fmt"
)

// ErrorKind classifies engine failures. The values are stable and appear on
// the wire.
type ErrorKind string

const (
	// KindValidation: the request or a mutation's arguments are malformed.
	KindValidation ErrorKind = "validation"
	// KindNotFound: a mutation targets an entity that does not exist.
	KindNotFound ErrorKind = "not_found"
	// KindStorage: the store failed. Nothing was committed; retry.
	KindStorage ErrorKind = "storage"
	// KindAuthorization: the user may not act on the target.
	KindAuthorization ErrorKind = "authorization"
)

// Error is the error type returned by the engine.
type Error struct {
	Kind ErrorKind
	// Op is "pull", "push" or a mutation name.
	Op string
	// MutationID is set for errors caused by a single mutation.
	MutationID int64
	Err        error
}

// Sentinels for errors.Is.
var (
	ErrValidation    = &Error{Kind: KindValidation}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrStorage       = &Error{Kind: KindStorage}
	ErrAuthorization = &Error{Kind: KindAuthorization}
)

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.MutationID != 0 {
		msg = fmt.Sprintf("%s (mutation %d)", msg, e.MutationID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there
// is none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func newError(kind ErrorKind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// storageError wraps err unless it already is an *Error.
func storageError(op string, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: KindStorage, Op: op, Err: err}
}
