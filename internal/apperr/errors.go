// Package apperr defines the error kinds surfaced by lendhub services.
// Callers branch on Kind, never on message text.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindConflict
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation"
	default:
		return "internal"
	}
}

// Error is a classified failure. Op names the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = fmt.Sprintf("%s: %v", msg, e.Err)
		}
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a classified error.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap classifies err. The message of err is kept in the chain.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func NotFound(op, msg string) *Error   { return New(KindNotFound, op, msg) }
func Conflict(op, msg string) *Error   { return New(KindConflict, op, msg) }
func Validation(op, msg string) *Error { return New(KindValidation, op, msg) }

// ConflictErr classifies a sentinel as a conflict while keeping errors.Is(err, sentinel) working.
func ConflictErr(op string, sentinel error) *Error {
	return &Error{Kind: KindConflict, Op: op, Err: sentinel}
}

// NotFoundErr classifies a sentinel as not found.
func NotFoundErr(op string, sentinel error) *Error {
	return &Error{Kind: KindNotFound, Op: op, Err: sentinel}
}

// KindOf reports the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
