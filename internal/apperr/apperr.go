package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindInternal           Kind = "internal_error"
	KindValidation         Kind = "bad_request"
	KindNotFound           Kind = "not_found"
	KindForbidden          Kind = "forbidden"
	KindConflictInvariant  Kind = "conflict_invariant"
	KindDownstreamDegraded Kind = "downstream_degraded"
	KindUnauthenticated    Kind = "unauthorized"
)

type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error of the same kind, so errors.Is(err, apperr.ErrForbidden) works
// for every forbidden error regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

// Sentinels for errors.Is; they carry no message.
var (
	ErrValidation         = &Error{Kind: KindValidation}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrForbidden          = &Error{Kind: KindForbidden}
	ErrConflictInvariant  = &Error{Kind: KindConflictInvariant}
	ErrDownstreamDegraded = &Error{Kind: KindDownstreamDegraded}
	ErrUnauthenticated    = &Error{Kind: KindUnauthenticated}
)

func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func Validation(msg string) error { return New(KindValidation, msg) }

func NotFound(msg string) error { return New(KindNotFound, msg) }

func Forbidden(msg string) error { return New(KindForbidden, msg) }

func ConflictInvariant(msg string) error { return New(KindConflictInvariant, msg) }

func Unauthenticated(msg string) error { return New(KindUnauthenticated, msg) }

func Degraded(msg string, cause error) error {
	return Wrap(KindDownstreamDegraded, msg, cause)
}

// KindOf reports the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// MessageOf returns the user-facing message of err. Internal errors are not exposed.
func MessageOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) && ae.Kind != KindInternal {
		return ae.Message
	}
	return "internal error"
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindConflictInvariant:
		return http.StatusConflict
	case KindUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
