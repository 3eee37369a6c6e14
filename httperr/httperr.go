// Package httperr defines the error taxonomy shared by every handler.
// Clients branch on the `error` field of the JSON body, so the kind strings
// are part of the API contract.
package httperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation     Kind = "ValidationError"
	KindAuthentication Kind = "AuthenticationError"
	KindForbidden      Kind = "ForbiddenError"
	KindNotFound       Kind = "NotFoundError"
	KindDatabase       Kind = "DatabaseError"
	KindIO             Kind = "IOError"
	KindInternal       Kind = "InternalServerError"
)

type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newf(kind Kind, status int, format string, args ...any) *Error {
	return &Error{Kind: kind, Status: status, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error {
	return newf(KindValidation, http.StatusBadRequest, format, args...)
}

func Authentication(format string, args ...any) *Error {
	return newf(KindAuthentication, http.StatusUnauthorized, format, args...)
}

func Forbidden(format string, args ...any) *Error {
	return newf(KindForbidden, http.StatusForbidden, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return newf(KindNotFound, http.StatusNotFound, format, args...)
}

func Database(err error, format string, args ...any) *Error {
	e := newf(KindDatabase, http.StatusInternalServerError, format, args...)
	e.Err = err
	return e
}

func IO(err error, format string, args ...any) *Error {
	e := newf(KindIO, http.StatusInternalServerError, format, args...)
	e.Err = err
	return e
}

// From maps any error onto the taxonomy. Unrecognized errors become a generic
// internal fault; their details stay server-side.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{
		Kind:    KindInternal,
		Status:  http.StatusInternalServerError,
		Message: "Server could not process your request. Try again later or report this to the server owner.",
		Err:     err,
	}
}

// IsKind reports whether err belongs to the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
