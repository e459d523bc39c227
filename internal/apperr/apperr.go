// Package apperr defines the error taxonomy shared by the ledger and the
// HTTP layer. Each Error carries a stable code that maps onto one HTTP status.
package apperr

import (
	"errors"
	"net/http"

	"gorm.io/gorm"
)

// Error codes returned in the response envelope.
const (
	CodeUnauthorized = "ERR_UNAUTHORIZED"
	CodeForbidden    = "ERR_FORBIDDEN"
	CodeValidation   = "ERR_VALIDATION"
	CodeNotFound     = "ERR_NOT_FOUND"
	CodeConflict     = "ERR_CONFLICT"
	CodeInternal     = "ERR_INTERNAL"
)

type Error struct {
	Code    string
	Message string
	Context any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Status maps the code onto an HTTP status.
func (e *Error) Status() int {
	switch e.Code {
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// WithContext returns a copy of e carrying ctx as the field-level payload.
func (e *Error) WithContext(ctx any) *Error {
	cp := *e
	cp.Context = ctx
	return &cp
}

func Validation(msg string) *Error   { return &Error{Code: CodeValidation, Message: msg} }
func NotFound(msg string) *Error     { return &Error{Code: CodeNotFound, Message: msg} }
func Conflict(msg string) *Error     { return &Error{Code: CodeConflict, Message: msg} }
func Unauthorized(msg string) *Error { return &Error{Code: CodeUnauthorized, Message: msg} }
func Forbidden(msg string) *Error    { return &Error{Code: CodeForbidden, Message: msg} }

// Internal wraps an unexpected failure. The message is never shown to clients.
func Internal(err error) *Error {
	return &Error{Code: CodeInternal, Message: "internal server error", Err: err}
}

// From classifies any error into the taxonomy.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return &Error{Code: CodeNotFound, Message: "resource not found", Err: err}
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return &Error{Code: CodeConflict, Message: "resource already exists", Err: err}
	}
	return Internal(err)
}

// Is reports whether err belongs to the given code.
func Is(err error, code string) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Code == code
}
