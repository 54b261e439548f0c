package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable error codes returned to clients. Clients branch on these, so
// renaming one is a breaking API change.
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeAmountMismatch      = "AMOUNT_MISMATCH"
	CodeNotFound            = "NOT_FOUND"
	CodeUnavailable         = "UNAVAILABLE"
	CodeInsufficientStock   = "INSUFFICIENT_STOCK"
	CodeIdempotencyConflict = "IDEMPOTENCY_CONFLICT"
	CodeRateLimited         = "RATE_LIMITED"
	CodeAuthMissing         = "AUTH_MISSING"
	CodeAuthInvalid         = "AUTH_INVALID"
	CodeInternal            = "INTERNAL"
)

// Error is a domain error carrying a stable code and the HTTP status the
// outermost handler should map it to. Inner components never write
// responses; they return one of these.
type Error struct {
	Code       string
	HTTPStatus int
	Message    string
	Details    map[string]interface{}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// WithDetails returns a copy of e carrying extra structured context for
// the response envelope.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, HTTPStatus: http.StatusBadRequest, Message: msg}
}

func AmountMismatch(msg string) *Error {
	return &Error{Code: CodeAmountMismatch, HTTPStatus: http.StatusBadRequest, Message: msg}
}

func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, HTTPStatus: http.StatusNotFound, Message: msg}
}

func Unavailable(msg string) *Error {
	return &Error{Code: CodeUnavailable, HTTPStatus: http.StatusConflict, Message: msg}
}

func InsufficientStock(msg string) *Error {
	return &Error{Code: CodeInsufficientStock, HTTPStatus: http.StatusConflict, Message: msg}
}

func IdempotencyConflict(msg string) *Error {
	return &Error{Code: CodeIdempotencyConflict, HTTPStatus: http.StatusConflict, Message: msg}
}

func RateLimited(msg string) *Error {
	return &Error{Code: CodeRateLimited, HTTPStatus: http.StatusTooManyRequests, Message: msg}
}

func AuthMissing(msg string) *Error {
	return &Error{Code: CodeAuthMissing, HTTPStatus: http.StatusUnauthorized, Message: msg}
}

func AuthInvalid(msg string) *Error {
	return &Error{Code: CodeAuthInvalid, HTTPStatus: http.StatusForbidden, Message: msg}
}

func Internal(msg string) *Error {
	return &Error{Code: CodeInternal, HTTPStatus: http.StatusInternalServerError, Message: msg}
}

// From extracts an *Error from err's chain, or wraps it as INTERNAL so
// the handler never leaks raw error text with a 200-family status.
func From(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Internal("internal error")
}
