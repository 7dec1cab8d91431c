// Package errors provides coded domain errors. Services translate
// infrastructure sentinels into these so transports can map them to
// user-visible responses without leaking internal detail.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a class of domain failure.
type Code string

const (
	CodeBadRequest          Code = "bad_request"
	CodeInsufficientCredits Code = "insufficient_credits"
	CodeUnavailable         Code = "service_unavailable"
	CodeTimeout             Code = "timeout"
	CodeInternal            Code = "internal_error"
)

// Error carries a code, a message safe for logs, and an optional cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a coded error without a cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Cause: err}
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from an error, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HTTPStatus maps a code to its HTTP status.
func HTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeInsufficientCredits:
		return http.StatusPaymentRequired
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
