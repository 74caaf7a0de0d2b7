// Package apierror provides standardized API error handling.
// These error types are shared by all grid API handlers for consistent
// error responses.
package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/a11yscan/grid/pkg/domain/shared"
)

// Code represents an error code.
type Code string

// Standard error codes.
const (
	CodeBadRequest         Code = "BAD_REQUEST"
	CodeNotFound           Code = "NOT_FOUND"
	CodeConflict           Code = "CONFLICT"
	CodeValidationFailed   Code = "VALIDATION_FAILED"
	CodePoolExhausted      Code = "POOL_EXHAUSTED"
	CodeInvalidTransition  Code = "INVALID_TRANSITION"
	CodeInternalError      Code = "INTERNAL_ERROR"
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"
)

// Error represents a standardized API error.
type Error struct {
	// HTTP status code
	Status int `json:"-"`

	// Machine-readable error code
	Code Code `json:"code"`

	// Human-readable error message
	Message string `json:"message"`

	// Additional error details (optional)
	Details any `json:"details,omitempty"`

	// Internal error (not exposed to client)
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Response represents the error response structure.
type Response struct {
	Error   string `json:"error"`
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// WriteJSON writes the error as a JSON response.
func (e *Error) WriteJSON(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	_ = json.NewEncoder(w).Encode(Response{
		Error:   string(e.Code),
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}

// WithDetails attaches details to the error.
func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

// BadRequest creates a 400 error.
func BadRequest(message string) *Error {
	return &Error{Status: http.StatusBadRequest, Code: CodeBadRequest, Message: message}
}

// NotFound creates a 404 error.
func NotFound(message string) *Error {
	return &Error{Status: http.StatusNotFound, Code: CodeNotFound, Message: message}
}

// Conflict creates a 409 error.
func Conflict(message string) *Error {
	return &Error{Status: http.StatusConflict, Code: CodeConflict, Message: message}
}

// ValidationFailed creates a 422 error with field details.
func ValidationFailed(message string, details any) *Error {
	return &Error{
		Status:  http.StatusUnprocessableEntity,
		Code:    CodeValidationFailed,
		Message: message,
		Details: details,
	}
}

// PoolExhausted creates a 503 error for an empty egress pool.
// Callers are expected to back off and retry.
func PoolExhausted(message string) *Error {
	return &Error{Status: http.StatusServiceUnavailable, Code: CodePoolExhausted, Message: message}
}

// InvalidTransition creates a 409 error for lifecycle violations.
func InvalidTransition(message string) *Error {
	return &Error{Status: http.StatusConflict, Code: CodeInvalidTransition, Message: message}
}

// Internal creates a 500 error.
func Internal(message string, err error) *Error {
	return &Error{Status: http.StatusInternalServerError, Code: CodeInternalError, Message: message, Err: err}
}

// FromDomainError maps a domain error to an API error.
func FromDomainError(err error) *Error {
	switch {
	case shared.IsNotFound(err):
		return NotFound(err.Error())
	case shared.IsPoolExhausted(err):
		return PoolExhausted(err.Error())
	case shared.IsInvalidTransition(err):
		return InvalidTransition(err.Error())
	case shared.IsValidation(err):
		return ValidationFailed(err.Error(), nil)
	case errors.Is(err, shared.ErrConflict):
		return Conflict(err.Error())
	default:
		return Internal("internal error", err)
	}
}
