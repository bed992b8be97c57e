package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"runtime/debug"
)

// Machine readable codes shared by the HTTP and WebSocket surfaces
const (
	CodeNotFound          = "NOT_FOUND"
	CodeInvalidArgument   = "INVALID_ARGUMENT"
	CodeUnavailable       = "UNAVAILABLE"
	CodeResourceExhausted = "RESOURCE_EXHAUSTED"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeRateLimited       = "RATE_LIMITED"
	CodeInternal          = "INTERNAL_ERROR"
)

// AppError represents an application error with HTTP status code and error code
type AppError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
	Stack      string `json:"-"`
	cause      error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any
func (e *AppError) Unwrap() error {
	return e.cause
}

// Is matches another AppError by code so errors.Is works against the sentinels below
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// Sentinels for errors.Is checks
var (
	ErrNotFound          = &AppError{StatusCode: http.StatusNotFound, Code: CodeNotFound}
	ErrInvalidArgument   = &AppError{StatusCode: http.StatusBadRequest, Code: CodeInvalidArgument}
	ErrUnavailable       = &AppError{StatusCode: http.StatusServiceUnavailable, Code: CodeUnavailable}
	ErrResourceExhausted = &AppError{StatusCode: http.StatusTooManyRequests, Code: CodeResourceExhausted}
	ErrUnauthorized      = &AppError{StatusCode: http.StatusUnauthorized, Code: CodeUnauthorized}
)

// NewError creates a new application error
func NewError(statusCode int, code string, message string) *AppError {
	return &AppError{
		StatusCode: statusCode,
		Code:       code,
		Message:    message,
		Stack:      string(debug.Stack()),
	}
}

// Wrap creates a new application error carrying cause
func Wrap(cause error, statusCode int, code string, message string) *AppError {
	e := NewError(statusCode, code, message)
	e.cause = cause
	return e
}

// NewNotFoundError creates a 404 error for unknown sessions or resources
func NewNotFoundError(message string) *AppError {
	return NewError(http.StatusNotFound, CodeNotFound, message)
}

// NewInvalidArgumentError creates a 400 error for malformed input
func NewInvalidArgumentError(message string) *AppError {
	return NewError(http.StatusBadRequest, CodeInvalidArgument, message)
}

// NewUnavailableError creates a 503 error for backing store failures
func NewUnavailableError(message string, cause error) *AppError {
	return Wrap(cause, http.StatusServiceUnavailable, CodeUnavailable, message)
}

// NewResourceExhaustedError creates a 429 error for capacity limits
func NewResourceExhaustedError(message string) *AppError {
	return NewError(http.StatusTooManyRequests, CodeResourceExhausted, message)
}

// NewUnauthorizedError creates a 401 error
func NewUnauthorizedError(message string) *AppError {
	return NewError(http.StatusUnauthorized, CodeUnauthorized, message)
}

// NewRateLimitedError creates a 429 error for throttled callers
func NewRateLimitedError(message string) *AppError {
	return NewError(http.StatusTooManyRequests, CodeRateLimited, message)
}

// NewInternalServerError creates a 500 Internal Server Error
func NewInternalServerError(message string) *AppError {
	return NewError(http.StatusInternalServerError, CodeInternal, message)
}

// FromError converts a standard error to an AppError.
// AppErrors anywhere in the chain are returned as-is; anything else becomes an internal error.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}

	return Wrap(err, http.StatusInternalServerError, CodeInternal,
		fmt.Sprintf("An unexpected error occurred: %s", err.Error()))
}

// GetStatusCode extracts the HTTP status code, returns 500 if not an AppError
func GetStatusCode(err error) int {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

// GetErrorCode extracts the error code, returns "UNKNOWN_ERROR" if not an AppError
func GetErrorCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN_ERROR"
}

// IsNotFound reports whether err carries the NOT_FOUND code
func IsNotFound(err error) bool { return stderrors.Is(err, ErrNotFound) }

// IsInvalidArgument reports whether err carries the INVALID_ARGUMENT code
func IsInvalidArgument(err error) bool { return stderrors.Is(err, ErrInvalidArgument) }

// IsUnavailable reports whether err carries the UNAVAILABLE code
func IsUnavailable(err error) bool { return stderrors.Is(err, ErrUnavailable) }

// IsResourceExhausted reports whether err carries the RESOURCE_EXHAUSTED code
func IsResourceExhausted(err error) bool { return stderrors.Is(err, ErrResourceExhausted) }
