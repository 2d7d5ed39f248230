package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across charis.
type ErrorCode string

// Provider error codes
const (
	ErrProviderNotInitialized ErrorCode = "PROVIDER_NOT_INITIALIZED"
	ErrInvalidRequest         ErrorCode = "INVALID_REQUEST"
	ErrUnauthorized           ErrorCode = "UNAUTHORIZED"
	ErrForbidden              ErrorCode = "FORBIDDEN"
	ErrRateLimited            ErrorCode = "RATE_LIMITED"
	ErrQuotaExceeded          ErrorCode = "QUOTA_EXCEEDED"
	ErrModelOverloaded        ErrorCode = "MODEL_OVERLOADED"
	ErrUpstreamError          ErrorCode = "UPSTREAM_ERROR"
	ErrEmptyResult            ErrorCode = "EMPTY_RESULT"
	ErrCapabilityUnsupported  ErrorCode = "CAPABILITY_UNSUPPORTED"
)

// Chain error codes
const (
	ErrNoProvider ErrorCode = "NO_PROVIDER"
)

// CLI / local error codes
const (
	ErrConfigInvalid     ErrorCode = "CONFIG_INVALID"
	ErrCredentialMissing ErrorCode = "CREDENTIAL_MISSING"
)

// Error represents a structured error with code, message, and metadata.
// Operation names the logical operation (generate, edit, caption, ...) that failed.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Operation  string    `json:"operation,omitempty"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	prefix := fmt.Sprintf("[%s]", e.Code)
	if e.Operation != "" {
		prefix = fmt.Sprintf("[%s] %s:", e.Code, e.Operation)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s %s", prefix, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf creates a new Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// WithOperation sets the logical operation name.
func (e *Error) WithOperation(operation string) *Error {
	e.Operation = operation
	return e
}

// IsRetryable checks if an error is retryable.
// Wrapped *Error values are found through errors.As.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && GetErrorCode(err) == code
}
