package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Policy store
	ErrCodeStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
	ErrCodeNotFound         ErrorCode = "NOT_FOUND"

	// Temporal policy
	ErrCodeInvalidTimezone ErrorCode = "INVALID_TIMEZONE"

	// Delivery
	ErrCodeGatewayFailure   ErrorCode = "GATEWAY_FAILURE"
	ErrCodeGatewayThrottled ErrorCode = "GATEWAY_THROTTLED"

	// Concurrency: another worker advanced the row first. Expected
	// outcome of the claim discipline, not a failure.
	ErrCodeClaimLost ErrorCode = "CLAIM_LOST"

	// Validation
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"

	// Internal
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// AppError is a structured error carried between the scheduler layers
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Common error constructors

func StoreUnavailable(cause error) *AppError {
	return Wrap(ErrCodeStoreUnavailable, "Policy store unavailable", cause)
}

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func InvalidTimezone(tz string) *AppError {
	return New(ErrCodeInvalidTimezone, fmt.Sprintf("Unknown timezone %q, falling back to UTC", tz))
}

func GatewayFailure(cause error) *AppError {
	return Wrap(ErrCodeGatewayFailure, "Delivery gateway failure", cause)
}

func GatewayThrottled(key string) *AppError {
	return New(ErrCodeGatewayThrottled, fmt.Sprintf("Delivery throttled for %s", key))
}

func ClaimLost() *AppError {
	return New(ErrCodeClaimLost, "Row already claimed by another worker")
}

func InvalidInput(field string, reason string) *AppError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("Invalid %s: %s", field, reason))
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode returns the error code if the error is an AppError, otherwise returns ErrCodeInternal
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}

// IsClaimLost reports whether err is the non-fatal lost-claim outcome.
func IsClaimLost(err error) bool {
	return GetCode(err) == ErrCodeClaimLost
}

// IsThrottled reports whether err is a gateway throttling signal.
func IsThrottled(err error) bool {
	return GetCode(err) == ErrCodeGatewayThrottled
}
