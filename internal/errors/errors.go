package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Authentication & Authorization
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"

	// Validation
	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED"

	// Resource
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeSessionNotFound ErrorCode = "SESSION_NOT_FOUND"

	// Upstream protocol client
	ErrCodeUpstreamRejected ErrorCode = "UPSTREAM_REJECTED"

	// Internal
	ErrCodeUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodeInternal    ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase    ErrorCode = "DATABASE_ERROR"
)

// Reason classifies why the upstream rejected a call
type Reason string

const (
	ReasonInvalidPhone         Reason = "PHONE_NUMBER_INVALID"
	ReasonInvalidCredentials   Reason = "API_CREDENTIALS_INVALID"
	ReasonRateLimited          Reason = "FLOOD_WAIT"
	ReasonBanned               Reason = "PHONE_NUMBER_BANNED"
	ReasonInvalidCode          Reason = "PHONE_CODE_INVALID"
	ReasonCodeExpired          Reason = "PHONE_CODE_EXPIRED"
	ReasonSecondFactorRequired Reason = "SESSION_PASSWORD_NEEDED"
	ReasonInvalidPassword      Reason = "PASSWORD_INVALID"
	ReasonUnknown              Reason = "UNKNOWN"

	// The account needs a second factor this server is configured to refuse.
	ReasonSecondFactorUnsupported Reason = "SECOND_FACTOR_UNSUPPORTED"
)

// Correctable reports whether the caller can fix the request and try again.
func (r Reason) Correctable() bool {
	switch r {
	case ReasonInvalidPhone,
		ReasonInvalidCredentials,
		ReasonRateLimited,
		ReasonInvalidCode,
		ReasonCodeExpired,
		ReasonSecondFactorRequired,
		ReasonInvalidPassword:
		return true
	default:
		return false
	}
}

// Retryable reports whether the same pending auth may be used again after this rejection.
func (r Reason) Retryable() bool {
	return r == ReasonInvalidCode || r == ReasonInvalidPassword
}

// AppError is a structured error that can be returned to clients
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Reason  Reason    `json:"reason,omitempty"`
	Details any       `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	prefix := string(e.Code)
	if e.Reason != "" {
		prefix = fmt.Sprintf("%s(%s)", e.Code, e.Reason)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", prefix, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
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

func Unauthorized(message string) *AppError {
	return New(ErrCodeUnauthorized, message)
}

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func SessionNotFound() *AppError {
	return New(ErrCodeSessionNotFound, "Session not found or expired")
}

func ValidationError(message string) *AppError {
	return New(ErrCodeValidation, message)
}

func InvalidInput(field string, reason string) *AppError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("Invalid %s: %s", field, reason))
}

func MissingRequired(field string) *AppError {
	return New(ErrCodeMissingRequired, fmt.Sprintf("%s is required", field))
}

// UpstreamRejected builds a classified rejection. The message is shown to clients.
func UpstreamRejected(reason Reason, message string) *AppError {
	return &AppError{
		Code:    ErrCodeUpstreamRejected,
		Message: message,
		Reason:  reason,
	}
}

func Unavailable(message string) *AppError {
	return New(ErrCodeUnavailable, message)
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func Database(cause error) *AppError {
	return Wrap(ErrCodeDatabase, "Database error", cause)
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

// GetReason returns the upstream rejection reason, or "" when err is not a rejection.
func GetReason(err error) Reason {
	if appErr, ok := AsAppError(err); ok && appErr.Code == ErrCodeUpstreamRejected {
		return appErr.Reason
	}
	return ""
}

// IsSessionNotFound reports whether err carries ErrCodeSessionNotFound.
func IsSessionNotFound(err error) bool {
	return GetCode(err) == ErrCodeSessionNotFound
}
