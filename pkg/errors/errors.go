package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode string

const (
	// Generic errors
	ErrCodeInternal          ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput      ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired   ErrorCode = "MISSING_REQUIRED"
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized      ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden         ErrorCode = "FORBIDDEN"
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Authentication errors
	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeInvalidNonce       ErrorCode = "INVALID_NONCE"

	// Device gate errors
	ErrCodeEmailDeliveryFailed  ErrorCode = "EMAIL_DELIVERY_FAILED"
	ErrCodeDeviceLimitReached   ErrorCode = "DEVICE_LIMIT_REACHED"
	ErrCodeInvalidOrExpiredCode ErrorCode = "INVALID_OR_EXPIRED_CODE"
)

// Messages shown to the person attempting to log in.
const (
	MsgEmailDeliveryFailed  = "We could not send the verification email at this time. Please configure smtp plugin or contact the site administrator."
	MsgDeviceLimitReached   = "Device limit reached. Contact administrator."
	MsgInvalidOrExpiredCode = "Invalid or expired code."
	MsgInvalidNonce         = "Invalid nonce"
	MsgUnauthorized         = "Unauthorized"
	MsgMissingData          = "Missing data"
)

// Error represents a structured error with code, message, and optional details
type Error struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for errors.Is and errors.As
func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail adds a detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// HTTPStatusCode returns the appropriate HTTP status code for this error
func (e *Error) HTTPStatusCode() int {
	return MapErrorCodeToHTTPStatus(e.Code)
}

// New creates a new Error with the given code and message
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new Error with formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with code and message
func Wrap(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsCode checks if an error has a specific error code
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error.
// Returns ErrCodeInternal if the error is not a structured Error.
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// GetMessage returns the user-facing message of a structured error, or fallback otherwise.
func GetMessage(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return fallback
}

// MapErrorCodeToHTTPStatus maps error codes to HTTP status codes
func MapErrorCodeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeInvalidInput, ErrCodeMissingRequired:
		return http.StatusBadRequest

	case ErrCodeUnauthorized, ErrCodeInvalidCredentials, ErrCodeInvalidOrExpiredCode:
		return http.StatusUnauthorized

	case ErrCodeForbidden, ErrCodeInvalidNonce, ErrCodeDeviceLimitReached:
		return http.StatusForbidden

	case ErrCodeNotFound:
		return http.StatusNotFound

	case ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests

	// upstream mail transport refused the message
	case ErrCodeEmailDeliveryFailed:
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}

// EmailDeliveryFailed wraps a mail transport failure.
func EmailDeliveryFailed(err error) *Error {
	return &Error{Code: ErrCodeEmailDeliveryFailed, Message: MsgEmailDeliveryFailed, Err: err}
}

// DeviceLimitReached is returned by the login gate when the registry is full.
func DeviceLimitReached(limit int) *Error {
	return New(ErrCodeDeviceLimitReached, MsgDeviceLimitReached).WithDetail("device_limit", limit)
}

// InvalidOrExpiredCode is returned when a submitted code does not match a live challenge.
func InvalidOrExpiredCode() *Error {
	return New(ErrCodeInvalidOrExpiredCode, MsgInvalidOrExpiredCode)
}

// InvalidNonce is returned when an anti-forgery token fails validation.
func InvalidNonce(err error) *Error {
	return &Error{Code: ErrCodeInvalidNonce, Message: MsgInvalidNonce, Err: err}
}

// NotFound creates a "not found" error
func NotFound(resourceType, identifier string) *Error {
	return Newf(ErrCodeNotFound, "%s not found: %s", resourceType, identifier)
}

// InvalidInput creates an "invalid input" error
func InvalidInput(field, reason string) *Error {
	return New(ErrCodeInvalidInput, fmt.Sprintf("invalid %s: %s", field, reason))
}

// MissingData is returned when a required request field is empty.
func MissingData(field string) *Error {
	return New(ErrCodeMissingRequired, MsgMissingData).WithDetail("field", field)
}

// Unauthorized creates an "unauthorized" error
func Unauthorized(message string) *Error {
	return New(ErrCodeUnauthorized, message)
}

// Forbidden creates a "forbidden" error
func Forbidden(message string) *Error {
	return New(ErrCodeForbidden, message)
}

// InvalidCredentials is returned when username or password do not match.
func InvalidCredentials() *Error {
	return New(ErrCodeInvalidCredentials, "invalid username or password")
}

// InternalWrap wraps an internal error
func InternalWrap(err error, message string) *Error {
	return Wrap(err, ErrCodeInternal, message)
}
