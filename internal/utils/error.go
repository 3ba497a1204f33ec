package utils

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes with HTTP status mapping
const (
	// General errors
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeValidationFailed   = "VALIDATION_ERROR"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"

	// Catalog errors
	ErrCodeInvalidDescriptor     = "INVALID_DESCRIPTOR"
	ErrCodeMaterializationFailed = "MATERIALIZATION_FAILED"
	ErrCodeSourceNotFound        = "SOURCE_NOT_FOUND"
	ErrCodeTableNotFound         = "TABLE_NOT_FOUND"
	ErrCodeReadFailed            = "READ_FAILED"

	// Authentication errors
	ErrCodeTokenExpired = "TOKEN_EXPIRED"
	ErrCodeInvalidToken = "INVALID_TOKEN"
)

// HTTPStatus maps error codes to HTTP status codes
var HTTPStatus = map[string]int{
	ErrCodeInvalidRequest:     http.StatusBadRequest,
	ErrCodeValidationFailed:   http.StatusUnprocessableEntity,
	ErrCodeUnauthorized:       http.StatusUnauthorized,
	ErrCodeForbidden:          http.StatusForbidden,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeInternalError:      http.StatusInternalServerError,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeRateLimitExceeded:  http.StatusTooManyRequests,

	ErrCodeInvalidDescriptor:     http.StatusBadRequest,
	ErrCodeMaterializationFailed: http.StatusUnprocessableEntity,
	ErrCodeSourceNotFound:        http.StatusNotFound,
	ErrCodeTableNotFound:         http.StatusNotFound,
	ErrCodeReadFailed:            http.StatusBadGateway,

	ErrCodeTokenExpired: http.StatusUnauthorized,
	ErrCodeInvalidToken: http.StatusUnauthorized,
}

// AppError represents an application error with additional context
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// ErrorBuilder provides a fluent interface for creating errors
type ErrorBuilder struct {
	code    string
	message string
	details string
	cause   error
}

func NewErrorBuilder(code string) *ErrorBuilder {
	return &ErrorBuilder{code: code}
}

func (eb *ErrorBuilder) WithMessage(message string) *ErrorBuilder {
	eb.message = message
	return eb
}

func (eb *ErrorBuilder) WithDetails(details string) *ErrorBuilder {
	eb.details = details
	return eb
}

// WithCause sets the underlying error; its text becomes the details unless
// details were set explicitly.
func (eb *ErrorBuilder) WithCause(cause error) *ErrorBuilder {
	eb.cause = cause
	return eb
}

func (eb *ErrorBuilder) Build() *AppError {
	if eb.message == "" {
		eb.message = getDefaultMessage(eb.code)
	}
	details := eb.details
	if details == "" && eb.cause != nil {
		details = eb.cause.Error()
	}
	return &AppError{
		Code:    eb.code,
		Message: eb.message,
		Details: details,
		Cause:   eb.cause,
	}
}

func getDefaultMessage(code string) string {
	messages := map[string]string{
		ErrCodeInvalidRequest:     "The request is invalid",
		ErrCodeValidationFailed:   "Validation failed",
		ErrCodeUnauthorized:       "Unauthorized access",
		ErrCodeForbidden:          "Access forbidden",
		ErrCodeNotFound:           "Resource not found",
		ErrCodeConflict:           "Resource conflict",
		ErrCodeInternalError:      "Internal server error",
		ErrCodeServiceUnavailable: "Service temporarily unavailable",
		ErrCodeRateLimitExceeded:  "Rate limit exceeded",

		ErrCodeInvalidDescriptor:     "Invalid source descriptor",
		ErrCodeMaterializationFailed: "Source could not be materialized",
		ErrCodeSourceNotFound:        "Source not found",
		ErrCodeTableNotFound:         "Table not found",
		ErrCodeReadFailed:            "Failed to read table records",

		ErrCodeTokenExpired: "Token expired",
		ErrCodeInvalidToken: "Invalid token",
	}

	if msg, exists := messages[code]; exists {
		return msg
	}
	return "Unknown error"
}

func NewNotFoundError(resource string) *AppError {
	return NewErrorBuilder(ErrCodeNotFound).
		WithMessage(fmt.Sprintf("%s not found", resource)).
		Build()
}

func NewValidationError(message string, details string) *AppError {
	return NewErrorBuilder(ErrCodeValidationFailed).
		WithMessage(message).
		WithDetails(details).
		Build()
}

func NewInvalidDescriptorError(cause error) *AppError {
	return NewErrorBuilder(ErrCodeInvalidDescriptor).WithCause(cause).Build()
}

func NewMaterializationError(cause error) *AppError {
	return NewErrorBuilder(ErrCodeMaterializationFailed).WithCause(cause).Build()
}

// IsErrorType checks if an error matches a specific error code
func IsErrorType(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// GetErrorStatus returns the HTTP status code for an error
func GetErrorStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		if status, exists := HTTPStatus[appErr.Code]; exists {
			return status
		}
	}
	return http.StatusInternalServerError
}

// AsAppError returns err as an AppError, wrapping unknown errors as internal.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewErrorBuilder(ErrCodeInternalError).WithCause(err).Build()
}
