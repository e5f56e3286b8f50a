package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeNetwork      ErrorType = "network"
	ErrorTypeProcessing   ErrorType = "processing"
	ErrorTypeTimeout      ErrorType = "timeout"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeInternal     ErrorType = "internal"

	// Scan and deletion taxonomy
	ErrorTypeDecode              ErrorType = "decode"
	ErrorTypeInvalidImage        ErrorType = "invalid_image"
	ErrorTypeEnumeration         ErrorType = "enumeration"
	ErrorTypeDeletion            ErrorType = "deletion"
	ErrorTypePermissionChallenge ErrorType = "permission_challenge"
	ErrorTypeCancelled           ErrorType = "cancelled"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	StatusCode int       `json:"status_code"`
	Cause      error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

func newAppError(t ErrorType, status int, message string, cause error) *AppError {
	return &AppError{
		Type:       t,
		Message:    message,
		StatusCode: status,
		Cause:      cause,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string, cause error) *AppError {
	return newAppError(ErrorTypeValidation, http.StatusBadRequest, message, cause)
}

// NewNetworkError creates a new network error
func NewNetworkError(message string, cause error) *AppError {
	return newAppError(ErrorTypeNetwork, http.StatusBadGateway, message, cause)
}

// NewProcessingError creates a new processing error
func NewProcessingError(message string, cause error) *AppError {
	return newAppError(ErrorTypeProcessing, http.StatusUnprocessableEntity, message, cause)
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(message string, cause error) *AppError {
	return newAppError(ErrorTypeTimeout, http.StatusGatewayTimeout, message, cause)
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *AppError {
	return newAppError(ErrorTypeInternal, http.StatusInternalServerError, message, cause)
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, cause error) *AppError {
	return newAppError(ErrorTypeNotFound, http.StatusNotFound, message, cause)
}

// NewDecodeError reports image bytes that could not be turned into a pixel buffer.
// Recorded per image; never fatal to a batch.
func NewDecodeError(message string, cause error) *AppError {
	return newAppError(ErrorTypeDecode, http.StatusUnprocessableEntity, message, cause)
}

// NewInvalidImageError reports a zero-dimension buffer
func NewInvalidImageError(message string, cause error) *AppError {
	return newAppError(ErrorTypeInvalidImage, http.StatusUnprocessableEntity, message, cause)
}

// NewEnumerationError reports a failed image listing. Fatal to the whole batch.
func NewEnumerationError(message string, cause error) *AppError {
	return newAppError(ErrorTypeEnumeration, http.StatusBadGateway, message, cause)
}

// NewDeletionError reports a non-recoverable per-item deletion failure
func NewDeletionError(message string, cause error) *AppError {
	return newAppError(ErrorTypeDeletion, http.StatusInternalServerError, message, cause)
}

// NewCancelledError reports a run stopped by its caller
func NewCancelledError(message string, cause error) *AppError {
	return newAppError(ErrorTypeCancelled, 499, message, cause)
}

// PermissionChallenge is a recoverable deletion failure: the storage backend
// needs interactive re-authorization for one item. Token is opaque to the
// engine and is handed to whoever resolves the challenge.
type PermissionChallenge struct {
	Handle string
	Token  string
	Cause  error
}

// NewPermissionChallenge creates a challenge for a single item
func NewPermissionChallenge(handle, token string, cause error) *PermissionChallenge {
	return &PermissionChallenge{Handle: handle, Token: token, Cause: cause}
}

// Error implements the error interface
func (p *PermissionChallenge) Error() string {
	if p.Cause != nil {
		return fmt.Sprintf("%s: re-authorization required for %s (caused by: %v)", ErrorTypePermissionChallenge, p.Handle, p.Cause)
	}
	return fmt.Sprintf("%s: re-authorization required for %s", ErrorTypePermissionChallenge, p.Handle)
}

// Unwrap returns the underlying error
func (p *PermissionChallenge) Unwrap() error {
	return p.Cause
}

// AsPermissionChallenge extracts a challenge from an error chain
func AsPermissionChallenge(err error) (*PermissionChallenge, bool) {
	var pc *PermissionChallenge
	if errors.As(err, &pc) {
		return pc, true
	}
	return nil, false
}

// IsType checks if the error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	if errorType == ErrorTypePermissionChallenge {
		_, ok := AsPermissionChallenge(err)
		return ok
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// TypeOf returns the error category, falling back to internal
func TypeOf(err error) ErrorType {
	if _, ok := AsPermissionChallenge(err); ok {
		return ErrorTypePermissionChallenge
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeInternal
}

// GetStatusCode extracts the HTTP status code from an error
func GetStatusCode(err error) int {
	if _, ok := AsPermissionChallenge(err); ok {
		return http.StatusForbidden
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}
