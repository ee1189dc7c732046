package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound     ErrorType = "NOT_FOUND"
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden    ErrorType = "FORBIDDEN"
	ErrorTypeConflict     ErrorType = "CONFLICT"
	ErrorTypeIntegrity    ErrorType = "INTEGRITY_ERROR"
	ErrorTypeInternal     ErrorType = "INTERNAL_ERROR"
	ErrorTypeExternal     ErrorType = "EXTERNAL_ERROR"
)

type ErrorCode string

const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"

	// Local authentication. The message is kept generic so callers cannot
	// tell which of username/password was wrong.
	ErrCodeAuthenticationFailed ErrorCode = "AUTHENTICATION_FAILED"
	ErrCodeNotAuthenticated     ErrorCode = "NOT_AUTHENTICATED"
	ErrCodeAdminRequired        ErrorCode = "ADMIN_REQUIRED"

	// A directory record that is unusable for remote operations. Operator
	// fixable, never reported as a credentials problem.
	ErrCodeIncompleteIdentity ErrorCode = "INCOMPLETE_IDENTITY"

	// Remote platform failures.
	ErrCodeDelegationFailed  ErrorCode = "DELEGATION_FAILED"
	ErrCodeDelegationMissing ErrorCode = "DELEGATION_NOT_ESTABLISHED"
	ErrCodeRemoteRejected    ErrorCode = "REMOTE_REJECTED"
	ErrCodeRemoteUnavailable ErrorCode = "REMOTE_UNAVAILABLE"

	// Cross-system state.
	ErrCodeUserNotFound      ErrorCode = "USER_NOT_FOUND"
	ErrCodeAlreadyExists     ErrorCode = "ALREADY_EXISTS"
	ErrCodeOrphanAfterDelete ErrorCode = "ORPHAN_AFTER_DELETE"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches on error code so sentinel AppErrors can be compared with
// errors.Is even after WithCause/WithDetails produced a copy.
func (e *AppError) Is(target error) bool {
	var appErr *AppError
	if !errors.As(target, &appErr) {
		return false
	}
	return e.Code == appErr.Code
}

func (e *AppError) WithCause(cause error) *AppError {
	clone := *e
	clone.Cause = cause
	return &clone
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	clone := *e
	clone.Details = details
	return &clone
}

func NewValidationError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       ErrCodeValidationFailed,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewUnauthorizedError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func NewForbiddenError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeForbidden,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func NewConflictError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func NewIntegrityError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeIntegrity,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

func NewExternalError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadGateway,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

var (
	ErrAuthenticationFailed = NewUnauthorizedError("invalid credentials", ErrCodeAuthenticationFailed)
	ErrNotAuthenticated     = NewUnauthorizedError("not authenticated", ErrCodeNotAuthenticated)
	ErrAdminRequired        = NewForbiddenError("admin privileges required", ErrCodeAdminRequired)

	ErrIncompleteIdentity = NewIntegrityError("user record is missing required identity fields", ErrCodeIncompleteIdentity)
	ErrDelegationFailed   = NewExternalError("failed to establish delegated access", ErrCodeDelegationFailed)
	ErrDelegationMissing  = NewUnauthorizedError("delegation not established for this session", ErrCodeDelegationMissing)
	ErrRemoteRejected     = NewExternalError("automation platform rejected the operation", ErrCodeRemoteRejected)
	ErrRemoteUnavailable  = NewExternalError("automation platform is unavailable", ErrCodeRemoteUnavailable)

	ErrUserNotFound      = NewNotFoundError("user not found", ErrCodeUserNotFound)
	ErrAlreadyExists     = NewConflictError("user already exists", ErrCodeAlreadyExists)
	ErrOrphanAfterDelete = NewIntegrityError("remote account deleted but directory record could not be removed", ErrCodeOrphanAfterDelete)
)

func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    ErrorType   `json:"type"`
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}
