// Package errors provides standardized error handling for the notification
// pipeline and its HTTP surface.
package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeInvalidRequest           ErrorCode = "INVALID_REQUEST"
	ErrCodeNoEligibleChannel        ErrorCode = "NO_ELIGIBLE_CHANNEL"
	ErrCodeNotFoundOrForbidden      ErrorCode = "NOT_FOUND_OR_FORBIDDEN"
	ErrCodeTemplateNotFound         ErrorCode = "TEMPLATE_NOT_FOUND"
	ErrCodeMetadataValidationFailed ErrorCode = "METADATA_VALIDATION_FAILED"
	ErrCodeChannelSendFailed        ErrorCode = "CHANNEL_SEND_FAILED"

	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeQueryExecutionFailed     ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeDatabaseInsertFailed     ErrorCode = "DATABASE_INSERT_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// NewInvalidRequestError creates a non-retryable validation error.
func NewInvalidRequestError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidRequest,
		Message:   "Request validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewNoEligibleChannelError signals an empty resolved channel set. Creation
// is rejected synchronously and nothing is persisted.
func NewNoEligibleChannelError(recipientID, notificationType string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNoEligibleChannel,
		Message:   "No eligible delivery channel for recipient",
		Details:   fmt.Sprintf("recipient=%s type=%s", recipientID, notificationType),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotFoundOrForbiddenError covers both a missing row and an ownership
// mismatch, deliberately indistinguishable to the caller.
func NewNotFoundOrForbiddenError(notificationID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotFoundOrForbidden,
		Message:   "Notification not found",
		Details:   fmt.Sprintf("notification=%s", notificationID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewTemplateNotFoundError creates a non-retryable template error.
func NewTemplateNotFoundError(notificationType string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTemplateNotFound,
		Message:   "No template registered for notification type",
		Details:   fmt.Sprintf("type=%s", notificationType),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewMetadataValidationError creates a non-retryable schema error.
func NewMetadataValidationError(notificationType, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeMetadataValidationFailed,
		Message:   "Metadata does not match the schema for this notification type",
		Details:   fmt.Sprintf("type=%s: %s", notificationType, details),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewChannelSendFailedError creates a retryable provider error.
func NewChannelSendFailedError(channel string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeChannelSendFailed,
		Message:   "Channel provider send failed",
		Details:   err.Error(),
		Retryable: true,
		Metadata:  map[string]interface{}{"channel": channel},
		Timestamp: time.Now().UTC(),
	}
}

// NewQueryExecutionError creates a retryable database error.
func NewQueryExecutionError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueryExecutionFailed,
		Message:   "Database query failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseInsertError creates a retryable database error.
func NewDatabaseInsertError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseInsertFailed,
		Message:   "Database insert failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// HasCode reports whether err is a StandardError carrying the given code.
func HasCode(err error, code ErrorCode) bool {
	var se *StandardError
	if stderrors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// IsRetryable reports whether err is a StandardError marked retryable.
// Unknown error types are treated as retryable.
func IsRetryable(err error) bool {
	var se *StandardError
	if stderrors.As(err, &se) {
		return se.Retryable
	}
	return true
}
