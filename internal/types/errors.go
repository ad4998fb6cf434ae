package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a namespaced error code for studio errors.
type ErrorCode string

// Configuration error codes
const (
	CONFIG_LOAD_FAILED       ErrorCode = "CONFIG_LOAD_FAILED"
	CONFIG_PARSE_FAILED      ErrorCode = "CONFIG_PARSE_FAILED"
	CONFIG_VALIDATION_FAILED ErrorCode = "CONFIG_VALIDATION_FAILED"
)

// Graph store error codes
const (
	GRAPH_INVALID_CONFIG     ErrorCode = "GRAPH_INVALID_CONFIG"
	GRAPH_CONNECTION_FAILED  ErrorCode = "GRAPH_CONNECTION_FAILED"
	GRAPH_CONNECTION_CLOSED  ErrorCode = "GRAPH_CONNECTION_CLOSED"
	GRAPH_QUERY_FAILED       ErrorCode = "GRAPH_QUERY_FAILED"
	GRAPH_SCHEMA_FAILED      ErrorCode = "GRAPH_SCHEMA_FAILED"
	GRAPH_TX_FAILED          ErrorCode = "GRAPH_TX_FAILED"
	GRAPH_NODE_NOT_FOUND     ErrorCode = "GRAPH_NODE_NOT_FOUND"
	GRAPH_ALREADY_APPLIED    ErrorCode = "GRAPH_ALREADY_APPLIED"
	GRAPH_QUALIFIER_REQUIRED ErrorCode = "GRAPH_QUALIFIER_REQUIRED"
)

// Event processing error codes
const (
	EVENT_PAYLOAD_INVALID     ErrorCode = "EVENT_PAYLOAD_INVALID"
	EVENT_TYPE_UNKNOWN        ErrorCode = "EVENT_TYPE_UNKNOWN"
	EVENT_REGISTRY_INCOMPLETE ErrorCode = "EVENT_REGISTRY_INCOMPLETE"
	EVENT_REGISTRY_DUPLICATE  ErrorCode = "EVENT_REGISTRY_DUPLICATE"
)

// Queue error codes
const (
	QUEUE_OPEN_FAILED    ErrorCode = "QUEUE_OPEN_FAILED"
	QUEUE_ENQUEUE_FAILED ErrorCode = "QUEUE_ENQUEUE_FAILED"
	QUEUE_DEQUEUE_FAILED ErrorCode = "QUEUE_DEQUEUE_FAILED"
	QUEUE_ACK_FAILED     ErrorCode = "QUEUE_ACK_FAILED"
	QUEUE_CLOSED         ErrorCode = "QUEUE_CLOSED"
)

// System-of-record error codes
const (
	RECORD_OPEN_FAILED  ErrorCode = "RECORD_OPEN_FAILED"
	RECORD_QUERY_FAILED ErrorCode = "RECORD_QUERY_FAILED"
)

// Shared SQLite storage error codes
const (
	STORAGE_OPEN_FAILED ErrorCode = "STORAGE_OPEN_FAILED"
)

// Reconciliation error codes
const (
	BACKFILL_FAILED ErrorCode = "BACKFILL_FAILED"
	PRUNE_FAILED    ErrorCode = "PRUNE_FAILED"
	DRIFT_FAILED    ErrorCode = "DRIFT_FAILED"
)

// StudioError represents a structured error with error code, message, and
// optional cause. It supports error wrapping and retryability hints used by
// the sync worker to decide between redelivery and dead-lettering.
type StudioError struct {
	Code      ErrorCode
	Message   string
	Retryable bool
	Cause     error
}

// Error implements the error interface, returning a formatted error message.
// Format: "[CODE] message" or "[CODE] message: cause" if cause exists.
func (e *StudioError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for error unwrapping chains.
func (e *StudioError) Unwrap() error {
	return e.Cause
}

// Is checks if the target error matches this error by error code.
func (e *StudioError) Is(target error) bool {
	var studioErr *StudioError
	if errors.As(target, &studioErr) {
		return e.Code == studioErr.Code
	}
	return false
}

// NewError creates a new non-retryable StudioError with the given code and message.
func NewError(code ErrorCode, message string) *StudioError {
	return &StudioError{
		Code:    code,
		Message: message,
	}
}

// NewRetryableError creates a new retryable StudioError with the given code
// and message. Use this for transient errors that may succeed on redelivery.
func NewRetryableError(code ErrorCode, message string) *StudioError {
	return &StudioError{
		Code:      code,
		Message:   message,
		Retryable: true,
	}
}

// WrapError creates a new non-retryable StudioError that wraps an existing error.
func WrapError(code ErrorCode, message string, cause error) *StudioError {
	return &StudioError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WrapRetryableError creates a retryable StudioError that wraps an existing error.
func WrapRetryableError(code ErrorCode, message string, cause error) *StudioError {
	return &StudioError{
		Code:      code,
		Message:   message,
		Retryable: true,
		Cause:     cause,
	}
}

// IsRetryable reports whether err (or any error in its chain) is a
// StudioError marked retryable. Errors that are not StudioErrors are treated
// as retryable, matching the queue's at-least-once default.
func IsRetryable(err error) bool {
	var studioErr *StudioError
	if errors.As(err, &studioErr) {
		return studioErr.Retryable
	}
	return true
}

// CodeOf extracts the ErrorCode from err, or "" if err is not a StudioError.
func CodeOf(err error) ErrorCode {
	var studioErr *StudioError
	if errors.As(err, &studioErr) {
		return studioErr.Code
	}
	return ""
}
