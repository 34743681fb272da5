package types

import "fmt"

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Validation error codes (workflow load time)
const (
	ErrCycleDetected    ErrorCode = "CYCLE_DETECTED"
	ErrUnknownReference ErrorCode = "UNKNOWN_REFERENCE"
	ErrDuplicateEdge    ErrorCode = "DUPLICATE_EDGE"
	ErrInvalidWorkflow  ErrorCode = "INVALID_WORKFLOW"
)

// Execution error codes (run time)
const (
	ErrDeadlock           ErrorCode = "DEADLOCK"
	ErrExecutionTimeout   ErrorCode = "EXECUTION_TIMEOUT"
	ErrExecutionCancelled ErrorCode = "EXECUTION_CANCELLED"
	ErrToolFailed         ErrorCode = "TOOL_FAILED"
	ErrWorkflowNotFound   ErrorCode = "WORKFLOW_NOT_FOUND"
	ErrExecutionNotFound  ErrorCode = "EXECUTION_NOT_FOUND"
	ErrEngineClosed       ErrorCode = "ENGINE_CLOSED"
	ErrQueueFull          ErrorCode = "QUEUE_FULL"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	NodeID    string    `json:"node_id,omitempty"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithNodeID attributes the error to a workflow node.
func (e *Error) WithNodeID(nodeID string) *Error {
	e.NodeID = nodeID
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}
