package engine

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an error returned by the mutation surface.
type ErrorKind string

const (
	// ErrorKindNotFound indicates a missing node, connection or port.
	ErrorKindNotFound ErrorKind = "not_found"

	// ErrorKindInvalid indicates a request that can never succeed as stated,
	// such as connecting two output ports.
	ErrorKindInvalid ErrorKind = "invalid"

	// ErrorKindLoop indicates a connection refused because it would close a directed cycle.
	ErrorKindLoop ErrorKind = "loop"

	// ErrorKindConflict indicates a connection refused because the types cannot be unified.
	ErrorKindConflict ErrorKind = "conflict"
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Kind is the error classification.
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Node is the node the error is about, if any.
	Node *int `json:"node,omitempty"`

	// Operation is the mutation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	switch {
	case e.Node != nil && e.Operation != "":
		msg = fmt.Sprintf("%s (node=%d, operation=%s)", msg, *e.Node, e.Operation)
	case e.Node != nil:
		msg = fmt.Sprintf("%s (node=%d)", msg, *e.Node)
	case e.Operation != "":
		msg = fmt.Sprintf("%s (operation=%s)", msg, e.Operation)
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// NewNotFoundError creates a new not-found error.
func NewNotFoundError(message string, err error) *EngineError {
	return &EngineError{Kind: ErrorKindNotFound, Message: message, Code: ErrCodeNotFound, Err: err}
}

// NewInvalidError creates a new invalid-request error.
func NewInvalidError(message string, err error) *EngineError {
	return &EngineError{Kind: ErrorKindInvalid, Message: message, Code: ErrCodeValidation, Err: err}
}

// NewLoopError creates a new cycle refusal.
func NewLoopError(message string) *EngineError {
	return &EngineError{Kind: ErrorKindLoop, Message: message, Code: ErrCodeLoop}
}

// NewConflictError creates a new type conflict refusal.
func NewConflictError(message string) *EngineError {
	return &EngineError{Kind: ErrorKindConflict, Message: message, Code: ErrCodeTypeMismatch}
}

// WithNode adds node context to an error.
func (e *EngineError) WithNode(id int) *EngineError {
	e.Node = &id
	return e
}

// WithOperation adds operation context to an error.
func (e *EngineError) WithOperation(operation string) *EngineError {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func hasKind(err error, kind ErrorKind) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsNotFound returns true if the error is classified as not found.
func IsNotFound(err error) bool { return hasKind(err, ErrorKindNotFound) }

// IsInvalid returns true if the error is classified as invalid.
func IsInvalid(err error) bool { return hasKind(err, ErrorKindInvalid) }

// IsLoop returns true if the error is a cycle refusal.
func IsLoop(err error) bool { return hasKind(err, ErrorKindLoop) }

// IsConflict returns true if the error is a type conflict refusal.
func IsConflict(err error) bool { return hasKind(err, ErrorKindConflict) }

// Common error codes.
const (
	ErrCodeValidation   = "VALIDATION_ERROR"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeLoop         = "LOOP"
	ErrCodeTypeMismatch = "TYPE_MISMATCH"
	ErrCodeUnknownPort  = "UNKNOWN_PORT"
	ErrCodeInternal     = "INTERNAL_ERROR"
)
