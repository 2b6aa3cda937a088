package errors

import (
	"fmt"
	"time"
)

// OperationalError wraps errors with deployment context: which project and
// which function were being worked on when the error occurred. It enables
// error tracking across multi-function deployment runs.
type OperationalError struct {
	Operation  string                 // What operation was being performed
	Project    string                 // Which project
	Function   string                 // Which function (if applicable)
	Timestamp  time.Time              // When the error occurred
	Attributes map[string]interface{} // Additional context (optional)
	Cause      error                  // Underlying error
}

// NewOperationalError creates an OperationalError wrapping an error.
//
// Returns nil if cause is nil (no error to wrap).
func NewOperationalError(operation, project, function string, cause error) *OperationalError {
	if cause == nil {
		return nil
	}

	return &OperationalError{
		Operation: operation,
		Project:   project,
		Function:  function,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// NewOperationalErrorWithAttrs creates an OperationalError with additional attributes.
//
// Returns nil if cause is nil (no error to wrap).
func NewOperationalErrorWithAttrs(operation, project, function string, cause error, attrs map[string]interface{}) *OperationalError {
	if cause == nil {
		return nil
	}

	return &OperationalError{
		Operation:  operation,
		Project:    project,
		Function:   function,
		Timestamp:  time.Now(),
		Attributes: attrs,
		Cause:      cause,
	}
}

// Error implements the error interface.
//
// Format: "[timestamp] operation: project={name} function={name}: {cause}"
// If the function is empty, it is omitted from the message.
func (e *OperationalError) Error() string {
	if e == nil {
		return "<nil OperationalError>"
	}

	timestamp := e.Timestamp.Format(time.RFC3339)

	if e.Function != "" {
		return fmt.Sprintf("[%s] %s: project=%s function=%s: %v",
			timestamp, e.Operation, e.Project, e.Function, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: project=%s: %v",
		timestamp, e.Operation, e.Project, e.Cause)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *OperationalError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}
