// Package errors defines common error types for the layout engine.
package errors

import (
	"errors"
	"fmt"
)

// Error codes for the application.
const (
	CodeUnknown          = "UNKNOWN_ERROR"
	CodeDatabaseError    = "DATABASE_ERROR"
	CodeTransientStore   = "TRANSIENT_STORE_ERROR"
	CodeCircuitOpen      = "CIRCUIT_OPEN"
	CodeSchemaViolation  = "SCHEMA_VIOLATION"
	CodeTimeout          = "TIMEOUT_ERROR"
	CodeCancelled        = "CANCELLED"
	CodeInvalidInput     = "INVALID_INPUT"
	CodeNotFound         = "NOT_FOUND"
	CodeConfigError      = "CONFIG_ERROR"
	CodeCycleDetected    = "CYCLE_DETECTED"
	CodeComponentFailure = "COMPONENT_PLACEMENT_FAILURE"
)

// AppError represents an application error with a code and message.
type AppError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError.
func New(code string, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError.
func Wrap(code string, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common error instances.
var (
	ErrDatabaseError    = New(CodeDatabaseError, "graph store error")
	ErrTransientStore   = New(CodeTransientStore, "transient graph store error")
	ErrCircuitOpen      = New(CodeCircuitOpen, "circuit breaker open")
	ErrSchemaViolation  = New(CodeSchemaViolation, "schema violation")
	ErrTimeout          = New(CodeTimeout, "operation timeout")
	ErrCancelled        = New(CodeCancelled, "operation cancelled")
	ErrInvalidInput     = New(CodeInvalidInput, "invalid input")
	ErrNotFound         = New(CodeNotFound, "resource not found")
	ErrConfigError      = New(CodeConfigError, "configuration error")
	ErrCycleDetected    = New(CodeCycleDetected, "residual cycle detected")
	ErrComponentFailure = New(CodeComponentFailure, "component placement failed")
)

// IsDatabaseError reports whether err is (or wraps) a graph store error.
func IsDatabaseError(err error) bool {
	return errors.Is(err, ErrDatabaseError)
}

// IsTransientStoreError reports whether err is a transient, retryable store error.
func IsTransientStoreError(err error) bool {
	return errors.Is(err, ErrTransientStore)
}

// IsCircuitOpenError reports whether err came from a rejecting circuit breaker.
func IsCircuitOpenError(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}

// IsTimeoutError reports whether err is a deadline/timeout error.
func IsTimeoutError(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsCancelledError reports whether err reflects caller cancellation.
func IsCancelledError(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// GetErrorMessage extracts the error message from an error.
func GetErrorMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// ErrorInfo provides error information mapping (compatible with the source
// system's error-code scheme).
var ErrorInfo = map[string]string{
	"DatabaseError":    CodeDatabaseError,
	"TransientStore":   CodeTransientStore,
	"CircuitOpen":      CodeCircuitOpen,
	"SchemaViolation":  CodeSchemaViolation,
	"CycleDetected":    CodeCycleDetected,
	"ComponentFailure": CodeComponentFailure,
}
