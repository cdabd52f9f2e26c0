package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name:     "without underlying error",
			err:      New(CodeDatabaseError, "connection failed"),
			expected: "[DATABASE_ERROR] connection failed",
		},
		{
			name:     "with underlying error",
			err:      Wrap(CodeTransientStore, "query failed", errors.New("network timeout")),
			expected: "[TRANSIENT_STORE_ERROR] query failed: network timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	err := Wrap(CodeCycleDetected, "cycle detected", underlying)

	unwrapped := err.Unwrap()
	assert.Equal(t, underlying, unwrapped)
}

func TestAppError_Is(t *testing.T) {
	err1 := New(CodeDatabaseError, "error 1")
	err2 := New(CodeDatabaseError, "error 2")
	err3 := New(CodeTransientStore, "error 3")

	assert.True(t, errors.Is(err1, err2))
	assert.False(t, errors.Is(err1, err3))
}

func TestIsDatabaseError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "database error",
			err:      ErrDatabaseError,
			expected: true,
		},
		{
			name:     "wrapped database error",
			err:      Wrap(CodeDatabaseError, "db error", errors.New("connection refused")),
			expected: true,
		},
		{
			name:     "other error",
			err:      ErrTransientStore,
			expected: false,
		},
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsDatabaseError(tt.err))
		})
	}
}

func TestIsTransientStoreError(t *testing.T) {
	assert.True(t, IsTransientStoreError(ErrTransientStore))
	assert.False(t, IsTransientStoreError(ErrDatabaseError))
}

func TestIsCircuitOpenError(t *testing.T) {
	assert.True(t, IsCircuitOpenError(ErrCircuitOpen))
	assert.False(t, IsCircuitOpenError(ErrDatabaseError))
}

func TestIsTimeoutError(t *testing.T) {
	assert.True(t, IsTimeoutError(ErrTimeout))
	assert.False(t, IsTimeoutError(ErrDatabaseError))
}

func TestIsCancelledError(t *testing.T) {
	assert.True(t, IsCancelledError(ErrCancelled))
	assert.False(t, IsCancelledError(ErrDatabaseError))
}

func TestGetErrorCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "app error",
			err:      New(CodeDatabaseError, "db error"),
			expected: CodeDatabaseError,
		},
		{
			name:     "wrapped app error",
			err:      Wrap(CodeTransientStore, "transient", errors.New("inner")),
			expected: CodeTransientStore,
		},
		{
			name:     "standard error",
			err:      errors.New("standard error"),
			expected: CodeUnknown,
		},
		{
			name:     "nil error",
			err:      nil,
			expected: CodeUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetErrorCode(tt.err))
		})
	}
}

func TestGetErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "app error",
			err:      New(CodeDatabaseError, "db connection failed"),
			expected: "db connection failed",
		},
		{
			name:     "standard error",
			err:      errors.New("standard error"),
			expected: "standard error",
		},
		{
			name:     "nil error",
			err:      nil,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetErrorMessage(tt.err))
		})
	}
}

func TestErrorInfo(t *testing.T) {
	assert.Equal(t, CodeDatabaseError, ErrorInfo["DatabaseError"])
	assert.Equal(t, CodeTransientStore, ErrorInfo["TransientStore"])
	assert.Equal(t, CodeCircuitOpen, ErrorInfo["CircuitOpen"])
	assert.Equal(t, CodeSchemaViolation, ErrorInfo["SchemaViolation"])
	assert.Equal(t, CodeCycleDetected, ErrorInfo["CycleDetected"])
	assert.Equal(t, CodeComponentFailure, ErrorInfo["ComponentFailure"])
}
