// Package errors provides coded errors for migration runs.
// Codes drive retry classification: transform failures are retryable,
// persistence and rejected-request failures are not.
package errors

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Code identifies an error class for programmatic handling.
type Code string

const (
	// Input errors (1xx)
	CodeFileNotFound  Code = "E101"
	CodeInvalidFormat Code = "E103"
	CodeMissingColumn Code = "E104"
	CodeMalformedRow  Code = "E105"

	// Transform errors (2xx)
	CodeTransformFailed     Code = "E201"
	CodeCardinalityMismatch Code = "E202"
	CodeBadResponse         Code = "E203"
	CodeRequestRejected     Code = "E204"

	// Persistence errors (3xx)
	CodeWriteFailed      Code = "E301"
	CodeCheckpointFailed Code = "E302"

	// System errors (4xx)
	CodeStopped         Code = "E401"
	CodeContextCanceled Code = "E402"

	// Unknown
	CodeUnknown Code = "E999"
)

// MigrateError is the base error type for all migration errors.
type MigrateError struct {
	Code    Code
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *MigrateError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		sb.WriteString(")")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *MigrateError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a MigrateError with the same code.
func (e *MigrateError) Is(target error) bool {
	if t, ok := target.(*MigrateError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext adds context to the error.
func (e *MigrateError) WithContext(key string, value interface{}) *MigrateError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new MigrateError.
func New(code Code, message string) *MigrateError {
	return &MigrateError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new MigrateError with a formatted message.
func Newf(code Code, format string, args ...interface{}) *MigrateError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error with a code and message. Wrap(nil, ...) returns nil.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &MigrateError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) error {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// --- Convenience constructors ---

// FileNotFound creates a file not found error.
func FileNotFound(path string) *MigrateError {
	return New(CodeFileNotFound, "file not found").WithContext("path", path)
}

// MissingColumn creates a missing column error.
func MissingColumn(column string, available []string) *MigrateError {
	return New(CodeMissingColumn, "required column not found").
		WithContext("column", column).
		WithContext("available", available)
}

// MalformedRow creates an error for a row that cannot be sent to the transform step.
func MalformedRow(row int, reason string) *MigrateError {
	return New(CodeMalformedRow, reason).WithContext("row", row)
}

// CardinalityMismatch creates an error for a response whose length differs from its batch.
func CardinalityMismatch(start, end, got int) *MigrateError {
	return New(CodeCardinalityMismatch, "response length mismatch").
		WithContext("batch_start", start).
		WithContext("batch_end", end).
		WithContext("expected", end-start).
		WithContext("got", got)
}

// --- Error checking utilities ---

// IsCode checks if an error has a specific code.
func IsCode(err error, code Code) bool {
	var mErr *MigrateError
	if errors.As(err, &mErr) {
		return mErr.Code == code
	}
	return false
}

// GetCode extracts the error code from an error.
func GetCode(err error) Code {
	var mErr *MigrateError
	if errors.As(err, &mErr) {
		return mErr.Code
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeContextCanceled
	}
	return CodeUnknown
}

// IsRetryable returns true if another attempt at the same batch may succeed.
// Uncoded errors from a transform client count as retryable.
func IsRetryable(err error) bool {
	switch GetCode(err) {
	case CodeTransformFailed, CodeCardinalityMismatch, CodeBadResponse,
		CodeMalformedRow, CodeUnknown:
		return true
	default:
		return false
	}
}

// IsFatal returns true if the error must end the run without further attempts.
func IsFatal(err error) bool {
	switch GetCode(err) {
	case CodeRequestRejected, CodeWriteFailed, CodeCheckpointFailed, CodeContextCanceled:
		return true
	default:
		return false
	}
}

// Is, As and Join are re-exported so callers need a single errors import.
var (
	Is   = errors.Is
	As   = errors.As
	Join = errors.Join
)
