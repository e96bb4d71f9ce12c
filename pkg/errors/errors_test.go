package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateError_Error(t *testing.T) {
	err := New(CodeMalformedRow, "missing name").
		WithContext("row", 4).
		WithContext("column", "name")

	assert.Equal(t, "[E105] missing name (column=name, row=4)", err.Error())

	wrapped := Wrap(stderrors.New("disk full"), CodeWriteFailed, "append failed")
	assert.Equal(t, "[E301] append failed: disk full", wrapped.Error())
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, CodeWriteFailed, "ignored"))
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"coded", New(CodeBadResponse, "x"), CodeBadResponse},
		{"wrapped by fmt", fmt.Errorf("outer: %w", New(CodeStopped, "x")), CodeStopped},
		{"canceled", context.Canceled, CodeContextCanceled},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), CodeContextCanceled},
		{"plain", stderrors.New("boom"), CodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetCode(tt.err))
		})
	}
}

func TestClassification(t *testing.T) {
	tests := []struct {
		code      Code
		retryable bool
		fatal     bool
	}{
		{CodeTransformFailed, true, false},
		{CodeCardinalityMismatch, true, false},
		{CodeMalformedRow, true, false},
		{CodeBadResponse, true, false},
		{CodeRequestRejected, false, true},
		{CodeWriteFailed, false, true},
		{CodeCheckpointFailed, false, true},
		{CodeStopped, false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := New(tt.code, "test")
			assert.Equal(t, tt.retryable, IsRetryable(err))
			assert.Equal(t, tt.fatal, IsFatal(err))
		})
	}

	assert.True(t, IsRetryable(stderrors.New("network reset")))
}

func TestCardinalityMismatch(t *testing.T) {
	err := CardinalityMismatch(15, 30, 14)
	require.True(t, IsCode(err, CodeCardinalityMismatch))
	assert.Equal(t, 15, err.Context["expected"])
	assert.Equal(t, 14, err.Context["got"])
	assert.True(t, Is(err, New(CodeCardinalityMismatch, "")))
}
