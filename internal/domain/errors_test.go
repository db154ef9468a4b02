package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCodeOf(t *testing.T) {
	cases := []struct {
		err  error
		code ErrorCode
	}{
		{ErrDisabled, CodeFeatureOff},
		{ErrAuthInvalid, CodeUnauthorized},
		{ErrInvalidInput, CodeBadRequest},
		{ErrForbidden, CodeForbidden},
		{ErrRateLimit, CodeRateLimited},
		{ErrValidation, CodeValidation},
		{ErrToolFailure, CodeToolExecFailed},
		{ErrMaxIterations, CodeRunnerError},
		{ErrProviderError, CodeRunnerError},
		{NewDomainError("op", ErrForbidden, "Board not found or access denied."), CodeForbidden},
		{fmt.Errorf("wrapped: %w", ErrValidation), CodeValidation},
		{fmt.Errorf("plain failure"), CodeUnknown},
		{nil, CodeUnknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.code, ErrorCodeOf(tc.err), "err=%v", tc.err)
	}
}

func TestDomainErrorMessage(t *testing.T) {
	err := NewDomainError("Executor.Execute", ErrValidation, "Object not found: ghost")
	assert.Contains(t, err.Error(), "Executor.Execute")
	assert.Contains(t, err.Error(), "Object not found: ghost")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, CodeValidation, err.Code())
}

func TestWrapOpNilPassthrough(t *testing.T) {
	assert.NoError(t, WrapOp("op", nil))
	assert.ErrorIs(t, WrapOp("op", ErrNotFound), ErrNotFound)
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, IsRetryableError(ErrRateLimit))
	assert.True(t, IsRetryableError(ErrToolFailure))
	assert.False(t, IsRetryableError(ErrValidation))
	assert.False(t, IsRetryableError(nil))
}
