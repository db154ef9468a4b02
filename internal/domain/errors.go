package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer.
var (
	ErrDisabled      = fmt.Errorf("feature disabled")
	ErrAuthInvalid   = fmt.Errorf("authentication failed")
	ErrInvalidInput  = fmt.Errorf("invalid input")
	ErrForbidden     = fmt.Errorf("board not found or access denied")
	ErrRateLimit     = fmt.Errorf("rate limit exceeded")
	ErrNotFound      = fmt.Errorf("not found")
	ErrDuplicate     = fmt.Errorf("duplicate")
	ErrValidation    = fmt.Errorf("tool call validation failed")
	ErrToolFailure   = fmt.Errorf("tool execution failed")
	ErrMaxIterations = fmt.Errorf("tool-calling loop exceeded iteration limit")
	ErrProviderError = fmt.Errorf("completion provider error")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Executor.Execute")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ErrorCode is a machine-parseable error category surfaced to API clients
// and used for monitoring.
type ErrorCode string

const (
	CodeUnknown        ErrorCode = "UNKNOWN"
	CodeFeatureOff     ErrorCode = "FEATURE_DISABLED"
	CodeUnauthorized   ErrorCode = "UNAUTHORIZED"
	CodeBadRequest     ErrorCode = "BAD_REQUEST"
	CodeForbidden      ErrorCode = "FORBIDDEN"
	CodeRateLimited    ErrorCode = "RATE_LIMITED"
	CodeValidation     ErrorCode = "VALIDATION_ERROR"
	CodeToolExecFailed ErrorCode = "TOOL_EXECUTION_FAILED"
	CodeRunnerError    ErrorCode = "RUNNER_ERROR"
	CodeInternal       ErrorCode = "INTERNAL_ERROR"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrDisabled:      CodeFeatureOff,
	ErrAuthInvalid:   CodeUnauthorized,
	ErrInvalidInput:  CodeBadRequest,
	ErrForbidden:     CodeForbidden,
	ErrRateLimit:     CodeRateLimited,
	ErrValidation:    CodeValidation,
	ErrToolFailure:   CodeToolExecFailed,
	ErrMaxIterations: CodeRunnerError,
	ErrProviderError: CodeRunnerError,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}

// IsRetryableError reports whether err is a transient fault where retrying
// the whole command is safe. Validation failures are deliberately excluded:
// the caller must fix its input first.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrToolFailure)
}
