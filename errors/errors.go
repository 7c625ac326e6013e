package errors

import (
	stderrors "errors"
	"fmt"
)

// NoStage marks an error that is not attributable to a pipeline stage.
const NoStage = -1

// AppError is the unified pipeline error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if re-running may succeed.
	Retryable bool `json:"retryable"`
	// Stage is the zero-based index of the stage that raised the error, or NoStage.
	Stage int `json:"stage"`
	// Operator is the name of the stage's operator, if known.
	Operator string `json:"operator,omitempty"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	prefix := string(e.Code)
	if e.Stage != NoStage {
		if e.Operator != "" {
			prefix = fmt.Sprintf("stage %d (%s): %s", e.Stage, e.Operator, e.Code)
		} else {
			prefix = fmt.Sprintf("stage %d: %s", e.Stage, e.Code)
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// Is matches another *AppError by code, so errors.Is(err, errors.New(code, "")) works.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == ""
}

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithStage records the stage index and operator name and returns the receiver.
// A stage already recorded is kept, so the innermost attribution wins.
func (e *AppError) WithStage(stage int, operator string) *AppError {
	if e.Stage == NoStage {
		e.Stage = stage
		e.Operator = operator
	}
	return e
}

// WithDetails merges the provided details into the error and returns the receiver.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Stage:     NoStage,
		Retryable: IsRetryableCode(code),
	}
}

// --- Constructors ---

// ConfigValidation creates an error for an operator rejected at construction.
func ConfigValidation(operator, reason string) *AppError {
	e := New(ErrCodeConfigValidation, fmt.Sprintf("invalid %s options: %s", operator, reason))
	e.Operator = operator
	return e
}

// UnknownOperator creates an error for an operator kind that is not registered.
func UnknownOperator(kind string) *AppError {
	return New(ErrCodeConfigValidation, fmt.Sprintf("unknown operator kind %q", kind)).
		WithDetail("kind", kind)
}

// InvalidRegion creates an error for a region outside [0, size].
func InvalidRegion(start, end, size int64) *AppError {
	return New(ErrCodeInvalidRegion, fmt.Sprintf("region [%d,%d) is outside buffer of %d bytes", start, end, size)).
		WithDetails(map[string]any{"start": start, "end": end, "size": size})
}

// SourceUnavailable creates an error for an invalidated ByteSource.
func SourceUnavailable(reason string) *AppError {
	return New(ErrCodeSourceUnavailable, reason)
}

// ParseDegraded creates an error describing a recoverable per-record parse issue.
func ParseDegraded(reason string) *AppError {
	return New(ErrCodeParseDegraded, reason)
}

// ExternalSpawn creates an error for a process that could not be started.
func ExternalSpawn(command string, cause error) *AppError {
	return New(ErrCodeExternalSpawn, fmt.Sprintf("cannot start %q", command)).
		WithDetail("command", command).
		WithCause(cause)
}

// ExternalExitNonZero creates an error for a process that exited with a failure status.
func ExternalExitNonZero(command string, exitCode int, stderr string) *AppError {
	e := New(ErrCodeExternalExitNonZero, fmt.Sprintf("%q exited with status %d", command, exitCode)).
		WithDetails(map[string]any{"command": command, "exit_code": exitCode})
	if stderr != "" {
		e.WithDetail("stderr", stderr)
	}
	return e
}

// Cancelled creates an error for a run cancelled by its session.
func Cancelled(cause error) *AppError {
	return New(ErrCodeCancelled, "run cancelled").WithCause(cause)
}

// CommitFailed creates an error for a commit that left the buffer untouched.
func CommitFailed(reason string, cause error) *AppError {
	return New(ErrCodeCommitFailed, reason).WithCause(cause)
}

// BufferConflict creates an error for a replace against a stale revision.
func BufferConflict(expected, actual uint64) *AppError {
	return New(ErrCodeBufferConflict, "buffer changed since the region was read").
		WithDetails(map[string]any{"expected_revision": expected, "actual_revision": actual})
}

// Internal creates an error for an unexpected failure.
func Internal(cause error) *AppError {
	return New(ErrCodeInternal, "unexpected pipeline failure").WithCause(cause)
}

// --- Inspection ---

// IsAppError checks if an error is an AppError.
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns the code of the outermost AppError in err's chain,
// or ErrCodeInternal when err carries none.
func CodeOf(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether any AppError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		if appErr, ok := err.(*AppError); ok && appErr.Code == code {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}
