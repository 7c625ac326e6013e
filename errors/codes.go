package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Construction errors
const (
	// ErrCodeConfigValidation indicates an operator or config was rejected at construction.
	ErrCodeConfigValidation ErrorCode = "CONFIG_VALIDATION"
	// ErrCodeInvalidRegion indicates a buffer region outside the buffer bounds.
	ErrCodeInvalidRegion ErrorCode = "INVALID_REGION"
)

// Run errors
const (
	// ErrCodeSourceUnavailable indicates the ByteSource was invalidated during a run.
	ErrCodeSourceUnavailable ErrorCode = "SOURCE_UNAVAILABLE"
	// ErrCodeParseDegraded indicates a per-record recoverable parse problem.
	ErrCodeParseDegraded ErrorCode = "PARSE_DEGRADED"
	// ErrCodeExternalSpawn indicates an external process could not be started.
	ErrCodeExternalSpawn ErrorCode = "EXTERNAL_SPAWN"
	// ErrCodeExternalExitNonZero indicates an external process exited with a failure status.
	ErrCodeExternalExitNonZero ErrorCode = "EXTERNAL_EXIT_NONZERO"
	// ErrCodeCancelled indicates the run was cancelled by the session.
	ErrCodeCancelled ErrorCode = "CANCELLED"
)

// Commit errors
const (
	// ErrCodeCommitFailed indicates the commit could not be applied.
	ErrCodeCommitFailed ErrorCode = "COMMIT_FAILED"
	// ErrCodeBufferConflict indicates the buffer changed since the region was read.
	ErrCodeBufferConflict ErrorCode = "BUFFER_CONFLICT"
)

// ErrCodeInternal indicates an unexpected internal failure.
const ErrCodeInternal ErrorCode = "INTERNAL_ERROR"

var retryableCodes = map[ErrorCode]bool{
	ErrCodeSourceUnavailable: true,
	ErrCodeCommitFailed:      true,
	ErrCodeBufferConflict:    true,
	ErrCodeCancelled:         true,
	ErrCodeInternal:          false,
}

// IsRetryableCode returns true if re-running the pipeline may succeed.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
