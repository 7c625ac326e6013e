// Package errors provides the error taxonomy of the Operate pipeline.
// It implements a structured error type carrying a machine-readable code,
// the pipeline stage that raised it, and retryable detection, so that
// callers can report which stage failed and with which kind of error.
package errors
