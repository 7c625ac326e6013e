package process

import "time"

// Result holds the status of an exited subprocess.
type Result struct {
	// ExitCode is the process exit code. -1 if the process was killed by a signal.
	ExitCode int
	// Stderr is the captured standard error, truncated to MaxStderr bytes.
	Stderr []byte
	// Terminated is true when the process was stopped by Terminate or by
	// context cancellation.
	Terminated bool
	// Duration is how long the process ran.
	Duration time.Duration
}

// Success reports whether the process exited with status zero.
func (r *Result) Success() bool { return r.ExitCode == 0 && !r.Terminated }
