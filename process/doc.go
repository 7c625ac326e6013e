// Package process spawns the subprocesses behind External pipeline stages.
//
// A spawned process gets piped standard input and output and runs in its own
// process group. Termination is signal based: SIGTERM to the group first, then
// SIGKILL once the grace period has elapsed.
package process
