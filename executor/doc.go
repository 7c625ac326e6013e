// Package executor runs operator pipelines over a byte source.
//
// An Executor holds the configured operator list of one session and a memo
// table of stage outputs. Start builds a lazy Run: nothing is read until the
// run is pulled, and barrier stages materialise their input on the first pull.
//
// Stage outputs are recorded while they are pulled. Once a stage has been
// pulled to the end, its output is kept under (stage, generation) and later
// runs resume after the longest recorded prefix. Generations advance when a
// stage or any stage before it is reconfigured, and for every stage when the
// source is invalidated.
//
// One run is active per executor. Starting a run cancels the previous one.
// Lifecycle and progress events are published on the Events channel so that
// a UI goroutine can follow runs without sharing state with them.
package executor
