// Package sink consumes executor runs.
//
// A Preview pulls a bounded view of a run for display, either the first K
// rows (Head) or a following view of the last K rows (Tail). A Commit pulls
// the whole run, encodes it and replaces the source region in one step;
// nothing is written when evaluation fails.
package sink
