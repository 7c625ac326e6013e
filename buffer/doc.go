// Package buffer is an in-memory editor buffer: a byte slice with a revision
// counter, atomic region replacement, change subscriptions and undo/redo.
//
// It is the reference implementation of the buffer collaborator a session
// reads its region from and commits its result into. File is the read-only
// counterpart over a file on disk, read region by region as a run pulls.
//
//	buf := buffer.New([]byte("b\na\n"))
//	src, rev, _ := buf.ReadRegion(0, buf.Len())
//	...
//	err := buf.ReplaceRegion(0, buf.Len(), []byte("a\nb\n"), rev)
package buffer
