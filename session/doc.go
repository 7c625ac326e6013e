// Package session implements an Operate-mode session: one operator pipeline
// bound to a region of a buffer.
//
// A session owns an executor, so edits to the operator list reuse the
// memoised outputs of unchanged leading stages. It subscribes to the buffer;
// any change moves the region as needed and invalidates cached outputs and the
// active run.
//
//	s, err := session.New(buf, record.Range{Start: 0, End: buf.Len()})
//	err = s.SetOperators(specs)
//	p, err := s.Preview(ctx)
//	snap, err := p.Head(ctx, 50)
//	res, err := s.Commit(ctx)
package session
