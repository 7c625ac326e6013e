package source

import (
	"context"
	"errors"
	"io"

	apperrors "github.com/jae-editor/operate/errors"
	"github.com/jae-editor/operate/stream"
)

// Section is a ByteSource over a region of an io.ReaderAt, typically a file.
// Every chunk is a separate read, so large regions are never held in memory.
type Section struct {
	r    io.ReaderAt
	off  int64
	n    int64
	opts options
}

var _ ByteSource = (*Section)(nil)

// NewSection returns a source over n bytes of r starting at off.
func NewSection(r io.ReaderAt, off, n int64, opts ...Option) *Section {
	return &Section{r: r, off: off, n: n, opts: buildOptions(opts)}
}

// Len returns the size of the region.
func (s *Section) Len() int64 { return s.n }

// ReadRange reads n bytes at the region-relative offset off.
func (s *Section) ReadRange(ctx context.Context, off, n int64) ([]byte, error) {
	if err := s.opts.check(ctx); err != nil {
		return nil, err
	}
	if err := checkRange(off, n, s.n); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	got, err := s.r.ReadAt(buf, s.off+off)
	switch {
	case int64(got) == n:
		return buf, nil
	case errors.Is(err, io.EOF):
		return nil, apperrors.SourceUnavailable("region shorter than expected").WithCause(err)
	default:
		return nil, apperrors.SourceUnavailable("read failed").WithCause(err)
	}
}

// Chunks reads the region one chunk at a time.
func (s *Section) Chunks() *stream.Stream[Chunk] {
	return stream.FromFunc(func(context.Context) stream.Iterator[Chunk] {
		var off int64
		return stream.Func(func(ctx context.Context) (Chunk, bool, error) {
			if off >= s.n {
				return Chunk{}, false, nil
			}
			n := min(int64(s.opts.chunkSize), s.n-off)
			data, err := s.ReadRange(ctx, off, n)
			if err != nil {
				return Chunk{}, false, err
			}
			c := Chunk{Offset: off, Data: data}
			off += n
			return c, true, nil
		}, nil)
	})
}
