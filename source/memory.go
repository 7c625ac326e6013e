package source

import (
	"context"

	"github.com/jae-editor/operate/stream"
)

// Memory is a ByteSource over a slice of committed buffer bytes. The slice is
// never written through.
type Memory struct {
	data []byte
	opts options
}

var _ ByteSource = (*Memory)(nil)

// NewMemory returns a source over data.
func NewMemory(data []byte, opts ...Option) *Memory {
	return &Memory{data: data, opts: buildOptions(opts)}
}

// Len returns the size of the region.
func (m *Memory) Len() int64 { return int64(len(m.data)) }

// ReadRange returns a copy of data[off:off+n].
func (m *Memory) ReadRange(ctx context.Context, off, n int64) ([]byte, error) {
	if err := m.opts.check(ctx); err != nil {
		return nil, err
	}
	if err := checkRange(off, n, m.Len()); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, m.data[off:off+n])
	return out, nil
}

// Chunks yields the region in chunk-sized pieces, checking the guard and the
// context before each one.
func (m *Memory) Chunks() *stream.Stream[Chunk] {
	return stream.FromFunc(func(context.Context) stream.Iterator[Chunk] {
		var off int64
		return stream.Func(func(ctx context.Context) (Chunk, bool, error) {
			if off >= m.Len() {
				return Chunk{}, false, nil
			}
			if err := m.opts.check(ctx); err != nil {
				return Chunk{}, false, err
			}
			end := min(off+int64(m.opts.chunkSize), m.Len())
			c := Chunk{Offset: off, Data: m.data[off:end:end]}
			off = end
			return c, true, nil
		}, nil)
	})
}
