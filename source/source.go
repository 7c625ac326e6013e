// Package source provides ByteSource, the read-only random-access view over a
// region of buffer content that feeds an Operate pipeline.
//
// Offsets are always relative to the start of the region, 0 .. Len(), so that
// record provenance traces back to the original bytes.
package source

import (
	"context"

	apperrors "github.com/jae-editor/operate/errors"
	"github.com/jae-editor/operate/record"
	"github.com/jae-editor/operate/stream"
)

// DefaultChunkSize is the chunk size used when none is configured.
const DefaultChunkSize = 64 * 1024

// Chunk is a contiguous piece of a ByteSource.
type Chunk struct {
	Offset int64
	Data   []byte
}

// Range returns the region-relative byte range covered by c.
func (c Chunk) Range() record.Range {
	return record.Range{Start: c.Offset, End: c.Offset + int64(len(c.Data))}
}

// ByteSource is a read-only view over region content. Chunks is finite and
// restartable: every iteration starts again from offset 0 and reading never
// mutates the source.
type ByteSource interface {
	// Len returns the number of bytes currently available.
	Len() int64
	// ReadRange returns n bytes starting at off.
	ReadRange(ctx context.Context, off, n int64) ([]byte, error)
	// Chunks returns the content as a lazy stream of chunks.
	Chunks() *stream.Stream[Chunk]
}

// Guard reports whether a source's backing storage is still valid. A non-nil
// error means the owning region was invalidated.
type Guard func() error

// Option configures a source.
type Option func(*options)

type options struct {
	chunkSize int
	guard     Guard
}

// WithChunkSize sets the size of the chunks produced by Chunks.
func WithChunkSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}

// WithGuard installs a validity check run before every read.
func WithGuard(g Guard) Option {
	return func(o *options) { o.guard = g }
}

func buildOptions(opts []Option) options {
	o := options{chunkSize: DefaultChunkSize}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if o.guard == nil {
		return nil
	}
	if err := o.guard(); err != nil {
		if apperrors.IsAppError(err) {
			return err
		}
		return apperrors.SourceUnavailable("region invalidated").WithCause(err)
	}
	return nil
}

// Records turns the chunks of src into Raw records whose spans are the chunk
// ranges. This is the input of the first pipeline stage.
func Records(src ByteSource) *stream.Stream[record.Record] {
	return stream.Map(src.Chunks(), func(_ context.Context, c Chunk) (record.Record, error) {
		return record.NewRaw(c.Data, c.Range()), nil
	})
}

// ReadAll concatenates every chunk of src.
func ReadAll(ctx context.Context, src ByteSource) ([]byte, error) {
	var out []byte
	err := stream.ForEach(ctx, src.Chunks(), func(_ context.Context, c Chunk) error {
		out = append(out, c.Data...)
		return nil
	})
	return out, err
}

func checkRange(off, n, size int64) error {
	if off < 0 || n < 0 || off+n > size {
		return apperrors.InvalidRegion(off, off+n, size)
	}
	return nil
}
