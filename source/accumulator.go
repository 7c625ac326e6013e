package source

import (
	"context"
	"sync"

	apperrors "github.com/jae-editor/operate/errors"
	"github.com/jae-editor/operate/stream"
)

// Accumulator is a ByteSource that grows as a producer writes to it, usually
// the standard output of a subprocess. Readers that reach the end of the
// accumulated bytes wait for more until the producer closes it.
//
// Accumulator is an io.Writer; the owner writes into it and then calls
// CloseWithError once the producer is finished.
type Accumulator struct {
	mu     sync.Mutex
	buf    []byte
	closed bool
	err    error
	// grown is closed and replaced on every write and on close.
	grown chan struct{}
	opts  options
}

var _ ByteSource = (*Accumulator)(nil)

// NewAccumulator returns an empty, open accumulator.
func NewAccumulator(opts ...Option) *Accumulator {
	return &Accumulator{grown: make(chan struct{}), opts: buildOptions(opts)}
}

// Write appends p. Writing to a closed accumulator fails.
func (a *Accumulator) Write(p []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return 0, apperrors.Internal(nil).WithDetail("reason", "write to closed accumulator")
	}
	if len(p) == 0 {
		return 0, nil
	}
	a.buf = append(a.buf, p...)
	a.signal()
	return len(p), nil
}

// CloseWithError marks the end of input. A nil err means a clean end; any
// other error is returned to readers once they have consumed the bytes
// accumulated before the close. Only the first call has an effect.
func (a *Accumulator) CloseWithError(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.closed = true
	a.err = err
	a.signal()
}

func (a *Accumulator) signal() {
	close(a.grown)
	a.grown = make(chan struct{})
}

// Len returns the number of bytes accumulated so far.
func (a *Accumulator) Len() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return int64(len(a.buf))
}

// Done reports whether the accumulator has been closed.
func (a *Accumulator) Done() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

// Err returns the error the accumulator was closed with.
func (a *Accumulator) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// ReadRange waits until off+n bytes are available and returns them.
func (a *Accumulator) ReadRange(ctx context.Context, off, n int64) ([]byte, error) {
	for {
		if err := a.opts.check(ctx); err != nil {
			return nil, err
		}
		a.mu.Lock()
		size := int64(len(a.buf))
		if off >= 0 && n >= 0 && off+n <= size {
			out := make([]byte, n)
			copy(out, a.buf[off:off+n])
			a.mu.Unlock()
			return out, nil
		}
		if a.closed {
			err := a.err
			a.mu.Unlock()
			if err != nil {
				return nil, err
			}
			return nil, checkRange(off, n, size)
		}
		wait := a.grown
		a.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Chunks replays the accumulated bytes from the start, then follows the
// producer until it closes.
func (a *Accumulator) Chunks() *stream.Stream[Chunk] {
	return stream.FromFunc(func(context.Context) stream.Iterator[Chunk] {
		var off int64
		return stream.Func(func(ctx context.Context) (Chunk, bool, error) {
			for {
				if err := a.opts.check(ctx); err != nil {
					return Chunk{}, false, err
				}
				a.mu.Lock()
				size := int64(len(a.buf))
				if off < size {
					end := min(off+int64(a.opts.chunkSize), size)
					c := Chunk{Offset: off, Data: a.buf[off:end:end]}
					a.mu.Unlock()
					off = end
					return c, true, nil
				}
				if a.closed {
					err := a.err
					a.mu.Unlock()
					return Chunk{}, false, err
				}
				wait := a.grown
				a.mu.Unlock()
				select {
				case <-wait:
				case <-ctx.Done():
					return Chunk{}, false, ctx.Err()
				}
			}
		}, nil)
	})
}
