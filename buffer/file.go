package buffer

import (
	"os"
	"time"

	apperrors "github.com/jae-editor/operate/errors"
	"github.com/jae-editor/operate/source"
)

// File is a read-only view of a file on disk. Regions are read chunk by chunk
// as a pipeline pulls them, so previewing a large file never loads it whole.
// Reads fail with SOURCE_UNAVAILABLE once the file's size or modification
// time differs from when it was opened.
type File struct {
	path string
	f    *os.File
	size int64
	mod  time.Time
}

// OpenFile opens path for reading.
func OpenFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.SourceUnavailable("cannot read " + path).WithCause(err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, apperrors.SourceUnavailable("cannot stat " + path).WithCause(err)
	}
	return &File{path: path, f: f, size: info.Size(), mod: info.ModTime()}, nil
}

// Len returns the size of the file when it was opened.
func (f *File) Len() int64 { return f.size }

// ReadRegion returns a disk-backed source over [start, end). The revision is
// always 1, since the view never changes.
func (f *File) ReadRegion(start, end int64, opts ...source.Option) (source.ByteSource, Revision, error) {
	if start < 0 || end < start || end > f.size {
		return nil, 0, apperrors.InvalidRegion(start, end, f.size)
	}
	opts = append(opts, source.WithGuard(f.unchanged))
	return source.NewSection(f.f, start, end-start, opts...), 1, nil
}

// ReplaceRegion always fails: a File is never written through.
func (f *File) ReplaceRegion(start, end int64, _ []byte, _ Revision) error {
	return apperrors.CommitFailed("file is open read-only", nil).
		WithDetail("path", f.path).
		WithDetail("start", start).
		WithDetail("end", end)
}

// Subscribe returns a no-op cancel; a File raises no change events.
func (f *File) Subscribe(func(Change)) (cancel func()) { return func() {} }

// Close releases the file handle.
func (f *File) Close() error { return f.f.Close() }

func (f *File) unchanged() error {
	info, err := os.Stat(f.path)
	if err != nil {
		return apperrors.SourceUnavailable("file is no longer readable").WithCause(err)
	}
	if info.Size() != f.size || !info.ModTime().Equal(f.mod) {
		return apperrors.SourceUnavailable("file changed on disk").
			WithDetail("path", f.path).
			WithDetail("size", info.Size())
	}
	return nil
}
