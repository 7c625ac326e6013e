package buffer

import (
	"os"
	"slices"
	"sync"

	apperrors "github.com/jae-editor/operate/errors"
	"github.com/jae-editor/operate/source"
)

// Revision identifies a buffer state. Every change increments it.
type Revision uint64

// ChangeKind says how a change was made.
type ChangeKind string

const (
	ChangeEdit ChangeKind = "edit"
	ChangeUndo ChangeKind = "undo"
	ChangeRedo ChangeKind = "redo"
)

// Change describes one modification: bytes [Start, End) of the previous
// revision were replaced by Inserted bytes.
type Change struct {
	Kind     ChangeKind
	Revision Revision
	Start    int64
	End      int64
	Inserted int64
}

// Delta is the change in buffer length.
func (c Change) Delta() int64 { return c.Inserted - (c.End - c.Start) }

// NewEnd is the end of the inserted bytes in the new revision.
func (c Change) NewEnd() int64 { return c.Start + c.Inserted }

type edit struct {
	start    int64
	removed  []byte
	inserted []byte
}

// Buffer is safe for concurrent use. Subscribers are called synchronously,
// after the lock is released, in subscription order.
type Buffer struct {
	mu   sync.RWMutex
	data []byte
	rev  Revision
	undo []edit
	redo []edit

	subMu  sync.Mutex
	subs   map[uint64]func(Change)
	nextID uint64
}

// New returns a buffer holding a copy of data at revision 1.
func New(data []byte) *Buffer {
	return &Buffer{data: slices.Clone(data), rev: 1, subs: make(map[uint64]func(Change))}
}

// ReadFile loads a file into a new buffer.
func ReadFile(path string) (*Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.SourceUnavailable("cannot read " + path).WithCause(err)
	}
	return New(data), nil
}

// WriteFile saves the current content to path.
func (b *Buffer) WriteFile(path string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := os.WriteFile(path, b.data, 0o644); err != nil {
		return apperrors.CommitFailed("cannot write "+path, err)
	}
	return nil
}

// Len returns the content length.
func (b *Buffer) Len() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return int64(len(b.data))
}

// Revision returns the current revision.
func (b *Buffer) Revision() Revision {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.rev
}

// Bytes returns a copy of the content.
func (b *Buffer) Bytes() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.data)
}

// ReadRegion returns a snapshot of [start, end) as a byte source together with
// the revision it was taken at. Reading the source fails with
// SOURCE_UNAVAILABLE once the buffer has moved past that revision.
func (b *Buffer) ReadRegion(start, end int64, opts ...source.Option) (source.ByteSource, Revision, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkRegion(start, end); err != nil {
		return nil, 0, err
	}
	rev := b.rev
	guard := func() error {
		if cur := b.Revision(); cur != rev {
			return apperrors.SourceUnavailable("buffer changed").
				WithDetail("revision", uint64(rev)).
				WithDetail("current", uint64(cur))
		}
		return nil
	}
	data := slices.Clone(b.data[start:end])
	return source.NewMemory(data, append(opts, source.WithGuard(guard))...), rev, nil
}

// ReplaceRegion replaces [start, end) with data if the buffer is still at
// revision expect. The replacement is all or nothing.
func (b *Buffer) ReplaceRegion(start, end int64, data []byte, expect Revision) error {
	b.mu.Lock()
	if b.rev != expect {
		rev := b.rev
		b.mu.Unlock()
		return apperrors.BufferConflict(uint64(expect), uint64(rev))
	}
	if err := b.checkRegion(start, end); err != nil {
		b.mu.Unlock()
		return err
	}
	e := edit{start: start, removed: slices.Clone(b.data[start:end]), inserted: slices.Clone(data)}
	change := b.apply(e, ChangeEdit)
	b.undo = append(b.undo, e)
	b.redo = nil
	b.mu.Unlock()
	b.notify(change)
	return nil
}

// Insert places data at off in the current revision.
func (b *Buffer) Insert(off int64, data []byte) error {
	return b.ReplaceRegion(off, off, data, b.Revision())
}

// Delete removes [start, end) in the current revision.
func (b *Buffer) Delete(start, end int64) error {
	return b.ReplaceRegion(start, end, nil, b.Revision())
}

// Undo reverts the most recent edit. It reports false when there is nothing
// to undo.
func (b *Buffer) Undo() bool {
	b.mu.Lock()
	if len(b.undo) == 0 {
		b.mu.Unlock()
		return false
	}
	e := b.undo[len(b.undo)-1]
	b.undo = b.undo[:len(b.undo)-1]
	change := b.apply(edit{start: e.start, removed: e.inserted, inserted: e.removed}, ChangeUndo)
	b.redo = append(b.redo, e)
	b.mu.Unlock()
	b.notify(change)
	return true
}

// Redo reapplies the most recently undone edit.
func (b *Buffer) Redo() bool {
	b.mu.Lock()
	if len(b.redo) == 0 {
		b.mu.Unlock()
		return false
	}
	e := b.redo[len(b.redo)-1]
	b.redo = b.redo[:len(b.redo)-1]
	change := b.apply(e, ChangeRedo)
	b.undo = append(b.undo, e)
	b.mu.Unlock()
	b.notify(change)
	return true
}

// Subscribe registers fn for every change. The returned function removes it.
func (b *Buffer) Subscribe(fn func(Change)) (cancel func()) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	return func() {
		b.subMu.Lock()
		defer b.subMu.Unlock()
		delete(b.subs, id)
	}
}

// apply must be called with mu held.
func (b *Buffer) apply(e edit, kind ChangeKind) Change {
	end := e.start + int64(len(e.removed))
	next := make([]byte, 0, int64(len(b.data))-int64(len(e.removed))+int64(len(e.inserted)))
	next = append(next, b.data[:e.start]...)
	next = append(next, e.inserted...)
	next = append(next, b.data[end:]...)
	b.data = next
	b.rev++
	return Change{Kind: kind, Revision: b.rev, Start: e.start, End: end, Inserted: int64(len(e.inserted))}
}

func (b *Buffer) notify(c Change) {
	b.subMu.Lock()
	ids := make([]uint64, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(Change), len(ids))
	for i, id := range ids {
		fns[i] = b.subs[id]
	}
	b.subMu.Unlock()
	for _, fn := range fns {
		fn(c)
	}
}

func (b *Buffer) checkRegion(start, end int64) error {
	if start < 0 || end < start || end > int64(len(b.data)) {
		return apperrors.InvalidRegion(start, end, int64(len(b.data)))
	}
	return nil
}
