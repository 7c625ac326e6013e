package stream

import "context"

// Iterator provides pull-based sequential access to a stream of values.
type Iterator[T any] interface {
	// Next returns the next value. Returns (zero, false, nil) when exhausted.
	Next(ctx context.Context) (T, bool, error)
	// Close releases any resources held by the iterator.
	Close() error
}

// Stream is a lazy, pull-based sequence of values.
type Stream[T any] struct {
	create func(ctx context.Context) Iterator[T]
}

// --- Constructors ---

// From creates a stream from an existing Iterator. The resulting stream can
// only be iterated once.
func From[T any](iter Iterator[T]) *Stream[T] {
	return &Stream[T]{
		create: func(_ context.Context) Iterator[T] {
			return iter
		},
	}
}

// FromSlice creates a stream over a slice of values.
func FromSlice[T any](items []T) *Stream[T] {
	return &Stream[T]{
		create: func(_ context.Context) Iterator[T] {
			return &sliceIter[T]{items: items}
		},
	}
}

// FromFunc creates a stream from a factory that produces an Iterator.
func FromFunc[T any](fn func(ctx context.Context) Iterator[T]) *Stream[T] {
	return &Stream[T]{create: fn}
}

// Func adapts a next function and an optional close function to an Iterator.
func Func[T any](next func(ctx context.Context) (T, bool, error), closeFn func() error) Iterator[T] {
	return &funcIter[T]{next: next, close: closeFn}
}

// --- Terminals ---

// Collect pulls every value and returns them as a slice. Values pulled before
// an error are returned along with it.
func Collect[T any](ctx context.Context, s *Stream[T]) ([]T, error) {
	iter := s.create(ctx)
	defer iter.Close()
	return CollectIter(ctx, iter)
}

// CollectIter drains iter into a slice without closing it.
func CollectIter[T any](ctx context.Context, iter Iterator[T]) ([]T, error) {
	var out []T
	for {
		val, ok, err := iter.Next(ctx)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, val)
	}
}

// ForEach pulls all values and calls fn for each.
func ForEach[T any](ctx context.Context, s *Stream[T], fn func(context.Context, T) error) error {
	iter := s.create(ctx)
	defer iter.Close()
	for {
		val, ok, err := iter.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := fn(ctx, val); err != nil {
			return err
		}
	}
}

// Count pulls every value and returns how many there were.
func Count[T any](ctx context.Context, s *Stream[T]) (int, error) {
	n := 0
	err := ForEach(ctx, s, func(context.Context, T) error {
		n++
		return nil
	})
	return n, err
}

// Iter returns a fresh Iterator for this stream. The caller must Close() it.
func (s *Stream[T]) Iter(ctx context.Context) Iterator[T] {
	return s.create(ctx)
}

// --- Internal iterators ---

type sliceIter[T any] struct {
	items []T
	index int
}

func (it *sliceIter[T]) Next(_ context.Context) (T, bool, error) {
	if it.index >= len(it.items) {
		var zero T
		return zero, false, nil
	}
	val := it.items[it.index]
	it.index++
	return val, true, nil
}

func (it *sliceIter[T]) Close() error { return nil }

type funcIter[T any] struct {
	next  func(ctx context.Context) (T, bool, error)
	close func() error
}

func (it *funcIter[T]) Next(ctx context.Context) (T, bool, error) { return it.next(ctx) }

func (it *funcIter[T]) Close() error {
	if it.close == nil {
		return nil
	}
	fn := it.close
	it.close = nil
	return fn()
}
