package stream

import "context"

// Map transforms each value using fn.
func Map[I, O any](s *Stream[I], fn func(context.Context, I) (O, error)) *Stream[O] {
	return &Stream[O]{
		create: func(ctx context.Context) Iterator[O] {
			return &mapIter[I, O]{source: s.create(ctx), fn: fn}
		},
	}
}

// Filter keeps only values that satisfy the predicate.
func Filter[T any](s *Stream[T], fn func(T) bool) *Stream[T] {
	return &Stream[T]{
		create: func(ctx context.Context) Iterator[T] {
			return &filterIter[T]{source: s.create(ctx), fn: fn}
		},
	}
}

// Tap calls fn as a side-effect for each value, then passes the value through
// unchanged.
func Tap[T any](s *Stream[T], fn func(context.Context, T) error) *Stream[T] {
	return &Stream[T]{
		create: func(ctx context.Context) Iterator[T] {
			return &tapIter[T]{source: s.create(ctx), fn: fn}
		},
	}
}

// Take yields at most n values. The upstream is not pulled past the nth value.
func Take[T any](s *Stream[T], n int) *Stream[T] {
	return &Stream[T]{
		create: func(ctx context.Context) Iterator[T] {
			return &takeIter[T]{source: s.create(ctx), left: n}
		},
	}
}

// Stage is the per-iteration state of a Transform. Step may emit any number of
// values for one input; Finish is called once at end of input to flush
// whatever the stage still holds.
type Stage[I, O any] interface {
	Step(ctx context.Context, in I, emit func(O)) error
	Finish(ctx context.Context, emit func(O)) error
}

// Transform runs a stateful stage over s. newStage is called once per
// iteration so replays start from clean state.
func Transform[I, O any](s *Stream[I], newStage func() Stage[I, O]) *Stream[O] {
	return &Stream[O]{
		create: func(ctx context.Context) Iterator[O] {
			return &transformIter[I, O]{source: s.create(ctx), stage: newStage()}
		},
	}
}

// Barrier materialises the whole upstream on the first pull, hands it to fn and
// then yields fn's output. Nothing is emitted before the upstream is exhausted.
func Barrier[I, O any](s *Stream[I], fn func(context.Context, []I) ([]O, error)) *Stream[O] {
	return &Stream[O]{
		create: func(ctx context.Context) Iterator[O] {
			return &barrierIter[I, O]{source: s.create(ctx), fn: fn}
		},
	}
}

// --- Iterator implementations ---

type mapIter[I, O any] struct {
	source Iterator[I]
	fn     func(context.Context, I) (O, error)
}

func (it *mapIter[I, O]) Next(ctx context.Context) (result O, ok bool, err error) {
	val, ok, err := it.source.Next(ctx)
	if err != nil || !ok {
		var zero O
		return zero, false, err
	}
	out, err := it.fn(ctx, val)
	if err != nil {
		var zero O
		return zero, false, err
	}
	return out, true, nil
}

func (it *mapIter[I, O]) Close() error { return it.source.Close() }

type filterIter[T any] struct {
	source Iterator[T]
	fn     func(T) bool
}

func (it *filterIter[T]) Next(ctx context.Context) (result T, ok bool, err error) {
	for {
		val, ok, err := it.source.Next(ctx)
		if err != nil || !ok {
			return val, false, err
		}
		if it.fn(val) {
			return val, true, nil
		}
	}
}

func (it *filterIter[T]) Close() error { return it.source.Close() }

type tapIter[T any] struct {
	source Iterator[T]
	fn     func(context.Context, T) error
}

func (it *tapIter[T]) Next(ctx context.Context) (result T, ok bool, err error) {
	val, ok, err := it.source.Next(ctx)
	if err != nil || !ok {
		return val, ok, err
	}
	if err := it.fn(ctx, val); err != nil {
		var zero T
		return zero, false, err
	}
	return val, true, nil
}

func (it *tapIter[T]) Close() error { return it.source.Close() }

type takeIter[T any] struct {
	source Iterator[T]
	left   int
}

func (it *takeIter[T]) Next(ctx context.Context) (result T, ok bool, err error) {
	if it.left <= 0 {
		var zero T
		return zero, false, nil
	}
	val, ok, err := it.source.Next(ctx)
	if ok {
		it.left--
	}
	return val, ok, err
}

func (it *takeIter[T]) Close() error { return it.source.Close() }

type transformIter[I, O any] struct {
	source  Iterator[I]
	stage   Stage[I, O]
	pending []O
	done    bool
}

func (it *transformIter[I, O]) emit(v O) { it.pending = append(it.pending, v) }

func (it *transformIter[I, O]) Next(ctx context.Context) (result O, ok bool, err error) {
	for len(it.pending) == 0 {
		if it.done {
			var zero O
			return zero, false, nil
		}
		val, ok, err := it.source.Next(ctx)
		if err != nil {
			var zero O
			return zero, false, err
		}
		if !ok {
			it.done = true
			if err := it.stage.Finish(ctx, it.emit); err != nil {
				var zero O
				return zero, false, err
			}
			continue
		}
		if err := it.stage.Step(ctx, val, it.emit); err != nil {
			var zero O
			return zero, false, err
		}
	}
	out := it.pending[0]
	var zero O
	it.pending[0] = zero
	it.pending = it.pending[1:]
	return out, true, nil
}

func (it *transformIter[I, O]) Close() error { return it.source.Close() }

type barrierIter[I, O any] struct {
	source Iterator[I]
	fn     func(context.Context, []I) ([]O, error)
	out    []O
	filled bool
	index  int
}

func (it *barrierIter[I, O]) Next(ctx context.Context) (result O, ok bool, err error) {
	if !it.filled {
		all, err := CollectIter(ctx, it.source)
		if err != nil {
			var zero O
			return zero, false, err
		}
		if it.out, err = it.fn(ctx, all); err != nil {
			var zero O
			return zero, false, err
		}
		it.filled = true
	}
	if it.index >= len(it.out) {
		var zero O
		return zero, false, nil
	}
	val := it.out[it.index]
	it.index++
	return val, true, nil
}

func (it *barrierIter[I, O]) Close() error { return it.source.Close() }
