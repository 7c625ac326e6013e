package stream

import "context"

// Buffer evaluates s on a background goroutine, keeping up to size values
// ready ahead of the consumer. Close stops the producer and waits for it
// before closing the upstream iterator.
func Buffer[T any](s *Stream[T], size int) *Stream[T] {
	return &Stream[T]{
		create: func(ctx context.Context) Iterator[T] {
			ctx, cancel := context.WithCancel(ctx)
			it := &prefetchIter[T]{
				source: s.create(ctx),
				items:  make(chan prefetched[T], max(size, 1)),
				cancel: cancel,
				done:   make(chan struct{}),
			}
			go it.produce(ctx)
			return it
		},
	}
}

type prefetched[T any] struct {
	val T
	err error
}

type prefetchIter[T any] struct {
	source Iterator[T]
	items  chan prefetched[T]
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

func (it *prefetchIter[T]) produce(ctx context.Context) {
	defer close(it.done)
	defer close(it.items)
	for {
		val, ok, err := it.source.Next(ctx)
		if !ok && err == nil {
			return
		}
		select {
		case it.items <- prefetched[T]{val: val, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

func (it *prefetchIter[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	select {
	case item, open := <-it.items:
		if !open {
			return zero, false, nil
		}
		if item.err != nil {
			return zero, false, item.err
		}
		return item.val, true, nil
	case <-ctx.Done():
		return zero, false, ctx.Err()
	}
}

func (it *prefetchIter[T]) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	it.cancel()
	<-it.done
	return it.source.Close()
}
