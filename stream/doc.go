// Package stream provides composable, pull-based stream primitives.
//
// Streams are lazy: no work happens until values are pulled via Collect,
// ForEach or an Iterator obtained from Iter. Each stage pulls from the previous
// stage on demand, so a consumer that stops early never forces the rest of the
// stream to be evaluated.
//
// A Stream is a recipe, not a cursor. Every call to Iter creates fresh
// iterator state, so a stream built from a restartable source can be replayed.
//
// # Operators
//
// Synchronous (single-goroutine):
//
//   - Map: transform each value
//   - Filter: keep values matching a predicate
//   - Tap: side-effect without altering the value (counting, progress)
//   - Take: stop after n values
//   - Transform: stateful stage with an end-of-stream flush (parsers)
//   - Barrier: materialise the whole upstream before emitting (sort, aggregate)
//
// Concurrent:
//
//   - Buffer: prefetch from the upstream on a goroutine; Close stops it
//
// # Usage
//
//	src := stream.FromSlice([]int{1, 2, 3, 4, 5})
//	doubled := stream.Map(src, func(_ context.Context, n int) (int, error) {
//	    return n * 2, nil
//	})
//	firstTwo := stream.Take(doubled, 2)
//	results, _ := stream.Collect(ctx, firstTwo)
package stream
