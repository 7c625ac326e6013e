package sink

// ring keeps the last cap items pushed into it.
type ring[T any] struct {
	items []T
	next  int
	full  bool
}

func newRing[T any](n int) *ring[T] {
	return &ring[T]{items: make([]T, max(n, 0))}
}

func (r *ring[T]) push(v T) {
	if len(r.items) == 0 {
		return
	}
	r.items[r.next] = v
	r.next = (r.next + 1) % len(r.items)
	if r.next == 0 {
		r.full = true
	}
}

// slice returns the items oldest first.
func (r *ring[T]) slice() []T {
	if !r.full {
		return append([]T(nil), r.items[:r.next]...)
	}
	out := make([]T, 0, len(r.items))
	out = append(out, r.items[r.next:]...)
	return append(out, r.items[:r.next]...)
}
