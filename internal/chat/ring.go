package chat

// ring is a fixed-capacity circular buffer. When full, Push overwrites the
// oldest entry. It is not safe for concurrent use; Controller guards it.
type ring[T any] struct {
	items []T
	head  int // next write position
	count int
}

func newRing[T any](capacity int) *ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &ring[T]{items: make([]T, capacity)}
}

func (r *ring[T]) Push(item T) {
	r.items[r.head] = item
	r.head = (r.head + 1) % len(r.items)
	if r.count < len(r.items) {
		r.count++
	}
}

// All returns a copy of the entries, oldest first.
func (r *ring[T]) All() []T {
	if r.count == 0 {
		return nil
	}
	out := make([]T, r.count)
	start := 0
	if r.count == len(r.items) {
		start = r.head
	}
	for i := range out {
		out[i] = r.items[(start+i)%len(r.items)]
	}
	return out
}

// Last returns a pointer to the newest entry, or nil when empty.
// The pointer is valid until the next Push or Clear.
func (r *ring[T]) Last() *T {
	if r.count == 0 {
		return nil
	}
	return &r.items[(r.head-1+len(r.items))%len(r.items)]
}

func (r *ring[T]) Len() int { return r.count }

func (r *ring[T]) Cap() int { return len(r.items) }

func (r *ring[T]) Clear() {
	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.head = 0
	r.count = 0
}
