package snapshot

func newRing[T any](capacity uint64) *ring[T] {
	return &ring[T]{
		capacity: capacity,
	}
}

// ring keeps the most recent capacity items. Pushing into the full ring evicts the oldest one.
// Items slice grows on demand, so capacity costs nothing until it is used.
type ring[T any] struct {
	items []T

	capacity uint64
	headPtr  uint64
}

func (r *ring[T]) Push(item T) (T, bool) {
	var evicted T
	if r.capacity == 0 {
		return item, true
	}

	if uint64(len(r.items)) < r.capacity {
		r.items = append(r.items, item)
		return evicted, false
	}

	evicted = r.items[r.headPtr]
	r.items[r.headPtr] = item
	r.headPtr++
	if r.headPtr == r.capacity {
		r.headPtr = 0
	}
	return evicted, true
}

// At returns i-th item counting from the oldest one.
func (r *ring[T]) At(i uint64) T {
	length := uint64(len(r.items))
	if i >= length {
		panic("ring index out of range")
	}
	return r.items[(r.headPtr+i)%length]
}

func (r *ring[T]) Len() uint64 {
	return uint64(len(r.items))
}

func (r *ring[T]) Capacity() uint64 {
	return r.capacity
}

func (r *ring[T]) Reset() {
	clear(r.items)
	r.items = r.items[:0]
	r.headPtr = 0
}
