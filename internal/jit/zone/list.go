package zone

// List is an ordered, owned sequence of zone-allocated elements, replacing
// the intrusive prev/next pointers the JIT's original source used for
// instruction and use-site chains (see spec §9 — "re-express as ordered
// sequences stored inside the owning interval/block, plus indices for
// cross-references"). The container is the owner; elements carry no
// ownership back-reference of their own.
type List[T any] struct {
	items []T
}

// Append adds v to the end of the list.
func (l *List[T]) Append(v T) {
	l.items = append(l.items, v)
}

// Prepend adds v to the front of the list.
func (l *List[T]) Prepend(v T) {
	l.items = append(l.items, v)
	copy(l.items[1:], l.items[:len(l.items)-1])
	l.items[0] = v
}

// InsertAt inserts v so it becomes element i of the list.
func (l *List[T]) InsertAt(i int, v T) {
	l.items = append(l.items, v)
	copy(l.items[i+1:], l.items[i:len(l.items)-1])
	l.items[i] = v
}

// RemoveAt deletes the element at index i, preserving order.
func (l *List[T]) RemoveAt(i int) {
	l.items = append(l.items[:i], l.items[i+1:]...)
}

// Len returns the number of elements.
func (l *List[T]) Len() int { return len(l.items) }

// At returns the element at index i.
func (l *List[T]) At(i int) T { return l.items[i] }

// Set overwrites the element at index i.
func (l *List[T]) Set(i int, v T) { l.items[i] = v }

// Slice exposes the backing elements for read-only iteration. Callers must
// not retain it across a mutation of the list.
func (l *List[T]) Slice() []T { return l.items }

// Last returns the final element; ok is false for an empty list.
func (l *List[T]) Last() (v T, ok bool) {
	if len(l.items) == 0 {
		return v, false
	}
	return l.items[len(l.items)-1], true
}

// SortedInsert inserts v into a list kept sorted by less, preserving order:
// v goes after every element that is less than it.
func (l *List[T]) SortedInsert(v T, less func(a, b T) bool) {
	i := 0
	for i < len(l.items) && less(l.items[i], v) {
		i++
	}
	l.InsertAt(i, v)
}
