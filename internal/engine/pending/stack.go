// Package pending provides the LIFO backlog used by the terrain and normal map
// queues. The most recently pushed entry is served first.
package pending

// Stack is a LIFO stack. Staleness is checked when popping, never on push.
type Stack[T any] struct {
	items []T
}

// Push adds v on top.
func (s *Stack[T]) Push(v T) {
	s.items = append(s.items, v)
}

// Len returns the number of entries, stale ones included.
func (s *Stack[T]) Len() int {
	return len(s.items)
}

// Pop removes entries from the top until keep accepts one and returns it.
// Rejected entries are dropped. ok is false when the stack runs empty.
func (s *Stack[T]) Pop(keep func(T) bool) (v T, ok bool) {
	var zero T
	for len(s.items) > 0 {
		last := len(s.items) - 1
		v = s.items[last]
		s.items[last] = zero
		s.items = s.items[:last]
		if keep == nil || keep(v) {
			return v, true
		}
	}
	return zero, false
}

// Clear drops every entry.
func (s *Stack[T]) Clear() {
	clear(s.items)
	s.items = s.items[:0]
}

// Remove drops all entries matching match and returns how many were dropped.
func (s *Stack[T]) Remove(match func(T) bool) int {
	var zero T
	n := 0
	for _, v := range s.items {
		if !match(v) {
			s.items[n] = v
			n++
		}
	}
	removed := len(s.items) - n
	for i := n; i < len(s.items); i++ {
		s.items[i] = zero
	}
	s.items = s.items[:n]
	return removed
}
