package normalmap

import "sync"

// Key identifies one holder of a Lock.
type Key uint64

// Lock is a set of held keys. It is free when no key is held. Holders
// release only their own key, so independent callers can suspend work
// without coordinating.
type Lock struct {
	mu   sync.Mutex
	held map[Key]struct{}
	next Key
}

// NewLock creates a free lock.
func NewLock() *Lock {
	return &Lock{held: make(map[Key]struct{})}
}

// NewKey allocates a key unique to this lock.
func (l *Lock) NewKey() Key {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next++
	return l.next
}

// Lock holds k. Holding a key twice is a no-op.
func (l *Lock) Lock(k Key) {
	l.mu.Lock()
	l.held[k] = struct{}{}
	l.mu.Unlock()
}

// Free releases k.
func (l *Lock) Free(k Key) {
	l.mu.Lock()
	delete(l.held, k)
	l.mu.Unlock()
}

// IsFree reports whether no key is held.
func (l *Lock) IsFree() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.held) == 0
}
