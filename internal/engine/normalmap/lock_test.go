package normalmap

import "testing"

func TestLockKeys(t *testing.T) {
	l := NewLock()
	if !l.IsFree() {
		t.Fatal("new lock is held")
	}

	a, b := l.NewKey(), l.NewKey()
	if a == b {
		t.Fatalf("keys not unique: %d %d", a, b)
	}

	l.Lock(a)
	l.Lock(a)
	l.Lock(b)
	l.Free(a)
	if l.IsFree() {
		t.Error("lock free while b is still held")
	}
	l.Free(b)
	if !l.IsFree() {
		t.Error("lock held after every key was freed")
	}

	l.Free(a)
	if !l.IsFree() {
		t.Error("freeing an unheld key changed the lock")
	}
}
