package pending

import "testing"

func TestStackLIFO(t *testing.T) {
	var s Stack[int]
	for i := 1; i <= 3; i++ {
		s.Push(i)
	}

	for _, want := range []int{3, 2, 1} {
		v, ok := s.Pop(nil)
		if !ok || v != want {
			t.Errorf("Pop() = %d, %v; want %d", v, ok, want)
		}
	}
	if _, ok := s.Pop(nil); ok {
		t.Error("Pop on empty stack should fail")
	}
}

func TestStackSkipsStale(t *testing.T) {
	var s Stack[int]
	for i := 1; i <= 5; i++ {
		s.Push(i)
	}

	odd := func(v int) bool { return v%2 == 1 }

	v, ok := s.Pop(odd)
	if !ok || v != 5 {
		t.Fatalf("Pop() = %d, %v; want 5", v, ok)
	}
	v, ok = s.Pop(odd)
	if !ok || v != 3 {
		t.Fatalf("Pop() = %d, %v; want 3 (4 is stale)", v, ok)
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}

	never := func(int) bool { return false }
	if _, ok := s.Pop(never); ok {
		t.Error("Pop should fail when every entry is stale")
	}
	if s.Len() != 0 {
		t.Errorf("stale entries should be dropped, Len() = %d", s.Len())
	}
}

func TestStackClearAndRemove(t *testing.T) {
	var s Stack[string]
	s.Push("a")
	s.Push("b")
	s.Push("a")

	if n := s.Remove(func(v string) bool { return v == "a" }); n != 2 {
		t.Errorf("Remove() = %d, want 2", n)
	}
	if v, _ := s.Pop(nil); v != "b" {
		t.Errorf("Pop() = %q, want b", v)
	}

	s.Push("c")
	s.Clear()
	if s.Len() != 0 {
		t.Errorf("Len() after Clear = %d", s.Len())
	}
}
