package chat

import (
	"slices"
	"testing"
)

func TestRing_Basic(t *testing.T) {
	r := newRing[int](5)

	if r.Len() != 0 {
		t.Errorf("expected len 0, got %d", r.Len())
	}
	if r.Cap() != 5 {
		t.Errorf("expected cap 5, got %d", r.Cap())
	}
	if r.Last() != nil {
		t.Error("expected nil Last on empty ring")
	}

	r.Push(1)
	r.Push(2)
	r.Push(3)

	if got := r.All(); !slices.Equal(got, []int{1, 2, 3}) {
		t.Errorf("expected [1 2 3], got %v", got)
	}
	if *r.Last() != 3 {
		t.Errorf("expected last 3, got %d", *r.Last())
	}
}

func TestRing_Overflow(t *testing.T) {
	r := newRing[int](3)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}

	if r.Len() != 3 {
		t.Errorf("expected len 3, got %d", r.Len())
	}
	if got := r.All(); !slices.Equal(got, []int{3, 4, 5}) {
		t.Errorf("expected [3 4 5], got %v", got)
	}
	if *r.Last() != 5 {
		t.Errorf("expected last 5, got %d", *r.Last())
	}
}

func TestRing_LastModifiesInPlace(t *testing.T) {
	r := newRing[string](2)
	r.Push("a")
	r.Push("b")
	r.Push("c")

	*r.Last() += "!"

	if got := r.All(); !slices.Equal(got, []string{"b", "c!"}) {
		t.Errorf("expected [b c!], got %v", got)
	}
}

func TestRing_Clear(t *testing.T) {
	r := newRing[int](3)
	r.Push(1)
	r.Push(2)
	r.Clear()

	if r.Len() != 0 {
		t.Errorf("expected len 0 after clear, got %d", r.Len())
	}
	if r.All() != nil {
		t.Errorf("expected nil after clear, got %v", r.All())
	}

	r.Push(9)
	if got := r.All(); !slices.Equal(got, []int{9}) {
		t.Errorf("expected [9], got %v", got)
	}
}

func TestRing_ZeroCapacity(t *testing.T) {
	r := newRing[int](0)
	if r.Cap() != 1 {
		t.Errorf("expected cap 1, got %d", r.Cap())
	}
	r.Push(1)
	r.Push(2)
	if got := r.All(); !slices.Equal(got, []int{2}) {
		t.Errorf("expected [2], got %v", got)
	}
}
