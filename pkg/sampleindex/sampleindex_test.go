package sampleindex

import "testing"

func collect(ix *Index, length int64) []int64 {
	var out []int64
	ix.Values0Indices(length)(func(i int64) bool {
		out = append(out, i)
		return true
	})
	return out
}

func TestSingle(t *testing.T) {
	ix := Single(5)
	if !ix.IsScalar() {
		t.Fatalf("Single should be scalar")
	}
	got := collect(ix, 10)
	if len(got) != 1 || got[0] != 5 {
		t.Fatalf("got %v, want [5]", got)
	}
}

func TestRange(t *testing.T) {
	ix, err := Range(0, 10, 2)
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	got := collect(ix, 10)
	want := []int64{0, 2, 4, 6, 8}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestRange_BoundedByLength(t *testing.T) {
	ix, _ := Range(0, 100, 1)
	got := collect(ix, 3)
	if len(got) != 3 {
		t.Fatalf("expected selection to be bounded by length, got %v", got)
	}
}

func TestRange_RejectsNonPositiveStep(t *testing.T) {
	if _, err := Range(0, 10, 0); err == nil {
		t.Fatalf("expected zero step to be rejected")
	}
}

func TestList_PreservesOrder(t *testing.T) {
	ix := List([]int64{3, 1, 2})
	got := collect(ix, 10)
	want := []int64{3, 1, 2}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
