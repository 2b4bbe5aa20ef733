package rle

import "testing"

func TestRunEncoder_MergesContiguousEqualValues(t *testing.T) {
	e := NewRunEncoder[string]()
	e.Append("a", 3)
	e.Append("a", 2)
	e.Append("b", 1)

	if got := e.NumRuns(); got != 2 {
		t.Fatalf("expected 2 runs, got %d", got)
	}
	if got := e.NumSamples(); got != 6 {
		t.Fatalf("expected 6 samples, got %d", got)
	}

	for i := int64(0); i < 5; i++ {
		v, ok := e.At(i)
		if !ok || v != "a" {
			t.Errorf("At(%d) = %q, %v; want \"a\", true", i, v, ok)
		}
	}
	v, ok := e.At(5)
	if !ok || v != "b" {
		t.Errorf("At(5) = %q, %v; want \"b\", true", v, ok)
	}
	if _, ok := e.At(6); ok {
		t.Errorf("At(6) should be out of range")
	}
}

func TestRunEncoder_EmptyEncoder(t *testing.T) {
	e := NewRunEncoder[int]()
	if e.NumRuns() != 0 || e.NumSamples() != 0 {
		t.Fatalf("fresh encoder should report zero runs and samples")
	}
	if _, ok := e.At(0); ok {
		t.Fatalf("At(0) on empty encoder should fail")
	}
}
