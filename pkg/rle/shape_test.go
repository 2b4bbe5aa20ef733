package rle

import (
	"testing"

	"github.com/kelvindb/tensorstore/pkg/dtype"
)

func TestShapeEncoder_RunsAndRoundTrip(t *testing.T) {
	s := NewShapeEncoder()
	s.Append(dtype.Shape{4}, 3)
	s.Append(dtype.Shape{4}, 2)
	s.Append(dtype.Shape{8}, 1)

	if s.NumRuns() != 2 {
		t.Fatalf("expected 2 runs, got %d", s.NumRuns())
	}
	if s.NumSamples() != 6 {
		t.Fatalf("expected 6 samples, got %d", s.NumSamples())
	}

	blob, err := s.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}

	s2 := NewShapeEncoder()
	if err := s2.UnmarshalBinary(blob); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}

	for i := int64(0); i < 5; i++ {
		shape, ok := s2.At(i)
		if !ok || !shape.Equal(dtype.Shape{4}) {
			t.Errorf("At(%d) = %v, %v; want {4}, true", i, shape, ok)
		}
	}
	shape, ok := s2.At(5)
	if !ok || !shape.Equal(dtype.Shape{8}) {
		t.Errorf("At(5) = %v, %v; want {8}, true", shape, ok)
	}
}
