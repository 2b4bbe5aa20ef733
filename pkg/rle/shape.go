package rle

import (
	"encoding/binary"
	"fmt"

	"github.com/kelvindb/tensorstore/pkg/dtype"
)

// ShapeEncoder maps local sample index -> shape tuple, run-length encoded
// over consecutive samples that share an identical shape.
type ShapeEncoder struct {
	enc *RunEncoder[shapeKey]
}

// shapeKey is a comparable stand-in for dtype.Shape (slices aren't
// comparable in Go), built by writing each dimension as 8 big-endian bytes
// followed by a ',' marker; the fixed 9-byte stride keeps keys unambiguous.
type shapeKey string

func keyOf(s dtype.Shape) shapeKey {
	b := make([]byte, 0, len(s)*9)
	for _, d := range s {
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], uint64(d))
		b = append(b, tmp[:]...)
		b = append(b, ',')
	}
	return shapeKey(b)
}

func NewShapeEncoder() *ShapeEncoder {
	return &ShapeEncoder{enc: NewRunEncoder[shapeKey]()}
}

// Append registers n samples of the given shape, contiguous with whatever
// was previously appended.
func (s *ShapeEncoder) Append(shape dtype.Shape, n int64) {
	s.enc.Append(keyOf(shape), n)
}

// At returns the shape for local index i.
func (s *ShapeEncoder) At(i int64) (dtype.Shape, bool) {
	k, ok := s.enc.At(i)
	if !ok {
		return nil, false
	}
	return decodeKey(k), true
}

func decodeKey(k shapeKey) dtype.Shape {
	raw := []byte(k)
	var shape dtype.Shape
	for len(raw) > 0 {
		if len(raw) < 9 || raw[8] != ',' {
			break
		}
		shape = append(shape, int64(binary.BigEndian.Uint64(raw[:8])))
		raw = raw[9:]
	}
	return shape
}

func (s *ShapeEncoder) NumRuns() int      { return s.enc.NumRuns() }
func (s *ShapeEncoder) NumSamples() int64 { return s.enc.NumSamples() }

// MarshalBinary serializes the encoder as: rowCount(4) then, per row,
// arity(2) + dims(8 each) + lastIndex(8).
func (s *ShapeEncoder) MarshalBinary() ([]byte, error) {
	rows := s.enc.Rows()
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(len(rows)))
	for _, r := range rows {
		shape := decodeKey(r.Value)
		head := make([]byte, 2)
		binary.BigEndian.PutUint16(head, uint16(len(shape)))
		buf = append(buf, head...)
		for _, d := range shape {
			var tmp [8]byte
			binary.BigEndian.PutUint64(tmp[:], uint64(d))
			buf = append(buf, tmp[:]...)
		}
		var li [8]byte
		binary.BigEndian.PutUint64(li[:], uint64(r.LastIndex))
		buf = append(buf, li[:]...)
	}
	return buf, nil
}

// UnmarshalBinary is the inverse of MarshalBinary.
func (s *ShapeEncoder) UnmarshalBinary(data []byte) error {
	if len(data) < 4 {
		return fmt.Errorf("rle: shape blob too short")
	}
	n := int(binary.BigEndian.Uint32(data[:4]))
	data = data[4:]
	rows := make([]Row[shapeKey], 0, n)
	for i := 0; i < n; i++ {
		if len(data) < 2 {
			return fmt.Errorf("rle: truncated shape blob")
		}
		arity := int(binary.BigEndian.Uint16(data[:2]))
		data = data[2:]
		shape := make(dtype.Shape, arity)
		if len(data) < arity*8+8 {
			return fmt.Errorf("rle: truncated shape blob row")
		}
		for d := 0; d < arity; d++ {
			shape[d] = int64(binary.BigEndian.Uint64(data[:8]))
			data = data[8:]
		}
		lastIndex := int64(binary.BigEndian.Uint64(data[:8]))
		data = data[8:]
		rows = append(rows, Row[shapeKey]{Value: keyOf(shape), LastIndex: lastIndex})
	}
	s.enc = NewRunEncoder[shapeKey]()
	s.enc.SetRows(rows)
	return nil
}
