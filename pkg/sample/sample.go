// Package sample models the variable-sized input a ChunkEngine accepts and
// reduces it to one canonical byte-buffer form before it ever reaches the
// packing algorithm.
//
// The source system dispatches on the input's runtime type (array, scalar,
// or a pre-built sample wrapper). In this statically typed rewrite that
// implicit dispatch becomes an explicit tagged sum: exactly one of Raw,
// Array or Scalar is populated, and Normalize reduces all three to the same
// Buffer shape.
package sample

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/kelvindb/tensorstore/pkg/dtype"
)

// Kind identifies which arm of the Sample sum is populated.
type Kind uint8

const (
	KindRaw Kind = iota
	KindArray
	KindScalar
)

// Sample is the tagged sum of the three ways a caller may hand data to the
// engine. Construct one with NewRaw, NewArray, or NewScalar.
type Sample struct {
	kind   Kind
	raw    Buffer
	arrVal Array
	sclVal Scalar
}

// Buffer is a pre-serialized sample: the caller already produced the exact
// bytes that belong in a chunk (e.g. loaded from disk, or already
// compressed upstream).
type Buffer struct {
	Bytes []byte
	Shape dtype.Shape
	Dtype dtype.Dtype
}

// Array is a dense, contiguous, row-major value of a known dtype and shape.
// Values holds the elements in the dtype's native Go representation; Buffer
// materializes it to bytes lazily via Normalize.
type Array struct {
	Shape  dtype.Shape
	Dtype  dtype.Dtype
	Values any // []uint8, []int32, []float32, []float64, ...
}

// Scalar is a single element of a known dtype (an Array with an empty
// shape).
type Scalar struct {
	Dtype dtype.Dtype
	Value any
}

func NewRaw(b Buffer) Sample    { return Sample{kind: KindRaw, raw: b} }
func NewArray(a Array) Sample   { return Sample{kind: KindArray, arrVal: a} }
func NewScalar(s Scalar) Sample { return Sample{kind: KindScalar, sclVal: s} }

// Normalize reduces any Sample arm to its canonical Buffer: raw bytes in the
// dtype's native byte layout, little-endian, plus the shape and dtype
// extracted from the input. This is the single normalization function the
// design notes call for — every other component only ever sees a Buffer.
func Normalize(s Sample) (Buffer, error) {
	switch s.kind {
	case KindRaw:
		return s.raw, nil
	case KindScalar:
		buf, err := encodeValues(s.sclVal.Dtype, scalarSlice(s.sclVal.Value))
		if err != nil {
			return Buffer{}, err
		}
		return Buffer{Bytes: buf, Shape: dtype.Shape{}, Dtype: s.sclVal.Dtype}, nil
	case KindArray:
		buf, err := encodeValues(s.arrVal.Dtype, s.arrVal.Values)
		if err != nil {
			return Buffer{}, err
		}
		return Buffer{Bytes: buf, Shape: s.arrVal.Shape, Dtype: s.arrVal.Dtype}, nil
	default:
		return Buffer{}, fmt.Errorf("sample: type not supported (unrecognized sample kind %d)", s.kind)
	}
}

// scalarSlice boxes a single scalar value into the length-1, dtype-typed
// slice encodeValues expects, so Scalar and Array samples share one
// encoding path.
func scalarSlice(v any) any {
	switch x := v.(type) {
	case uint8:
		return []uint8{x}
	case int8:
		return []int8{x}
	case uint16:
		return []uint16{x}
	case int16:
		return []int16{x}
	case uint32:
		return []uint32{x}
	case int32:
		return []int32{x}
	case uint64:
		return []uint64{x}
	case int64:
		return []int64{x}
	case float32:
		return []float32{x}
	case float64:
		return []float64{x}
	case bool:
		return []bool{x}
	default:
		return x
	}
}

// encodeValues serializes a homogeneous slice of Go values into the raw
// byte layout for dt, little-endian, using math.Float32bits/Float64bits
// for the IEEE-754 bit patterns.
func encodeValues(dt dtype.Dtype, values any) ([]byte, error) {
	switch v := values.(type) {
	case []uint8:
		return v, nil
	case []int8:
		out := make([]byte, len(v))
		for i, x := range v {
			out[i] = byte(x)
		}
		return out, nil
	case []bool:
		out := make([]byte, len(v))
		for i, x := range v {
			if x {
				out[i] = 1
			}
		}
		return out, nil
	case []uint16:
		out := make([]byte, len(v)*2)
		for i, x := range v {
			binary.LittleEndian.PutUint16(out[i*2:], x)
		}
		return out, nil
	case []int16:
		out := make([]byte, len(v)*2)
		for i, x := range v {
			binary.LittleEndian.PutUint16(out[i*2:], uint16(x))
		}
		return out, nil
	case []uint32:
		out := make([]byte, len(v)*4)
		for i, x := range v {
			binary.LittleEndian.PutUint32(out[i*4:], x)
		}
		return out, nil
	case []int32:
		out := make([]byte, len(v)*4)
		for i, x := range v {
			binary.LittleEndian.PutUint32(out[i*4:], uint32(x))
		}
		return out, nil
	case []uint64:
		out := make([]byte, len(v)*8)
		for i, x := range v {
			binary.LittleEndian.PutUint64(out[i*8:], x)
		}
		return out, nil
	case []int64:
		out := make([]byte, len(v)*8)
		for i, x := range v {
			binary.LittleEndian.PutUint64(out[i*8:], uint64(x))
		}
		return out, nil
	case []float32:
		out := make([]byte, len(v)*4)
		for i, x := range v {
			binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(x))
		}
		return out, nil
	case []float64:
		out := make([]byte, len(v)*8)
		for i, x := range v {
			binary.LittleEndian.PutUint64(out[i*8:], math.Float64bits(x))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("sample: type not supported: unexpected Go type %T for dtype %s", values, dt)
	}
}

// DecodeView reinterprets raw bytes as a dtype.View of the given shape,
// the inverse of Normalize for the uncompressed path.
func DecodeView(buf []byte, shape dtype.Shape, dt dtype.Dtype) dtype.View {
	return dtype.View{Buf: buf, Shape: shape, Dtype: dt}
}
