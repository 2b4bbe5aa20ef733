// Package codec is the compression collaborator consumed as an external
// interface: Compress/DecompressArray. The engine only ever sees the tag
// stored on TensorMeta.SampleCompression; it does not interpret it.
//
// Compression is backed by github.com/klauspost/compress/zstd, a
// general-purpose block compressor suited to opaque, arbitrary-dtype
// tensor byte buffers (see DESIGN.md for how this was chosen).
package codec

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/kelvindb/tensorstore/pkg/dtype"
)

// Uncompressed is the sentinel tag for raw dtype byte serialization.
const Uncompressed = "UNCOMPRESSED"

// Zstd selects zstd compression of the raw sample bytes.
const Zstd = "zstd"

var (
	encoderOnce sync.Once
	encoder     *zstd.Encoder
	encoderErr  error

	decoderOnce sync.Once
	decoder     *zstd.Decoder
	decoderErr  error
)

func getEncoder() (*zstd.Encoder, error) {
	encoderOnce.Do(func() {
		encoder, encoderErr = zstd.NewWriter(nil)
	})
	return encoder, encoderErr
}

func getDecoder() (*zstd.Decoder, error) {
	decoderOnce.Do(func() {
		decoder, decoderErr = zstd.NewReader(nil)
	})
	return decoder, decoderErr
}

// Compress encodes buf according to tag. UNCOMPRESSED is a passthrough.
func Compress(buf []byte, tag string) ([]byte, error) {
	switch tag {
	case "", Uncompressed:
		return buf, nil
	case Zstd:
		enc, err := getEncoder()
		if err != nil {
			return nil, fmt.Errorf("codec: zstd encoder: %w", err)
		}
		return enc.EncodeAll(buf, nil), nil
	default:
		return nil, fmt.Errorf("codec: unknown compression tag %q", tag)
	}
}

// DecompressArray decodes data according to tag and reinterprets the result
// as a dtype.View of shape/dt.
func DecompressArray(data []byte, tag string, shape dtype.Shape, dt dtype.Dtype) (dtype.View, error) {
	switch tag {
	case "", Uncompressed:
		return dtype.View{Buf: data, Shape: shape, Dtype: dt}, nil
	case Zstd:
		dec, err := getDecoder()
		if err != nil {
			return dtype.View{}, fmt.Errorf("codec: zstd decoder: %w", err)
		}
		out, err := dec.DecodeAll(data, make([]byte, 0, shape.NumBytes(dt)))
		if err != nil {
			return dtype.View{}, fmt.Errorf("codec: zstd decode: %w", err)
		}
		return dtype.View{Buf: out, Shape: shape, Dtype: dt}, nil
	default:
		return dtype.View{}, fmt.Errorf("codec: unknown compression tag %q", tag)
	}
}
