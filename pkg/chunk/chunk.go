// Package chunk implements Chunk (component A): a bounded, append-only
// container of concatenated sample payload bytes plus the per-sample shape
// and byte-range headers needed to recover any sample's slice.
//
// The binary layout is a fixed header, length-prefixed sections, and a
// trailing CRC32 footer over everything before it (header included):
//
//	[version(1) | shapesLen(4) | rangesLen(4) | shapes | ranges | data | crc32(4)]
package chunk

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/kelvindb/tensorstore/pkg/dtype"
	"github.com/kelvindb/tensorstore/pkg/rle"
)

// HeaderVersion is the current binary layout version.
const HeaderVersion = 1

// Chunk is the Chunk entity (component A).
type Chunk struct {
	data   []byte
	shapes *rle.ShapeEncoder
	ranges *rle.ByteRangeEncoder
}

// New returns an empty chunk.
func New() *Chunk {
	return &Chunk{
		shapes: rle.NewShapeEncoder(),
		ranges: rle.NewByteRangeEncoder(),
	}
}

// AppendSample copies bytes onto the chunk's data section. It fails if doing
// so would exceed maxChunkSize. It does not touch shapes or ranges — the
// caller follows up with UpdateHeaders once it knows how many samples and
// what shape the appended bytes represent.
func (c *Chunk) AppendSample(data []byte, maxChunkSize int64) error {
	if int64(len(c.data)+len(data)) > maxChunkSize {
		return fmt.Errorf("chunk: appending %d bytes would exceed max_chunk_size %d (have %d)",
			len(data), maxChunkSize, len(c.data))
	}
	c.data = append(c.data, data...)
	return nil
}

// UpdateHeaders registers numNewSamples contiguous samples of equal shape
// occupying the numNewBytes most recently appended. The caller guarantees
// these inputs match the last AppendSample call.
func (c *Chunk) UpdateHeaders(numNewBytes int64, numNewSamples int64, shape dtype.Shape) error {
	if numNewSamples <= 0 {
		return fmt.Errorf("chunk: UpdateHeaders requires a positive sample count, got %d", numNewSamples)
	}
	if numNewBytes%numNewSamples != 0 {
		return fmt.Errorf("chunk: %d bytes does not divide evenly across %d samples", numNewBytes, numNewSamples)
	}
	perSample := numNewBytes / numNewSamples
	c.shapes.Append(shape, numNewSamples)
	c.ranges.Append(perSample, numNewSamples)
	return nil
}

// IsUnderMinSpace reports whether the chunk's data section is still smaller
// than threshold — i.e. still a candidate for further appends.
func (c *Chunk) IsUnderMinSpace(threshold int64) bool {
	return int64(len(c.data)) < threshold
}

// NumDataBytes is the length of the data section.
func (c *Chunk) NumDataBytes() int64 {
	return int64(len(c.data))
}

// NumSamples is the number of samples whose head lives in this chunk.
func (c *Chunk) NumSamples() int64 {
	return c.shapes.NumSamples()
}

// Data returns a zero-copy slice of the chunk's data section. It is only
// valid while the caller holds a live reference to the chunk.
func (c *Chunk) Data() []byte {
	return c.data
}

// Shape returns the shape registered for local sample index i.
func (c *Chunk) Shape(i int64) (dtype.Shape, bool) {
	return c.shapes.At(i)
}

// Range returns the half-open [start,end) byte interval for local sample
// index i.
func (c *Chunk) Range(i int64) (int64, int64, bool) {
	return c.ranges.Range(i)
}

// MarshalBinary serializes the chunk for the cache.
func (c *Chunk) MarshalBinary() ([]byte, error) {
	shapesBlob, err := c.shapes.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("chunk: marshal shapes: %w", err)
	}
	rangesBlob, err := c.ranges.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("chunk: marshal ranges: %w", err)
	}

	header := make([]byte, 9)
	header[0] = HeaderVersion
	binary.BigEndian.PutUint32(header[1:5], uint32(len(shapesBlob)))
	binary.BigEndian.PutUint32(header[5:9], uint32(len(rangesBlob)))

	buf := make([]byte, 0, len(header)+len(shapesBlob)+len(rangesBlob)+len(c.data)+4)
	buf = append(buf, header...)
	buf = append(buf, shapesBlob...)
	buf = append(buf, rangesBlob...)
	buf = append(buf, c.data...)

	checksum := crc32.ChecksumIEEE(buf)
	var sumBytes [4]byte
	binary.BigEndian.PutUint32(sumBytes[:], checksum)
	buf = append(buf, sumBytes[:]...)

	return buf, nil
}

// UnmarshalBinary is the inverse of MarshalBinary.
func (c *Chunk) UnmarshalBinary(data []byte) error {
	if len(data) < 9+4 {
		return fmt.Errorf("chunk: blob too short")
	}
	payload := data[:len(data)-4]
	wantSum := binary.BigEndian.Uint32(data[len(data)-4:])
	gotSum := crc32.ChecksumIEEE(payload)
	if gotSum != wantSum {
		return fmt.Errorf("chunk: checksum mismatch: got %d, want %d", gotSum, wantSum)
	}

	version := payload[0]
	if version != HeaderVersion {
		return fmt.Errorf("chunk: unsupported header version %d", version)
	}
	shapesLen := binary.BigEndian.Uint32(payload[1:5])
	rangesLen := binary.BigEndian.Uint32(payload[5:9])
	rest := payload[9:]
	if uint32(len(rest)) < shapesLen+rangesLen {
		return fmt.Errorf("chunk: truncated blob")
	}

	shapesBlob := rest[:shapesLen]
	rangesBlob := rest[shapesLen : shapesLen+rangesLen]
	dataBlob := rest[shapesLen+rangesLen:]

	shapes := rle.NewShapeEncoder()
	if err := shapes.UnmarshalBinary(shapesBlob); err != nil {
		return fmt.Errorf("chunk: unmarshal shapes: %w", err)
	}
	ranges := rle.NewByteRangeEncoder()
	if err := ranges.UnmarshalBinary(rangesBlob); err != nil {
		return fmt.Errorf("chunk: unmarshal ranges: %w", err)
	}

	c.shapes = shapes
	c.ranges = ranges
	c.data = append([]byte(nil), dataBlob...)
	return nil
}
