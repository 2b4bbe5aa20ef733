package rle

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// byteRangeRow is a run of consecutive samples of equal byte size. startByte
// is the cumulative byte offset at which the run begins, so Range(i) never
// has to rescan earlier runs — only the row's own start offset and size.
type byteRangeRow struct {
	size      int64
	lastIndex int64
	startByte int64
}

// ByteRangeEncoder maps local sample index -> half-open [start,end) byte
// interval, run-length encoded over consecutive samples with a regular byte
// stride (as produced by UpdateHeaders for a same-shape batch).
type ByteRangeEncoder struct {
	rows []byteRangeRow
}

func NewByteRangeEncoder() *ByteRangeEncoder {
	return &ByteRangeEncoder{}
}

// Append registers n samples of size bytes each, contiguous with whatever
// was previously appended. Merges into the last run iff its per-sample size
// matches.
func (b *ByteRangeEncoder) Append(size int64, n int64) {
	if n <= 0 {
		return
	}
	if len(b.rows) > 0 && b.rows[len(b.rows)-1].size == size {
		b.rows[len(b.rows)-1].lastIndex += n
		return
	}
	lastIndex := int64(-1)
	startByte := int64(0)
	if len(b.rows) > 0 {
		last := b.rows[len(b.rows)-1]
		lastIndex = last.lastIndex
		startByte = last.startByte + (last.lastIndex-runStart(b.rows, len(b.rows)-1)+1)*last.size
	}
	b.rows = append(b.rows, byteRangeRow{size: size, lastIndex: lastIndex + n, startByte: startByte})
}

// runStart returns the first local index covered by rows[idx].
func runStart(rows []byteRangeRow, idx int) int64 {
	if idx == 0 {
		return 0
	}
	return rows[idx-1].lastIndex + 1
}

// Range returns the half-open [start,end) byte interval for local index i.
func (b *ByteRangeEncoder) Range(i int64) (int64, int64, bool) {
	idx := b.rowIndex(i)
	if idx < 0 {
		return 0, 0, false
	}
	row := b.rows[idx]
	rs := runStart(b.rows, idx)
	start := row.startByte + (i-rs)*row.size
	return start, start + row.size, true
}

func (b *ByteRangeEncoder) rowIndex(i int64) int {
	n := len(b.rows)
	pos := sort.Search(n, func(k int) bool {
		return b.rows[k].lastIndex >= i
	})
	if pos == n {
		return -1
	}
	return pos
}

// NumSamples reports the total number of samples covered by all runs.
func (b *ByteRangeEncoder) NumSamples() int64 {
	if len(b.rows) == 0 {
		return 0
	}
	return b.rows[len(b.rows)-1].lastIndex + 1
}

// NumRuns reports the number of distinct runs currently stored.
func (b *ByteRangeEncoder) NumRuns() int { return len(b.rows) }

// TotalBytes reports the cumulative byte length covered by all runs — the
// chunk's NumDataBytes invariant.
func (b *ByteRangeEncoder) TotalBytes() int64 {
	if len(b.rows) == 0 {
		return 0
	}
	last := b.rows[len(b.rows)-1]
	return last.startByte + (last.lastIndex-runStart(b.rows, len(b.rows)-1)+1)*last.size
}

// MarshalBinary serializes as: rowCount(4), then per row size(8) + lastIndex(8) + startByte(8).
func (b *ByteRangeEncoder) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(len(b.rows)))
	for _, r := range b.rows {
		var tmp [24]byte
		binary.BigEndian.PutUint64(tmp[0:8], uint64(r.size))
		binary.BigEndian.PutUint64(tmp[8:16], uint64(r.lastIndex))
		binary.BigEndian.PutUint64(tmp[16:24], uint64(r.startByte))
		buf = append(buf, tmp[:]...)
	}
	return buf, nil
}

// UnmarshalBinary is the inverse of MarshalBinary.
func (b *ByteRangeEncoder) UnmarshalBinary(data []byte) error {
	if len(data) < 4 {
		return fmt.Errorf("rle: byte-range blob too short")
	}
	n := int(binary.BigEndian.Uint32(data[:4]))
	data = data[4:]
	if len(data) < n*24 {
		return fmt.Errorf("rle: truncated byte-range blob")
	}
	rows := make([]byteRangeRow, 0, n)
	for i := 0; i < n; i++ {
		row := byteRangeRow{
			size:      int64(binary.BigEndian.Uint64(data[0:8])),
			lastIndex: int64(binary.BigEndian.Uint64(data[8:16])),
			startByte: int64(binary.BigEndian.Uint64(data[16:24])),
		}
		data = data[24:]
		rows = append(rows, row)
	}
	b.rows = rows
	return nil
}
