// Package chunkid implements the ChunkIdEncoder: the ordered mapping from a
// tensor's global sample index to the chunk id holding that sample's head,
// plus fresh 128-bit id generation and a fixed-width, filesystem-safe
// textual name for each id.
//
// Chunk ids are oklog/ulid values: a ULID is already a 128-bit,
// time-sortable id whose String() is a fixed 26-character Crockford
// base32 encoding — a fixed-width, filesystem-safe name with no separate
// naming scheme to invent.
package chunkid

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"
)

// Row is one entry of the encoder: chunkID holds the heads of the samples
// after the previous row's LastGlobalSampleIndex, up to and including this
// row's LastGlobalSampleIndex (or is a continuation of the previous row's
// chunk, when Connected is set — reserved for the not-yet-supported
// sample-spanning extension, see the "Open questions" in the engine docs).
type Row struct {
	ChunkID               ulid.ULID
	LastGlobalSampleIndex int64
	Connected             bool
}

// Encoder is the ChunkIdEncoder entity (component C).
type Encoder struct {
	rows    []Row
	entropy io.Reader
}

// New returns a fresh, empty encoder.
func New() *Encoder {
	return &Encoder{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// NumChunks is the number of distinct chunk ids registered.
func (e *Encoder) NumChunks() int {
	return len(e.rows)
}

// NumSamples is the last row's LastGlobalSampleIndex+1, or 0 if empty.
func (e *Encoder) NumSamples() int64 {
	if len(e.rows) == 0 {
		return 0
	}
	return e.rows[len(e.rows)-1].LastGlobalSampleIndex + 1
}

// GenerateChunkID appends a new row for a freshly minted chunk id, which
// initially holds zero samples (LastGlobalSampleIndex = NumSamples()-1).
func (e *Encoder) GenerateChunkID() (ulid.ULID, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), e.entropy)
	if err != nil {
		return ulid.ULID{}, fmt.Errorf("chunkid: generate: %w", err)
	}
	e.rows = append(e.rows, Row{ChunkID: id, LastGlobalSampleIndex: e.NumSamples() - 1})
	return id, nil
}

// RegisterSamplesToLastChunkID increments the last row's
// LastGlobalSampleIndex by n.
func (e *Encoder) RegisterSamplesToLastChunkID(n int64) error {
	if len(e.rows) == 0 {
		return fmt.Errorf("chunkid: no chunk registered yet")
	}
	e.rows[len(e.rows)-1].LastGlobalSampleIndex += n
	return nil
}

// RegisterConnectionToLastChunkID marks the last row as a continuation of
// the previous chunk's sample head. Unused while samples never span a
// chunk boundary; kept so the type is ready for that extension.
func (e *Encoder) RegisterConnectionToLastChunkID() error {
	if len(e.rows) == 0 {
		return fmt.Errorf("chunkid: no chunk registered yet")
	}
	e.rows[len(e.rows)-1].Connected = true
	return nil
}

// NameForChunk returns the textual name of the chunk id at row i. Negative
// indices count from the end, matching the design note on negative
// indexing.
func (e *Encoder) NameForChunk(i int) (string, error) {
	n := len(e.rows)
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return "", fmt.Errorf("chunkid: row index %d out of range [0,%d)", i, n)
	}
	return NameFromID(e.rows[i].ChunkID), nil
}

// NameFromID is a pure, stateless function from id to cache-key name.
func NameFromID(id ulid.ULID) string {
	return id.String()
}

// rowForGlobalIndex finds the row whose LastGlobalSampleIndex >= g via
// binary search, since LastGlobalSampleIndex is monotone non-decreasing
// except across Connected continuation rows.
func (e *Encoder) rowForGlobalIndex(g int64) (int, error) {
	n := len(e.rows)
	pos := sort.Search(n, func(k int) bool {
		return e.rows[k].LastGlobalSampleIndex >= g
	})
	if pos == n {
		return -1, fmt.Errorf("chunkid: global index %d out of range (num_samples=%d)", g, e.NumSamples())
	}
	return pos, nil
}

// ChunkIDsFor returns the ordered list of chunk ids sample g lives in: a
// singleton in the common (non-spanning) case, longer if earlier rows mark
// this one and its predecessors as Connected.
func (e *Encoder) ChunkIDsFor(g int64) ([]ulid.ULID, error) {
	pos, err := e.rowForGlobalIndex(g)
	if err != nil {
		return nil, err
	}
	ids := []ulid.ULID{e.rows[pos].ChunkID}
	for pos > 0 && e.rows[pos].Connected {
		pos--
		ids = append([]ulid.ULID{e.rows[pos].ChunkID}, ids...)
	}
	return ids, nil
}

// LocalSampleIndex returns the offset of global sample g within its head
// chunk.
func (e *Encoder) LocalSampleIndex(g int64) (int64, error) {
	pos, err := e.rowForGlobalIndex(g)
	if err != nil {
		return 0, err
	}
	firstGlobalInRow := int64(0)
	// Walk back across any connected rows that belong to the same physical
	// chunk run to find where the run (and therefore local indexing) began.
	start := pos
	for start > 0 && e.rows[start].Connected {
		start--
	}
	if start > 0 {
		firstGlobalInRow = e.rows[start-1].LastGlobalSampleIndex + 1
	}
	return g - firstGlobalInRow, nil
}

// Rows exposes the encoder's rows for persistence. Must not be mutated.
func (e *Encoder) Rows() []Row {
	return e.rows
}

// SetRows replaces the encoder's rows wholesale, used when reloading from a
// cache blob.
func (e *Encoder) SetRows(rows []Row) {
	e.rows = rows
}

// MarshalBinary serializes the encoder as rowCount(4), then per row:
// chunkID(16) + lastGlobalSampleIndex(8) + connected(1).
func (e *Encoder) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(len(e.rows)))
	for _, r := range e.rows {
		buf = append(buf, r.ChunkID[:]...)
		var li [8]byte
		binary.BigEndian.PutUint64(li[:], uint64(r.LastGlobalSampleIndex))
		buf = append(buf, li[:]...)
		connected := byte(0)
		if r.Connected {
			connected = 1
		}
		buf = append(buf, connected)
	}
	return buf, nil
}

// UnmarshalBinary is the inverse of MarshalBinary.
func (e *Encoder) UnmarshalBinary(data []byte) error {
	if len(data) < 4 {
		return fmt.Errorf("chunkid: blob too short")
	}
	n := int(binary.BigEndian.Uint32(data[:4]))
	data = data[4:]
	rows := make([]Row, 0, n)
	const rowSize = 16 + 8 + 1
	if len(data) < n*rowSize {
		return fmt.Errorf("chunkid: truncated blob")
	}
	for i := 0; i < n; i++ {
		var row Row
		copy(row.ChunkID[:], data[0:16])
		row.LastGlobalSampleIndex = int64(binary.BigEndian.Uint64(data[16:24]))
		row.Connected = data[24] == 1
		data = data[rowSize:]
		rows = append(rows, row)
	}
	if e.entropy == nil {
		e.entropy = ulid.Monotonic(rand.Reader, 0)
	}
	e.rows = rows
	return nil
}
