// Package rle implements the run-length encoders that back the ShapeEncoder
// and ByteRangeEncoder of the chunk engine: a monotone sequence of local
// sample indices, compressed into runs of (value, lastIndex) whenever
// consecutive samples share a value. Size is O(#distinct runs), append is
// amortized O(1), and lookup is O(log runs) via binary search — never
// O(#samples).
package rle

import "sort"

// Row is one run: value holds for every local index up to and including
// LastIndex (inclusive of the previous row's LastIndex+1).
type Row[V comparable] struct {
	Value     V
	LastIndex int64
}

// RunEncoder is the shared engine behind ShapeEncoder and ByteRangeEncoder.
// It does not interpret V; merging semantics (whether two adjacent samples
// with equal V count as one run) are entirely value-equality driven.
type RunEncoder[V comparable] struct {
	rows []Row[V]
}

// NewRunEncoder returns an empty encoder.
func NewRunEncoder[V comparable]() *RunEncoder[V] {
	return &RunEncoder[V]{}
}

// NumRuns reports the number of distinct runs currently stored.
func (e *RunEncoder[V]) NumRuns() int {
	return len(e.rows)
}

// NumSamples reports the total number of samples covered by all runs.
func (e *RunEncoder[V]) NumSamples() int64 {
	if len(e.rows) == 0 {
		return 0
	}
	return e.rows[len(e.rows)-1].LastIndex + 1
}

// Append registers n additional samples (starting right after the last
// registered sample) all sharing value. It merges into the last row when
// value equals the last row's value (the samples are contiguous by
// construction — RunEncoder only ever appends at the tail), otherwise it
// opens a new row.
func (e *RunEncoder[V]) Append(value V, n int64) {
	if n <= 0 {
		return
	}
	if len(e.rows) > 0 && e.rows[len(e.rows)-1].Value == value {
		e.rows[len(e.rows)-1].LastIndex += n
		return
	}
	last := int64(-1)
	if len(e.rows) > 0 {
		last = e.rows[len(e.rows)-1].LastIndex
	}
	e.rows = append(e.rows, Row[V]{Value: value, LastIndex: last + n})
}

// At returns the value covering local index i, via binary search over
// LastIndex.
func (e *RunEncoder[V]) At(i int64) (V, bool) {
	idx := e.rowIndex(i)
	if idx < 0 {
		var zero V
		return zero, false
	}
	return e.rows[idx].Value, true
}

// rowIndex returns the index of the row whose LastIndex >= i, or -1.
func (e *RunEncoder[V]) rowIndex(i int64) int {
	n := len(e.rows)
	pos := sort.Search(n, func(k int) bool {
		return e.rows[k].LastIndex >= i
	})
	if pos == n {
		return -1
	}
	return pos
}

// Rows returns the encoder's rows for persistence. The returned slice must
// not be mutated.
func (e *RunEncoder[V]) Rows() []Row[V] {
	return e.rows
}

// SetRows replaces the encoder's rows wholesale, used when reloading from a
// cache blob.
func (e *RunEncoder[V]) SetRows(rows []Row[V]) {
	e.rows = rows
}
