// Package sampleindex implements the Index collaborator the engine's read
// path consults: which global sample indices a request selects, and how the
// resulting per-sample views should be assembled and squeezed.
//
// The selected index set is recorded in a roaring bitmap (the set of global
// sample indices a slice expression selects) and in the caller's requested
// order, so a step-slice, an explicit index list, and a single scalar index
// all reduce to the same type. Iteration follows the requested order; the
// only form the engine distinguishes is a single scalar index (IsScalar).
package sampleindex

import (
	"fmt"

	"github.com/RoaringBitmap/roaring"

	"github.com/kelvindb/tensorstore/pkg/dtype"
)

// Index selects a set of global sample indices out of [0,length) and
// records whether the selection came from a single scalar index, in which
// case the engine's stacked (aslist=false) read returns the one view without
// a leading sample dimension.
type Index struct {
	bitmap  *roaring.Bitmap
	scalar  bool
	ordered []int64 // preserves the caller's requested order, bitmap is unordered
}

// Single selects exactly one global index (e.g. tensor[5]).
func Single(i int64) *Index {
	bm := roaring.New()
	bm.Add(uint32(i))
	return &Index{bitmap: bm, scalar: true, ordered: []int64{i}}
}

// Range selects the half-open [start,end) range with the given positive
// step (e.g. tensor[0:10], tensor[0:10:2]).
func Range(start, end, step int64) (*Index, error) {
	if step <= 0 {
		return nil, fmt.Errorf("sampleindex: step must be positive, got %d", step)
	}
	bm := roaring.New()
	var ordered []int64
	for i := start; i < end; i += step {
		bm.Add(uint32(i))
		ordered = append(ordered, i)
	}
	return &Index{bitmap: bm, ordered: ordered}, nil
}

// List selects an explicit, caller-ordered set of global indices (e.g.
// tensor[[1,5,2]]).
func List(indices []int64) *Index {
	bm := roaring.New()
	ordered := make([]int64, len(indices))
	copy(ordered, indices)
	for _, i := range indices {
		bm.Add(uint32(i))
	}
	return &Index{bitmap: bm, ordered: ordered}
}

// Values0Indices iterates the selected global indices in the caller's
// requested order, bounded to [0, length).
func (ix *Index) Values0Indices(length int64) func(yield func(int64) bool) {
	return func(yield func(int64) bool) {
		for _, i := range ix.ordered {
			if i < 0 || i >= length {
				continue
			}
			if !yield(i) {
				return
			}
		}
	}
}

// Len reports how many indices this selection yields against a tensor of
// the given length.
func (ix *Index) Len(length int64) int {
	n := 0
	ix.Values0Indices(length)(func(int64) bool { n++; return true })
	return n
}

// IsScalar reports whether this selection came from a single scalar index.
func (ix *Index) IsScalar() bool {
	return ix.scalar
}

// Apply is the identity mapping for sample-index selections: the engine has
// already gathered exactly the requested views in the requested order, so
// there is nothing left to reorder. It exists so callers compose
// Apply/ApplySqueeze uniformly regardless of how the selection was built,
// matching the collaborator shape named in the design notes.
func Apply(views []dtype.View) []dtype.View {
	return views
}

// ApplySqueeze is the list-mode counterpart to the unwrap the engine does
// inline for its stacked-array mode: when a caller requests the selection
// back as a list of views (Numpy's aslist=true), a scalar index still
// yields its one view as a single-element list rather than a bare
// dtype.View, so there is nothing to drop here. The squeeze only changes
// the type of the result (list of one vs. unwrapped value), and a
// []dtype.View-returning function can't express that. This is the
// identity mapping on the list-mode path; it exists so callers compose
// Apply/ApplySqueeze uniformly regardless of how the selection was built.
func ApplySqueeze(ix *Index, views []dtype.View) []dtype.View {
	return views
}
