// Package tensormeta implements TensorMeta (component D): the tensor-wide
// invariants the chunk engine enforces on every write — dtype, the element
// shape constraint, the configured compression tag, and the running sample
// count.
//
// It is persisted as JSON: a small, human-inspectable metadata blob that
// sits next to the opaque binary chunk data it describes.
package tensormeta

import (
	"encoding/json"
	"fmt"

	"github.com/kelvindb/tensorstore/pkg/dtype"
)

// Uncompressed is the sentinel SampleCompression tag meaning samples are
// stored as raw dtype bytes rather than passed through pkg/codec.
const Uncompressed = "UNCOMPRESSED"

// dimWildcard marks a dimension of the element shape constraint as unfixed
// (any size is accepted there). Update sets every dimension to it on the
// first sample, so only the rank is pinned.
const dimWildcard = int64(-1)

// Meta is the TensorMeta entity (component D).
type Meta struct {
	Dtype                  dtype.Dtype `json:"dtype"`
	ElementShapeConstraint dtype.Shape `json:"elementShapeConstraint"`
	SampleCompression      string      `json:"sampleCompression"`
	Length                 int64       `json:"length"`
	DtypeSet               bool        `json:"dtypeSet"`
}

// New returns an empty TensorMeta for a tensor that has never been written
// to: the shape constraint starts as "unconstrained" (nil) and is widened by
// the first Update call, and dtype is pinned by the first Update call.
func New(sampleCompression string) *Meta {
	if sampleCompression == "" {
		sampleCompression = Uncompressed
	}
	return &Meta{SampleCompression: sampleCompression}
}

// CheckCompatibility fails with an incompatible-sample error if dtype
// differs from the tensor's pinned dtype, or if shape violates the current
// element shape constraint (wildcards, i.e. dimensions not yet pinned,
// always match).
func (m *Meta) CheckCompatibility(shape dtype.Shape, dt dtype.Dtype) error {
	if m.DtypeSet && m.Dtype != dt {
		return fmt.Errorf("tensormeta: incompatible sample: dtype %s does not match tensor dtype %s", dt, m.Dtype)
	}
	if m.ElementShapeConstraint == nil {
		return nil
	}
	if len(shape) != len(m.ElementShapeConstraint) {
		return fmt.Errorf("tensormeta: incompatible sample: shape %s has %d dims, tensor expects %d",
			shape, len(shape), len(m.ElementShapeConstraint))
	}
	for i, want := range m.ElementShapeConstraint {
		if want != dimWildcard && want != shape[i] {
			return fmt.Errorf("tensormeta: incompatible sample: shape %s violates constraint %s at dim %d",
				shape, m.ElementShapeConstraint, i)
		}
	}
	return nil
}

// Update pins the tensor's rank on the first sample (every dimension starts
// as a wildcard, so later samples of the same rank but different per-
// dimension sizes remain compatible — tensors are dynamically shaped by
// default, matching the "dynamic-shape view" scenario where samples of
// varying shape share one tensor) and increments Length by n.
func (m *Meta) Update(shape dtype.Shape, dt dtype.Dtype, n int64) {
	m.Dtype = dt
	m.DtypeSet = true
	if m.ElementShapeConstraint == nil {
		constraint := make(dtype.Shape, len(shape))
		for i := range constraint {
			constraint[i] = dimWildcard
		}
		m.ElementShapeConstraint = constraint
	}
	m.Length += n
}

// MarshalBinary satisfies cachestore.Cachable.
func (m *Meta) MarshalBinary() ([]byte, error) {
	return json.Marshal(m)
}

// UnmarshalBinary satisfies cachestore.Cachable.
func (m *Meta) UnmarshalBinary(data []byte) error {
	if err := json.Unmarshal(data, m); err != nil {
		return fmt.Errorf("tensormeta: unmarshal: %w", err)
	}
	return nil
}
