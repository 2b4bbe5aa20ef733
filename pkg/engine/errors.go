package engine

import "errors"

// Sentinel errors as package-level vars, wrapped with fmt.Errorf("%w", ...)
// at the call site so errors.Is keeps working through context.
var (
	// ErrBadConfig is a configuration error: max_chunk_size <= 2.
	ErrBadConfig = errors.New("engine: max_chunk_size must be greater than 2")

	// ErrCorruptedMeta is the tripwire against silent data loss: the
	// encoder is missing from the cache but TensorMeta.Length > 0, or the
	// meta is missing but the encoder records samples.
	ErrCorruptedMeta = errors.New("engine: corrupted meta: tensor meta and chunk id encoder disagree")

	// ErrIncompatibleSample is returned when TensorMeta rejects a sample's
	// dtype or shape.
	ErrIncompatibleSample = errors.New("engine: incompatible sample")

	// ErrSampleTooLarge is returned when a sample's serialized size exceeds
	// min_chunk_size_target. Samples spanning multiple chunks are not yet
	// supported.
	ErrSampleTooLarge = errors.New("engine: sample too large")

	// ErrDynamicShapeInArrayView is returned by Numpy when aslist is false
	// but the selected samples do not all share one shape.
	ErrDynamicShapeInArrayView = errors.New("engine: dynamic shape in array view")

	// ErrUnsupportedSampleType is returned when a sample cannot be
	// normalized: an unrecognized sample kind or an unsupported Go value
	// type.
	ErrUnsupportedSampleType = errors.New("engine: type not supported")
)
