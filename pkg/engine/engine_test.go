package engine

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/kelvindb/tensorstore/pkg/cachestore"
	"github.com/kelvindb/tensorstore/pkg/chunk"
	"github.com/kelvindb/tensorstore/pkg/chunkid"
	"github.com/kelvindb/tensorstore/pkg/codec"
	"github.com/kelvindb/tensorstore/pkg/dtype"
	"github.com/kelvindb/tensorstore/pkg/sample"
	"github.com/kelvindb/tensorstore/pkg/sampleindex"
	"github.com/kelvindb/tensorstore/pkg/tensormeta"
)

func rawU8(shape dtype.Shape, bytes ...byte) sample.Sample {
	return sample.NewRaw(sample.Buffer{Bytes: bytes, Shape: shape, Dtype: dtype.Uint8})
}

// TestEngine_S1SmallUncompressed validates spec scenario S1: ten 4-byte
// uint8 samples read back as one order-preserving 10x4 result. With
// max_chunk_size 64 the first chunk reaches min_chunk_size_target (32 bytes)
// after eight samples, so the last two go into a second chunk.
func TestEngine_S1SmallUncompressed(t *testing.T) {
	ctx := context.Background()
	cache := cachestore.NewMemCache(0)
	opts := DefaultOptions()
	opts.MaxChunkSize = 64

	e, err := Open(ctx, "t", cache, opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	for i := 0; i < 10; i++ {
		b := byte(i)
		if err := e.Append(ctx, rawU8(dtype.Shape{4}, b, b+1, b+2, b+3)); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	if got := e.NumSamples(); got != 10 {
		t.Fatalf("NumSamples = %d, want 10", got)
	}

	ix, err := sampleindex.Range(0, 10, 1)
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	result, err := e.Numpy(ctx, ix, false)
	if err != nil {
		t.Fatalf("Numpy: %v", err)
	}
	view, ok := result.(dtype.View)
	if !ok {
		t.Fatalf("Numpy result type = %T, want dtype.View", result)
	}
	if !view.Shape.Equal(dtype.Shape{10, 4}) {
		t.Fatalf("Numpy shape = %s, want [10 4]", view.Shape)
	}
	if len(view.Buf) != 40 {
		t.Fatalf("Numpy bytes = %d, want 40", len(view.Buf))
	}
	for i := 0; i < 40; i++ {
		want := byte(i/4 + i%4)
		if view.Buf[i] != want {
			t.Fatalf("byte %d = %d, want %d", i, view.Buf[i], want)
		}
	}
}

// TestEngine_S2CrossingThreshold validates spec scenario S2: seven 10-byte
// samples split 4/3 across two chunks once the first chunk is "full enough".
func TestEngine_S2CrossingThreshold(t *testing.T) {
	ctx := context.Background()
	cache := cachestore.NewMemCache(0)
	opts := DefaultOptions()
	opts.MaxChunkSize = 64

	e, err := Open(ctx, "t", cache, opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	payload := make([]byte, 10)
	for i := 0; i < 7; i++ {
		if err := e.Append(ctx, sample.NewRaw(sample.Buffer{Bytes: payload, Shape: dtype.Shape{10}, Dtype: dtype.Uint8})); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	if e.encoder.NumChunks() != 2 {
		t.Fatalf("NumChunks = %d, want 2", e.encoder.NumChunks())
	}
	rows := e.encoder.Rows()
	if rows[0].LastGlobalSampleIndex != 3 {
		t.Fatalf("chunk 0 last global index = %d, want 3 (4 samples)", rows[0].LastGlobalSampleIndex)
	}
	if rows[1].LastGlobalSampleIndex != 6 {
		t.Fatalf("chunk 1 last global index = %d, want 6 (3 samples)", rows[1].LastGlobalSampleIndex)
	}

	chunk0, found, err := cachestore.GetCachable(ctx, cache, chunkKeyPrefix+"t/"+chunkid.NameFromID(rows[0].ChunkID), chunk.New)
	if err != nil || !found {
		t.Fatalf("load chunk 0: %v, found=%v", err, found)
	}
	if chunk0.NumSamples() != 4 || chunk0.NumDataBytes() != 40 {
		t.Fatalf("chunk 0 = %d samples / %d bytes, want 4/40", chunk0.NumSamples(), chunk0.NumDataBytes())
	}
}

// TestEngine_S3MetaGuard validates spec scenario S3: discarding the chunk id
// encoder blob while TensorMeta.Length > 0 is a corrupted-meta error.
func TestEngine_S3MetaGuard(t *testing.T) {
	ctx := context.Background()
	cache := cachestore.NewMemCache(0)
	opts := DefaultOptions()
	opts.MaxChunkSize = 64

	e, err := Open(ctx, "t", cache, opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := e.Append(ctx, rawU8(dtype.Shape{4}, 1, 2, 3, 4)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	// Simulate losing the encoder blob while the meta blob survives.
	meta := &tensormeta.Meta{Dtype: dtype.Uint8, ElementShapeConstraint: dtype.Shape{4}, SampleCompression: tensormeta.Uncompressed, Length: 1, DtypeSet: true}
	if err := cachestore.SetCachable(ctx, cache, metaKeyPrefix+"fresh", meta); err != nil {
		t.Fatalf("seed meta: %v", err)
	}

	_, err = Open(ctx, "fresh", cache, opts)
	if !errors.Is(err, ErrCorruptedMeta) {
		t.Fatalf("Open with missing encoder but meta.Length>0 = %v, want ErrCorruptedMeta", err)
	}
}

// TestEngine_S3bMetaGuardReverse is the symmetric case of S3: the chunk id
// encoder blob survives with samples recorded, but the meta blob is gone
// rather than merely never written.
func TestEngine_S3bMetaGuardReverse(t *testing.T) {
	ctx := context.Background()
	cache := cachestore.NewMemCache(0)
	opts := DefaultOptions()
	opts.MaxChunkSize = 64

	e, err := Open(ctx, "t", cache, opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := e.Append(ctx, rawU8(dtype.Shape{4}, 1, 2, 3, 4)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	enc, found, err := cachestore.GetCachable(ctx, cache, encoderKeyPrefix+"t", chunkid.New)
	if err != nil || !found {
		t.Fatalf("load encoder: %v, found=%v", err, found)
	}

	fresh := cachestore.NewMemCache(0)
	if err := cachestore.SetCachable(ctx, fresh, encoderKeyPrefix+"fresh", enc); err != nil {
		t.Fatalf("seed encoder: %v", err)
	}

	_, err = Open(ctx, "fresh", fresh, opts)
	if !errors.Is(err, ErrCorruptedMeta) {
		t.Fatalf("Open with missing meta but encoder.NumSamples()>0 = %v, want ErrCorruptedMeta", err)
	}
}

// TestEngine_S4SizeReject validates spec scenario S4: an oversize
// uncompressed sample fails with a compression hint.
func TestEngine_S4SizeReject(t *testing.T) {
	ctx := context.Background()
	cache := cachestore.NewMemCache(0)
	opts := DefaultOptions()
	opts.MaxChunkSize = 64 // min_chunk_size_target = 32

	e, err := Open(ctx, "t", cache, opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	payload := make([]byte, 33)
	err = e.Append(ctx, sample.NewRaw(sample.Buffer{Bytes: payload, Shape: dtype.Shape{33}, Dtype: dtype.Uint8}))
	if !errors.Is(err, ErrSampleTooLarge) {
		t.Fatalf("Append 33-byte sample = %v, want ErrSampleTooLarge", err)
	}
}

// TestEngine_S5DynamicShapeView validates spec scenario S5: samples with
// differing shapes reject the stacked-array read but allow aslist=true.
func TestEngine_S5DynamicShapeView(t *testing.T) {
	ctx := context.Background()
	cache := cachestore.NewMemCache(0)
	opts := DefaultOptions()
	opts.MaxChunkSize = 64

	e, err := Open(ctx, "t", cache, opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := e.Append(ctx, sample.NewRaw(sample.Buffer{Bytes: []byte{1, 2, 3}, Shape: dtype.Shape{3}, Dtype: dtype.Uint8})); err != nil {
		t.Fatalf("append shape (3,): %v", err)
	}
	if err := e.Append(ctx, sample.NewRaw(sample.Buffer{Bytes: []byte{4, 5, 6, 7}, Shape: dtype.Shape{4}, Dtype: dtype.Uint8})); err != nil {
		t.Fatalf("append shape (4,): %v", err)
	}

	ix, err := sampleindex.Range(0, 2, 1)
	if err != nil {
		t.Fatalf("Range: %v", err)
	}

	if _, err := e.Numpy(ctx, ix, false); !errors.Is(err, ErrDynamicShapeInArrayView) {
		t.Fatalf("Numpy aslist=false over mismatched shapes = %v, want ErrDynamicShapeInArrayView", err)
	}

	list, err := e.Numpy(ctx, ix, true)
	if err != nil {
		t.Fatalf("Numpy aslist=true: %v", err)
	}
	views, ok := list.([]dtype.View)
	if !ok || len(views) != 2 {
		t.Fatalf("Numpy aslist=true result = %#v, want two views", list)
	}
	if !views[0].Shape.Equal(dtype.Shape{3}) || !views[1].Shape.Equal(dtype.Shape{4}) {
		t.Fatalf("Numpy aslist=true shapes = %s, %s, want [3], [4]", views[0].Shape, views[1].Shape)
	}
}

// TestEngine_S6BatchAtomicity validates spec scenario S6: Extend over a
// uniform array containing one oversize sample fails before any mutation.
func TestEngine_S6BatchAtomicity(t *testing.T) {
	ctx := context.Background()
	cache := cachestore.NewMemCache(0)
	opts := DefaultOptions()
	opts.MaxChunkSize = 64 // min_chunk_size_target = 32

	e, err := Open(ctx, "t", cache, opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	before := e.NumSamples()
	// A uniform (same dtype) batch where the last sample is oversize: this
	// takes the array pre-validation path, so the failure must be caught
	// before anything is committed.
	uniform := []sample.Sample{
		sample.NewRaw(sample.Buffer{Bytes: make([]byte, 4), Shape: dtype.Shape{4}, Dtype: dtype.Uint8}),
		sample.NewRaw(sample.Buffer{Bytes: make([]byte, 33), Shape: dtype.Shape{33}, Dtype: dtype.Uint8}),
	}

	err = e.Extend(ctx, uniform)
	if !errors.Is(err, ErrSampleTooLarge) {
		t.Fatalf("Extend with oversize uniform batch = %v, want ErrSampleTooLarge", err)
	}
	if after := e.NumSamples(); after != before {
		t.Fatalf("NumSamples changed from %d to %d after a rejected Extend", before, after)
	}
	if e.encoder.NumChunks() != 0 {
		t.Fatalf("NumChunks = %d after a rejected Extend, want 0", e.encoder.NumChunks())
	}
}

// TestEngine_S7RecoverAcrossReopen exercises recovery via a FlushCache: an
// engine's writes must be fully readable after a Close/reopen cycle, with
// the reopened engine reporting the same sample count.
func TestEngine_S7RecoverAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	opts := DefaultOptions()
	opts.MaxChunkSize = 64

	fc, err := cachestore.Open(dir+"/cache.log", 0)
	if err != nil {
		t.Fatalf("cachestore.Open: %v", err)
	}

	e, err := Open(ctx, "t", fc, opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := e.Append(ctx, rawU8(dtype.Shape{4}, byte(i), byte(i), byte(i), byte(i))); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}
	if err := fc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	fc2, err := cachestore.Open(dir+"/cache.log", 0)
	if err != nil {
		t.Fatalf("reopen cachestore: %v", err)
	}
	defer fc2.Close()

	e2, err := Open(ctx, "t", fc2, opts)
	if err != nil {
		t.Fatalf("reopen engine: %v", err)
	}
	if got := e2.NumSamples(); got != 5 {
		t.Fatalf("NumSamples after reopen = %d, want 5", got)
	}

	ix, _ := sampleindex.Range(0, 5, 1)
	result, err := e2.Numpy(ctx, ix, false)
	if err != nil {
		t.Fatalf("Numpy after reopen: %v", err)
	}
	view := result.(dtype.View)
	if len(view.Buf) != 20 {
		t.Fatalf("Numpy bytes after reopen = %d, want 20", len(view.Buf))
	}
}

// TestEngine_ZstdRoundTrip validates Testable Property #2: round-trip
// correctness holds for a compressed tensor, not just an uncompressed one
// (TestEngine_S1SmallUncompressed covers the uncompressed case).
func TestEngine_ZstdRoundTrip(t *testing.T) {
	ctx := context.Background()
	cache := cachestore.NewMemCache(0)
	opts := DefaultOptions()
	opts.MaxChunkSize = 4096
	opts.SampleCompression = codec.Zstd

	e, err := Open(ctx, "t", cache, opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	rng := rand.New(rand.NewSource(1))
	want := make([][]byte, 10)
	batch := make([]sample.Sample, 10)
	for i := range want {
		payload := make([]byte, 64)
		rng.Read(payload)
		want[i] = payload
		batch[i] = sample.NewRaw(sample.Buffer{Bytes: payload, Shape: dtype.Shape{64}, Dtype: dtype.Uint8})
	}
	if err := e.Extend(ctx, batch); err != nil {
		t.Fatalf("Extend: %v", err)
	}
	if got := e.NumSamples(); got != 10 {
		t.Fatalf("NumSamples = %d, want 10", got)
	}

	ix, err := sampleindex.Range(0, 10, 1)
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	result, err := e.Numpy(ctx, ix, false)
	if err != nil {
		t.Fatalf("Numpy: %v", err)
	}
	view, ok := result.(dtype.View)
	if !ok {
		t.Fatalf("Numpy result type = %T, want dtype.View", result)
	}
	if !view.Shape.Equal(dtype.Shape{10, 64}) {
		t.Fatalf("Numpy shape = %s, want [10 64]", view.Shape)
	}
	for i, payload := range want {
		got := view.Buf[i*64 : (i+1)*64]
		if !bytes.Equal(got, payload) {
			t.Fatalf("sample %d bytes mismatch after zstd round trip", i)
		}
	}
}

// TestEngine_NumpyScalarAsList validates that a single scalar-index
// selection still comes back as a one-element list under aslist=true,
// rather than being unwrapped the way the non-list read path unwraps it.
func TestEngine_NumpyScalarAsList(t *testing.T) {
	ctx := context.Background()
	cache := cachestore.NewMemCache(0)
	opts := DefaultOptions()
	opts.MaxChunkSize = 64

	e, err := Open(ctx, "t", cache, opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < 3; i++ {
		b := byte(i)
		if err := e.Append(ctx, rawU8(dtype.Shape{4}, b, b+1, b+2, b+3)); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	ix := sampleindex.Single(1)
	result, err := e.Numpy(ctx, ix, true)
	if err != nil {
		t.Fatalf("Numpy aslist=true: %v", err)
	}
	views, ok := result.([]dtype.View)
	if !ok || len(views) != 1 {
		t.Fatalf("Numpy aslist=true on scalar index = %#v, want a one-element []dtype.View", result)
	}
	if !views[0].Shape.Equal(dtype.Shape{4}) {
		t.Fatalf("Numpy aslist=true view shape = %s, want [4]", views[0].Shape)
	}
	if !bytes.Equal(views[0].Buf, []byte{1, 2, 3, 4}) {
		t.Fatalf("Numpy aslist=true view bytes = %v, want [1 2 3 4]", views[0].Buf)
	}

	scalarResult, err := e.Numpy(ctx, ix, false)
	if err != nil {
		t.Fatalf("Numpy aslist=false: %v", err)
	}
	if _, ok := scalarResult.(dtype.View); !ok {
		t.Fatalf("Numpy aslist=false on scalar index = %#v, want a bare dtype.View", scalarResult)
	}
}

// TestEngine_BadConfigRejected checks the max_chunk_size <= 2 guard.
func TestEngine_BadConfigRejected(t *testing.T) {
	ctx := context.Background()
	cache := cachestore.NewMemCache(0)
	opts := DefaultOptions()
	opts.MaxChunkSize = 2

	_, err := Open(ctx, "t", cache, opts)
	if !errors.Is(err, ErrBadConfig) {
		t.Fatalf("Open with max_chunk_size=2 = %v, want ErrBadConfig", err)
	}
}
