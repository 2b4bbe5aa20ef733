// Package engine implements ChunkEngine (component E): the orchestrator
// that turns a stream of samples into packed chunks, and a sample-index
// selection back into tensor views.
//
// It follows an Options/DefaultOptions pair, an Open constructor,
// atomic-counter Stats, and a sentinel-error taxonomy, orchestrating a
// Cache and its own in-memory TensorMeta/ChunkIdEncoder singletons.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/kelvindb/tensorstore/pkg/cachestore"
	"github.com/kelvindb/tensorstore/pkg/chunk"
	"github.com/kelvindb/tensorstore/pkg/chunkid"
	"github.com/kelvindb/tensorstore/pkg/codec"
	"github.com/kelvindb/tensorstore/pkg/dtype"
	"github.com/kelvindb/tensorstore/pkg/sample"
	"github.com/kelvindb/tensorstore/pkg/sampleindex"
	"github.com/kelvindb/tensorstore/pkg/tensormeta"
)

// DefaultMaxChunkSize is the MaxChunkSize that DefaultOptions returns. Open
// does not substitute it for a zero MaxChunkSize; it rejects that value.
const DefaultMaxChunkSize = 16 * 1024 * 1024

// metaKeyPrefix and friends namespace the three cache keys an engine owns,
// deriving a predictable path/key from a logical name.
const (
	metaKeyPrefix    = "tensor_meta/"
	encoderKeyPrefix = "chunk_id_encoder/"
	chunkKeyPrefix   = "chunks/"
)

// Options configures a ChunkEngine.
type Options struct {
	// MaxChunkSize bounds a chunk's packed data section in bytes. Must be
	// greater than 2 (a chunk needs room for at least a couple of bytes of
	// headroom against the min_chunk_size_target contract).
	MaxChunkSize int64
	// SampleCompression is the compression tag (codec.Uncompressed or
	// codec.Zstd) applied to every sample before it is packed into a chunk.
	SampleCompression string
	// Logger receives structured engine events. A discarding logger is used
	// if nil.
	Logger *slog.Logger
}

// DefaultOptions returns an Options populated with the engine's defaults.
func DefaultOptions() Options {
	return Options{
		MaxChunkSize:      DefaultMaxChunkSize,
		SampleCompression: tensormeta.Uncompressed,
	}
}

// Stats holds point-in-time atomic counters for an engine instance, safe
// to read concurrently with the write path.
type Stats struct {
	SamplesAppended atomic.Int64
	ChunksCreated   atomic.Int64
	BytesPacked     atomic.Int64
	CacheHits       atomic.Int64
	CacheMisses     atomic.Int64
}

// StatsSnapshot is a plain-value copy of Stats safe to hand to a caller.
type StatsSnapshot struct {
	SamplesAppended int64
	ChunksCreated   int64
	BytesPacked     int64
	CacheHits       int64
	CacheMisses     int64
}

// Engine is the ChunkEngine entity (component E) for a single tensor,
// identified by key within the supplied Cache.
type Engine struct {
	key   string
	cache cachestore.Cache
	opts  Options
	log   *slog.Logger

	// mu guards the in-memory singletons below: TensorMeta and the
	// ChunkIdEncoder are resolved once at Open and kept live for the
	// engine's lifetime rather than re-fetched from the cache on every
	// call, since a ChunkEngine is not shared across process boundaries.
	mu      sync.Mutex
	meta    *tensormeta.Meta
	encoder *chunkid.Encoder

	stats Stats
}

// Open constructs (or recovers) the engine for tensor key against cache.
func Open(ctx context.Context, key string, cache cachestore.Cache, opts Options) (*Engine, error) {
	if opts.MaxChunkSize <= 2 {
		return nil, fmt.Errorf("%w: got %d", ErrBadConfig, opts.MaxChunkSize)
	}
	if opts.SampleCompression == "" {
		opts.SampleCompression = tensormeta.Uncompressed
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	meta, metaFound, err := cachestore.GetCachable(ctx, cache, metaKeyPrefix+key, func() *tensormeta.Meta {
		return &tensormeta.Meta{}
	})
	if err != nil {
		return nil, fmt.Errorf("engine: load tensor meta: %w", err)
	}
	if !metaFound {
		meta = tensormeta.New(opts.SampleCompression)
	} else if meta.SampleCompression != "" {
		// An existing tensor keeps the compression it was written with.
		opts.SampleCompression = meta.SampleCompression
	}

	encoder, encoderFound, err := cachestore.GetCachable(ctx, cache, encoderKeyPrefix+key, chunkid.New)
	if err != nil {
		return nil, fmt.Errorf("engine: load chunk id encoder: %w", err)
	}
	if !encoderFound {
		if meta.Length > 0 {
			return nil, ErrCorruptedMeta
		}
		encoder = chunkid.New()
	}
	// Symmetric corruption: the encoder survived with samples recorded but
	// the meta blob that should describe them is gone, not merely unwritten.
	if !metaFound && encoder.NumSamples() > 0 {
		return nil, ErrCorruptedMeta
	}

	// Recovery invariant: TensorMeta.Length can never exceed the number of
	// samples the encoder actually accounts for, no matter which of the two
	// caches flushed last.
	if n := encoder.NumSamples(); meta.Length > n {
		logger.WarnContext(ctx, "tensor meta length ahead of chunk id encoder, truncating to recover",
			"key", key, "meta_length", meta.Length, "encoder_samples", n)
		meta.Length = n
	}

	e := &Engine{
		key:     key,
		cache:   cache,
		opts:    opts,
		log:     logger,
		meta:    meta,
		encoder: encoder,
	}
	return e, nil
}

// Key returns the tensor name this engine was opened for.
func (e *Engine) Key() string { return e.key }

// NumSamples returns the tensor's current length.
func (e *Engine) NumSamples() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.meta.Length
}

// Stats returns a point-in-time snapshot of the engine's counters.
func (e *Engine) Stats() StatsSnapshot {
	return StatsSnapshot{
		SamplesAppended: e.stats.SamplesAppended.Load(),
		ChunksCreated:   e.stats.ChunksCreated.Load(),
		BytesPacked:     e.stats.BytesPacked.Load(),
		CacheHits:       e.stats.CacheHits.Load(),
		CacheMisses:     e.stats.CacheMisses.Load(),
	}
}

// Info is a plain-value snapshot of a tensor's TensorMeta and
// ChunkIdEncoder state, meant for diagnostics (see cmd/tensorstore's
// inspect command) rather than the read/write path.
type Info struct {
	Key                    string
	Dtype                  dtype.Dtype
	ElementShapeConstraint dtype.Shape
	SampleCompression      string
	Length                 int64
	NumChunks              int
	MaxChunkSize           int64
}

// Inspect returns a snapshot of the tensor's metadata and chunk layout.
func (e *Engine) Inspect() Info {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Info{
		Key:                    e.key,
		Dtype:                  e.meta.Dtype,
		ElementShapeConstraint: e.meta.ElementShapeConstraint,
		SampleCompression:      e.meta.SampleCompression,
		Length:                 e.meta.Length,
		NumChunks:              e.encoder.NumChunks(),
		MaxChunkSize:           e.opts.MaxChunkSize,
	}
}

// minChunkSizeTarget is the non-spanning contract's ceiling on a single
// sample's serialized size: half of max_chunk_size, so a sample can always
// be appended to a fresh chunk without exceeding the bound.
func (e *Engine) minChunkSizeTarget() int64 {
	return e.opts.MaxChunkSize / 2
}

// Append normalizes s, validates it against the tensor's pinned dtype and
// shape, and packs it into the tensor's last chunk (or a new one).
// Like Extend with a single-element batch, it flushes the cache once after a
// successful write.
func (e *Engine) Append(ctx context.Context, s sample.Sample) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.appendLocked(ctx, s); err != nil {
		return err
	}
	if err := e.cache.MaybeFlush(); err != nil {
		return fmt.Errorf("engine: flush after append: %w", err)
	}
	return nil
}

// Extend appends every sample in samples. If every sample shares one dtype
// (the common "uniform array" case — a single dense ndarray is always one
// dtype, even when individual samples are dynamically shaped) the whole
// batch is validated before any of it is committed, so a batch containing
// one oversized or incompatible sample leaves the tensor untouched.
// Otherwise samples are appended one at a time and a failure partway
// through leaves the earlier samples committed, matching the per-sample
// fallback the design notes describe for non-uniform sequences. Either way
// the cache is flushed at most once, at the end of the call.
func (e *Engine) Extend(ctx context.Context, samples []sample.Sample) error {
	if len(samples) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if uniform, bufs := normalizeUniform(samples); uniform {
		// Validate against a scratch copy of the meta that each accepted
		// sample updates, so a later sample is checked against the rank an
		// earlier sample of the same batch pins.
		live, scratch := e.meta, *e.meta
		e.meta = &scratch
		for _, buf := range bufs {
			if err := e.validateBuffer(buf); err != nil {
				e.meta = live
				return err
			}
			scratch.Update(buf.Shape, buf.Dtype, 1)
		}
		e.meta = live
		for _, buf := range bufs {
			if err := e.commitBuffer(ctx, buf); err != nil {
				return err
			}
		}
	} else {
		for i, s := range samples {
			if err := e.appendLocked(ctx, s); err != nil {
				return fmt.Errorf("engine: extend: sample %d: %w", i, err)
			}
		}
	}

	if err := e.cache.MaybeFlush(); err != nil {
		return fmt.Errorf("engine: flush after extend: %w", err)
	}
	return nil
}

// normalizeUniform reports whether every sample shares one dtype,
// normalizing each one as a side effect. A single-element batch is always
// treated as uniform (there is nothing to compare against).
func normalizeUniform(samples []sample.Sample) (bool, []sample.Buffer) {
	bufs := make([]sample.Buffer, len(samples))
	for i, s := range samples {
		buf, err := sample.Normalize(s)
		if err != nil {
			return false, nil
		}
		bufs[i] = buf
	}
	for i := 1; i < len(bufs); i++ {
		if bufs[i].Dtype != bufs[0].Dtype {
			return false, nil
		}
	}
	return true, bufs
}

// appendLocked normalizes, compresses, and packs one sample. Caller must
// hold e.mu.
func (e *Engine) appendLocked(ctx context.Context, s sample.Sample) error {
	buf, err := sample.Normalize(s)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedSampleType, err)
	}
	if err := e.validateBuffer(buf); err != nil {
		return err
	}
	return e.commitBuffer(ctx, buf)
}

// validateBuffer compresses buf (to measure its packed size), checks that
// size against the non-spanning size contract, and only then checks
// compatibility against the tensor's dtype/shape constraint, size before
// compatibility, without mutating any engine state.
func (e *Engine) validateBuffer(buf sample.Buffer) error {
	packed, err := codec.Compress(buf.Bytes, e.opts.SampleCompression)
	if err != nil {
		return fmt.Errorf("engine: compress sample: %w", err)
	}
	if int64(len(packed)) > e.minChunkSizeTarget() {
		hint := ""
		if e.opts.SampleCompression == tensormeta.Uncompressed {
			hint = " (consider enabling sample_compression)"
		}
		return fmt.Errorf("%w: packed sample is %d bytes, min_chunk_size_target is %d%s",
			ErrSampleTooLarge, len(packed), e.minChunkSizeTarget(), hint)
	}
	if err := e.meta.CheckCompatibility(buf.Shape, buf.Dtype); err != nil {
		return fmt.Errorf("%w: %v", ErrIncompatibleSample, err)
	}
	return nil
}

// commitBuffer compresses buf, writes the updated TensorMeta, and packs the
// compressed bytes into the tensor's chunk sequence. Caller must hold e.mu.
// validateBuffer must have already accepted buf.
func (e *Engine) commitBuffer(ctx context.Context, buf sample.Buffer) error {
	packed, err := codec.Compress(buf.Bytes, e.opts.SampleCompression)
	if err != nil {
		return fmt.Errorf("engine: compress sample: %w", err)
	}

	e.meta.Update(buf.Shape, buf.Dtype, 1)
	if err := cachestore.SetCachable(ctx, e.cache, metaKeyPrefix+e.key, e.meta); err != nil {
		return fmt.Errorf("engine: persist tensor meta: %w", err)
	}

	if err := e.appendBytes(ctx, packed, buf.Shape); err != nil {
		return err
	}

	e.stats.SamplesAppended.Add(1)
	e.stats.BytesPacked.Add(int64(len(packed)))
	e.log.DebugContext(ctx, "appended sample", "key", e.key, "bytes", len(packed))
	return nil
}

// appendBytes implements the packing algorithm. Given b = len(data) and the
// last chunk's current size s (if any):
//
//   - no last chunk: start a fresh one.
//   - s >= min_chunk_size_target: the last chunk is "full enough"; start a
//     fresh one rather than let it grow unbounded.
//   - otherwise: compare ct_alone = ceil(b/max_chunk_size) against
//     ct_combined = ceil((b+s)/max_chunk_size). Equal counts mean combining
//     forces no extra chunk, so reuse the last chunk; otherwise start fresh.
func (e *Engine) appendBytes(ctx context.Context, data []byte, shape dtype.Shape) error {
	maxSize := e.opts.MaxChunkSize
	b := int64(len(data))

	lastChunk, lastName, hasLast, err := e.loadLastChunk(ctx)
	if err != nil {
		return err
	}

	useLast := false
	if hasLast && lastChunk.IsUnderMinSpace(e.minChunkSizeTarget()) {
		s := lastChunk.NumDataBytes()
		ctAlone := ceilDiv(b, maxSize)
		ctCombined := ceilDiv(b+s, maxSize)
		useLast = ctCombined == ctAlone
	}

	var target *chunk.Chunk
	var name string
	if useLast {
		target = lastChunk
		name = lastName
	} else {
		target = chunk.New()
		id, err := e.encoder.GenerateChunkID()
		if err != nil {
			return fmt.Errorf("engine: generate chunk id: %w", err)
		}
		name = chunkid.NameFromID(id)
		e.stats.ChunksCreated.Add(1)
		e.log.DebugContext(ctx, "created new chunk", "key", e.key, "chunk", name)
	}

	if err := target.AppendSample(data, maxSize); err != nil {
		return fmt.Errorf("engine: pack sample into chunk %s: %w", name, err)
	}
	if err := target.UpdateHeaders(int64(len(data)), 1, shape); err != nil {
		return fmt.Errorf("engine: update chunk %s headers: %w", name, err)
	}
	if err := e.encoder.RegisterSamplesToLastChunkID(1); err != nil {
		return fmt.Errorf("engine: register sample to chunk id encoder: %w", err)
	}

	if err := cachestore.SetCachable(ctx, e.cache, chunkKeyPrefix+e.key+"/"+name, target); err != nil {
		return fmt.Errorf("engine: persist chunk %s: %w", name, err)
	}
	if err := cachestore.SetCachable(ctx, e.cache, encoderKeyPrefix+e.key, e.encoder); err != nil {
		return fmt.Errorf("engine: persist chunk id encoder: %w", err)
	}
	return nil
}

// loadLastChunk loads the chunk the most recent row of the encoder points
// to, if any rows exist yet.
func (e *Engine) loadLastChunk(ctx context.Context) (*chunk.Chunk, string, bool, error) {
	if e.encoder.NumChunks() == 0 {
		return nil, "", false, nil
	}
	name, err := e.encoder.NameForChunk(-1)
	if err != nil {
		return nil, "", false, fmt.Errorf("engine: resolve last chunk name: %w", err)
	}
	ch, err := e.loadChunk(ctx, name)
	if err != nil {
		return nil, "", false, err
	}
	return ch, name, true, nil
}

// loadChunk fetches and deserializes the named chunk from the cache,
// counting the cache hit/miss for observability.
func (e *Engine) loadChunk(ctx context.Context, name string) (*chunk.Chunk, error) {
	ch, found, err := cachestore.GetCachable(ctx, e.cache, chunkKeyPrefix+e.key+"/"+name, chunk.New)
	if err != nil {
		return nil, fmt.Errorf("engine: load chunk %s: %w", name, err)
	}
	if !found {
		e.stats.CacheMisses.Add(1)
		return nil, fmt.Errorf("engine: chunk %s referenced by chunk id encoder but missing from cache", name)
	}
	e.stats.CacheHits.Add(1)
	return ch, nil
}

// ceilDiv returns ceil(a/b) for positive b, used by the chunk-count
// comparison (ctAlone vs ctCombined) in appendBytes.
func ceilDiv(a, b int64) int64 {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// Numpy resolves ix against the tensor's current length and returns the
// selected samples' views. If aslist is true the result is []dtype.View in
// selection order; otherwise every selected sample must share one shape and
// the result is a single stacked dtype.View with a leading sample
// dimension (squeezed away entirely when ix is a single scalar index).
func (e *Engine) Numpy(ctx context.Context, ix *sampleindex.Index, aslist bool) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	length := e.meta.Length
	var views []dtype.View

	var loadErr error
	ix.Values0Indices(length)(func(g int64) bool {
		view, err := e.loadSampleView(ctx, g)
		if err != nil {
			loadErr = err
			return false
		}
		views = append(views, view)
		return true
	})
	if loadErr != nil {
		return nil, loadErr
	}

	views = sampleindex.Apply(views)

	if aslist {
		return sampleindex.ApplySqueeze(ix, views), nil
	}

	if ix.IsScalar() && len(views) == 1 {
		return views[0], nil
	}
	for i := 1; i < len(views); i++ {
		if !views[i].Shape.Equal(views[0].Shape) {
			return nil, fmt.Errorf("%w: sample 0 has shape %s, sample %d has shape %s",
				ErrDynamicShapeInArrayView, views[0].Shape, i, views[i].Shape)
		}
	}
	return stackViews(views), nil
}

// loadSampleView resolves global sample index g to its decoded view.
func (e *Engine) loadSampleView(ctx context.Context, g int64) (dtype.View, error) {
	ids, err := e.encoder.ChunkIDsFor(g)
	if err != nil {
		return dtype.View{}, fmt.Errorf("engine: resolve chunk for sample %d: %w", g, err)
	}
	// Non-spanning contract: every sample lives in exactly one chunk.
	name := chunkid.NameFromID(ids[len(ids)-1])

	ch, err := e.loadChunk(ctx, name)
	if err != nil {
		return dtype.View{}, err
	}

	local, err := e.encoder.LocalSampleIndex(g)
	if err != nil {
		return dtype.View{}, fmt.Errorf("engine: resolve local index for sample %d: %w", g, err)
	}
	shape, ok := ch.Shape(local)
	if !ok {
		return dtype.View{}, fmt.Errorf("engine: sample %d: no shape registered at local index %d", g, local)
	}
	start, end, ok := ch.Range(local)
	if !ok {
		return dtype.View{}, fmt.Errorf("engine: sample %d: no byte range registered at local index %d", g, local)
	}
	raw := ch.Data()[start:end]

	view, err := codec.DecompressArray(raw, e.opts.SampleCompression, shape, e.meta.Dtype)
	if err != nil {
		return dtype.View{}, fmt.Errorf("engine: decompress sample %d: %w", g, err)
	}
	return view, nil
}

// stackViews concatenates uniformly-shaped views into one view with a
// leading sample-count dimension.
func stackViews(views []dtype.View) dtype.View {
	if len(views) == 0 {
		return dtype.View{}
	}
	total := make([]byte, 0, len(views)*len(views[0].Buf))
	for _, v := range views {
		total = append(total, v.Buf...)
	}
	shape := append(dtype.Shape{int64(len(views))}, views[0].Shape...)
	return dtype.View{Buf: total, Shape: shape, Dtype: views[0].Dtype}
}
