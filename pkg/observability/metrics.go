package observability

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics collects and exposes chunk engine operational metrics in
// Prometheus format.
type Metrics struct {
	// Write path metrics
	samplesAppendedTotal  atomic.Int64
	bytesPackedTotal      atomic.Int64
	appendErrorsTotal     atomic.Int64
	appendDurationSeconds *Histogram

	// Chunk metrics
	chunksCreatedTotal atomic.Int64
	chunkBytesTotal    atomic.Int64

	// Cache metrics
	cacheHitsTotal     atomic.Int64
	cacheMissesTotal   atomic.Int64
	cacheFlushesTotal  atomic.Int64
	cacheFlushSeconds  *Histogram

	// Read path metrics
	readsTotal            atomic.Int64
	readDurationSeconds    *Histogram
	readErrorsTotal        atomic.Int64
	readSamplesTotal       atomic.Int64

	// System metrics
	goroutinesCount  atomic.Int64
	memoryAllocBytes atomic.Int64
	gcDurationSeconds *Histogram
}

var (
	globalMetrics     *Metrics
	globalMetricsOnce sync.Once
)

// GetGlobalMetrics returns the singleton metrics instance.
func GetGlobalMetrics() *Metrics {
	globalMetricsOnce.Do(func() {
		globalMetrics = NewMetrics()
	})
	return globalMetrics
}

// NewMetrics creates a new Metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{
		appendDurationSeconds: NewHistogram("append_duration_seconds"),
		cacheFlushSeconds:     NewHistogram("cache_flush_seconds"),
		readDurationSeconds:   NewHistogram("read_duration_seconds"),
		gcDurationSeconds:     NewHistogram("gc_duration_seconds"),
	}
}

// RecordSamplesAppended records samples packed into chunks.
func (m *Metrics) RecordSamplesAppended(count int64, bytes int64) {
	m.samplesAppendedTotal.Add(count)
	m.bytesPackedTotal.Add(bytes)
}

// RecordAppendError records an append/extend failure.
func (m *Metrics) RecordAppendError() {
	m.appendErrorsTotal.Add(1)
}

// RecordAppendDuration records append latency.
func (m *Metrics) RecordAppendDuration(d time.Duration) {
	m.appendDurationSeconds.Observe(d.Seconds())
}

// RecordChunkCreated records a new chunk entering the tensor's sequence.
func (m *Metrics) RecordChunkCreated(bytes int64) {
	m.chunksCreatedTotal.Add(1)
	m.chunkBytesTotal.Add(bytes)
}

// RecordCacheHit records a cache hit while resolving a chunk.
func (m *Metrics) RecordCacheHit() {
	m.cacheHitsTotal.Add(1)
}

// RecordCacheMiss records a cache miss while resolving a chunk.
func (m *Metrics) RecordCacheMiss() {
	m.cacheMissesTotal.Add(1)
}

// RecordCacheFlush records a maybe_flush call and its duration.
func (m *Metrics) RecordCacheFlush(d time.Duration) {
	m.cacheFlushesTotal.Add(1)
	m.cacheFlushSeconds.Observe(d.Seconds())
}

// RecordRead records a numpy() read and its duration.
func (m *Metrics) RecordRead(duration time.Duration, samples int64) {
	m.readsTotal.Add(1)
	m.readDurationSeconds.Observe(duration.Seconds())
	m.readSamplesTotal.Add(samples)
}

// RecordReadError records a read failure.
func (m *Metrics) RecordReadError() {
	m.readErrorsTotal.Add(1)
}

// SetGoroutinesCount sets current goroutine count.
func (m *Metrics) SetGoroutinesCount(count int64) {
	m.goroutinesCount.Store(count)
}

// SetMemoryAlloc sets current memory allocation.
func (m *Metrics) SetMemoryAlloc(bytes int64) {
	m.memoryAllocBytes.Store(bytes)
}

// RecordGC records garbage collection duration.
func (m *Metrics) RecordGC(d time.Duration) {
	m.gcDurationSeconds.Observe(d.Seconds())
}

// MetricsSnapshot is a point-in-time, plain-value copy of Metrics.
type MetricsSnapshot struct {
	SamplesAppendedTotal int64
	BytesPackedTotal     int64
	AppendErrorsTotal    int64

	ChunksCreatedTotal int64
	ChunkBytesTotal    int64

	CacheHitsTotal    int64
	CacheMissesTotal  int64
	CacheFlushesTotal int64

	ReadsTotal      int64
	ReadErrorsTotal int64
	ReadSamplesTotal int64

	GoroutinesCount  int64
	MemoryAllocBytes int64
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (m *Metrics) Snapshot() *MetricsSnapshot {
	return &MetricsSnapshot{
		SamplesAppendedTotal: m.samplesAppendedTotal.Load(),
		BytesPackedTotal:     m.bytesPackedTotal.Load(),
		AppendErrorsTotal:    m.appendErrorsTotal.Load(),

		ChunksCreatedTotal: m.chunksCreatedTotal.Load(),
		ChunkBytesTotal:    m.chunkBytesTotal.Load(),

		CacheHitsTotal:    m.cacheHitsTotal.Load(),
		CacheMissesTotal:  m.cacheMissesTotal.Load(),
		CacheFlushesTotal: m.cacheFlushesTotal.Load(),

		ReadsTotal:       m.readsTotal.Load(),
		ReadErrorsTotal:  m.readErrorsTotal.Load(),
		ReadSamplesTotal: m.readSamplesTotal.Load(),

		GoroutinesCount:  m.goroutinesCount.Load(),
		MemoryAllocBytes: m.memoryAllocBytes.Load(),
	}
}
