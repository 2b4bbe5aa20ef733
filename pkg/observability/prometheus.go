package observability

import (
	"fmt"
	"io"
	"runtime"
	"sort"
	"strings"
)

// WritePrometheusMetrics writes all metrics in Prometheus exposition format.
func WritePrometheusMetrics(w io.Writer, m *Metrics) error {
	snapshot := m.Snapshot()

	var sb strings.Builder

	// Write path metrics
	writeCounter(&sb, "tensorstore_samples_appended_total", "Total number of samples appended", snapshot.SamplesAppendedTotal)
	writeCounter(&sb, "tensorstore_bytes_packed_total", "Total bytes of sample payload packed into chunks", snapshot.BytesPackedTotal)
	writeCounter(&sb, "tensorstore_append_errors_total", "Total number of append/extend errors", snapshot.AppendErrorsTotal)
	writeHistogramStats(&sb, "tensorstore_append_duration_seconds", "Append operation duration", m.appendDurationSeconds)

	// Chunk metrics
	writeCounter(&sb, "tensorstore_chunks_created_total", "Total number of chunks created", snapshot.ChunksCreatedTotal)
	writeCounter(&sb, "tensorstore_chunk_bytes_total", "Total bytes held across all created chunks", snapshot.ChunkBytesTotal)

	// Cache metrics
	writeCounter(&sb, "tensorstore_cache_hits_total", "Total chunk cache hits", snapshot.CacheHitsTotal)
	writeCounter(&sb, "tensorstore_cache_misses_total", "Total chunk cache misses", snapshot.CacheMissesTotal)
	writeCounter(&sb, "tensorstore_cache_flushes_total", "Total maybe_flush calls", snapshot.CacheFlushesTotal)
	writeHistogramStats(&sb, "tensorstore_cache_flush_seconds", "Cache flush duration", m.cacheFlushSeconds)

	// Read path metrics
	writeCounter(&sb, "tensorstore_reads_total", "Total number of numpy() reads", snapshot.ReadsTotal)
	writeCounter(&sb, "tensorstore_read_errors_total", "Total read errors", snapshot.ReadErrorsTotal)
	writeCounter(&sb, "tensorstore_read_samples_total", "Total samples returned by reads", snapshot.ReadSamplesTotal)
	writeHistogramStats(&sb, "tensorstore_read_duration_seconds", "Read duration", m.readDurationSeconds)

	// System/runtime metrics
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	writeGauge(&sb, "tensorstore_goroutines", "Number of goroutines", int64(runtime.NumGoroutine()))
	writeGauge(&sb, "tensorstore_memory_alloc_bytes", "Bytes allocated and still in use", int64(memStats.Alloc))
	writeGauge(&sb, "tensorstore_memory_sys_bytes", "Bytes obtained from system", int64(memStats.Sys))
	writeCounter(&sb, "tensorstore_gc_runs_total", "Total number of GC runs", int64(memStats.NumGC))
	writeHistogramStats(&sb, "tensorstore_gc_duration_seconds", "GC duration", m.gcDurationSeconds)

	_, err := w.Write([]byte(sb.String()))
	return err
}

func writeCounter(sb *strings.Builder, name, help string, value int64) {
	sb.WriteString(fmt.Sprintf("# HELP %s %s\n", name, help))
	sb.WriteString(fmt.Sprintf("# TYPE %s counter\n", name))
	sb.WriteString(fmt.Sprintf("%s %d\n", name, value))
	sb.WriteString("\n")
}

func writeGauge(sb *strings.Builder, name, help string, value int64) {
	sb.WriteString(fmt.Sprintf("# HELP %s %s\n", name, help))
	sb.WriteString(fmt.Sprintf("# TYPE %s gauge\n", name))
	sb.WriteString(fmt.Sprintf("%s %d\n", name, value))
	sb.WriteString("\n")
}

func writeHistogramStats(sb *strings.Builder, name, help string, hist *Histogram) {
	stats := hist.GetStats()

	sb.WriteString(fmt.Sprintf("# HELP %s %s\n", name, help))
	sb.WriteString(fmt.Sprintf("# TYPE %s summary\n", name))

	if stats.Count > 0 {
		sb.WriteString(fmt.Sprintf("%s{quantile=\"0.5\"} %f\n", name, stats.P50))
		sb.WriteString(fmt.Sprintf("%s{quantile=\"0.9\"} %f\n", name, stats.P90))
		sb.WriteString(fmt.Sprintf("%s{quantile=\"0.95\"} %f\n", name, stats.P95))
		sb.WriteString(fmt.Sprintf("%s{quantile=\"0.99\"} %f\n", name, stats.P99))
		sb.WriteString(fmt.Sprintf("%s_sum %f\n", name, stats.Sum))
		sb.WriteString(fmt.Sprintf("%s_count %d\n", name, stats.Count))
	} else {
		sb.WriteString(fmt.Sprintf("%s_sum 0\n", name))
		sb.WriteString(fmt.Sprintf("%s_count 0\n", name))
	}
	sb.WriteString("\n")
}

// GetMetricsSummary returns a human-readable summary of all metrics.
func GetMetricsSummary(m *Metrics) string {
	snapshot := m.Snapshot()
	var sb strings.Builder

	sb.WriteString("=== tensorstore metrics summary ===\n\n")

	sb.WriteString("Write path:\n")
	sb.WriteString(fmt.Sprintf("  Samples appended: %d (%.2f MB packed)\n",
		snapshot.SamplesAppendedTotal,
		float64(snapshot.BytesPackedTotal)/(1024*1024)))
	sb.WriteString(fmt.Sprintf("  Append errors: %d\n", snapshot.AppendErrorsTotal))

	if appendStats := m.appendDurationSeconds.GetStats(); appendStats.Count > 0 {
		sb.WriteString(fmt.Sprintf("  Append latency: p50=%.3fms p95=%.3fms p99=%.3fms\n",
			appendStats.P50*1000, appendStats.P95*1000, appendStats.P99*1000))
	}

	sb.WriteString("\nChunks:\n")
	sb.WriteString(fmt.Sprintf("  Created: %d\n", snapshot.ChunksCreatedTotal))
	sb.WriteString(fmt.Sprintf("  Total bytes: %.2f MB\n", float64(snapshot.ChunkBytesTotal)/(1024*1024)))

	sb.WriteString("\nCache:\n")
	sb.WriteString(fmt.Sprintf("  Hits: %d\n", snapshot.CacheHitsTotal))
	sb.WriteString(fmt.Sprintf("  Misses: %d\n", snapshot.CacheMissesTotal))
	sb.WriteString(fmt.Sprintf("  Flushes: %d\n", snapshot.CacheFlushesTotal))

	sb.WriteString("\nReads:\n")
	sb.WriteString(fmt.Sprintf("  Total: %d\n", snapshot.ReadsTotal))
	sb.WriteString(fmt.Sprintf("  Errors: %d\n", snapshot.ReadErrorsTotal))
	sb.WriteString(fmt.Sprintf("  Samples returned: %d\n", snapshot.ReadSamplesTotal))

	if readStats := m.readDurationSeconds.GetStats(); readStats.Count > 0 {
		sb.WriteString(fmt.Sprintf("  Read latency: p50=%.3fms p95=%.3fms p99=%.3fms\n",
			readStats.P50*1000, readStats.P95*1000, readStats.P99*1000))
	}

	sb.WriteString("\nSystem:\n")
	sb.WriteString(fmt.Sprintf("  Goroutines: %d\n", snapshot.GoroutinesCount))
	sb.WriteString(fmt.Sprintf("  Memory allocated: %.2f MB\n", float64(snapshot.MemoryAllocBytes)/(1024*1024)))

	return sb.String()
}

// MetricsList returns a list of all available metrics.
func MetricsList() []string {
	metrics := []string{
		"tensorstore_samples_appended_total",
		"tensorstore_bytes_packed_total",
		"tensorstore_append_errors_total",
		"tensorstore_append_duration_seconds",
		"tensorstore_chunks_created_total",
		"tensorstore_chunk_bytes_total",
		"tensorstore_cache_hits_total",
		"tensorstore_cache_misses_total",
		"tensorstore_cache_flushes_total",
		"tensorstore_cache_flush_seconds",
		"tensorstore_reads_total",
		"tensorstore_read_errors_total",
		"tensorstore_read_samples_total",
		"tensorstore_read_duration_seconds",
		"tensorstore_goroutines",
		"tensorstore_memory_alloc_bytes",
		"tensorstore_memory_sys_bytes",
		"tensorstore_gc_runs_total",
		"tensorstore_gc_duration_seconds",
	}
	sort.Strings(metrics)
	return metrics
}
