package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var inspectDir string

var inspectCmd = &cobra.Command{
	Use:   "inspect [key]",
	Short: "Dump TensorMeta, ChunkIdEncoder, and cache stats for a tensor",
	Long: `Print the persisted TensorMeta (dtype, element shape constraint,
compression) and ChunkIdEncoder (chunk count) for the tensor stored under
key, plus this engine instance's counters.

Example:
  tensorstore inspect --dir ./data frames`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().StringVar(&inspectDir, "dir", "./data", "cache directory")
}

func runInspect(cmd *cobra.Command, args []string) error {
	key := args[0]

	e, cache, err := openEngine(inspectDir, key, 0, "")
	if err != nil {
		return err
	}
	defer cache.Close()

	info := e.Inspect()
	fmt.Printf("key:                     %s\n", info.Key)
	fmt.Printf("dtype:                   %s\n", info.Dtype)
	fmt.Printf("element_shape_constraint: %s\n", info.ElementShapeConstraint)
	fmt.Printf("sample_compression:      %s\n", info.SampleCompression)
	fmt.Printf("length:                  %d\n", info.Length)
	fmt.Printf("num_chunks:              %d\n", info.NumChunks)
	fmt.Printf("max_chunk_size:          %d\n", info.MaxChunkSize)

	stats := e.Stats()
	fmt.Println()
	fmt.Printf("samples_appended: %d\n", stats.SamplesAppended)
	fmt.Printf("chunks_created:   %d\n", stats.ChunksCreated)
	fmt.Printf("bytes_packed:     %d\n", stats.BytesPacked)
	fmt.Printf("cache_hits:       %d\n", stats.CacheHits)
	fmt.Printf("cache_misses:     %d\n", stats.CacheMisses)
	return nil
}
