package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kelvindb/tensorstore/pkg/dtype"
	"github.com/kelvindb/tensorstore/pkg/sample"
)

var (
	appendDir          string
	appendMaxChunkSize int64
	appendCompression  string
	appendDtype        string
	appendShape        string
)

var appendCmd = &cobra.Command{
	Use:   "append [key] [file]",
	Short: "Append one sample read from a binary file to a tensor",
	Long: `Append a single sample to the tensor stored under key. file holds the
sample's raw little-endian element bytes (e.g. a numpy .tobytes() dump);
--shape and --dtype describe how to interpret them.

Examples:
  tensorstore append --dir ./data --shape 10 frames frame0.bin
  tensorstore append --dir ./data --shape 4,4 --dtype float32 grids grid0.bin`,
	Args: cobra.ExactArgs(2),
	RunE: runAppend,
}

func init() {
	appendCmd.Flags().StringVar(&appendDir, "dir", "./data", "cache directory")
	appendCmd.Flags().Int64Var(&appendMaxChunkSize, "max-chunk-size", 0, "max chunk size in bytes (0: engine default)")
	appendCmd.Flags().StringVar(&appendCompression, "compression", "", "sample compression (UNCOMPRESSED, zstd)")
	appendCmd.Flags().StringVar(&appendDtype, "dtype", "uint8", "element dtype")
	appendCmd.Flags().StringVar(&appendShape, "shape", "", "comma-separated sample shape, e.g. 10 or 4,4 (required)")
}

func runAppend(cmd *cobra.Command, args []string) error {
	key, path := args[0], args[1]

	dt, err := dtype.Parse(appendDtype)
	if err != nil {
		return fmt.Errorf("invalid dtype: %w", err)
	}
	shape, err := parseShape(appendShape)
	if err != nil {
		return fmt.Errorf("invalid shape: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read sample file: %w", err)
	}
	if want := shape.NumBytes(dt); int64(len(data)) != want {
		return fmt.Errorf("file has %d bytes, shape %s dtype %s expects %d", len(data), shape, dt, want)
	}

	e, cache, err := openEngine(appendDir, key, appendMaxChunkSize, appendCompression)
	if err != nil {
		return err
	}
	defer cache.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	s := sample.NewRaw(sample.Buffer{Bytes: data, Shape: shape, Dtype: dt})
	if err := e.Append(ctx, s); err != nil {
		return fmt.Errorf("append failed: %w", err)
	}

	fmt.Printf("appended sample %d to %q (shape %s, %d bytes)\n", e.NumSamples()-1, key, shape, len(data))
	return nil
}

func parseShape(s string) (dtype.Shape, error) {
	if s == "" {
		return nil, fmt.Errorf("--shape is required")
	}
	parts := strings.Split(s, ",")
	shape := make(dtype.Shape, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("dimension %q: %w", p, err)
		}
		shape[i] = v
	}
	return shape, nil
}
