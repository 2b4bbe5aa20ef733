package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kelvindb/tensorstore/pkg/dtype"
	"github.com/kelvindb/tensorstore/pkg/sampleindex"
)

var (
	readDir    string
	readStart  int64
	readEnd    int64
	readStep   int64
	readAsList bool
)

// readView is the JSON-serializable form of a dtype.View.
type readView struct {
	Shape []int64 `json:"shape"`
	Dtype string  `json:"dtype"`
	Data  string  `json:"data"` // base64-encoded raw bytes
}

var readCmd = &cobra.Command{
	Use:   "read [key]",
	Short: "Read a range of samples back from a tensor and print them as JSON",
	Long: `Read samples [start, end) from the tensor stored under key and print
them as JSON, one view (or a list of views under --aslist) per invocation.

Examples:
  tensorstore read --dir ./data frames
  tensorstore read --dir ./data --start 2 --end 5 frames
  tensorstore read --dir ./data --aslist frames`,
	Args: cobra.ExactArgs(1),
	RunE: runRead,
}

func init() {
	readCmd.Flags().StringVar(&readDir, "dir", "./data", "cache directory")
	readCmd.Flags().Int64Var(&readStart, "start", 0, "start sample index (inclusive)")
	readCmd.Flags().Int64Var(&readEnd, "end", -1, "end sample index (exclusive, -1: all samples)")
	readCmd.Flags().Int64Var(&readStep, "step", 1, "step between sample indices")
	readCmd.Flags().BoolVar(&readAsList, "aslist", false, "return a list of views instead of stacking into one array")
}

func runRead(cmd *cobra.Command, args []string) error {
	key := args[0]

	e, cache, err := openEngine(readDir, key, 0, "")
	if err != nil {
		return err
	}
	defer cache.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	end := readEnd
	if end < 0 {
		end = e.NumSamples()
	}
	ix, err := sampleindex.Range(readStart, end, readStep)
	if err != nil {
		return fmt.Errorf("invalid range: %w", err)
	}

	result, err := e.Numpy(ctx, ix, readAsList)
	if err != nil {
		return fmt.Errorf("read failed: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	switch v := result.(type) {
	case dtype.View:
		return enc.Encode(toReadView(v))
	case []dtype.View:
		views := make([]readView, len(v))
		for i, view := range v {
			views[i] = toReadView(view)
		}
		return enc.Encode(views)
	default:
		return enc.Encode(v)
	}
}

func toReadView(v dtype.View) readView {
	return readView{
		Shape: []int64(v.Shape),
		Dtype: v.Dtype.String(),
		Data:  base64.StdEncoding.EncodeToString(v.Buf),
	}
}
