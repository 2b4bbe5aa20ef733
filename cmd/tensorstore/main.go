// Command tensorstore is a small harness around the engine package for
// appending and reading back tensor samples from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tensorstore",
	Short: "tensorstore - a content-addressed tensor chunk store",
	Long: `tensorstore packs variable-sized tensor samples into fixed-budget,
content-addressed chunks and reconstructs them on read.

Each tensor lives under a key in a cache directory. Samples are packed
append-only; reads resolve a sample index back to its chunk and byte
range without touching the rest of the tensor.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
}

func init() {
	rootCmd.AddCommand(appendCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(inspectCmd)
}
