package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kelvindb/tensorstore/pkg/cachestore"
	"github.com/kelvindb/tensorstore/pkg/engine"
)

// openEngine opens the FlushCache-backed engine for key, rooted at dir. The
// cache's log file is named after the key so multiple tensors in one
// directory don't collide.
func openEngine(dir, key string, maxChunkSize int64, compression string) (*engine.Engine, *cachestore.FlushCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create cache dir: %w", err)
	}

	logPath := filepath.Join(dir, key+".cachelog")
	cache, err := cachestore.Open(logPath, 1024)
	if err != nil {
		return nil, nil, fmt.Errorf("open cache: %w", err)
	}

	opts := engine.DefaultOptions()
	if maxChunkSize > 0 {
		opts.MaxChunkSize = maxChunkSize
	}
	if compression != "" {
		opts.SampleCompression = compression
	}

	e, err := engine.Open(context.Background(), key, cache, opts)
	if err != nil {
		cache.Close()
		return nil, nil, fmt.Errorf("open engine: %w", err)
	}
	return e, cache, nil
}
