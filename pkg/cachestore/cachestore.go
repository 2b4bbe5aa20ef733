// Package cachestore implements the Cache collaborator (component F) the
// engine consumes: a keyed blob store with an LRU eviction policy in
// front, plus an optional disk-backed flush so a tensor survives a process
// restart.
package cachestore

import (
	"context"
	"fmt"
)

// Cachable is anything the engine stores in the cache: chunks, the
// ChunkIdEncoder, and TensorMeta all implement it.
type Cachable interface {
	MarshalBinary() ([]byte, error)
	UnmarshalBinary([]byte) error
}

// Cache is the interface the engine consumes. Suspension points for an
// async/blocking implementation are exactly these four calls.
type Cache interface {
	// Get loads the raw bytes stored under key. The second return value is
	// false if key is absent; that case is not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set inserts or replaces the blob under key.
	Set(ctx context.Context, key string, data []byte) error
	// Contains reports whether key is present without loading its value.
	Contains(ctx context.Context, key string) (bool, error)
	// MaybeFlush is a hint to persist dirty entries, subject to the cache's
	// own policy. The engine never evicts; it only calls this after a
	// successful write.
	MaybeFlush() error
}

// GetCachable loads key and unmarshals it into a T via newT, mirroring the
// engine's "property reaches into the cache" pattern from a Go-generic
// free function rather than a generic interface method (Go interface
// methods cannot themselves be generic).
func GetCachable[T Cachable](ctx context.Context, c Cache, key string, newT func() T) (T, bool, error) {
	data, ok, err := c.Get(ctx, key)
	if err != nil {
		var zero T
		return zero, false, err
	}
	if !ok {
		var zero T
		return zero, false, nil
	}
	v := newT()
	if err := v.UnmarshalBinary(data); err != nil {
		var zero T
		return zero, false, fmt.Errorf("cachestore: unmarshal %q: %w", key, err)
	}
	return v, true, nil
}

// SetCachable marshals v and stores it under key.
func SetCachable(ctx context.Context, c Cache, key string, v Cachable) error {
	data, err := v.MarshalBinary()
	if err != nil {
		return fmt.Errorf("cachestore: marshal %q: %w", key, err)
	}
	return c.Set(ctx, key, data)
}
