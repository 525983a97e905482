// Package kv is the key-value persistence adapter used by the game engine.
//
// A Store moves opaque bytes by string key; each call is independently
// atomic and no multi-key transactions exist. Typed access goes through
// Load and Save, which encode values with msgpack and apply a default on
// miss. Ordering across keys is the caller's responsibility.
package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrNotFound is returned by Store.Get when the key does not exist.
var ErrNotFound = errors.New("key not found")

// Store is the byte-level contract implemented by every backend.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the value stored under key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put stores value under key, overwriting any previous value.
	Put(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Load decodes the value under key into a T, returning def when the key is
// missing.
func Load[T any](ctx context.Context, s Store, key string, def T) (T, error) {
	raw, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("kv get %q: %w", key, err)
	}
	var out T
	if err := msgpack.Unmarshal(raw, &out); err != nil {
		return def, fmt.Errorf("kv decode %q: %w", key, err)
	}
	return out, nil
}

// Save encodes v and stores it under key.
func Save[T any](ctx context.Context, s Store, key string, v T) error {
	raw, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("kv encode %q: %w", key, err)
	}
	if err := s.Put(ctx, key, raw); err != nil {
		return fmt.Errorf("kv put %q: %w", key, err)
	}
	return nil
}

// Remove deletes key, wrapping backend errors with the key for context.
func Remove(ctx context.Context, s Store, key string) error {
	if err := s.Delete(ctx, key); err != nil {
		return fmt.Errorf("kv delete %q: %w", key, err)
	}
	return nil
}
