// Package kv is the durable key-value layer every piece of coordinator state
// is mirrored to. Values are JSON documents; keys are plain strings.
package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Prefix namespaces every key the application writes.
const Prefix = "fg/"

// Change is one entry of the change feed.
type Change struct {
	Key     string
	Value   []byte
	Deleted bool
}

// Store persists raw JSON values by key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set writes all entries atomically.
	Set(ctx context.Context, entries map[string][]byte) error
	Delete(ctx context.Context, keys ...string) error
	Keys(ctx context.Context) ([]string, error)
	// Watch calls fn for every committed change until ctx is done.
	Watch(ctx context.Context, fn func(Change)) error
	Close() error
}

// Key returns the namespaced form of a logical key.
func Key(name string) string {
	if strings.HasPrefix(name, Prefix) {
		return name
	}
	return Prefix + name
}

// Logical strips the namespace from a stored key.
func Logical(key string) string {
	return strings.TrimPrefix(key, Prefix)
}

// GetJSON decodes the value under the logical key name into dst.
func GetJSON(ctx context.Context, s Store, name string, dst any) (bool, error) {
	raw, ok, err := s.Get(ctx, Key(name))
	if err != nil {
		return false, fmt.Errorf("get %s: %w", name, err)
	}
	if !ok || len(raw) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", name, err)
	}
	return true, nil
}

// Batch collects JSON encoded values for one atomic Set.
type Batch map[string][]byte

func NewBatch() Batch {
	return Batch{}
}

// Put encodes value under the logical key name.
func (b Batch) Put(name string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	b[Key(name)] = raw
	return nil
}

// SetJSON writes a single value under the logical key name.
func SetJSON(ctx context.Context, s Store, name string, value any) error {
	batch := NewBatch()
	if err := batch.Put(name, value); err != nil {
		return err
	}
	return s.Set(ctx, batch)
}
