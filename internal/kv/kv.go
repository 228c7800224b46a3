// Package kv defines the interface for the shared key-value store.
// All stateful components (API keys, rate windows, usage counters) persist
// JSON values here under prefixed keys. The store is eventually consistent:
// read-modify-write sequences are not atomic and concurrent writers to the
// same key resolve last-write-wins.
package kv

import "context"

// Store is the interface for typed access to the key-value store.
type Store interface {
	// GetJSON reads the value at key into dest. The boolean reports whether
	// the key existed; a missing key is not an error.
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	// PutJSON overwrites the value at key with the JSON encoding of value.
	PutJSON(ctx context.Context, key string, value any) error
	// Delete removes key. Deleting a missing key is a no-op.
	Delete(ctx context.Context, key string) error
	// List returns a page of keys matching prefix, starting at cursor.
	// A returned cursor of 0 means the scan is exhausted.
	List(ctx context.Context, prefix string, cursor uint64) (keys []string, next uint64, err error)
}
