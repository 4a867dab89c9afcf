// Package store is the key-value persistence layer behind the registry.
//
// Backends: in-memory, SQLite, Redis and MongoDB. All of them store opaque
// values under string keys and list entries by key prefix in key order.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when a key does not exist.
var ErrNotFound = errors.New("key not found")

// Entry is a stored key-value pair.
type Entry struct {
	Key   string
	Value []byte
}

// Store is a key-value store.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// List returns all entries whose key starts with prefix, sorted by key.
	List(ctx context.Context, prefix string) ([]Entry, error)

	// Close releases backend resources.
	Close() error
}
