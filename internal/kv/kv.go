// Package kv defines the pluggable key-value engine contract the version
// chain store is built on (spec.md §6). The store depends only on this
// interface; concrete engines (an in-memory default, an optional
// badger-backed one) live in subpackages.
package kv

import (
	"context"

	"github.com/angular/tactical/pkg/sequence"
)

// Engine is a durable store of opaque blobs keyed by (store name, string).
// Implementations must treat a non-existent key as returning ok=false from
// Get, not an error, and must deep-clone (or otherwise isolate) values on
// both Get and Put so a caller's later mutation of a value it passed to Put
// or received from Get never affects persisted state.
type Engine interface {
	// Get returns the value stored at (store, key). ok is false if the key
	// does not exist.
	Get(ctx context.Context, store, key string) (value any, ok bool, err error)
	// Put writes value at (store, key), returning true iff the write
	// succeeded.
	Put(ctx context.Context, store, key string, value any) (ok bool, err error)
	// Remove deletes (store, key). Implementations may return true whether
	// or not the key previously existed; callers must tolerate either.
	Remove(ctx context.Context, store, key string) (existed bool, err error)
	// Keys lists every key currently present in store.
	Keys(ctx context.Context, store string) (*sequence.Iterator[string], error)
	// Transaction opens a Transaction scoped over the given store names.
	// The returned Transaction holds a lock across every call made on it
	// until Commit or Rollback.
	Transaction(ctx context.Context, stores ...string) (Transaction, error)
	// Close releases resources held by the engine.
	Close() error
}

// Transaction exposes the same Get/Put/Remove operations as Engine, scoped
// to the stores it was opened over, with changes only durable after Commit.
// Exactly one of Commit or Rollback must be called to release the
// transaction's lock.
type Transaction interface {
	Get(store, key string) (value any, ok bool, err error)
	Put(store, key string, value any) (ok bool, err error)
	Remove(store, key string) (existed bool, err error)
	Commit() error
	Rollback() error
}
