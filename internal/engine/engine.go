// Package engine declares the storage contract that the TCP server's
// connection handling is written against. Two implementations satisfy
// it: the log-structured engine in internal/log, and the tree-backed
// engine in internal/engine/tree. internal/server's Server only ever
// calls the methods below, so either engine can back it; the admin
// HTTP surface is the exception, reading Stats from the log engine
// directly.
package engine

// Engine is the storage contract shared by every backend. An Engine
// value is expected to be cheap to duplicate and safe to use from many
// goroutines at once: Clone returns a handle referencing the same
// underlying store, not a copy of its data.
type Engine interface {
	// Set assigns value to key, overwriting any previous value.
	Set(key, value string) error

	// Get returns the value for key and true, or "" and false if key is
	// absent. An absent key is not an error.
	Get(key string) (string, bool, error)

	// Remove deletes key. It fails with an error (kvserr.ErrKeyNotFound)
	// if key is not present.
	Remove(key string) error

	// Clone returns a handle to the same underlying store, ready to be
	// handed to another goroutine.
	Clone() Engine

	// Close releases the engine's file handles. It is safe to call once
	// all clones have finished using the store.
	Close() error
}
