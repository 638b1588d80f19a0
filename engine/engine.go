// Package engine specifies the storage engines the environment layer runs
// on: an environment of named, ordered key-value stores with read and write
// transactions.
package engine

import (
	"bytes"
	"errors"
	"fmt"
)

var (
	// ErrCorrupt marks an environment whose on-disk structure could not be
	// read in the expected format.
	ErrCorrupt = errors.New("environment is corrupt")
	// ErrIO marks every other engine failure.
	ErrIO = errors.New("i/o failure")
)

// Corrupt wraps an engine error as ErrCorrupt.
func Corrupt(err error) error {
	return fmt.Errorf("%w: %v", ErrCorrupt, err)
}

// IO wraps an engine error as ErrIO, leaving already-classified errors alone.
func IO(err error) error {
	if err == nil || errors.Is(err, ErrIO) || errors.Is(err, ErrCorrupt) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrIO, err)
}

// A Store names a key-value store within an environment. The empty name is
// the default store.
//
// Stores carry no state or locks of their own, so they are freely copied.
type Store struct {
	Name string
}

// ReadTxn is a consistent read-only view of an environment.
type ReadTxn interface {
	// Get returns the value stored under key.
	Get(s Store, key []byte) (val []byte, ok bool, err error)
	// Iterate calls fn on each pair with from <= key < to, in ascending key
	// order. An empty bound leaves that side of the range open. The slices
	// passed to fn are only valid during the call.
	Iterate(s Store, from, to []byte, fn func(key, val []byte) error) error
}

// WriteTxn is an atomic read-write transaction.
type WriteTxn interface {
	ReadTxn
	Put(s Store, key, val []byte) error
	// Delete removes key; deleting a missing key is not an error.
	Delete(s Store, key []byte) error
	// DeleteRange removes every key with from <= key < to.
	DeleteRange(s Store, from, to []byte) error
	// Clear removes every key in s.
	Clear(s Store) error
}

// Env is an open storage environment.
//
// View runs fn in a read-only transaction. Update runs fn in a write
// transaction that commits if fn returns nil and rolls back otherwise.
type Env interface {
	OpenStore(name string) (Store, error)
	View(fn func(tx ReadTxn) error) error
	Update(fn func(tx WriteTxn) error) error
	Close() error
}

// Opener opens environments stored in a directory.
type Opener interface {
	// Open opens (creating if needed) the environment in dir, which exists.
	// A structurally unreadable environment is reported as ErrCorrupt.
	Open(dir string) (Env, error)
	// Files lists the directory entries, relative to the environment
	// directory, that hold the engine's state. Recovery discards or moves
	// exactly these.
	Files() []string
}

// InRange reports whether from <= key < to, treating empty bounds as open.
func InRange(key, from, to []byte) bool {
	if len(from) > 0 && bytes.Compare(key, from) < 0 {
		return false
	}
	if len(to) > 0 && bytes.Compare(key, to) >= 0 {
		return false
	}
	return true
}

// CollectKeys copies the keys of s in [from, to).
//
// Engines whose cursors are invalidated by deletes collect keys first and
// delete them afterward.
func CollectKeys(tx ReadTxn, s Store, from, to []byte) ([][]byte, error) {
	var keys [][]byte
	err := tx.Iterate(s, from, to, func(key, _ []byte) error {
		keys = append(keys, append([]byte{}, key...))
		return nil
	})
	return keys, err
}
