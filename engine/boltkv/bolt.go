// Package boltkv is the default storage engine, an adapter for bbolt.
//
// An environment is a single bbolt file in the environment directory. Each
// named store is a top-level bucket.
package boltkv

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/tchajed/specious-kv/engine"
)

// DataFile is the bbolt file inside an environment directory.
const DataFile = "data.db"

// bucket names are prefixed so that the default (empty) store has a valid,
// non-empty bucket name
const bucketPrefix = "store/"

// Opener opens bbolt environments.
type Opener struct {
	// Timeout bounds how long Open waits for the file lock held by another
	// process; zero means one second.
	Timeout time.Duration
	// NoSync skips fsync on commit, for benchmarks.
	NoSync bool
}

var _ engine.Opener = Opener{}

func (o Opener) Files() []string {
	return []string{DataFile}
}

func (o Opener) Open(dir string) (engine.Env, error) {
	timeout := o.Timeout
	if timeout == 0 {
		timeout = time.Second
	}
	opts := &bolt.Options{Timeout: timeout, NoSync: o.NoSync}
	db, err := bolt.Open(filepath.Join(dir, DataFile), 0600, opts)
	if err != nil {
		return nil, classify(err)
	}
	return &Env{db}, nil
}

// classify sorts open failures into corruption and everything else.
func classify(err error) error {
	if errors.Is(err, bolt.ErrInvalid) ||
		errors.Is(err, bolt.ErrVersionMismatch) ||
		errors.Is(err, bolt.ErrChecksum) ||
		// returned (unexported) by mmap when a non-empty file is shorter
		// than two pages
		strings.Contains(err.Error(), "file size too small") {
		return engine.Corrupt(err)
	}
	return engine.IO(err)
}

// Env wraps an open bbolt database.
type Env struct {
	db *bolt.DB
}

func bucketName(s engine.Store) []byte {
	return []byte(bucketPrefix + s.Name)
}

func (e *Env) OpenStore(name string) (engine.Store, error) {
	s := engine.Store{Name: name}
	err := e.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName(s))
		return err
	})
	if err != nil {
		return engine.Store{}, engine.IO(err)
	}
	return s, nil
}

func (e *Env) View(fn func(engine.ReadTxn) error) error {
	return e.db.View(func(tx *bolt.Tx) error {
		return fn(txn{tx})
	})
}

func (e *Env) Update(fn func(engine.WriteTxn) error) error {
	return e.db.Update(func(tx *bolt.Tx) error {
		return fn(txn{tx})
	})
}

func (e *Env) Close() error {
	return e.db.Close()
}

// txn adapts a bolt.Tx; the same type serves reads and writes since bbolt
// rejects writes on read-only transactions itself.
type txn struct {
	tx *bolt.Tx
}

func (t txn) bucket(s engine.Store) (*bolt.Bucket, error) {
	if t.tx.Writable() {
		return t.tx.CreateBucketIfNotExists(bucketName(s))
	}
	return t.tx.Bucket(bucketName(s)), nil
}

func (t txn) Get(s engine.Store, key []byte) ([]byte, bool, error) {
	b, err := t.bucket(s)
	if err != nil || b == nil || len(key) == 0 {
		return nil, false, err
	}
	v := b.Get(key)
	if v == nil {
		return nil, false, nil
	}
	// values point into the mmap and are only valid for the transaction
	return append([]byte{}, v...), true, nil
}

func (t txn) Iterate(s engine.Store, from, to []byte, fn func(key, val []byte) error) error {
	b, err := t.bucket(s)
	if err != nil || b == nil {
		return err
	}
	c := b.Cursor()
	var k, v []byte
	if len(from) == 0 {
		k, v = c.First()
	} else {
		k, v = c.Seek(from)
	}
	for ; k != nil; k, v = c.Next() {
		if len(to) > 0 && bytes.Compare(k, to) >= 0 {
			break
		}
		if v == nil {
			// nested bucket
			continue
		}
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return nil
}

func (t txn) Put(s engine.Store, key, val []byte) error {
	b, err := t.bucket(s)
	if err != nil {
		return err
	}
	return b.Put(key, val)
}

func (t txn) Delete(s engine.Store, key []byte) error {
	b, err := t.bucket(s)
	if err != nil {
		return err
	}
	return b.Delete(key)
}

func (t txn) DeleteRange(s engine.Store, from, to []byte) error {
	// deleting under a live cursor skips entries, so collect first
	keys, err := engine.CollectKeys(t, s, from, to)
	if err != nil {
		return err
	}
	b, err := t.bucket(s)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func (t txn) Clear(s engine.Store) error {
	name := bucketName(s)
	if err := t.tx.DeleteBucket(name); err != nil && err != bolt.ErrBucketNotFound {
		return err
	}
	_, err := t.tx.CreateBucket(name)
	return err
}
