// Package badgerkv is a storage engine backed by BadgerDB.
//
// Badger has a single keyspace, so each named store is a key prefix: the
// store name, varint-length-prefixed so that no store's prefix is a prefix of
// another's.
package badgerkv

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/y"

	"github.com/tchajed/specious-kv/bin"
	"github.com/tchajed/specious-kv/engine"
)

// DataDir is the badger directory inside an environment directory.
const DataDir = "badger"

// Opener opens badger environments.
type Opener struct {
	// SyncWrites makes every commit durable before returning.
	SyncWrites bool
}

var _ engine.Opener = Opener{}

func (o Opener) Files() []string {
	return []string{DataDir}
}

func (o Opener) options(dir string) badger.Options {
	opts := badger.DefaultOptions(filepath.Join(dir, DataDir))
	opts.Logger = nil
	opts.SyncWrites = o.SyncWrites

	// sized for many small environments per process rather than one large
	// one
	opts.MemTableSize = 16 << 20
	opts.BlockCacheSize = 32 << 20
	opts.IndexCacheSize = 16 << 20
	opts.ValueLogFileSize = 64 << 20
	opts.ValueThreshold = 1 << 10
	return opts
}

func (o Opener) Open(dir string) (engine.Env, error) {
	db, err := badger.Open(o.options(dir))
	if err != nil {
		return nil, classify(err)
	}
	return &Env{db}, nil
}

// corruptMessages are the errors badger reports when the manifest, a table
// or the value log fails to parse. Badger keeps most of them unexported and
// wraps them, so they are matched by message.
var corruptMessages = []string{
	"manifest has bad magic",
	"manifest has checksum mismatch",
	"Manifest file might be corrupted",
	"MANIFEST invalid",
	"MANIFEST removes non-existing table",
	"MANIFEST file has invalid manifestChange op",
	"Data corrupted",
	"corrupted or the table options",
}

// classify reports the failures above as corruption. Everything else,
// including bad options and manifests from an unsupported badger version, is
// an I/O error so that recovery never discards data it merely cannot read.
func classify(err error) error {
	if errors.Is(err, y.ErrChecksumMismatch) {
		return engine.Corrupt(err)
	}
	msg := err.Error()
	for _, m := range corruptMessages {
		if strings.Contains(msg, m) {
			return engine.Corrupt(err)
		}
	}
	return engine.IO(err)
}

// Env wraps an open badger database.
type Env struct {
	db *badger.DB
}

func prefix(s engine.Store) []byte {
	var buf bytes.Buffer
	bin.NewEncoder(&buf).Text(s.Name)
	return buf.Bytes()
}

func (e *Env) OpenStore(name string) (engine.Store, error) {
	return engine.Store{Name: name}, nil
}

func (e *Env) View(fn func(engine.ReadTxn) error) error {
	return e.db.View(func(tx *badger.Txn) error {
		return fn(txn{tx})
	})
}

func (e *Env) Update(fn func(engine.WriteTxn) error) error {
	return e.db.Update(func(tx *badger.Txn) error {
		return fn(txn{tx})
	})
}

func (e *Env) Close() error {
	return e.db.Close()
}

type txn struct {
	tx *badger.Txn
}

func (t txn) Get(s engine.Store, key []byte) ([]byte, bool, error) {
	if len(key) == 0 {
		return nil, false, nil
	}
	item, err := t.tx.Get(append(prefix(s), key...))
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (t txn) Iterate(s engine.Store, from, to []byte, fn func(key, val []byte) error) error {
	p := prefix(s)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = p
	it := t.tx.NewIterator(opts)
	defer it.Close()
	for it.Seek(append(p, from...)); it.ValidForPrefix(p); it.Next() {
		item := it.Item()
		key := item.Key()[len(p):]
		if len(to) > 0 && bytes.Compare(key, to) >= 0 {
			break
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := fn(key, val); err != nil {
			return err
		}
	}
	return nil
}

func (t txn) Put(s engine.Store, key, val []byte) error {
	return t.tx.Set(append(prefix(s), key...), append([]byte{}, val...))
}

func (t txn) Delete(s engine.Store, key []byte) error {
	return t.tx.Delete(append(prefix(s), key...))
}

func (t txn) DeleteRange(s engine.Store, from, to []byte) error {
	keys, err := engine.CollectKeys(t, s, from, to)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := t.Delete(s, k); err != nil {
			return err
		}
	}
	return nil
}

func (t txn) Clear(s engine.Store) error {
	return t.DeleteRange(s, nil, nil)
}
