package kv

import (
	"sync"

	"go.uber.org/zap"

	"github.com/tchajed/specious-kv/engine"
	"github.com/tchajed/specious-kv/env"
	"github.com/tchajed/specious-kv/queue"
	"github.com/tchajed/specious-kv/value"
)

// Database is a handle to one store in a shared environment.
//
// Operations return immediately and run in the background in the order they
// were submitted; each resolves its callback exactly once. Operations on
// different databases run concurrently.
type Database struct {
	name   string
	env    *env.Env
	store  engine.Store
	queue  *queue.Serial
	logger *zap.Logger

	mu       sync.Mutex
	released bool
}

func newDatabase(s *Service, e *env.Env, store engine.Store, name string) *Database {
	return &Database{
		name:   name,
		env:    e,
		store:  store,
		queue:  s.tasks.NewSerial(e.Path() + ":" + name),
		logger: s.logger.With(zap.String("path", e.Path()), zap.String("store", name)),
	}
}

// Path returns the normalized environment directory.
func (db *Database) Path() string {
	return db.env.Path()
}

// Store returns the store name.
func (db *Database) Store() string {
	return db.name
}

// submit queues op, or fails it with ErrCanceled if the database was
// released or the service closed. A canceled callback still runs off the
// caller's goroutine.
func (db *Database) submit(op operation) {
	db.mu.Lock()
	if db.released {
		db.mu.Unlock()
		go op.fail(ErrCanceled)
		return
	}
	db.env.Retain()
	db.mu.Unlock()
	if err := db.queue.Put(&task{db, op}); err != nil {
		db.env.Release()
		go op.fail(ErrCanceled)
	}
}

// Release gives up the handle. Operations already submitted still run; later
// ones fail with ErrCanceled. The environment closes once every database
// using it has been released and its operations have finished.
func (db *Database) Release() {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.released {
		return
	}
	db.released = true
	if err := db.env.Release(); err != nil {
		db.logger.Warn("failed to release environment", zap.Error(err))
	}
}

// Get returns the value stored under key, or def if there is none. Pass
// value.Absent for no default.
func (db *Database) Get(key string, def value.Value, cb ValueCallback) {
	db.submit(&getOp{resolver: resolver[value.Value]{cb: cb}, key: key, def: def})
}

// Has reports whether key is present.
func (db *Database) Has(key string, cb BoolCallback) {
	db.submit(&hasOp{resolver: resolver[bool]{cb: cb}, key: key})
}

// Put stores v under key. The key must be non-empty and v must not be
// Absent.
func (db *Database) Put(key string, v value.Value, cb VoidCallback) {
	db.submit(newVoidOp("put", cb, func(tx engine.WriteTxn, s engine.Store) error {
		if err := writeKey(key); err != nil {
			return err
		}
		data, err := value.Encode(v)
		if err != nil {
			return err
		}
		return tx.Put(s, []byte(key), data)
	}))
}

// WriteMany applies pairs in order in one transaction. A pair with an Absent
// value deletes its key. If any pair is invalid nothing is written.
func (db *Database) WriteMany(pairs []Pair, cb VoidCallback) {
	pairs = append([]Pair(nil), pairs...)
	db.submit(newVoidOp("write many", cb, func(tx engine.WriteTxn, s engine.Store) error {
		encoded, err := encodePairs(pairs)
		if err != nil {
			return err
		}
		for _, p := range encoded {
			if p.val == nil {
				err = tx.Delete(s, p.key)
			} else {
				err = tx.Put(s, p.key, p.val)
			}
			if err != nil {
				return err
			}
		}
		return nil
	}))
}

// Delete removes key; deleting an absent key succeeds.
func (db *Database) Delete(key string, cb VoidCallback) {
	db.submit(newVoidOp("delete", cb, func(tx engine.WriteTxn, s engine.Store) error {
		if err := writeKey(key); err != nil {
			return err
		}
		return tx.Delete(s, []byte(key))
	}))
}

// DeleteRange removes the keys in [from, to). An empty bound is unbounded.
func (db *Database) DeleteRange(from, to string, cb VoidCallback) {
	db.submit(newVoidOp("delete range", cb, func(tx engine.WriteTxn, s engine.Store) error {
		if err := readKey(from); err != nil {
			return err
		}
		if err := readKey(to); err != nil {
			return err
		}
		return tx.DeleteRange(s, []byte(from), []byte(to))
	}))
}

// Clear removes every key in the store.
func (db *Database) Clear(cb VoidCallback) {
	db.submit(newVoidOp("clear", cb, func(tx engine.WriteTxn, s engine.Store) error {
		return tx.Clear(s)
	}))
}

// Enumerate reads the pairs with keys in [from, to). An empty bound is
// unbounded.
func (db *Database) Enumerate(from, to string, cb EnumeratorCallback) {
	db.submit(&enumerateOp{resolver: resolver[*Enumerator]{cb: cb}, from: from, to: to})
}

// IsEmpty is not supported and fails with ErrNotImplemented.
func (db *Database) IsEmpty(cb BoolCallback) {
	db.submit(newNotImplementedOp("is empty", func(err error) { cb(false, err) }))
}

// Count is not supported and fails with ErrNotImplemented.
func (db *Database) Count(cb CountCallback) {
	db.submit(newNotImplementedOp("count", func(err error) { cb(0, err) }))
}

// Size is not supported and fails with ErrNotImplemented.
func (db *Database) Size(cb CountCallback) {
	db.submit(newNotImplementedOp("size", func(err error) { cb(0, err) }))
}

// Close is not supported and fails with ErrNotImplemented; use Release.
func (db *Database) Close(cb VoidCallback) {
	db.submit(newNotImplementedOp("close", cb))
}
