// Package logkv is a log-structured storage engine: every store is held in
// memory as a sorted table and every committed write transaction is appended
// to a crash-safe log.
//
// Opening an environment replays the log and then compacts it to a single
// snapshot transaction. Over an in-memory fs.Filesys this is a pure memory
// engine whose data lives as long as the Filesys.
package logkv

import (
	"errors"
	"path/filepath"
	"sync"

	"github.com/tchajed/specious-kv/engine"
	"github.com/tchajed/specious-kv/fs"
	"github.com/tchajed/specious-kv/log"
)

// LogFile is the log's name inside an environment directory.
const LogFile = "kv.log"

const tmpSuffix = ".tmp"

var errClosed = errors.New("logkv: environment is closed")

// errFailed is returned by every write after a log append fails, since the
// log may end with an uncommitted record that later appends would follow.
var errFailed = errors.New("logkv: log is unusable after a failed write")

// Opener opens log-structured environments stored in Fs.
type Opener struct {
	Fs fs.Filesys
}

var _ engine.Opener = Opener{}

// NewMem returns an Opener over a fresh in-memory file system.
func NewMem() Opener {
	return Opener{Fs: fs.MemFs()}
}

func (o Opener) Files() []string {
	return []string{LogFile, LogFile + tmpSuffix}
}

func (o Opener) recover(path string) (map[string]*table, error) {
	stores := make(map[string]*table)
	ok, err := o.Fs.Exists(path)
	if err != nil || !ok {
		return stores, err
	}
	f, err := o.Fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	txns, err := log.RecoverTxns(f)
	if errors.Is(err, log.ErrCorrupt) {
		return nil, engine.Corrupt(err)
	}
	if err != nil {
		return nil, err
	}
	for _, txn := range txns {
		ops, err := decodeOps(txn)
		if err != nil {
			return nil, engine.Corrupt(err)
		}
		for _, x := range ops {
			apply(stores, x)
		}
	}
	return stores, nil
}

func (o Opener) Open(dir string) (engine.Env, error) {
	path := filepath.Join(dir, LogFile)
	stores, err := o.recover(path)
	if err != nil {
		return nil, engine.IO(err)
	}

	// compact into a fresh log; the writer stays open across the rename and
	// keeps appending to the same file
	tmp := path + tmpSuffix
	f, err := o.Fs.Create(tmp)
	if err != nil {
		return nil, engine.IO(err)
	}
	w := log.New(f)
	if ops := snapshot(stores); len(ops) > 0 {
		err = w.Add(encodeOps(ops))
	}
	if err == nil {
		err = o.Fs.Rename(tmp, path)
	}
	if err != nil {
		w.Close()
		return nil, engine.IO(err)
	}
	return &Env{log: w, stores: stores}, nil
}

// Env is an open log-structured environment.
type Env struct {
	// mu is held shared by readers and exclusively by the single writer
	mu     sync.RWMutex
	log    log.Writer
	stores map[string]*table
	err    error
}

func (e *Env) OpenStore(name string) (engine.Store, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.err == errClosed {
		return engine.Store{}, engine.IO(e.err)
	}
	return engine.Store{Name: name}, nil
}

func (e *Env) View(fn func(engine.ReadTxn) error) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.err == errClosed {
		return engine.IO(e.err)
	}
	return fn(readTxn{e.stores})
}

func (e *Env) Update(fn func(engine.WriteTxn) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return engine.IO(e.err)
	}
	tx := &writeTxn{readTxn: readTxn{e.stores}, dirty: make(map[string]*table)}
	if err := fn(tx); err != nil {
		return err
	}
	if len(tx.ops) == 0 {
		return nil
	}
	if err := e.log.Add(encodeOps(tx.ops)); err != nil {
		e.err = errFailed
		return engine.IO(err)
	}
	for name, t := range tx.dirty {
		e.stores[name] = t
	}
	return nil
}

func (e *Env) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err == errClosed {
		return nil
	}
	e.err = errClosed
	return e.log.Close()
}

type readTxn struct {
	stores map[string]*table
}

func (t readTxn) Get(s engine.Store, key []byte) ([]byte, bool, error) {
	if len(key) == 0 {
		return nil, false, nil
	}
	val, ok := t.stores[s.Name].Get(key)
	return val, ok, nil
}

func (t readTxn) Iterate(s engine.Store, from, to []byte, fn func(key, val []byte) error) error {
	return t.stores[s.Name].Iterate(from, to, fn)
}

type writeTxn struct {
	readTxn
	// dirty holds the clones of modified tables, which shadow the committed
	// tables for reads within the transaction
	dirty map[string]*table
	ops   []op
}

func (t *writeTxn) table(s engine.Store) *table {
	if d, ok := t.dirty[s.Name]; ok {
		return d
	}
	return t.stores[s.Name]
}

func (t *writeTxn) write(s engine.Store) *table {
	d, ok := t.dirty[s.Name]
	if !ok {
		d = t.stores[s.Name].clone()
		t.dirty[s.Name] = d
	}
	return d
}

func (t *writeTxn) Get(s engine.Store, key []byte) ([]byte, bool, error) {
	if len(key) == 0 {
		return nil, false, nil
	}
	val, ok := t.table(s).Get(key)
	return val, ok, nil
}

func (t *writeTxn) Iterate(s engine.Store, from, to []byte, fn func(key, val []byte) error) error {
	return t.table(s).Iterate(from, to, fn)
}

func (t *writeTxn) Put(s engine.Store, key, val []byte) error {
	key = append([]byte{}, key...)
	val = append([]byte{}, val...)
	t.write(s).Put(key, val)
	t.ops = append(t.ops, op{opPut, s.Name, key, val})
	return nil
}

func (t *writeTxn) Delete(s engine.Store, key []byte) error {
	if _, ok := t.table(s).Get(key); !ok {
		return nil
	}
	key = append([]byte{}, key...)
	t.write(s).Delete(key)
	t.ops = append(t.ops, op{opDelete, s.Name, key, nil})
	return nil
}

func (t *writeTxn) DeleteRange(s engine.Store, from, to []byte) error {
	from = append([]byte{}, from...)
	to = append([]byte{}, to...)
	t.write(s).DeleteRange(from, to)
	t.ops = append(t.ops, op{opDeleteRange, s.Name, from, to})
	return nil
}

func (t *writeTxn) Clear(s engine.Store) error {
	t.write(s).entries = nil
	t.ops = append(t.ops, op{opClear, s.Name, nil, nil})
	return nil
}
