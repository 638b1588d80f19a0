package kv

import (
	"fmt"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/tchajed/specious-kv/engine"
	"github.com/tchajed/specious-kv/env"
	"github.com/tchajed/specious-kv/value"
)

// Callbacks are invoked exactly once, on a worker goroutine.
type (
	VoidCallback       func(err error)
	ValueCallback      func(v value.Value, err error)
	BoolCallback       func(ok bool, err error)
	CountCallback      func(n int64, err error)
	EnumeratorCallback func(e *Enumerator, err error)
	DatabaseCallback   func(db *Database, err error)
)

// resolver guards a callback so that it runs at most once.
type resolver[T any] struct {
	once sync.Once
	cb   func(T, error)
}

func (r *resolver[T]) resolve(v T, err error) {
	r.once.Do(func() { r.cb(v, err) })
}

func (r *resolver[T]) fail(err error) {
	var zero T
	r.resolve(zero, err)
}

// An operation is one request against a database. run performs it and
// resolves its callback; fail resolves the callback with an error instead.
type operation interface {
	name() string
	run(e *env.Env, s engine.Store)
	fail(err error)
}

// task runs an operation on the database's queue. The task holds its own
// reference to the environment from submission until its callback returns.
type task struct {
	db *Database
	op operation
}

func (t *task) Execute() {
	defer func() {
		if err := t.db.env.Release(); err != nil {
			t.db.logger.Warn("failed to release environment", zap.Error(err))
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			t.db.logger.Error("operation panicked",
				zap.String("op", t.op.name()),
				zap.String("path", t.db.env.Path()),
				zap.Any("panic", r))
			t.op.fail(fmt.Errorf("%w: %s panicked: %v", ErrIoFailure, t.op.name(), r))
		}
	}()
	t.op.run(t.db.env, t.db.store)
}

func invalidKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	return fmt.Errorf("%w: %q is not valid UTF-8", ErrInvalidKey, key)
}

// writeKey checks a key for writing.
func writeKey(key string) error {
	if key == "" || !utf8.ValidString(key) {
		return invalidKey(key)
	}
	return nil
}

// readKey checks a key for reading. The empty key is never stored, so it
// reads as absent.
func readKey(key string) error {
	if !utf8.ValidString(key) {
		return invalidKey(key)
	}
	return nil
}

type getOp struct {
	resolver[value.Value]
	key string
	def value.Value
}

func (op *getOp) name() string { return "get" }

func (op *getOp) run(e *env.Env, s engine.Store) {
	if err := readKey(op.key); err != nil {
		op.fail(err)
		return
	}
	var data []byte
	var ok bool
	err := e.Read(func(tx engine.ReadTxn) error {
		var err error
		data, ok, err = tx.Get(s, []byte(op.key))
		return err
	})
	if err != nil {
		op.fail(classify(err))
		return
	}
	if !ok {
		op.resolve(op.def, nil)
		return
	}
	op.resolve(value.Decode(data))
}

type hasOp struct {
	resolver[bool]
	key string
}

func (op *hasOp) name() string { return "has" }

func (op *hasOp) run(e *env.Env, s engine.Store) {
	if err := readKey(op.key); err != nil {
		op.fail(err)
		return
	}
	var ok bool
	err := e.Read(func(tx engine.ReadTxn) error {
		var err error
		_, ok, err = tx.Get(s, []byte(op.key))
		return err
	})
	op.resolve(ok, classify(err))
}

// voidOp is a write whose callback only reports an error.
type voidOp struct {
	resolver[struct{}]
	op    string
	write func(tx engine.WriteTxn, s engine.Store) error
}

func newVoidOp(name string, cb VoidCallback, write func(engine.WriteTxn, engine.Store) error) *voidOp {
	return &voidOp{
		resolver: resolver[struct{}]{cb: func(_ struct{}, err error) { cb(err) }},
		op:       name,
		write:    write,
	}
}

func (op *voidOp) name() string { return op.op }

func (op *voidOp) run(e *env.Env, s engine.Store) {
	err := e.Write(func(tx engine.WriteTxn) error {
		return op.write(tx, s)
	})
	op.resolve(struct{}{}, classify(err))
}

// encodedPair is a validated WriteMany pair; val is nil for a delete.
type encodedPair struct {
	key []byte
	val []byte
}

// encodePairs validates a whole batch before anything is written.
func encodePairs(pairs []Pair) ([]encodedPair, error) {
	out := make([]encodedPair, 0, len(pairs))
	for i, p := range pairs {
		if err := writeKey(p.Key); err != nil {
			return nil, fmt.Errorf("pair %d: %w", i, err)
		}
		if p.Value.IsAbsent() {
			out = append(out, encodedPair{key: []byte(p.Key)})
			continue
		}
		data, err := value.Encode(p.Value)
		if err != nil {
			return nil, fmt.Errorf("pair %d: %w", i, err)
		}
		out = append(out, encodedPair{[]byte(p.Key), data})
	}
	return out, nil
}

type enumerateOp struct {
	resolver[*Enumerator]
	from, to string
}

func (op *enumerateOp) name() string { return "enumerate" }

func (op *enumerateOp) run(e *env.Env, s engine.Store) {
	if err := readKey(op.from); err != nil {
		op.fail(err)
		return
	}
	if err := readKey(op.to); err != nil {
		op.fail(err)
		return
	}
	enum := &Enumerator{}
	var scanErr error
	err := e.Read(func(tx engine.ReadTxn) error {
		scanErr = tx.Iterate(s, []byte(op.from), []byte(op.to), func(key, val []byte) error {
			enum.add(key, val)
			return nil
		})
		return nil
	})
	if err != nil {
		op.fail(classify(err))
		return
	}
	if scanErr != nil {
		enum.fail(scanErr)
	}
	op.resolve(enum, nil)
}

// notImplementedOp resolves with ErrNotImplemented from the queue, so it is
// ordered with the database's other operations.
type notImplementedOp struct {
	resolver[struct{}]
	op string
}

func newNotImplementedOp(name string, cb func(error)) *notImplementedOp {
	return &notImplementedOp{
		resolver: resolver[struct{}]{cb: func(_ struct{}, err error) { cb(err) }},
		op:       name,
	}
}

func (op *notImplementedOp) name() string { return op.op }

func (op *notImplementedOp) run(*env.Env, engine.Store) {
	op.fail(fmt.Errorf("%w: %s", ErrNotImplemented, op.op))
}
