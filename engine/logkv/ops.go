package logkv

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/tchajed/specious-kv/bin"
)

// Log format
//
// Each log transaction is a sequence of operations, applied in order:
//
//	op      uint8
//	store   varint-prefixed name
//	args    (put: key, value; delete: key; delete range: from, to; clear: none)
//
// where every key and value is a varint-prefixed byte array.

type opKind uint8

const (
	opPut opKind = iota + 1
	opDelete
	opDeleteRange
	opClear
)

type op struct {
	kind  opKind
	store string
	// key is also the lower bound of a range delete and val its upper bound
	key []byte
	val []byte
}

func encodeOps(ops []op) []byte {
	var buf bytes.Buffer
	e := bin.NewEncoder(&buf)
	for _, o := range ops {
		e.Uint8(uint8(o.kind))
		e.Text(o.store)
		switch o.kind {
		case opPut, opDeleteRange:
			e.Array(o.key)
			e.Array(o.val)
		case opDelete:
			e.Array(o.key)
		}
	}
	return buf.Bytes()
}

func decodeOps(txn []byte) ([]op, error) {
	var ops []op
	d := bin.NewDecoder(txn)
	for d.RemainingBytes() > 0 {
		o := op{kind: opKind(d.Uint8())}
		o.store = d.Text()
		switch o.kind {
		case opPut, opDeleteRange:
			o.key = d.Array()
			o.val = d.Array()
		case opDelete:
			o.key = d.Array()
		case opClear:
		default:
			return nil, fmt.Errorf("unknown log operation %d", o.kind)
		}
		if err := d.Err(); err != nil {
			return nil, err
		}
		ops = append(ops, o)
	}
	return ops, nil
}

func apply(stores map[string]*table, o op) {
	t := stores[o.store]
	if t == nil {
		t = &table{}
		stores[o.store] = t
	}
	switch o.kind {
	case opPut:
		t.Put(o.key, o.val)
	case opDelete:
		t.Delete(o.key)
	case opDeleteRange:
		t.DeleteRange(o.key, o.val)
	case opClear:
		t.entries = nil
	}
}

// snapshot lists puts that rebuild stores, with stores in name order.
func snapshot(stores map[string]*table) []op {
	names := make([]string, 0, len(stores))
	for name := range stores {
		names = append(names, name)
	}
	sort.Strings(names)
	var ops []op
	for _, name := range names {
		for _, e := range stores[name].entries {
			ops = append(ops, op{opPut, name, e.key, e.val})
		}
	}
	return ops
}
