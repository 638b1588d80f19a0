package logkv

import (
	"bytes"
	"sort"

	"github.com/tchajed/specious-kv/engine"
)

type entry struct {
	key []byte
	val []byte
}

// table is one store's contents, sorted by key.
//
// Tables are copy-on-write: a write transaction clones each table it modifies
// and installs the clones when it commits, so readers never see a partial
// transaction.
type table struct {
	entries []entry
}

// search returns the index of the first entry with key >= k.
func (t *table) search(k []byte) int {
	if t == nil {
		return 0
	}
	return sort.Search(len(t.entries), func(i int) bool {
		return bytes.Compare(t.entries[i].key, k) >= 0
	})
}

func (t *table) Get(k []byte) ([]byte, bool) {
	i := t.search(k)
	if t == nil || i == len(t.entries) || !bytes.Equal(t.entries[i].key, k) {
		return nil, false
	}
	return t.entries[i].val, true
}

func (t *table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

func (t *table) Put(k, v []byte) {
	i := t.search(k)
	if i < len(t.entries) && bytes.Equal(t.entries[i].key, k) {
		t.entries[i].val = v
		return
	}
	t.entries = append(t.entries, entry{})
	copy(t.entries[i+1:], t.entries[i:])
	t.entries[i] = entry{k, v}
}

func (t *table) Delete(k []byte) {
	i := t.search(k)
	if i < len(t.entries) && bytes.Equal(t.entries[i].key, k) {
		t.entries = append(t.entries[:i], t.entries[i+1:]...)
	}
}

func (t *table) DeleteRange(from, to []byte) {
	start := t.search(from)
	end := len(t.entries)
	if len(to) > 0 {
		end = t.search(to)
	}
	if start >= end {
		return
	}
	t.entries = append(t.entries[:start], t.entries[end:]...)
}

func (t *table) Iterate(from, to []byte, fn func(key, val []byte) error) error {
	if t == nil {
		return nil
	}
	for i := t.search(from); i < len(t.entries); i++ {
		e := t.entries[i]
		if !engine.InRange(e.key, from, to) {
			break
		}
		if err := fn(e.key, e.val); err != nil {
			return err
		}
	}
	return nil
}

// clone copies the entry list; keys and values are never mutated in place
// and are shared.
func (t *table) clone() *table {
	if t == nil {
		return &table{}
	}
	entries := make([]entry, len(t.entries))
	copy(entries, t.entries)
	return &table{entries}
}
