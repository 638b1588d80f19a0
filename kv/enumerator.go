package kv

import (
	"sync"
	"unicode/utf8"

	"github.com/tchajed/specious-kv/value"
)

// Pair is a key and its value. In WriteMany an Absent value deletes the key.
type Pair struct {
	Key   string
	Value value.Value
}

type enumEntry struct {
	pair Pair
	err  error
}

// Enumerator walks the result of an Enumerate in ascending key order.
//
// The range is read completely before the Enumerator is handed out, so it
// holds no locks and reflects the store as of the scan. It is one-pass and
// safe for concurrent use.
type Enumerator struct {
	mu      sync.Mutex
	entries []enumEntry
	pos     int
}

// HasMore reports whether Next has entries left to return.
func (e *Enumerator) HasMore() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pos < len(e.entries)
}

// Next returns the next pair and advances. An entry that could not be read
// is returned as its error, once; the following call moves on to the next
// entry. After the last entry Next returns ErrExhausted.
func (e *Enumerator) Next() (Pair, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pos >= len(e.entries) {
		return Pair{}, ErrExhausted
	}
	ent := e.entries[e.pos]
	e.entries[e.pos] = enumEntry{}
	e.pos++
	return ent.pair, ent.err
}

// Len returns the total number of entries, consumed or not.
func (e *Enumerator) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.entries)
}

// add decodes one scanned pair into an entry.
func (e *Enumerator) add(key, val []byte) {
	if !utf8.Valid(key) {
		e.entries = append(e.entries, enumEntry{err: invalidKey(string(key))})
		return
	}
	v, err := value.Decode(val)
	if err != nil {
		e.entries = append(e.entries, enumEntry{err: err})
		return
	}
	e.entries = append(e.entries, enumEntry{pair: Pair{string(key), v}})
}

// fail records an error that interrupted the scan after the entries read so
// far.
func (e *Enumerator) fail(err error) {
	e.entries = append(e.entries, enumEntry{err: classify(err)})
}
