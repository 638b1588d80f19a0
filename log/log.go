package log

// Atomic storage for binary blobs
//
// Supports storing binary blobs ("transactions") atomically with respect to
// crashes.
//
// API:
// - Add: commits a transaction
// - RecoverTxns: returns successfully committed transactions
//
// How to use this API:
// - Create an applications-specific log that embeds a Writer.
// - Serialize application-level operations and add them as transactions.
// - Cache all writes and expose a read API.
// - For recovery, process all updates and write them to a fresh log with a
//   single transaction, then rename it over the old one.
//
// Each file must be written by a single Writer: gob streams carry their type
// definitions once, so appending with a second encoder produces a file that
// does not decode.

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"
)

// ErrCorrupt is returned by RecoverTxns when the log holds something other
// than a (possibly truncated) sequence of records.
var ErrCorrupt = errors.New("log is corrupt")

type recordType uint8

const (
	invalidRecord recordType = iota
	dataRecord
	commitRecord
)

type record struct {
	Type recordType
	Data []byte
}

type LogFile interface {
	io.WriteCloser
	Sync() error
}

type Writer struct {
	log LogFile
	enc *gob.Encoder
}

func New(f LogFile) Writer {
	return Writer{f, gob.NewEncoder(f)}
}

// Add durably appends data as one transaction. A transaction is committed
// once Add returns nil; an error leaves at most an uncommitted data record,
// which recovery ignores.
func (l Writer) Add(data []byte) error {
	if err := l.enc.Encode(record{dataRecord, data}); err != nil {
		return err
	}
	if err := l.log.Sync(); err != nil {
		return err
	}
	if err := l.enc.Encode(record{commitRecord, nil}); err != nil {
		return err
	}
	return l.log.Sync()
}

func (l Writer) Close() error {
	return l.log.Close()
}

func truncated(err error) bool {
	return err == io.EOF || err == io.ErrUnexpectedEOF
}

// RecoverTxns returns the committed transactions in log, in order.
//
// A log that ends partway through a record or between a data record and its
// commit was interrupted by a crash; the incomplete transaction is dropped.
// Anything else that fails to decode is reported as ErrCorrupt.
func RecoverTxns(log io.Reader) (txns [][]byte, err error) {
	dec := gob.NewDecoder(log)
	for {
		var data record
		err := dec.Decode(&data)
		if truncated(err) {
			// interpret this as a partial transaction
			return txns, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if data.Type != dataRecord {
			return nil, fmt.Errorf("%w: expected data record, got type %d", ErrCorrupt, data.Type)
		}
		var commit record
		err = dec.Decode(&commit)
		if truncated(err) {
			// data record was not successfully committed, so ignore it
			return txns, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if commit.Type != commitRecord {
			return nil, fmt.Errorf("%w: expected commit record, got type %d", ErrCorrupt, commit.Type)
		}
		txns = append(txns, data.Data)
	}
}
