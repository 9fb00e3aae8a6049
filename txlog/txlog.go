// Package txlog implements the TransactionLog contract of spec §4.5: an
// ordered, persistent, append-and-tail-truncate-only store of anchor
// records keyed by transaction_number, grounded on this project's
// teacher's dbaccess bucket-scoped access pattern (e.g. its per-concern
// "fees" bucket) layered over the store package's Database/Cursor
// abstraction.
package txlog

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"

	"github.com/daglabs/sidetree-anchor-engine/anchor"
	"github.com/daglabs/sidetree-anchor-engine/errkind"
	"github.com/daglabs/sidetree-anchor-engine/logger"
	"github.com/daglabs/sidetree-anchor-engine/store"
)

var log = logger.Subsystem(logger.SubsystemTags.TLOG)

// Bucket is the storage namespace for AnchorRecords, primary keyed by
// big-endian transaction_number per spec §6's persisted layout.
var Bucket = store.MakeBucket([]byte("transactions"))

// Log is the TransactionLog contract (spec §4.5).
type Log struct {
	db store.Database
}

// New constructs a Log backed by db.
func New(db store.Database) *Log {
	return &Log{db: db}
}

// Append implements TransactionLog.append (spec §4.5): total order on
// transaction_number; duplicates for the same number are rejected
// (no-op), satisfying the idempotent-reprocessing law of spec §8.6.
func (l *Log) Append(rec anchor.Record) error {
	key := txNumKey(rec.TransactionNumber)
	existing, err := l.db.Get(Bucket, key)
	if err != nil && !store.IsNotFound(err) {
		return errkind.PersistenceError(err, "checking existing record at transaction_number %d", rec.TransactionNumber)
	}
	if err == nil {
		prior, decodeErr := decodeRecord(existing)
		if decodeErr != nil {
			return errkind.Invariant("decoding existing record at transaction_number %d: %s", rec.TransactionNumber, decodeErr)
		}
		if recordsEqual(prior, rec) {
			return nil
		}
		return errkind.Invariant("append called twice for transaction_number %d with different contents", rec.TransactionNumber)
	}

	encoded, err := encodeRecord(rec)
	if err != nil {
		return errkind.Invariant("encoding record at transaction_number %d: %s", rec.TransactionNumber, err)
	}
	if err := l.db.Put(Bucket, key, encoded); err != nil {
		return errkind.PersistenceError(err, "persisting record at transaction_number %d", rec.TransactionNumber)
	}
	return nil
}

// Last implements TransactionLog.last (spec §4.5): the record with
// maximum transaction_number, or ok=false if the log is empty.
func (l *Log) Last() (anchor.Record, bool, error) {
	cursor, err := l.db.Cursor(Bucket)
	if err != nil {
		return anchor.Record{}, false, errkind.PersistenceError(err, "opening transaction log cursor")
	}
	defer cursor.Close()

	ok, err := cursor.Last()
	if err != nil {
		return anchor.Record{}, false, errkind.PersistenceError(err, "seeking to last transaction log entry")
	}
	if !ok {
		return anchor.Record{}, false, nil
	}
	rec, err := decodeRecord(cursor.Value())
	if err != nil {
		return anchor.Record{}, false, errkind.Invariant("decoding last transaction log entry: %s", err)
	}
	return rec, true, nil
}

// Count returns the number of records currently in the log.
func (l *Log) Count() (int, error) {
	cursor, err := l.db.Cursor(Bucket)
	if err != nil {
		return 0, errkind.PersistenceError(err, "opening transaction log cursor")
	}
	defer cursor.Close()

	count := 0
	ok, err := cursor.First()
	if err != nil {
		return 0, errkind.PersistenceError(err, "seeking transaction log cursor")
	}
	for ok {
		count++
		ok, err = cursor.Next()
		if err != nil {
			return 0, errkind.PersistenceError(err, "advancing transaction log cursor")
		}
	}
	return count, nil
}

// LaterThan implements TransactionLog.later_than (spec §4.5): up to limit
// records with transaction_number > since, in ascending order. since nil
// means from the beginning.
func (l *Log) LaterThan(since *uint64, limit uint32) ([]anchor.Record, error) {
	cursor, err := l.db.Cursor(Bucket)
	if err != nil {
		return nil, errkind.PersistenceError(err, "opening transaction log cursor")
	}
	defer cursor.Close()

	var ok bool
	if since == nil {
		ok, err = cursor.First()
	} else {
		ok, err = cursor.Seek(txNumKey(*since))
		if err == nil && ok {
			if binary.BigEndian.Uint64(cursor.Key()) == *since {
				ok, err = cursor.Next()
			}
		}
	}
	if err != nil {
		return nil, errkind.PersistenceError(err, "seeking transaction log cursor")
	}

	out := make([]anchor.Record, 0, limit)
	for ok && uint32(len(out)) < limit {
		rec, decodeErr := decodeRecord(cursor.Value())
		if decodeErr != nil {
			return nil, errkind.Invariant("decoding transaction log entry: %s", decodeErr)
		}
		out = append(out, rec)
		ok, err = cursor.Next()
		if err != nil {
			return nil, errkind.PersistenceError(err, "advancing transaction log cursor")
		}
	}
	return out, nil
}

// ExponentiallySpaced implements TransactionLog.exponentially_spaced
// (spec §4.5): records at offsets 0, 1, 2, 4, 8, 16, ... from the tail,
// used by fork recovery to probe history in O(log n) queries. Returned
// in descending transaction_number order (nearest-to-tail first), which
// is the order rollback's survivor search consumes them in.
func (l *Log) ExponentiallySpaced() ([]anchor.Record, error) {
	cursor, err := l.db.Cursor(Bucket)
	if err != nil {
		return nil, errkind.PersistenceError(err, "opening transaction log cursor")
	}
	defer cursor.Close()

	ok, err := cursor.Last()
	if err != nil {
		return nil, errkind.PersistenceError(err, "seeking to last transaction log entry")
	}
	if !ok {
		return nil, nil
	}

	var out []anchor.Record
	currentOffset := 0
	for {
		rec, decodeErr := decodeRecord(cursor.Value())
		if decodeErr != nil {
			return nil, errkind.Invariant("decoding transaction log entry: %s", decodeErr)
		}
		out = append(out, rec)

		nextOffset := nextProbeOffset(currentOffset)
		steps := nextOffset - currentOffset
		reached := true
		for i := 0; i < steps; i++ {
			moveOK, moveErr := cursor.Prev()
			if moveErr != nil {
				return nil, errkind.PersistenceError(moveErr, "probing transaction log cursor")
			}
			if !moveOK {
				reached = false
				break
			}
		}
		if !reached {
			break
		}
		currentOffset = nextOffset
	}
	return out, nil
}

// nextProbeOffset returns the next exponential probe offset after
// current, following the 0, 1, 2, 4, 8, 16, ... sequence of spec §4.5.
func nextProbeOffset(current int) int {
	if current == 0 {
		return 1
	}
	return current * 2
}

// RemoveLaterThan implements TransactionLog.remove_later_than
// (spec §4.5): durably deletes every record with
// transaction_number > txnum.
func (l *Log) RemoveLaterThan(txnum uint64) error {
	cursor, err := l.db.Cursor(Bucket)
	if err != nil {
		return errkind.PersistenceError(err, "opening transaction log cursor")
	}
	var toDelete [][]byte
	ok, err := cursor.Seek(txNumKey(txnum))
	if err != nil {
		cursor.Close()
		return errkind.PersistenceError(err, "seeking transaction log cursor")
	}
	if ok && binary.BigEndian.Uint64(cursor.Key()) == txnum {
		ok, err = cursor.Next()
		if err != nil {
			cursor.Close()
			return errkind.PersistenceError(err, "advancing transaction log cursor")
		}
	}
	for ok {
		key := make([]byte, len(cursor.Key()))
		copy(key, cursor.Key())
		toDelete = append(toDelete, key)
		ok, err = cursor.Next()
		if err != nil {
			cursor.Close()
			return errkind.PersistenceError(err, "advancing transaction log cursor")
		}
	}
	cursor.Close()

	for _, key := range toDelete {
		if err := l.db.Delete(Bucket, key); err != nil {
			return errkind.PersistenceError(err, "deleting transaction log entry")
		}
	}
	log.Debugf("txlog: removed %d entries later than transaction_number %d", len(toDelete), txnum)
	return nil
}

func recordsEqual(a, b anchor.Record) bool {
	return a.TransactionNumber == b.TransactionNumber &&
		a.BlockHeight == b.BlockHeight &&
		a.BlockHash == b.BlockHash &&
		a.TxID == b.TxID &&
		a.FeePaid == b.FeePaid &&
		bytes.Equal(a.AnchorPayload, b.AnchorPayload)
}

func txNumKey(txnum uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, txnum)
	return key
}

func encodeRecord(rec anchor.Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRecord(raw []byte) (anchor.Record, error) {
	var rec anchor.Record
	err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&rec)
	return rec, err
}
