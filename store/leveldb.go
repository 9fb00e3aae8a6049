package store

import (
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDBStore is the real Database backend, grounded on this project's
// teacher's database2/ffldb driver stack (itself a thin LevelDB
// transaction wrapper). Every Put/Delete is issued with Sync: true so
// that both TransactionLog.append/remove_later_than and
// QuantileCalculator.add's durability barrier (spec §4.4/§4.5) hold
// before the call returns.
type LevelDBStore struct {
	db *leveldb.DB
}

// OpenLevelDBStore opens (creating if absent) a LevelDB database at path.
func OpenLevelDBStore(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "opening leveldb store at %s", path)
	}
	return &LevelDBStore{db: db}, nil
}

var syncWrite = &opt.WriteOptions{Sync: true}

// Get implements Database.
func (s *LevelDBStore) Get(bucket Bucket, key []byte) ([]byte, error) {
	v, err := s.db.Get(bucket.Key(key), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "leveldb get")
	}
	return v, nil
}

// Has implements Database.
func (s *LevelDBStore) Has(bucket Bucket, key []byte) (bool, error) {
	ok, err := s.db.Has(bucket.Key(key), nil)
	if err != nil {
		return false, errors.Wrap(err, "leveldb has")
	}
	return ok, nil
}

// Put implements Database.
func (s *LevelDBStore) Put(bucket Bucket, key, value []byte) error {
	if err := s.db.Put(bucket.Key(key), value, syncWrite); err != nil {
		return errors.Wrap(err, "leveldb put")
	}
	return nil
}

// Delete implements Database.
func (s *LevelDBStore) Delete(bucket Bucket, key []byte) error {
	if err := s.db.Delete(bucket.Key(key), syncWrite); err != nil {
		return errors.Wrap(err, "leveldb delete")
	}
	return nil
}

// Cursor implements Database.
func (s *LevelDBStore) Cursor(bucket Bucket) (Cursor, error) {
	prefix := bucket.Key(nil)
	rng := util.BytesPrefix(prefix)
	iter := s.db.NewIterator(rng, nil)
	return &levelDBCursor{iter: iter, prefix: prefix}, nil
}

// Close implements Database.
func (s *LevelDBStore) Close() error {
	return s.db.Close()
}

type levelDBCursor struct {
	iter   iterator
	prefix []byte
}

// iterator is the subset of leveldb.Iterator this cursor needs; declared
// locally so tests could substitute a fake without pulling in leveldb.
type iterator interface {
	First() bool
	Last() bool
	Seek(key []byte) bool
	Next() bool
	Prev() bool
	Key() []byte
	Value() []byte
	Release()
	Error() error
}

func (c *levelDBCursor) First() (bool, error) {
	ok := c.iter.First()
	return ok, c.iter.Error()
}

func (c *levelDBCursor) Last() (bool, error) {
	ok := c.iter.Last()
	return ok, c.iter.Error()
}

func (c *levelDBCursor) Seek(suffix []byte) (bool, error) {
	full := make([]byte, 0, len(c.prefix)+len(suffix))
	full = append(full, c.prefix...)
	full = append(full, suffix...)
	ok := c.iter.Seek(full)
	return ok, c.iter.Error()
}

func (c *levelDBCursor) Next() (bool, error) {
	ok := c.iter.Next()
	return ok, c.iter.Error()
}

func (c *levelDBCursor) Prev() (bool, error) {
	ok := c.iter.Prev()
	return ok, c.iter.Error()
}

func (c *levelDBCursor) Key() []byte {
	key := c.iter.Key()
	if len(key) < len(c.prefix) {
		return nil
	}
	return key[len(c.prefix):]
}

func (c *levelDBCursor) Value() []byte {
	return c.iter.Value()
}

func (c *levelDBCursor) Close() error {
	c.iter.Release()
	return c.iter.Error()
}
