// Package store defines the persistence substrate shared by the
// transaction log and the quantile calculator: a capability-contract
// Database interface (modeled on this project's teacher's
// database2.Database/database2.Cursor trait split) with a real LevelDB
// backend and an in-memory backend for tests.
package store

import "github.com/pkg/errors"

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("store: key not found")

// Database is the capability contract every persistence backend must
// satisfy. It intentionally exposes only what the transaction log and
// quantile calculator need: bucketed key/value access, ordered iteration
// within a bucket, and durable writes. Implementations: LevelDBStore
// (real) and MemoryStore (tests).
type Database interface {
	// Get returns the value for key in bucket, or ErrNotFound.
	Get(bucket Bucket, key []byte) ([]byte, error)
	// Has reports whether key exists in bucket.
	Has(bucket Bucket, key []byte) (bool, error)
	// Put durably writes key/value into bucket. Durable per spec §4.5/§4.4:
	// callers may assume the write is on stable storage before Put returns.
	Put(bucket Bucket, key, value []byte) error
	// Delete durably removes key from bucket. Not an error if key is absent.
	Delete(bucket Bucket, key []byte) error
	// Cursor opens an iterator over bucket's key/value pairs in
	// lexicographic key order.
	Cursor(bucket Bucket) (Cursor, error)
	// Close releases the database's resources.
	Close() error
}

// Bucket namespaces keys within a Database, mirroring the teacher's
// dbaccess bucket-per-concern layout (e.g. its "fees" bucket).
type Bucket struct {
	name []byte
}

// MakeBucket returns a Bucket identified by name.
func MakeBucket(name []byte) Bucket {
	return Bucket{name: name}
}

// Key prefixes suffix with the bucket's namespace, producing the raw key
// a Database implementation stores internally.
func (b Bucket) Key(suffix []byte) []byte {
	key := make([]byte, 0, len(b.name)+1+len(suffix))
	key = append(key, b.name...)
	key = append(key, ':')
	key = append(key, suffix...)
	return key
}

// Name returns the bucket's namespace.
func (b Bucket) Name() []byte {
	return b.name
}

// Cursor iterates over a bucket's key/value pairs in ascending key order.
// Modeled directly on database2.Cursor.
type Cursor interface {
	// First moves to the first pair. Reports whether one exists.
	First() (bool, error)
	// Seek moves to the first pair whose key is >= the given suffix
	// (relative to the cursor's bucket). Reports whether one exists.
	Seek(suffix []byte) (bool, error)
	// Last moves to the last pair in the bucket. Reports whether one exists.
	Last() (bool, error)
	// Next advances to the next pair. Reports whether one exists.
	Next() (bool, error)
	// Prev moves to the previous pair. Reports whether one exists.
	Prev() (bool, error)
	// Key returns the current pair's key, with the bucket prefix stripped.
	Key() []byte
	// Value returns the current pair's value.
	Value() []byte
	// Close releases the cursor's resources.
	Close() error
}

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
