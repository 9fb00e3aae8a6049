package store

import (
	"sort"
	"sync"
)

// MemoryStore is an in-memory Database used by tests and by FakeClient
// driven engine tests — it gives the exact same Database contract as
// LevelDBStore without touching disk.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

// NewMemoryStore creates an empty in-memory Database.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string][]byte)}
}

func (m *MemoryStore) bucketMap(bucket Bucket) map[string][]byte {
	name := string(bucket.Name())
	b, ok := m.data[name]
	if !ok {
		b = make(map[string][]byte)
		m.data[name] = b
	}
	return b
}

// Get implements Database.
func (m *MemoryStore) Get(bucket Bucket, key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.data[string(bucket.Name())]
	if !ok {
		return nil, ErrNotFound
	}
	v, ok := b[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Has implements Database.
func (m *MemoryStore) Has(bucket Bucket, key []byte) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.data[string(bucket.Name())]
	if !ok {
		return false, nil
	}
	_, ok = b[string(key)]
	return ok, nil
}

// Put implements Database.
func (m *MemoryStore) Put(bucket Bucket, key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.bucketMap(bucket)
	v := make([]byte, len(value))
	copy(v, value)
	b[string(key)] = v
	return nil
}

// Delete implements Database.
func (m *MemoryStore) Delete(bucket Bucket, key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[string(bucket.Name())]
	if !ok {
		return nil
	}
	delete(b, string(key))
	return nil
}

// Cursor implements Database. The returned cursor is a point-in-time
// snapshot of the bucket's keys at the moment Cursor is called.
func (m *MemoryStore) Cursor(bucket Bucket) (Cursor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b := m.data[string(bucket.Name())]
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := make([][]byte, len(keys))
	for i, k := range keys {
		values[i] = b[k]
	}
	return &memoryCursor{keys: keys, values: values, pos: -1}, nil
}

// Close implements Database. It is a no-op for MemoryStore.
func (m *MemoryStore) Close() error {
	return nil
}

type memoryCursor struct {
	keys   []string
	values [][]byte
	pos    int
}

func (c *memoryCursor) First() (bool, error) {
	if len(c.keys) == 0 {
		c.pos = 0
		return false, nil
	}
	c.pos = 0
	return true, nil
}

func (c *memoryCursor) Last() (bool, error) {
	if len(c.keys) == 0 {
		c.pos = 0
		return false, nil
	}
	c.pos = len(c.keys) - 1
	return true, nil
}

func (c *memoryCursor) Seek(suffix []byte) (bool, error) {
	target := string(suffix)
	idx := sort.SearchStrings(c.keys, target)
	if idx >= len(c.keys) {
		c.pos = len(c.keys)
		return false, nil
	}
	c.pos = idx
	return true, nil
}

func (c *memoryCursor) Next() (bool, error) {
	if c.pos+1 >= len(c.keys) {
		c.pos = len(c.keys)
		return false, nil
	}
	c.pos++
	return true, nil
}

func (c *memoryCursor) Prev() (bool, error) {
	if c.pos <= 0 {
		c.pos = -1
		return false, nil
	}
	c.pos--
	return true, nil
}

func (c *memoryCursor) Key() []byte {
	if c.pos < 0 || c.pos >= len(c.keys) {
		return nil
	}
	return []byte(c.keys[c.pos])
}

func (c *memoryCursor) Value() []byte {
	if c.pos < 0 || c.pos >= len(c.values) {
		return nil
	}
	return c.values[c.pos]
}

func (c *memoryCursor) Close() error {
	return nil
}
