package docdb

import (
	"bytes"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
)

// store is the ordered-map service collections are built on: named maps of
// sorted byte keys, read and written in storage transactions. Everything
// one collection write touches (the document and its index entries) goes
// into a single Update, so it is applied atomically.
type store struct {
	st     storage
	logger *slog.Logger
	closed atomic.Bool

	ReadCount  atomic.Uint64
	WriteCount atomic.Uint64
}

func newStore(st storage, logger *slog.Logger) *store {
	if logger == nil {
		logger = slog.Default()
	}
	return &store{st: st, logger: logger}
}

func newMemStore(logger *slog.Logger) *store {
	return newStore(newMemStorage(), logger)
}

func (s *store) View(f func(tx *storeTx) error) error {
	if s.closed.Load() {
		return ErrClosed
	}
	stx, err := s.st.BeginTx(false)
	if err != nil {
		return err
	}
	defer stx.Rollback()
	s.ReadCount.Add(1)
	return safelyCall(f, &storeTx{stx: stx, logger: s.logger})
}

func (s *store) Update(f func(tx *storeTx) error) error {
	if s.closed.Load() {
		return ErrClosed
	}
	stx, err := s.st.BeginTx(true)
	if err != nil {
		return err
	}
	defer stx.Rollback()
	s.WriteCount.Add(1)
	err = safelyCall(f, &storeTx{stx: stx, logger: s.logger})
	if err != nil {
		return err
	}
	return stx.Commit()
}

// panicked is the error a storage transaction returns when its function
// panics. The transaction is rolled back.
type panicked struct {
	reason any
	stack  string
}

func (p panicked) Error() string {
	return fmt.Sprintf("panic: %v\n\n%s", p.reason, p.stack)
}

func safelyCall(fn func(*storeTx) error, tx *storeTx) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = panicked{p, string(debug.Stack())}
		}
	}()
	return fn(tx)
}

func (s *store) MapNames() []string {
	var names []string
	_ = s.View(func(tx *storeTx) error {
		names = tx.stx.BucketNames()
		return nil
	})
	return names
}

func (s *store) HasMap(name string) bool {
	var found bool
	_ = s.View(func(tx *storeTx) error {
		found = tx.stx.Bucket(name) != nil
		return nil
	})
	return found
}

func (s *store) RemoveMap(name string) error {
	return s.Update(func(tx *storeTx) error {
		return tx.RemoveMap(name)
	})
}

func (s *store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.st.Close()
}

// snapshot copies the named maps into a fresh in-memory store.
func (s *store) snapshot(names []string) (*store, error) {
	snap := newMemStore(s.logger)
	err := s.View(func(src *storeTx) error {
		return snap.Update(func(dst *storeTx) error {
			for _, name := range names {
				sb := src.stx.Bucket(name)
				if sb == nil {
					continue
				}
				db, err := dst.stx.CreateBucket(name)
				if err != nil {
					return err
				}
				c := sb.Cursor()
				for k, v := c.First(); k != nil; k, v = c.Next() {
					if err := db.Put(k, v); err != nil {
						return err
					}
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

type storeTx struct {
	stx    storageTx
	logger *slog.Logger
	maps   map[string]*storeMap
}

// Map returns a handle for the named map. Missing maps read as empty and
// are created by the first write.
func (tx *storeTx) Map(name string) *storeMap {
	if m := tx.maps[name]; m != nil {
		return m
	}
	if tx.maps == nil {
		tx.maps = make(map[string]*storeMap)
	}
	m := &storeMap{tx: tx, name: name, b: tx.stx.Bucket(name)}
	tx.maps[name] = m
	return m
}

func (tx *storeTx) RemoveMap(name string) error {
	delete(tx.maps, name)
	err := tx.stx.DeleteBucket(name)
	if err == ErrBucketNotFound {
		return nil
	}
	return err
}

func (tx *storeTx) Size() int64 {
	return tx.stx.Size()
}

type storeMap struct {
	tx   *storeTx
	name string
	b    storageBucket
}

func (m *storeMap) Name() string { return m.name }

func (m *storeMap) Exists() bool { return m.b != nil }

func (m *storeMap) writable() (storageBucket, error) {
	if m.b == nil {
		b, err := m.tx.stx.CreateBucket(m.name)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", m.name, err)
		}
		m.b = b
	}
	return m.b, nil
}

// Get returns the value stored under key, or nil. The value is only valid
// within the transaction.
func (m *storeMap) Get(key []byte) []byte {
	if m.b == nil {
		return nil
	}
	return m.b.Get(key)
}

func (m *storeMap) Has(key []byte) bool {
	if m.b == nil {
		return false
	}
	k, _ := m.b.Cursor().Seek(key)
	return k != nil && bytes.Equal(k, key)
}

func (m *storeMap) Put(key, value []byte) error {
	b, err := m.writable()
	if err != nil {
		return err
	}
	return b.Put(key, value)
}

func (m *storeMap) Remove(key []byte) error {
	if m.b == nil {
		return nil
	}
	return m.b.Delete(key)
}

func (m *storeMap) Size() int {
	if m.b == nil {
		return 0
	}
	return m.b.KeyCount()
}

// Clear removes every key but keeps the map.
func (m *storeMap) Clear() error {
	if m.b == nil {
		return nil
	}
	if err := m.tx.stx.DeleteBucket(m.name); err != nil && err != ErrBucketNotFound {
		return err
	}
	b, err := m.tx.stx.CreateBucket(m.name)
	if err != nil {
		return err
	}
	m.b = b
	return nil
}

// Scan calls f for every entry in the range until f returns false.
func (m *storeMap) Scan(rang RawRange, f func(k, v []byte) bool) {
	if m.b == nil {
		return
	}
	c := rang.newCursor(m.b.Cursor(), m.tx.logger)
	for c.Next() {
		if !f(c.Key(), c.Value()) {
			return
		}
	}
}

// HigherKey returns the least key strictly greater than key, or nil.
func (m *storeMap) HigherKey(key []byte) []byte {
	return m.navigate(RawEO(key))
}

// CeilingKey returns the least key greater than or equal to key, or nil.
func (m *storeMap) CeilingKey(key []byte) []byte {
	return m.navigate(RawIO(key))
}

func (m *storeMap) navigate(rang RawRange) []byte {
	var found []byte
	m.Scan(rang, func(k, _ []byte) bool {
		found = bytes.Clone(k)
		return false
	})
	return found
}

func (m *storeMap) Stats() bucketStats {
	if m.b == nil {
		return bucketStats{}
	}
	return m.b.Stats()
}
