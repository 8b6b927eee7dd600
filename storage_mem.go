package docdb

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
)

// memStorage keeps buckets as sorted slices. Transactions share committed
// buckets and clone a bucket on the first write to it, so committed buckets
// are never mutated in place.
type memStorage struct {
	mu      sync.Mutex
	cond    *sync.Cond
	buckets map[string]*memBucket
	closed  bool
	writer  bool
}

// newMemStorage returns a transient in-memory storage.
func newMemStorage() *memStorage {
	s := &memStorage{buckets: make(map[string]*memBucket)}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *memStorage) BeginTx(writable bool) (storageTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("storage closed")
	}
	if writable {
		for s.writer && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			return nil, fmt.Errorf("storage closed")
		}
		s.writer = true
	}

	return &memTx{
		writable: writable,
		base:     s,
		buckets:  maps.Clone(s.buckets),
		owned:    make(map[string]bool),
	}, nil
}

func (s *memStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.buckets = nil
	if s.cond != nil {
		s.cond.Broadcast()
	}
	return nil
}

type memTx struct {
	base     *memStorage
	writable bool
	buckets  map[string]*memBucket
	owned    map[string]bool
	closed   bool
}

func (tx *memTx) Writable() bool { return tx.writable }

func (tx *memTx) closeLocked() {
	if tx.closed {
		return
	}
	tx.closed = true
	if tx.writable {
		tx.base.writer = false
		tx.base.cond.Broadcast()
	}
}

func (tx *memTx) Bucket(name string) storageBucket {
	if tx.closed {
		panic("tx is closed")
	}
	if tx.buckets[name] == nil {
		return nil
	}
	return memBucketHandle{tx: tx, name: name}
}

func (tx *memTx) CreateBucket(name string) (storageBucket, error) {
	if tx.closed {
		panic("tx is closed")
	}
	if !tx.writable {
		return nil, fmt.Errorf("tx not writable")
	}
	if tx.buckets[name] == nil {
		tx.buckets[name] = &memBucket{}
		tx.owned[name] = true
	}
	return memBucketHandle{tx: tx, name: name}, nil
}

func (tx *memTx) DeleteBucket(name string) error {
	if tx.closed {
		panic("tx is closed")
	}
	if !tx.writable {
		return fmt.Errorf("tx not writable")
	}
	if tx.buckets[name] == nil {
		return ErrBucketNotFound
	}
	delete(tx.buckets, name)
	delete(tx.owned, name)
	return nil
}

func (tx *memTx) BucketNames() []string {
	return slices.Sorted(maps.Keys(tx.buckets))
}

// mutable returns a bucket this transaction may modify.
func (tx *memTx) mutable(name string) *memBucket {
	b := tx.buckets[name]
	if !tx.owned[name] {
		b = b.clone()
		tx.buckets[name] = b
		tx.owned[name] = true
	}
	return b
}

func (tx *memTx) Commit() error {
	if tx.closed {
		return nil
	}
	if !tx.writable {
		return fmt.Errorf("tx not writable")
	}
	tx.base.mu.Lock()
	defer tx.base.mu.Unlock()
	if tx.base.closed {
		tx.closeLocked()
		return fmt.Errorf("storage closed")
	}
	tx.base.buckets = tx.buckets
	tx.closeLocked()
	return nil
}

func (tx *memTx) Rollback() error {
	tx.base.mu.Lock()
	defer tx.base.mu.Unlock()
	tx.closeLocked()
	return nil
}

func (tx *memTx) Size() int64 {
	var n int64
	for _, b := range tx.buckets {
		for _, kv := range b.items {
			n += int64(len(kv.key) + len(kv.value))
		}
	}
	return n
}

type memBucket struct {
	items []memKV // sorted by key
}

func (b *memBucket) clone() *memBucket {
	if b == nil {
		return &memBucket{}
	}
	return &memBucket{items: slices.Clone(b.items)}
}

func (b *memBucket) find(key []byte) (idx int, ok bool) {
	items := b.items
	i := sort.Search(len(items), func(i int) bool {
		return bytes.Compare(items[i].key, key) >= 0
	})
	if i < len(items) && bytes.Equal(items[i].key, key) {
		return i, true
	}
	return i, false
}

// memKV entries are immutable once stored; Put replaces the whole entry.
type memKV struct {
	key   []byte
	value []byte
}

type memBucketHandle struct {
	tx   *memTx
	name string
}

func (b memBucketHandle) bucket() *memBucket {
	return b.tx.buckets[b.name]
}

func (b memBucketHandle) Get(key []byte) []byte {
	bk := b.bucket()
	i, ok := bk.find(key)
	if !ok {
		return nil
	}
	return bk.items[i].value
}

func (b memBucketHandle) Put(key, value []byte) error {
	if !b.tx.writable {
		return fmt.Errorf("tx not writable")
	}
	kv := memKV{key: bytes.Clone(key), value: bytes.Clone(value)}
	if kv.value == nil {
		kv.value = []byte{}
	}

	bk := b.tx.mutable(b.name)
	i, ok := bk.find(key)
	if ok {
		bk.items[i] = kv
		return nil
	}
	bk.items = slices.Insert(bk.items, i, kv)
	return nil
}

func (b memBucketHandle) Delete(key []byte) error {
	if !b.tx.writable {
		return fmt.Errorf("tx not writable")
	}
	if _, ok := b.bucket().find(key); !ok {
		return nil
	}
	bk := b.tx.mutable(b.name)
	i, _ := bk.find(key)
	bk.items = slices.Delete(bk.items, i, i+1)
	return nil
}

func (b memBucketHandle) Cursor() storageCursor {
	return &memCursor{h: b, pos: -1}
}

func (b memBucketHandle) Stats() bucketStats {
	var inuse int64
	items := b.bucket().items
	for _, kv := range items {
		inuse += int64(len(kv.key) + len(kv.value))
	}
	return bucketStats{
		KeyN:      len(items),
		LeafInuse: inuse,
		LeafAlloc: inuse,
	}
}

func (b memBucketHandle) KeyCount() int { return len(b.bucket().items) }

type memCursor struct {
	h   memBucketHandle
	pos int
}

func (c *memCursor) items() []memKV {
	return c.h.bucket().items
}

func (c *memCursor) at(pos int) ([]byte, []byte) {
	items := c.items()
	c.pos = pos
	if pos < 0 || pos >= len(items) {
		return nil, nil
	}
	kv := items[pos]
	return kv.key, kv.value
}

func (c *memCursor) First() ([]byte, []byte) {
	return c.at(0)
}

func (c *memCursor) Last() ([]byte, []byte) {
	return c.at(len(c.items()) - 1)
}

func (c *memCursor) Seek(seek []byte) ([]byte, []byte) {
	i, _ := c.h.bucket().find(seek)
	return c.at(i)
}

func (c *memCursor) SeekLast(prefix []byte) ([]byte, []byte) {
	if len(prefix) == 0 {
		return c.Last()
	}
	limit := successor(prefix)
	if limit == nil {
		return c.Last()
	}
	i, _ := c.h.bucket().find(limit)
	return c.at(i - 1)
}

func (c *memCursor) Next() ([]byte, []byte) {
	if c.pos < 0 {
		return c.First()
	}
	if c.pos >= len(c.items()) {
		return nil, nil
	}
	return c.at(c.pos + 1)
}

func (c *memCursor) Prev() ([]byte, []byte) {
	if c.pos <= 0 {
		c.pos = -1
		return nil, nil
	}
	return c.at(c.pos - 1)
}

func (c *memCursor) Delete() error {
	if !c.h.tx.writable {
		return fmt.Errorf("tx not writable")
	}
	items := c.items()
	if c.pos < 0 || c.pos >= len(items) {
		return nil
	}
	bk := c.h.tx.mutable(c.h.name)
	bk.items = slices.Delete(bk.items, c.pos, c.pos+1)
	c.pos--
	return nil
}
