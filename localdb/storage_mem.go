package localdb

import (
	"bytes"
	"fmt"
	"slices"
	"sort"
	"sync"
)

const memBucketSep = "\x00"

// memStorage keeps everything in sorted slices. Transactions see the
// buckets as of BeginTx; a writer copies a bucket the first time it
// modifies it and publishes its copies on commit.
type memStorage struct {
	mu      sync.Mutex
	cond    *sync.Cond
	buckets map[string]*memBucket
	closed  bool
	writer  bool
}

func newMemStorage() storage {
	s := &memStorage{buckets: make(map[string]*memBucket)}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *memStorage) Name() string { return "memory" }

func (s *memStorage) BeginTx(writable bool) (storageTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if writable {
		for s.writer && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			return nil, ErrClosed
		}
		s.writer = true
	}
	snap := make(map[string]*memBucket, len(s.buckets))
	for k, b := range s.buckets {
		snap[k] = b
	}
	tx := &memTx{
		writable: writable,
		base:     s,
		buckets:  snap,
	}
	if writable {
		tx.owned = make(map[*memBucket]bool)
	}
	return tx, nil
}

func (s *memStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.buckets = nil
	s.cond.Broadcast()
	return nil
}

type memTx struct {
	base     *memStorage
	writable bool
	buckets  map[string]*memBucket
	owned    map[*memBucket]bool
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

func (tx *memTx) check() {
	if tx.closed {
		panic("tx is closed")
	}
}

func (tx *memTx) Bucket(name, sub string) storageBucket {
	tx.check()
	key := memBucketKey(name, sub)
	if tx.buckets[key] == nil {
		return nil
	}
	return memBucketHandle{tx: tx, key: key}
}

func (tx *memTx) CreateBucket(name, sub string) (storageBucket, error) {
	tx.check()
	if !tx.writable {
		return nil, fmt.Errorf("tx not writable")
	}
	for _, key := range []string{memBucketKey(name, ""), memBucketKey(name, sub)} {
		if tx.buckets[key] == nil {
			b := &memBucket{}
			tx.buckets[key] = b
			tx.owned[b] = true
		}
	}
	return memBucketHandle{tx: tx, key: memBucketKey(name, sub)}, nil
}

func (tx *memTx) DeleteBucket(name, sub string) error {
	tx.check()
	if !tx.writable {
		return fmt.Errorf("tx not writable")
	}
	if sub == "" {
		return ErrBucketNotFound
	}
	key := memBucketKey(name, sub)
	if tx.buckets[key] == nil {
		return ErrBucketNotFound
	}
	delete(tx.buckets, key)
	return nil
}

// bucket returns the bucket stored under key, copying it first if the
// caller is about to modify a bucket this tx does not own yet.
func (tx *memTx) bucket(key string, write bool) *memBucket {
	tx.check()
	b := tx.buckets[key]
	if b == nil {
		panic(fmt.Errorf("bucket %q deleted while in use", key))
	}
	if write {
		if !tx.writable {
			panic("tx not writable")
		}
		if !tx.owned[b] {
			b = b.clone()
			tx.buckets[key] = b
			tx.owned[b] = true
		}
	}
	return b
}

func (tx *memTx) Commit() error {
	tx.base.mu.Lock()
	defer tx.base.mu.Unlock()
	if tx.closed {
		return nil
	}
	if !tx.writable {
		tx.closeLocked()
		return fmt.Errorf("tx not writable")
	}
	if tx.base.closed {
		tx.closeLocked()
		return ErrClosed
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
		n += b.size()
	}
	return n
}

func memBucketKey(name, sub string) string {
	return name + memBucketSep + sub
}

type memBucket struct {
	items []memKV // sorted by key
}

type memKV struct {
	key   []byte
	value []byte
}

func (b *memBucket) clone() *memBucket {
	return &memBucket{items: slices.Clone(b.items)}
}

func (b *memBucket) size() int64 {
	var n int64
	for _, kv := range b.items {
		n += int64(len(kv.key) + len(kv.value))
	}
	return n
}

func (b *memBucket) find(key []byte) (idx int, ok bool) {
	items := b.items
	i := sort.Search(len(items), func(i int) bool {
		return bytes.Compare(items[i].key, key) >= 0
	})
	return i, i < len(items) && bytes.Equal(items[i].key, key)
}

type memBucketHandle struct {
	tx  *memTx
	key string
}

func (h memBucketHandle) Get(key []byte) []byte {
	b := h.tx.bucket(h.key, false)
	i, ok := b.find(key)
	if !ok {
		return nil
	}
	return b.items[i].value
}

func (h memBucketHandle) Put(key, value []byte) error {
	b := h.tx.bucket(h.key, true)
	kv := memKV{key: slices.Clone(key), value: slices.Clone(value)}
	i, ok := b.find(key)
	if ok {
		b.items[i] = kv
		return nil
	}
	b.items = slices.Insert(b.items, i, kv)
	return nil
}

func (h memBucketHandle) Delete(key []byte) error {
	b := h.tx.bucket(h.key, true)
	i, ok := b.find(key)
	if !ok {
		return nil
	}
	b.items = slices.Delete(b.items, i, i+1)
	return nil
}

func (h memBucketHandle) Cursor() storageCursor {
	return &memCursor{h: h, pos: -1}
}

func (h memBucketHandle) Stats() bucketStats {
	b := h.tx.bucket(h.key, false)
	n := b.size()
	return bucketStats{
		KeyN:      len(b.items),
		LeafInuse: n,
		LeafAlloc: n,
	}
}

// memCursor remembers its position by index, so it observes writes made
// through the same transaction.
type memCursor struct {
	h   memBucketHandle
	pos int
}

func (c *memCursor) at(pos int) ([]byte, []byte) {
	items := c.h.tx.bucket(c.h.key, false).items
	if pos < 0 {
		c.pos = -1
		return nil, nil
	}
	c.pos = pos
	if pos >= len(items) {
		return nil, nil
	}
	return items[pos].key, items[pos].value
}

func (c *memCursor) First() ([]byte, []byte) {
	return c.at(0)
}

func (c *memCursor) Last() ([]byte, []byte) {
	return c.at(len(c.h.tx.bucket(c.h.key, false).items) - 1)
}

func (c *memCursor) Seek(seek []byte) ([]byte, []byte) {
	i, _ := c.h.tx.bucket(c.h.key, false).find(seek)
	return c.at(i)
}

func (c *memCursor) SeekLast(prefix []byte) ([]byte, []byte) {
	limit := append([]byte(nil), prefix...)
	if len(limit) == 0 || !inc(limit) {
		return c.Last()
	}
	i, _ := c.h.tx.bucket(c.h.key, false).find(limit)
	return c.at(i - 1)
}

func (c *memCursor) Next() ([]byte, []byte) {
	if c.pos < 0 {
		return nil, nil
	}
	return c.at(c.pos + 1)
}

func (c *memCursor) Prev() ([]byte, []byte) {
	if c.pos < 0 {
		return nil, nil
	}
	return c.at(c.pos - 1)
}
