package localdb

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

// Badger has a single flat keyspace. A bucket is a key prefix, and an
// empty marker key records that the bucket exists:
//
//	0x01 name 0x00 sub            bucket marker
//	0x02 name 0x00 sub 0x00 key   bucket entry
const (
	badgerMarkerTag = 0x01
	badgerEntryTag  = 0x02
)

type badgerStorage struct {
	bdb *badger.DB
}

// badgerLogger adapts slog.Logger to Badger's logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func openBadgerStorage(dir string, opt Options) (storage, error) {
	var bopt badger.Options
	if dir == "" {
		bopt = badger.DefaultOptions("").WithInMemory(true)
	} else {
		bopt = badger.DefaultOptions(dir)
	}
	bopt = bopt.WithSyncWrites(!opt.IsTesting).WithNumVersionsToKeep(1)
	if opt.Logger != nil {
		bopt = bopt.WithLogger(&badgerLogger{logger: opt.Logger})
	} else {
		bopt = bopt.WithLogger(nil)
	}
	bdb, err := badger.Open(bopt)
	if err != nil {
		return nil, err
	}
	return &badgerStorage{bdb: bdb}, nil
}

func (s *badgerStorage) Name() string { return "badger" }

func (s *badgerStorage) BeginTx(writable bool) (storageTx, error) {
	if s.bdb.IsClosed() {
		return nil, ErrClosed
	}
	return &badgerStorageTx{s: s, txn: s.bdb.NewTransaction(writable), writable: writable}, nil
}

func (s *badgerStorage) Close() error {
	return s.bdb.Close()
}

type badgerStorageTx struct {
	s        *badgerStorage
	txn      *badger.Txn
	writable bool
}

func (tx *badgerStorageTx) Writable() bool { return tx.writable }

func badgerMarker(name, sub string) []byte {
	k := make([]byte, 0, 2+len(name)+len(sub))
	k = append(k, badgerMarkerTag)
	k = append(k, name...)
	k = append(k, 0)
	return append(k, sub...)
}

func badgerPrefix(name, sub string) []byte {
	k := make([]byte, 0, 3+len(name)+len(sub))
	k = append(k, badgerEntryTag)
	k = append(k, name...)
	k = append(k, 0)
	k = append(k, sub...)
	return append(k, 0)
}

func (tx *badgerStorageTx) exists(marker []byte) bool {
	_, err := tx.txn.Get(marker)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false
	}
	ensure(err)
	return true
}

func (tx *badgerStorageTx) Bucket(name, sub string) storageBucket {
	if !tx.exists(badgerMarker(name, sub)) {
		return nil
	}
	return &badgerBucket{tx: tx, prefix: badgerPrefix(name, sub)}
}

func (tx *badgerStorageTx) CreateBucket(name, sub string) (storageBucket, error) {
	if !tx.writable {
		return nil, fmt.Errorf("tx not writable")
	}
	for _, marker := range [][]byte{badgerMarker(name, ""), badgerMarker(name, sub)} {
		if !tx.exists(marker) {
			if err := tx.txn.Set(marker, nil); err != nil {
				return nil, err
			}
		}
	}
	return &badgerBucket{tx: tx, prefix: badgerPrefix(name, sub)}, nil
}

func (tx *badgerStorageTx) DeleteBucket(name, sub string) error {
	if sub == "" {
		return ErrBucketNotFound
	}
	marker := badgerMarker(name, sub)
	if !tx.exists(marker) {
		return ErrBucketNotFound
	}
	b := &badgerBucket{tx: tx, prefix: badgerPrefix(name, sub)}
	var keys [][]byte
	b.iterate(func(it *badger.Iterator) {
		for it.Seek(b.prefix); it.ValidForPrefix(b.prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
	})
	for _, k := range keys {
		if err := tx.txn.Delete(k); err != nil {
			return err
		}
	}
	return tx.txn.Delete(marker)
}

func (tx *badgerStorageTx) Commit() error {
	err := tx.txn.Commit()
	if errors.Is(err, badger.ErrConflict) {
		return errRetryTx
	}
	return err
}

func (tx *badgerStorageTx) Rollback() error {
	tx.txn.Discard()
	return nil
}

func (tx *badgerStorageTx) Size() int64 {
	lsm, vlog := tx.s.bdb.Size()
	return lsm + vlog
}

type badgerBucket struct {
	tx     *badgerStorageTx
	prefix []byte
}

func (b *badgerBucket) key(k []byte) []byte {
	full := make([]byte, len(b.prefix)+len(k))
	copy(full, b.prefix)
	copy(full[len(b.prefix):], k)
	return full
}

func (b *badgerBucket) Get(key []byte) []byte {
	item, err := b.tx.txn.Get(b.key(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	ensure(err)
	return must(item.ValueCopy(nil))
}

func (b *badgerBucket) Put(key, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	return b.tx.txn.Set(b.key(key), value)
}

func (b *badgerBucket) Delete(key []byte) error {
	return b.tx.txn.Delete(b.key(key))
}

// iterate opens one iterator for the duration of f. Badger allows a single
// open iterator per read-write transaction.
func (b *badgerBucket) iterate(f func(it *badger.Iterator)) {
	b.iterateDir(false, f)
}

func (b *badgerBucket) iterateDir(reverse bool, f func(it *badger.Iterator)) {
	opt := badger.DefaultIteratorOptions
	opt.Prefix = b.prefix
	opt.Reverse = reverse
	opt.PrefetchValues = false
	it := b.tx.txn.NewIterator(opt)
	defer it.Close()
	f(it)
}

func (b *badgerBucket) Cursor() storageCursor {
	return &badgerCursor{b: b}
}

func (b *badgerBucket) Stats() bucketStats {
	var s bucketStats
	b.iterate(func(it *badger.Iterator) {
		for it.Seek(b.prefix); it.ValidForPrefix(b.prefix); it.Next() {
			item := it.Item()
			s.KeyN++
			s.LeafInuse += int64(len(item.Key())-len(b.prefix)) + item.ValueSize()
		}
	})
	s.LeafAlloc = s.LeafInuse
	return s
}

// badgerCursor re-seeks a short-lived iterator on every move, since an
// iterator cannot stay open across writes in the same transaction.
type badgerCursor struct {
	b   *badgerBucket
	cur []byte
}

func (c *badgerCursor) land(it *badger.Iterator, skip []byte) ([]byte, []byte) {
	if skip != nil && it.ValidForPrefix(c.b.prefix) && bytes.Equal(it.Item().Key(), skip) {
		it.Next()
	}
	if !it.ValidForPrefix(c.b.prefix) {
		c.cur = nil
		return nil, nil
	}
	item := it.Item()
	full := item.KeyCopy(nil)
	c.cur = full
	return full[len(c.b.prefix):], must(item.ValueCopy(nil))
}

func (c *badgerCursor) seek(reverse bool, target, skip []byte) (k, v []byte) {
	c.b.iterateDir(reverse, func(it *badger.Iterator) {
		it.Seek(target)
		k, v = c.land(it, skip)
	})
	return k, v
}

func (c *badgerCursor) First() ([]byte, []byte) {
	return c.seek(false, c.b.prefix, nil)
}

func (c *badgerCursor) Last() ([]byte, []byte) {
	limit := append([]byte(nil), c.b.prefix...)
	inc(limit) // prefix ends in 0x00
	return c.seek(true, limit, limit)
}

func (c *badgerCursor) Seek(seek []byte) ([]byte, []byte) {
	return c.seek(false, c.b.key(seek), nil)
}

func (c *badgerCursor) SeekLast(prefix []byte) ([]byte, []byte) {
	limit := c.b.key(prefix)
	if len(prefix) == 0 || !inc(limit[len(c.b.prefix):]) {
		return c.Last()
	}
	// a reverse seek lands on the greatest key <= limit
	return c.seek(true, limit, limit)
}

func (c *badgerCursor) Next() ([]byte, []byte) {
	if c.cur == nil {
		return nil, nil
	}
	return c.seek(false, c.cur, c.cur)
}

func (c *badgerCursor) Prev() ([]byte, []byte) {
	if c.cur == nil {
		return nil, nil
	}
	return c.seek(true, c.cur, c.cur)
}
