package localdb

import (
	"errors"

	"go.etcd.io/bbolt"
)

// boltStorage keeps collection buckets as nested Bolt buckets: one root
// bucket per collection holding "data" and a bucket per view.
type boltStorage struct {
	bdb *bbolt.DB
}

func newBoltStorage(bdb *bbolt.DB) storage {
	return &boltStorage{bdb}
}

func (s *boltStorage) Name() string { return "bolt" }
func (s *boltStorage) Close() error { return s.bdb.Close() }

func (s *boltStorage) BeginTx(writable bool) (storageTx, error) {
	btx, err := s.bdb.Begin(writable)
	if err != nil {
		return nil, err
	}
	return boltStorageTx{btx}, nil
}

type boltStorageTx struct {
	btx *bbolt.Tx
}

func (tx boltStorageTx) Writable() bool { return tx.btx.Writable() }
func (tx boltStorageTx) Size() int64    { return tx.btx.Size() }
func (tx boltStorageTx) Commit() error  { return tx.btx.Commit() }

func (tx boltStorageTx) Rollback() error {
	if err := tx.btx.Rollback(); !errors.Is(err, bbolt.ErrTxClosed) {
		return err
	}
	return nil
}

func (tx boltStorageTx) Bucket(name, sub string) storageBucket {
	b := tx.btx.Bucket(unsafeBytesFromString(name))
	if b != nil && sub != "" {
		b = b.Bucket(unsafeBytesFromString(sub))
	}
	if b == nil {
		return nil
	}
	return boltBucket{b}
}

func (tx boltStorageTx) CreateBucket(name, sub string) (storageBucket, error) {
	b, err := tx.btx.CreateBucketIfNotExists([]byte(name))
	if err == nil && sub != "" {
		b, err = b.CreateBucketIfNotExists([]byte(sub))
	}
	if err != nil {
		return nil, err
	}
	return boltBucket{b}, nil
}

func (tx boltStorageTx) DeleteBucket(name, sub string) error {
	root := tx.btx.Bucket(unsafeBytesFromString(name))
	if sub == "" || root == nil {
		return ErrBucketNotFound
	}
	err := root.DeleteBucket(unsafeBytesFromString(sub))
	if errors.Is(err, bbolt.ErrBucketNotFound) {
		return ErrBucketNotFound
	}
	return err
}

// boltBucket passes Get, Put and Delete straight to Bolt.
type boltBucket struct {
	*bbolt.Bucket
}

func (b boltBucket) Cursor() storageCursor { return boltCursor{b.Bucket.Cursor()} }

func (b boltBucket) Stats() bucketStats {
	s := b.Bucket.Stats()
	return bucketStats{
		KeyN:        s.KeyN,
		LeafInuse:   int64(s.LeafInuse),
		LeafAlloc:   int64(s.LeafAlloc),
		BranchAlloc: int64(s.BranchAlloc),
	}
}

type boltCursor struct {
	*bbolt.Cursor
}

func (c boltCursor) SeekLast(prefix []byte) ([]byte, []byte) {
	limit := append([]byte(nil), prefix...)
	if len(limit) == 0 || !inc(limit) {
		return c.Last()
	}
	if k, _ := c.Seek(limit); k == nil {
		return c.Last()
	}
	return c.Prev()
}
