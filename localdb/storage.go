package localdb

// storage is a transactional sorted key-value backend.
type storage interface {
	BeginTx(writable bool) (storageTx, error)
	Close() error

	// Name is used in logs and metrics.
	Name() string
}

type storageTx interface {
	Writable() bool

	// Bucket returns a bucket, or nil if it doesn't exist. Use sub="" for a
	// root bucket.
	Bucket(name, sub string) storageBucket

	// CreateBucket creates a bucket if it doesn't exist. For sub != "" the
	// root bucket is created too.
	CreateBucket(name, sub string) (storageBucket, error)

	// DeleteBucket deletes a nested bucket (sub must be non-empty).
	DeleteBucket(name, sub string) error

	// Commit returns errRetryTx if the backend detected a conflicting
	// concurrent commit.
	Commit() error

	// Rollback is safe to call after Commit and more than once.
	Rollback() error

	// Size returns the database size in bytes, 0 if unknown.
	Size() int64
}

type storageBucket interface {
	// Get returns nil if key is not found. The result is only valid until
	// the end of the transaction.
	Get(key []byte) []byte

	// Put may retain key and value until the end of the transaction.
	Put(key, value []byte) error

	Delete(key []byte) error
	Cursor() storageCursor

	// Stats may return zero allocation sizes for backends that do not
	// track them.
	Stats() bucketStats
}

type bucketStats struct {
	KeyN        int
	LeafInuse   int64
	LeafAlloc   int64
	BranchAlloc int64
}

func (s bucketStats) TotalAlloc() int64 { return s.BranchAlloc + s.LeafAlloc }

// storageCursor iterates over a bucket in key order. Every method returns
// nil, nil once it runs off either end.
type storageCursor interface {
	First() (key, value []byte)
	Last() (key, value []byte)

	// Seek moves to the first key >= seek.
	Seek(seek []byte) (key, value []byte)

	// SeekLast moves to the last key that has the given prefix or sorts
	// before it.
	SeekLast(prefix []byte) (key, value []byte)

	Next() (key, value []byte)
	Prev() (key, value []byte)
}
