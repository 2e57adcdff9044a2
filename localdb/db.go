package localdb

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andreyvit/docdb"
	"github.com/prometheus/client_golang/prometheus"
	"go.etcd.io/bbolt"
)

const trackTxns = true

const (
	dataSub     = "data"
	viewSubPref = "v/"
	kvBucket    = "_kv"
	metaBucket  = "_meta"
)

// DB is an embedded docdb.Connection.
type DB struct {
	st          storage
	schema      *docdb.Schema
	logf        func(format string, args ...any)
	logger      *slog.Logger
	verbose     bool
	strict      bool
	compression Compression
	threshold   int
	metrics     *metrics

	ReadCount  atomic.Uint64
	WriteCount atomic.Uint64

	txns     []*tx
	txnsLock sync.Mutex
}

var _ docdb.Connection = (*DB)(nil)

type Options struct {
	Logf      func(format string, args ...any)
	Verbose   bool
	IsTesting bool

	// MmapSize is the initial Bolt mmap size.
	MmapSize int

	Compression          Compression
	CompressionThreshold int

	// Registerer receives the database metrics; nil keeps them unregistered.
	Registerer prometheus.Registerer

	// Logger receives backend logs (Badger) and scan debugging.
	Logger *slog.Logger
}

// Open opens or creates a Bolt database file.
func Open(path string, schema *docdb.Schema, opt Options) (*DB, error) {
	bopt := &bbolt.Options{}
	*bopt = *bbolt.DefaultOptions
	bopt.Timeout = 10 * time.Second
	if opt.IsTesting {
		bopt.NoSync = true
		bopt.NoFreelistSync = true
		bopt.InitialMmapSize = 1024 * 1024 * 5
	} else {
		bopt.InitialMmapSize = 1024 * 1024 * 1024
		bopt.FreelistType = bbolt.FreelistMapType
	}
	if opt.MmapSize != 0 {
		bopt.InitialMmapSize = opt.MmapSize
	}

	bdb, err := bbolt.Open(path, 0666, bopt)
	if err != nil {
		return nil, fmt.Errorf("docdb: %w", err)
	}
	return open(newBoltStorage(bdb), schema, opt)
}

// OpenMemory returns a database that lives only as long as the process.
func OpenMemory(schema *docdb.Schema, opt Options) (*DB, error) {
	return open(newMemStorage(), schema, opt)
}

// OpenBadger opens or creates a Badger database in dir. An empty dir runs
// Badger in memory.
func OpenBadger(dir string, schema *docdb.Schema, opt Options) (*DB, error) {
	st, err := openBadgerStorage(dir, opt)
	if err != nil {
		return nil, fmt.Errorf("docdb: %w", err)
	}
	return open(st, schema, opt)
}

func open(st storage, schema *docdb.Schema, opt Options) (*DB, error) {
	if err := checkSchema(schema); err != nil {
		st.Close()
		return nil, err
	}
	db := &DB{
		st:          st,
		schema:      schema,
		logf:        opt.Logf,
		logger:      opt.Logger,
		verbose:     opt.Verbose,
		strict:      opt.IsTesting,
		compression: opt.Compression,
		threshold:   opt.CompressionThreshold,
		metrics:     newMetrics(opt.Registerer, st.Name()),
	}
	if db.logf == nil {
		db.logf = func(string, ...any) {}
	}
	if db.logger == nil {
		db.logger = slog.Default()
	}
	if db.threshold == 0 {
		db.threshold = DefaultCompressionThreshold
	}

	err := db.write(context.Background(), func(tx *tx) error {
		for _, name := range []string{kvBucket, metaBucket} {
			if _, err := tx.stx.CreateBucket(name, ""); err != nil {
				return err
			}
		}
		for _, coll := range schema.Collections() {
			if err := tx.prepareCollection(coll); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("docdb: preparing: %w", err)
	}
	return db, nil
}

func checkSchema(schema *docdb.Schema) error {
	for _, coll := range schema.Collections() {
		name := coll.Name()
		if name == "" || strings.HasPrefix(name, "_") || strings.IndexByte(name, 0) >= 0 {
			return fmt.Errorf("docdb: invalid collection name %q", name)
		}
		if id := coll.EncryptionKeyID(); id != "" {
			return fmt.Errorf("docdb: %s: encryption key %q requested, but encryption at rest is not supported", name, id)
		}
	}
	return nil
}

func (db *DB) Schema() *docdb.Schema {
	return db.schema
}

// Backend names the storage engine: bolt, badger or memory.
func (db *DB) Backend() string {
	return db.st.Name()
}

func (db *DB) Close() error {
	return db.st.Close()
}

func (db *DB) collection(name string) (docdb.AnyCollection, error) {
	coll := db.schema.CollectionNamed(name)
	if coll == nil {
		return nil, fmt.Errorf("docdb: unknown collection %q", name)
	}
	return coll, nil
}

func (db *DB) addTx(tx *tx) {
	db.txnsLock.Lock()
	defer db.txnsLock.Unlock()
	db.txns = append(db.txns, tx)
}

func (db *DB) removeTx(tx *tx) {
	db.txnsLock.Lock()
	defer db.txnsLock.Unlock()

	found := slices.Index(db.txns, tx)
	if found < 0 {
		panic("tx not found in list")
	}
	n := len(db.txns)
	db.txns[found] = db.txns[n-1]
	db.txns[n-1] = nil
	db.txns = db.txns[:n-1]
}

func (db *DB) DescribeOpenTxns() string {
	if !trackTxns {
		return "OPEN TX TRACKING DISABLED"
	}

	db.txnsLock.Lock()
	txns := slices.Clone(db.txns)
	db.txnsLock.Unlock()

	if len(txns) == 0 {
		return "NO OPEN TRANSACTIONS"
	}

	slices.SortFunc(txns, func(a, b *tx) int {
		return a.startTime.Compare(b.startTime)
	})

	now := time.Now()
	var buf strings.Builder
	fmt.Fprintf(&buf, "%d OPEN TRANSACTIONS:\n", len(txns))
	for _, tx := range txns {
		ms := now.Sub(tx.startTime).Milliseconds()
		if ms < 100 || tx.stack == "" {
			fmt.Fprintf(&buf, "\n---\nopen for %d ms\n", ms)
		} else {
			fmt.Fprintf(&buf, "\n---\nopen for %d ms:\n%s", ms, tx.stack)
		}
	}
	return buf.String()
}
