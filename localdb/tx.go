package localdb

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"
)

// maxTxAttempts bounds how many times a write transaction is re-run after
// a backend reports a commit conflict.
const maxTxAttempts = 16

type tx struct {
	db        *DB
	stx       storageTx
	startTime time.Time
	stack     string

	// buffers handed to the storage, released once the tx is closed
	valueBufs [][]byte

	// writes and no-ops, reported to metrics once the tx commits
	counted []writeCount
}

type writeCount struct {
	coll string
	op   string // empty for a no-op
}

func (db *DB) newTx(stx storageTx) *tx {
	tx := &tx{db: db, stx: stx, startTime: time.Now()}
	if trackTxns {
		if db.strict {
			tx.stack = string(debug.Stack())
		}
		db.addTx(tx)
	}
	return tx
}

func (tx *tx) close() {
	ensure(tx.stx.Rollback())
	if trackTxns {
		tx.db.removeTx(tx)
	}
	tx.release()
}

func (tx *tx) valueBuf() []byte {
	buf := valueBytesPool.Get().([]byte)
	return buf[:0]
}

func (tx *tx) keepValueBuf(buf []byte) {
	if tx.valueBufs == nil {
		tx.valueBufs = arrayOfBytesPool.Get().([][]byte)
	}
	tx.valueBufs = append(tx.valueBufs, buf)
}

func (tx *tx) release() {
	if tx.valueBufs == nil {
		return
	}
	for i, buf := range tx.valueBufs {
		valueBytesPool.Put(buf[:0])
		tx.valueBufs[i] = nil
	}
	arrayOfBytesPool.Put(tx.valueBufs[:0])
	tx.valueBufs = nil
}

type panicked struct {
	reason any
	stack  string
}

func (p panicked) Error() string {
	return fmt.Sprintf("panic: %v\n\n%s", p.reason, p.stack)
}

func safelyCall(fn func(*tx) error, tx *tx) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = panicked{p, string(debug.Stack())}
		}
	}()
	return fn(tx)
}

func (db *DB) read(ctx context.Context, f func(tx *tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stx, err := db.st.BeginTx(false)
	if err != nil {
		return fmt.Errorf("docdb: begin read: %w", err)
	}
	db.ReadCount.Add(1)
	tx := db.newTx(stx)
	defer tx.close()
	return safelyCall(f, tx)
}

// write runs f in a write transaction and commits unless f fails. If the
// backend rejects the commit because of a concurrent writer, f runs again
// from scratch in a new transaction.
func (db *DB) write(ctx context.Context, f func(tx *tx) error) error {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := db.tryWrite(f)
		if !errors.Is(err, errRetryTx) {
			return err
		}
		if attempt >= maxTxAttempts {
			return fmt.Errorf("docdb: giving up after %d attempts: %w", attempt, err)
		}
		db.metrics.txRetries.Inc()
		if db.verbose {
			db.logf("db: retrying write transaction, attempt %d", attempt+1)
		}
	}
}

func (db *DB) tryWrite(f func(tx *tx) error) error {
	stx, err := db.st.BeginTx(true)
	if err != nil {
		return fmt.Errorf("docdb: begin write: %w", err)
	}
	db.WriteCount.Add(1)
	tx := db.newTx(stx)
	defer tx.close()
	if err := safelyCall(f, tx); err != nil {
		return err
	}
	if err := tx.stx.Commit(); err != nil {
		return err
	}
	for _, c := range tx.counted {
		if c.op == "" {
			db.metrics.noops.WithLabelValues(c.coll).Inc()
		} else {
			db.metrics.writes.WithLabelValues(c.coll, c.op).Inc()
		}
	}
	return nil
}
