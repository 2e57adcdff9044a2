package localdb

import (
	"context"
	"fmt"
	"strings"

	"github.com/andreyvit/docdb"
	"github.com/vmihailenco/msgpack/v5"
)

func kvKey(ns, key string) []byte {
	k := make([]byte, 0, len(ns)+1+len(key))
	k = append(k, ns...)
	k = append(k, 0)
	return append(k, key...)
}

func splitKVKey(k []byte) (ns, key string) {
	ns, key, _ = strings.Cut(string(k), "\x00")
	return ns, key
}

func commandName(cmd docdb.Command) string {
	switch cmd := cmd.(type) {
	case docdb.SetCommand:
		return "set"
	case docdb.GetCommand:
		if cmd.Delete {
			return "take"
		}
		return "get"
	case docdb.DeleteCommand:
		return "delete"
	case docdb.IncrementCommand:
		return "increment"
	case docdb.DecrementCommand:
		return "decrement"
	default:
		return fmt.Sprintf("%T", cmd)
	}
}

func decodeKV(raw []byte) (*docdb.Value, error) {
	if raw == nil {
		return nil, nil
	}
	var v docdb.Value
	if err := msgpack.Unmarshal(raw, &v); err != nil {
		return nil, dataErrf(raw, 0, err, "invalid key value")
	}
	return &v, nil
}

// ExecuteKeyOperation reads, modifies and writes a key in one transaction.
// Plain reads do not take the write lock.
func (db *DB) ExecuteKeyOperation(ctx context.Context, op docdb.KeyOperation) (docdb.Output, error) {
	if strings.IndexByte(op.Namespace, 0) >= 0 {
		return docdb.Output{}, fmt.Errorf("docdb: invalid namespace %q", op.Namespace)
	}
	name := commandName(op.Command)
	db.metrics.keyOps.WithLabelValues(name).Inc()
	k := kvKey(op.Namespace, op.Key)

	var out docdb.Output
	exec := func(tx *tx) error {
		b := tx.stx.Bucket(kvBucket, "")
		current, err := decodeKV(b.Get(k))
		if err != nil {
			return fmt.Errorf("%v: %w", op, err)
		}
		next, changed, o, err := docdb.ApplyKeyCommand(current, op.Command)
		if err != nil {
			return fmt.Errorf("%v: %w", op, err)
		}
		out = o
		if !changed {
			return nil
		}
		if !tx.stx.Writable() {
			panic(fmt.Errorf("%v: %s changed a key in a read transaction", op, name))
		}
		if db.verbose {
			db.logf("db: KV %s %v => %v", name, op, next)
		}
		if next == nil {
			return b.Delete(k)
		}
		raw, err := msgpack.Marshal(next)
		if err != nil {
			return err
		}
		return b.Put(k, raw)
	}

	var err error
	if cmd, ok := op.Command.(docdb.GetCommand); ok && !cmd.Delete {
		err = db.read(ctx, exec)
	} else {
		err = db.write(ctx, exec)
	}
	if err != nil {
		return docdb.Output{}, err
	}
	return out, nil
}
