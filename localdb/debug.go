package localdb

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/andreyvit/docdb"
)

type DumpFlags uint64

const (
	DumpCollectionHeaders = DumpFlags(1 << iota)
	DumpRows
	DumpStats
	DumpViews
	DumpViewRows
	DumpKeys

	DumpAll = DumpFlags(0xFFFFFFFFFFFFFFFF)
)

var (
	dumpSep1 = strings.Repeat("=", 80)
	dumpSep2 = strings.Repeat("-", 60)
)

func (f DumpFlags) Contains(v DumpFlags) bool {
	return (f & v) == v
}

// Dump renders the database contents for humans.
func (db *DB) Dump(ctx context.Context, f DumpFlags) (string, error) {
	var buf strings.Builder
	err := db.read(ctx, func(tx *tx) error {
		buf.Reset()
		for _, coll := range db.schema.Collections() {
			if err := tx.dumpCollection(&buf, f, coll); err != nil {
				return err
			}
		}
		if f.Contains(DumpKeys) {
			tx.dumpKeys(&buf)
		}
		return nil
	})
	return buf.String(), err
}

func (tx *tx) dumpCollection(w *strings.Builder, f DumpFlags, coll docdb.AnyCollection) error {
	prefix := coll.Name()
	s, err := tx.collectionStats(coll)
	if err != nil {
		return err
	}

	if f.Contains(DumpCollectionHeaders) {
		fmt.Fprintln(w, dumpSep1)
		fmt.Fprintf(w, "%s (%d documents, %s)\n", prefix, s.Documents, coll.Format().Name())
	}
	if f.Contains(DumpStats) {
		fmt.Fprintf(w, "%s.stats: view_rows = %d, data_size = %d, data_alloc = %d, view_size = %d, view_alloc = %d, total_alloc = %d\n", prefix, s.ViewRows, s.DataSize, s.DataAlloc, s.ViewSize, s.ViewAlloc, s.TotalAlloc())
	}

	if f.Contains(DumpRows) {
		if f.Contains(DumpStats) {
			fmt.Fprintln(w, dumpSep2)
		}
		c := tx.dataBucket(coll.Name()).Cursor()
		var pos int
		for k, v := c.First(); k != nil; k, v = c.Next() {
			pos++
			tx.dumpRow(w, prefix, pos, coll, k, v)
		}
	}

	if f.Contains(DumpViews) {
		for _, view := range coll.Views() {
			fmt.Fprintln(w, dumpSep2)
			vprefix := prefix + ".v." + view.Name()
			if view.Unique() {
				fmt.Fprintf(w, "%s (v%d, unique)\n", vprefix, view.Version())
			} else {
				fmt.Fprintf(w, "%s (v%d)\n", vprefix, view.Version())
			}
			if !f.Contains(DumpViewRows) {
				continue
			}
			b := tx.viewBucket(coll.Name(), view.Name())
			if b == nil {
				fmt.Fprintf(w, "%s ** MISSING\n", vprefix)
				continue
			}
			c := b.Cursor()
			var pos int
			for k, v := c.First(); k != nil; k, v = c.Next() {
				pos++
				key, id, err := decodeIndexKey(k)
				if err != nil {
					fmt.Fprintf(w, "%s.%d ** ERROR: %v\n", vprefix, pos, err)
					continue
				}
				fmt.Fprintf(w, "%s.%d: %s => %v %s\n", vprefix, pos, printable(key), id, printable(v))
			}
		}
	}
	return nil
}

func (tx *tx) dumpRow(w *strings.Builder, prefix string, pos int, coll docdb.AnyCollection, k, v []byte) {
	id := docdb.DocumentIDFromBytes(k)
	vle, err := decodeValue(v)
	if err != nil {
		fmt.Fprintf(w, "%s.%d = %v ** ERROR: %v\n", prefix, pos, id, err)
		return
	}
	doc, err := tx.document(coll.Name(), id, &vle)
	if err != nil {
		fmt.Fprintf(w, "%s.%d = %v ** ERROR: %v\n", prefix, pos, id, err)
		return
	}
	fmt.Fprintf(w, "%s.%d = %v (r%d %v) %s\n", prefix, pos, id, vle.Revision.ID, vle.Flags.compression(), loggableContents(coll.Format(), doc.Contents))
}

func (tx *tx) dumpKeys(w *strings.Builder) {
	fmt.Fprintln(w, dumpSep1)
	fmt.Fprintln(w, "keys")
	c := tx.stx.Bucket(kvBucket, "").Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		ns, key := splitKVKey(k)
		val, err := decodeKV(v)
		if err != nil {
			fmt.Fprintf(w, "%s/%s ** ERROR: %v\n", ns, key, err)
			continue
		}
		fmt.Fprintf(w, "%s/%s = %v\n", ns, key, val)
	}
}

// loggableContents renders contents as JSON whatever format they are in.
func loggableContents(format docdb.Format, contents []byte) string {
	var v any
	if err := format.Unmarshal(contents, &v); err != nil {
		return fmt.Sprintf("<%s: %v> %x", format.Name(), err, contents)
	}
	j, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("<%s> %x", format.Name(), contents)
	}
	return string(j)
}

func printable(b []byte) string {
	if utf8.Valid(b) && !strings.ContainsFunc(string(b), func(r rune) bool { return r < 0x20 }) {
		return fmt.Sprintf("%q", b)
	}
	return hexstr(b)
}

func rpadf(pad rune, format string, args ...any) string {
	s := fmt.Sprintf(format, args...)
	return rpad(s, 80, pad)
}
