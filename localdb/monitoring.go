package localdb

import (
	"context"
	"fmt"
	"strings"

	"github.com/andreyvit/docdb"
)

type CollectionStats struct {
	Name      string
	Documents int
	ViewRows  int

	DataSize  int64
	DataAlloc int64
	ViewSize  int64
	ViewAlloc int64
}

func (cs *CollectionStats) TotalSize() int64 {
	return cs.DataSize + cs.ViewSize
}

func (cs *CollectionStats) TotalAlloc() int64 {
	return cs.DataAlloc + cs.ViewAlloc
}

type Stats struct {
	Backend     string
	Size        int64
	Keys        int
	Collections []CollectionStats
	Reads       uint64
	Writes      uint64
}

func (s *Stats) String() string {
	var buf strings.Builder
	fmt.Fprintln(&buf, rpadf('=', "== %s ", s.Backend))
	fmt.Fprintf(&buf, "size = %d, keys = %d, read_txns = %d, write_txns = %d\n", s.Size, s.Keys, s.Reads, s.Writes)
	for _, cs := range s.Collections {
		fmt.Fprintf(&buf, "%s: documents = %d, view_rows = %d, total_size = %d, total_alloc = %d\n", cs.Name, cs.Documents, cs.ViewRows, cs.TotalSize(), cs.TotalAlloc())
	}
	return buf.String()
}

func (tx *tx) collectionStats(coll docdb.AnyCollection) (CollectionStats, error) {
	bs := tx.dataBucket(coll.Name()).Stats()
	result := CollectionStats{
		Name:      coll.Name(),
		Documents: bs.KeyN,
		DataSize:  bs.LeafInuse,
		DataAlloc: bs.TotalAlloc(),
	}
	for _, view := range coll.Views() {
		b := tx.viewBucket(coll.Name(), view.Name())
		if b == nil {
			return result, fmt.Errorf("docdb: %s: view bucket missing", view.FullName())
		}
		bs = b.Stats()
		result.ViewRows += bs.KeyN
		result.ViewSize += bs.LeafInuse
		result.ViewAlloc += bs.TotalAlloc()
	}
	return result, nil
}

func (db *DB) Stats(ctx context.Context) (*Stats, error) {
	s := &Stats{Backend: db.st.Name()}
	err := db.read(ctx, func(tx *tx) error {
		s.Collections = nil
		s.Size = tx.stx.Size()
		s.Keys = tx.stx.Bucket(kvBucket, "").Stats().KeyN
		for _, coll := range db.schema.Collections() {
			cs, err := tx.collectionStats(coll)
			if err != nil {
				return err
			}
			s.Collections = append(s.Collections, cs)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Reads, s.Writes = db.ReadCount.Load(), db.WriteCount.Load()
	return s, nil
}
