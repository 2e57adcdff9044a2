package localdb

import (
	"bytes"
	"context"
	"fmt"
	"slices"

	"github.com/andreyvit/docdb"
)

func (tx *tx) viewBucket(coll, view string) storageBucket {
	return tx.stx.Bucket(coll, viewSubPref+view)
}

// reindex drops the view entries recorded in old and, unless doc is nil,
// maps doc through every view of coll. It returns the entries to record
// with the stored document.
func (tx *tx) reindex(coll docdb.AnyCollection, id docdb.DocumentID, doc *docdb.Document, old []indexEntry) ([]indexEntry, error) {
	for _, e := range old {
		// a view dropped from the schema has no bucket anymore
		if b := tx.viewBucket(coll.Name(), e.View); b != nil {
			if err := b.Delete(indexKey(e.Key, id)); err != nil {
				return nil, err
			}
		}
	}
	if doc == nil {
		return nil, nil
	}

	var entries []indexEntry
	for _, view := range coll.Views() {
		recs, err := view.MapDocument(doc)
		if err != nil {
			return nil, docErrf(coll.Name(), id, err, "mapping %s", view.FullName())
		}
		b := tx.viewBucket(coll.Name(), view.Name())
		if b == nil {
			return nil, fmt.Errorf("docdb: %s: view bucket missing", view.FullName())
		}
		for _, rec := range recs {
			if view.Unique() {
				if owner, taken := uniqueOwner(b, rec.Key, id); taken {
					return nil, &UniqueViolationError{View: view.FullName(), Key: slices.Clone(rec.Key), Existing: owner}
				}
			}
			val := rec.Value
			if val == nil {
				val = []byte{}
			}
			if err := b.Put(indexKey(rec.Key, id), val); err != nil {
				return nil, err
			}
			entries = append(entries, indexEntry{view.Name(), rec.Key})
		}
	}
	return entries, nil
}

// uniqueOwner finds another document holding key in a unique view.
func uniqueOwner(b storageBucket, key []byte, id docdb.DocumentID) (docdb.DocumentID, bool) {
	prefix := indexKeyPrefix(key)
	c := b.Cursor()
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		if owner := docdb.DocumentIDFromBytes(k[len(prefix):]); owner != id {
			return owner, true
		}
	}
	return "", false
}

func (db *DB) QueryView(ctx context.Context, name string, q docdb.ViewQuery) ([]docdb.ViewRecord, error) {
	view := db.schema.ViewNamed(name)
	if view == nil {
		return nil, fmt.Errorf("docdb: unknown view %q", name)
	}
	rang, ok := indexRange(q)
	if !ok {
		return nil, nil
	}
	coll := view.CollectionName()

	var result []docdb.ViewRecord
	err := db.read(ctx, func(tx *tx) error {
		result = nil
		b := tx.viewBucket(coll, view.Name())
		if b == nil {
			return fmt.Errorf("docdb: %s: view bucket missing", name)
		}
		var docs map[docdb.DocumentID]*docdb.Document
		c := rang.newCursor(b.Cursor(), db.logger)
		for c.Next() {
			key, id, err := decodeIndexKey(c.Key())
			if err != nil {
				return err
			}
			rec := docdb.ViewRecord{Key: key, Value: slices.Clone(c.Value()), Source: id}
			if rec.Value == nil {
				rec.Value = []byte{}
			}
			if q.IncludeDocuments {
				doc, found := docs[id]
				if !found {
					doc, err = tx.get(coll, id)
					if err != nil {
						return err
					}
					if docs == nil {
						docs = make(map[docdb.DocumentID]*docdb.Document)
					}
					docs[id] = doc
				}
				rec.Document = doc
			}
			result = append(result, rec)
			if q.Limit > 0 && len(result) >= q.Limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
