package localdb

import (
	"context"
	"fmt"
	"slices"

	"github.com/andreyvit/docdb"
)

func (tx *tx) dataBucket(coll string) storageBucket {
	b := tx.stx.Bucket(coll, dataSub)
	if b == nil {
		panic(fmt.Errorf("docdb: %s: data bucket missing", coll))
	}
	return b
}

// load returns the stored value of a document, or nil if there is none.
// The value is only valid within tx.
func (tx *tx) load(coll string, id docdb.DocumentID) (*value, error) {
	raw := tx.dataBucket(coll).Get(id.Bytes())
	if raw == nil {
		return nil, nil
	}
	vle, err := decodeValue(raw)
	if err != nil {
		return nil, docErrf(coll, id, err, "corrupted")
	}
	return &vle, nil
}

func (tx *tx) document(coll string, id docdb.DocumentID, vle *value) (*docdb.Document, error) {
	contents, err := vle.contents()
	if err != nil {
		return nil, docErrf(coll, id, err, "corrupted")
	}
	if vle.Flags.compression() == NoCompression {
		contents = slices.Clone(contents)
	}
	return &docdb.Document{
		Collection: coll,
		ID:         id,
		Revision:   vle.Revision,
		Contents:   contents,
	}, nil
}

func (tx *tx) get(coll string, id docdb.DocumentID) (*docdb.Document, error) {
	vle, err := tx.load(coll, id)
	if err != nil || vle == nil {
		return nil, err
	}
	return tx.document(coll, id, vle)
}

// put stores contents under rev, replacing the view entries of old.
func (tx *tx) put(coll docdb.AnyCollection, id docdb.DocumentID, rev docdb.Revision, contents []byte, old *value) error {
	var oldEntries []indexEntry
	if old != nil {
		var err error
		oldEntries, err = old.indexEntries()
		if err != nil {
			return docErrf(coll.Name(), id, err, "corrupted index list")
		}
	}
	doc := &docdb.Document{Collection: coll.Name(), ID: id, Revision: rev, Contents: contents}
	entries, err := tx.reindex(coll, id, doc, oldEntries)
	if err != nil {
		return err
	}
	buf, err := encodeValue(tx.valueBuf(), rev, contents, entries, tx.db.compression, tx.db.threshold)
	if err != nil {
		return docErrf(coll.Name(), id, err, "encoding")
	}
	tx.keepValueBuf(buf)
	return tx.dataBucket(coll.Name()).Put(id.Bytes(), buf)
}

func (tx *tx) conflict(coll string, id docdb.DocumentID, current docdb.Revision) error {
	tx.db.metrics.conflicts.WithLabelValues(coll).Inc()
	return docdb.NewConflictError(coll, docdb.Header{ID: id, Revision: current})
}

func (tx *tx) wrote(coll string, id docdb.DocumentID, op string, rev docdb.Revision) {
	tx.counted = append(tx.counted, writeCount{coll, op})
	if tx.db.verbose {
		tx.db.logf("db: %s %s/%v => %v", op, coll, id, rev)
	}
}

func (tx *tx) noop(coll string, id docdb.DocumentID) {
	tx.counted = append(tx.counted, writeCount{coll, ""})
	if tx.db.verbose {
		tx.db.logf("db: unchanged %s/%v", coll, id)
	}
}

func (tx *tx) insert(coll docdb.AnyCollection, id docdb.DocumentID, contents []byte) (docdb.Header, error) {
	old, err := tx.load(coll.Name(), id)
	if err != nil {
		return docdb.Header{}, err
	}
	if old != nil {
		return docdb.Header{}, tx.conflict(coll.Name(), id, old.Revision)
	}
	rev := docdb.InitialRevision(contents)
	if err := tx.put(coll, id, rev, contents, nil); err != nil {
		return docdb.Header{}, err
	}
	tx.wrote(coll.Name(), id, "insert", rev)
	return docdb.Header{ID: id, Revision: rev}, nil
}

// replace writes contents over old unless they are the same bytes.
func (tx *tx) replace(coll docdb.AnyCollection, id docdb.DocumentID, contents []byte, old *value) (docdb.Header, error) {
	rev, changed := old.Revision.Next(contents)
	if !changed {
		tx.noop(coll.Name(), id)
		return docdb.Header{ID: id, Revision: old.Revision}, nil
	}
	if err := tx.put(coll, id, rev, contents, old); err != nil {
		return docdb.Header{}, err
	}
	tx.wrote(coll.Name(), id, "update", rev)
	return docdb.Header{ID: id, Revision: rev}, nil
}

func (db *DB) Get(ctx context.Context, collName string, id docdb.DocumentID) (*docdb.Document, error) {
	coll, err := db.collection(collName)
	if err != nil {
		return nil, err
	}
	var doc *docdb.Document
	err = db.read(ctx, func(tx *tx) error {
		doc, err = tx.get(coll.Name(), id)
		return err
	})
	return doc, err
}

func (db *DB) GetMultiple(ctx context.Context, collName string, ids []docdb.DocumentID) ([]*docdb.Document, error) {
	coll, err := db.collection(collName)
	if err != nil {
		return nil, err
	}
	var docs []*docdb.Document
	err = db.read(ctx, func(tx *tx) error {
		docs = make([]*docdb.Document, 0, len(ids))
		for _, id := range ids {
			doc, err := tx.get(coll.Name(), id)
			if err != nil {
				return err
			}
			if doc != nil {
				docs = append(docs, doc)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func (db *DB) List(ctx context.Context, collName string, rang docdb.Range, order docdb.Order, limit int) ([]*docdb.Document, error) {
	coll, err := db.collection(collName)
	if err != nil {
		return nil, err
	}
	if rang.IsEmpty() {
		return nil, nil
	}
	rr := rawRange{
		Lower:    rang.Lower,
		Upper:    rang.Upper,
		LowerInc: rang.LowerInc,
		UpperInc: rang.UpperInc,
	}.Reversed(order == docdb.Descending)

	var docs []*docdb.Document
	err = db.read(ctx, func(tx *tx) error {
		docs = nil
		c := rr.newCursor(tx.dataBucket(coll.Name()).Cursor(), db.logger)
		for c.Next() {
			id := docdb.DocumentIDFromBytes(c.Key())
			vle, err := decodeValue(c.Value())
			if err != nil {
				return docErrf(coll.Name(), id, err, "corrupted")
			}
			doc, err := tx.document(coll.Name(), id, &vle)
			if err != nil {
				return err
			}
			docs = append(docs, doc)
			if limit > 0 && len(docs) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// Push stores contents under the id the collection generates from the
// greatest existing id.
func (db *DB) Push(ctx context.Context, collName string, contents []byte) (docdb.Header, error) {
	coll, err := db.collection(collName)
	if err != nil {
		return docdb.Header{}, err
	}
	var header docdb.Header
	err = db.write(ctx, func(tx *tx) error {
		last, _ := tx.dataBucket(coll.Name()).Cursor().Last()
		id, err := coll.NextID(docdb.DocumentIDFromBytes(last), last != nil)
		if err != nil {
			return err
		}
		header, err = tx.insert(coll, id, contents)
		return err
	})
	return header, err
}

func (db *DB) Insert(ctx context.Context, collName string, id docdb.DocumentID, contents []byte) (docdb.Header, error) {
	coll, err := db.collection(collName)
	if err != nil {
		return docdb.Header{}, err
	}
	var header docdb.Header
	err = db.write(ctx, func(tx *tx) error {
		header, err = tx.insert(coll, id, contents)
		return err
	})
	return header, err
}

func (db *DB) Overwrite(ctx context.Context, collName string, id docdb.DocumentID, contents []byte) (docdb.Header, error) {
	coll, err := db.collection(collName)
	if err != nil {
		return docdb.Header{}, err
	}
	var header docdb.Header
	err = db.write(ctx, func(tx *tx) error {
		old, err := tx.load(coll.Name(), id)
		if err != nil {
			return err
		}
		if old == nil {
			header, err = tx.insert(coll, id, contents)
		} else {
			header, err = tx.replace(coll, id, contents, old)
		}
		return err
	})
	return header, err
}

func (db *DB) Update(ctx context.Context, doc *docdb.Document) (docdb.Header, error) {
	coll, err := db.collection(doc.Collection)
	if err != nil {
		return docdb.Header{}, err
	}
	var header docdb.Header
	err = db.write(ctx, func(tx *tx) error {
		old, err := tx.load(coll.Name(), doc.ID)
		if err != nil {
			return err
		}
		if old == nil {
			return fmt.Errorf("%s/%v: %w", coll.Name(), doc.ID, docdb.ErrDocumentNotFound)
		}
		if old.Revision != doc.Revision {
			return tx.conflict(coll.Name(), doc.ID, old.Revision)
		}
		header, err = tx.replace(coll, doc.ID, doc.Contents, old)
		return err
	})
	return header, err
}

func (db *DB) Delete(ctx context.Context, doc *docdb.Document) error {
	coll, err := db.collection(doc.Collection)
	if err != nil {
		return err
	}
	return db.write(ctx, func(tx *tx) error {
		old, err := tx.load(coll.Name(), doc.ID)
		if err != nil || old == nil {
			return err
		}
		if old.Revision != doc.Revision {
			return tx.conflict(coll.Name(), doc.ID, old.Revision)
		}
		oldEntries, err := old.indexEntries()
		if err != nil {
			return docErrf(coll.Name(), doc.ID, err, "corrupted index list")
		}
		if _, err := tx.reindex(coll, doc.ID, nil, oldEntries); err != nil {
			return err
		}
		if err := tx.dataBucket(coll.Name()).Delete(doc.ID.Bytes()); err != nil {
			return err
		}
		tx.wrote(coll.Name(), doc.ID, "delete", old.Revision)
		return nil
	})
}
