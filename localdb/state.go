package localdb

import (
	"errors"
	"slices"

	"github.com/andreyvit/docdb"
	"github.com/vmihailenco/msgpack/v5"
)

// collectionState is what the database last built a collection's view
// buckets for. Any difference from the schema triggers a rebuild.
type collectionState struct {
	Views []viewState `msgpack:"views"`
}

type viewState struct {
	Name    string `msgpack:"n"`
	Version uint64 `msgpack:"v"`
	Unique  bool   `msgpack:"u,omitempty"`
}

func schemaState(coll docdb.AnyCollection) collectionState {
	var cs collectionState
	for _, view := range coll.Views() {
		cs.Views = append(cs.Views, viewState{view.Name(), view.Version(), view.Unique()})
	}
	return cs
}

func stateKey(coll string) []byte {
	return []byte("coll/" + coll)
}

func (tx *tx) loadState(coll string) (collectionState, error) {
	var cs collectionState
	raw := tx.stx.Bucket(metaBucket, "").Get(stateKey(coll))
	if raw == nil {
		return cs, nil
	}
	if err := msgpack.Unmarshal(raw, &cs); err != nil {
		return cs, dataErrf(raw, 0, err, "%s: invalid collection state", coll)
	}
	return cs, nil
}

func (tx *tx) prepareCollection(coll docdb.AnyCollection) error {
	name := coll.Name()
	if _, err := tx.stx.CreateBucket(name, dataSub); err != nil {
		return err
	}
	old, err := tx.loadState(name)
	if err != nil {
		return err
	}
	cur := schemaState(coll)
	if slices.Equal(old.Views, cur.Views) {
		return nil
	}

	for _, vs := range slices.Concat(old.Views, cur.Views) {
		err := tx.stx.DeleteBucket(name, viewSubPref+vs.Name)
		if err != nil && !errors.Is(err, ErrBucketNotFound) {
			return err
		}
	}
	for _, vs := range cur.Views {
		if _, err := tx.stx.CreateBucket(name, viewSubPref+vs.Name); err != nil {
			return err
		}
	}
	n, err := tx.rebuildViews(coll)
	if err != nil {
		return err
	}
	tx.db.logf("db: rebuilt %d views of %s over %d documents", len(cur.Views), name, n)

	raw, err := msgpack.Marshal(&cur)
	if err != nil {
		return err
	}
	return tx.stx.Bucket(metaBucket, "").Put(stateKey(name), raw)
}

// rebuildViews re-maps every document of coll into freshly emptied view
// buckets and rewrites each document's list of entries.
func (tx *tx) rebuildViews(coll docdb.AnyCollection) (int, error) {
	data := tx.dataBucket(coll.Name())
	var ids []docdb.DocumentID
	c := data.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		ids = append(ids, docdb.DocumentIDFromBytes(k))
	}

	for _, id := range ids {
		vle, err := tx.load(coll.Name(), id)
		if err != nil {
			return 0, err
		}
		doc, err := tx.document(coll.Name(), id, vle)
		if err != nil {
			return 0, err
		}
		// old entries point into buckets that were just emptied
		if err := tx.put(coll, id, vle.Revision, doc.Contents, nil); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}
