package docdb

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
)

// memConn is a map-backed Connection. beforeUpdate runs ahead of every
// Update, outside the lock, which lets tests slip in a concurrent writer.
type memConn struct {
	schema *Schema

	mu   sync.Mutex
	docs map[string]map[DocumentID]*Document
	kv   map[string]Value

	writes  int
	updates int
	queries int
	gets    int

	beforeUpdate func(c *memConn, doc *Document)
	failWith     error
}

func newMemConn(schema *Schema) *memConn {
	return &memConn{
		schema: schema,
		docs:   make(map[string]map[DocumentID]*Document),
		kv:     make(map[string]Value),
	}
}

func (c *memConn) coll(name string) map[DocumentID]*Document {
	m := c.docs[name]
	if m == nil {
		m = make(map[DocumentID]*Document)
		c.docs[name] = m
	}
	return m
}

func (c *memConn) stored(coll string, id DocumentID) *Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.coll(coll)[id]
}

// bump rewrites a stored document behind everyone's back.
func (c *memConn) bump(coll string, id DocumentID, contents []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.coll(coll)[id]
	next, changed := old.UpdateWith(contents)
	if changed {
		c.coll(coll)[id] = next
	}
}

func (c *memConn) remove(coll string, id DocumentID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.coll(coll), id)
}

func (c *memConn) Get(ctx context.Context, coll string, id DocumentID) (*Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.failWith != nil {
		return nil, c.failWith
	}
	return clone(c.coll(coll)[id]), nil
}

func (c *memConn) GetMultiple(ctx context.Context, coll string, ids []DocumentID) ([]*Document, error) {
	var result []*Document
	for _, id := range ids {
		doc, err := c.Get(ctx, coll, id)
		if err != nil {
			return nil, err
		}
		if doc != nil {
			result = append(result, doc)
		}
	}
	return result, nil
}

func (c *memConn) sorted(coll string) []*Document {
	var docs []*Document
	for _, doc := range c.coll(coll) {
		docs = append(docs, clone(doc))
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs
}

func (c *memConn) List(ctx context.Context, coll string, rang Range, order Order, limit int) ([]*Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var result []*Document
	for _, doc := range c.sorted(coll) {
		if rang.Contains(doc.ID.Bytes()) {
			result = append(result, doc)
		}
	}
	if order == Descending {
		slices.Reverse(result)
	}
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (c *memConn) Push(ctx context.Context, coll string, contents []byte) (Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var last DocumentID
	docs := c.sorted(coll)
	if len(docs) > 0 {
		last = docs[len(docs)-1].ID
	}
	id, err := c.schema.CollectionNamed(coll).NextID(last, len(docs) > 0)
	if err != nil {
		return Header{}, err
	}
	return c.insertLocked(coll, id, contents)
}

func (c *memConn) Insert(ctx context.Context, coll string, id DocumentID, contents []byte) (Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.insertLocked(coll, id, contents)
}

func (c *memConn) insertLocked(coll string, id DocumentID, contents []byte) (Header, error) {
	if old := c.coll(coll)[id]; old != nil {
		return Header{}, NewConflictError(coll, old.Header())
	}
	c.writes++
	doc := NewDocument(coll, id, slices.Clone(contents))
	c.coll(coll)[id] = doc
	return doc.Header(), nil
}

func (c *memConn) Overwrite(ctx context.Context, coll string, id DocumentID, contents []byte) (Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.coll(coll)[id]
	if old == nil {
		return c.insertLocked(coll, id, contents)
	}
	next, changed := old.UpdateWith(slices.Clone(contents))
	if !changed {
		return old.Header(), nil
	}
	c.writes++
	c.coll(coll)[id] = next
	return next.Header(), nil
}

func (c *memConn) Update(ctx context.Context, doc *Document) (Header, error) {
	if c.beforeUpdate != nil {
		c.beforeUpdate(c, doc)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates++
	if c.failWith != nil {
		return Header{}, c.failWith
	}
	old := c.coll(doc.Collection)[doc.ID]
	if old == nil {
		return Header{}, ErrDocumentNotFound
	}
	if old.Revision != doc.Revision {
		return Header{}, NewConflictError(doc.Collection, old.Header())
	}
	next, changed := old.UpdateWith(slices.Clone(doc.Contents))
	if !changed {
		return old.Header(), nil
	}
	c.writes++
	c.coll(doc.Collection)[doc.ID] = next
	return next.Header(), nil
}

func (c *memConn) Delete(ctx context.Context, doc *Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.coll(doc.Collection)[doc.ID]
	if old == nil {
		return nil
	}
	if old.Revision != doc.Revision {
		return NewConflictError(doc.Collection, old.Header())
	}
	c.writes++
	delete(c.coll(doc.Collection), doc.ID)
	return nil
}

func (c *memConn) QueryView(ctx context.Context, name string, q ViewQuery) ([]ViewRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries++
	if c.failWith != nil {
		return nil, c.failWith
	}
	view := c.schema.ViewNamed(name)
	if view == nil {
		return nil, fmt.Errorf("unknown view %q", name)
	}
	var result []ViewRecord
	for _, doc := range c.sorted(view.CollectionName()) {
		recs, err := view.MapDocument(doc)
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			if !q.Matches(rec.Key) {
				continue
			}
			vr := ViewRecord{Key: rec.Key, Value: rec.Value, Source: rec.Source}
			if q.IncludeDocuments {
				vr.Document = doc
			}
			result = append(result, vr)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if c := bytes.Compare(result[i].Key, result[j].Key); c != 0 {
			return c < 0
		}
		return result[i].Source < result[j].Source
	})
	if q.Order == Descending {
		slices.Reverse(result)
	}
	if q.Limit > 0 && len(result) > q.Limit {
		result = result[:q.Limit]
	}
	return result, nil
}

func (c *memConn) ExecuteKeyOperation(ctx context.Context, op KeyOperation) (Output, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := op.Namespace + "\x00" + op.Key
	var current *Value
	if v, ok := c.kv[k]; ok {
		current = &v
	}
	next, changed, out, err := ApplyKeyCommand(current, op.Command)
	if err != nil {
		return Output{}, err
	}
	if changed {
		if next == nil {
			delete(c.kv, k)
		} else {
			c.kv[k] = *next
		}
	}
	return out, nil
}

func clone(doc *Document) *Document {
	if doc == nil {
		return nil
	}
	d := *doc
	d.Contents = slices.Clone(doc.Contents)
	return &d
}

// fixedKV answers every key operation with the same output.
type fixedKV struct {
	out Output
}

func (kv fixedKV) ExecuteKeyOperation(ctx context.Context, op KeyOperation) (Output, error) {
	return kv.out, nil
}
