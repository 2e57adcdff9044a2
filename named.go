package docdb

import (
	"context"
	"fmt"
)

type refKind uint8

const (
	refName refKind = iota + 1
	refID
	refKey
)

// NamedReference identifies a document by a unique name, by id or by
// primary key. Only names need a lookup to resolve.
type NamedReference struct {
	kind refKind
	name string
	id   DocumentID
	key  any
}

func ByName(name string) NamedReference {
	return NamedReference{kind: refName, name: name}
}

func ByID(id DocumentID) NamedReference {
	return NamedReference{kind: refID, id: id}
}

func ByKey(key any) NamedReference {
	return NamedReference{kind: refKey, key: key}
}

func (ref NamedReference) Name() (string, bool) {
	return ref.name, ref.kind == refName
}

func (ref NamedReference) IsZero() bool {
	return ref.kind == 0
}

func (ref NamedReference) String() string {
	switch ref.kind {
	case refName:
		return fmt.Sprintf("name:%s", ref.name)
	case refID:
		return fmt.Sprintf("id:%v", ref.id)
	case refKey:
		return fmt.Sprintf("key:%v", ref.key)
	default:
		return "<none>"
	}
}

// idOf resolves id and key references without I/O.
func (coll *Collection[T]) idOf(ref NamedReference) (DocumentID, error) {
	switch ref.kind {
	case refID:
		return ref.id, nil
	case refKey:
		return coll.ID(ref.key)
	default:
		panic(fmt.Errorf("%s: %v has no id", coll.name, ref))
	}
}

func (coll *Collection[T]) nameQuery(name string) (string, ViewQuery, error) {
	view := coll.nameView
	if view == nil {
		return "", ViewQuery{}, fmt.Errorf("%s: %w", coll.name, ErrNotNamed)
	}
	return view.FullName(), ViewQuery{Key: []byte(name), HasKey: true, IncludeDocuments: true}, nil
}

// lookup returns the single call that finds the document ref points at, and
// a function that turns the call's result into the document.
func (coll *Collection[T]) lookup(conn Connection, ref NamedReference) (call, func(any) (*CollectionDocument[T], error), error) {
	c, found, err := coll.lookupRaw(conn, ref)
	if err != nil {
		return nil, nil, err
	}
	return c, func(v any) (*CollectionDocument[T], error) {
		doc := found(v)
		if doc == nil {
			return nil, nil
		}
		return coll.decode(doc)
	}, nil
}

func (coll *Collection[T]) lookupRaw(conn Connection, ref NamedReference) (call, func(any) *Document, error) {
	if ref.kind == refName {
		view, q, err := coll.nameQuery(ref.name)
		if err != nil {
			return nil, nil, err
		}
		c := func(ctx context.Context) (any, error) {
			return conn.QueryView(ctx, view, q)
		}
		return c, func(v any) *Document {
			// the name view is unique, so the first record is the only one
			for _, rec := range v.([]ViewRecord) {
				if rec.Document != nil {
					return rec.Document
				}
			}
			return nil
		}, nil
	}
	if ref.kind == 0 {
		panic(fmt.Errorf("%s: empty reference", coll.name))
	}

	id, err := coll.idOf(ref)
	if err != nil {
		return nil, nil, err
	}
	return coll.getCall(conn, id), func(v any) *Document { return v.(*Document) }, nil
}

func (coll *Collection[T]) getCall(conn Connection, id DocumentID) call {
	return func(ctx context.Context) (any, error) {
		return conn.Get(ctx, coll.name, id)
	}
}

func (coll *Collection[T]) decodeFound(v any) (*CollectionDocument[T], error) {
	doc := v.(*Document)
	if doc == nil {
		return nil, nil
	}
	return coll.decode(doc)
}

// Load returns the document ref points at, or nil if there is none.
func (coll *Collection[T]) Load(ctx context.Context, conn Connection, ref NamedReference) (*CollectionDocument[T], error) {
	c, finish, err := coll.lookup(conn, ref)
	if err != nil {
		return nil, err
	}
	return once(ctx, c, finish)
}

// LoadDocument is Load without decoding the contents.
func (coll *Collection[T]) LoadDocument(ctx context.Context, conn Connection, ref NamedReference) (*Document, error) {
	c, found, err := coll.lookupRaw(conn, ref)
	if err != nil {
		return nil, err
	}
	return once(ctx, c, func(v any) (*Document, error) {
		return found(v), nil
	})
}

// ResolveID returns the id ref points at. Id and key references resolve
// without checking that the document exists.
func (coll *Collection[T]) ResolveID(ctx context.Context, conn Connection, ref NamedReference) (DocumentID, bool, error) {
	if ref.kind != refName {
		id, err := coll.idOf(ref)
		return id, err == nil, err
	}
	view, q, err := coll.nameQuery(ref.name)
	if err != nil {
		return "", false, err
	}
	q.IncludeDocuments = false
	c := func(ctx context.Context) (any, error) {
		return conn.QueryView(ctx, view, q)
	}
	rec, err := once(ctx, c, func(v any) (*ViewRecord, error) {
		recs := v.([]ViewRecord)
		if len(recs) == 0 {
			return nil, nil
		}
		return &recs[0], nil
	})
	if err != nil || rec == nil {
		return "", false, err
	}
	return rec.Source, true, nil
}
