package docdb

import (
	"context"
)

// Get returns the document with the given primary key, or nil.
func (coll *Collection[T]) Get(ctx context.Context, conn Connection, key any) (*CollectionDocument[T], error) {
	id, err := coll.ID(key)
	if err != nil {
		return nil, err
	}
	return coll.GetByID(ctx, conn, id)
}

func (coll *Collection[T]) GetByID(ctx context.Context, conn Connection, id DocumentID) (*CollectionDocument[T], error) {
	return once(ctx, coll.getCall(conn, id), coll.decodeFound)
}

// GetMultiple returns the documents that exist among keys, in key order as
// returned by the connection.
func (coll *Collection[T]) GetMultiple(ctx context.Context, conn Connection, keys ...any) ([]*CollectionDocument[T], error) {
	ids := make([]DocumentID, 0, len(keys))
	for _, key := range keys {
		id, err := coll.ID(key)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	c := func(ctx context.Context) (any, error) {
		return conn.GetMultiple(ctx, coll.name, ids)
	}
	return once(ctx, c, coll.decodeAll)
}

// List returns documents whose encoded ids fall within rang. A limit of zero
// means no limit.
func (coll *Collection[T]) List(ctx context.Context, conn Connection, rang Range, order Order, limit int) ([]*CollectionDocument[T], error) {
	c := func(ctx context.Context) (any, error) {
		return conn.List(ctx, coll.name, rang, order, limit)
	}
	return once(ctx, c, coll.decodeAll)
}

func (coll *Collection[T]) All(ctx context.Context, conn Connection) ([]*CollectionDocument[T], error) {
	return coll.List(ctx, conn, FullRange(), Ascending, 0)
}

// KeyRange builds a Range over primary keys; a nil bound is open.
func (coll *Collection[T]) KeyRange(lower, upper any, lowerInc, upperInc bool) (Range, error) {
	var r Range
	if lower != nil {
		id, err := coll.ID(lower)
		if err != nil {
			return r, err
		}
		r.Lower, r.LowerInc = id.Bytes(), lowerInc
	}
	if upper != nil {
		id, err := coll.ID(upper)
		if err != nil {
			return r, err
		}
		r.Upper, r.UpperInc = id.Bytes(), upperInc
	}
	return r, nil
}

func (coll *Collection[T]) decodeAll(v any) ([]*CollectionDocument[T], error) {
	docs := v.([]*Document)
	result := make([]*CollectionDocument[T], 0, len(docs))
	for _, doc := range docs {
		cdoc, err := coll.decode(doc)
		if err != nil {
			return nil, err
		}
		result = append(result, cdoc)
	}
	return result, nil
}
