package docdb

import (
	"context"
)

// Push stores contents under an id the connection assigns.
func (coll *Collection[T]) Push(ctx context.Context, conn Connection, contents T) (*CollectionDocument[T], error) {
	data, err := coll.encode(&contents)
	if err != nil {
		return nil, err
	}
	c := func(ctx context.Context) (any, error) {
		return conn.Push(ctx, coll.name, data)
	}
	return once(ctx, c, coll.stored(contents))
}

// Insert stores contents under key. It fails with a *ConflictError if the
// key is taken.
func (coll *Collection[T]) Insert(ctx context.Context, conn Connection, key any, contents T) (*CollectionDocument[T], error) {
	id, err := coll.ID(key)
	if err != nil {
		return nil, err
	}
	data, err := coll.encode(&contents)
	if err != nil {
		return nil, err
	}
	c := func(ctx context.Context) (any, error) {
		return conn.Insert(ctx, coll.name, id, data)
	}
	return once(ctx, c, coll.stored(contents))
}

// Overwrite stores contents under key whatever is there now.
func (coll *Collection[T]) Overwrite(ctx context.Context, conn Connection, key any, contents T) (*CollectionDocument[T], error) {
	id, err := coll.ID(key)
	if err != nil {
		return nil, err
	}
	data, err := coll.encode(&contents)
	if err != nil {
		return nil, err
	}
	c := func(ctx context.Context) (any, error) {
		return conn.Overwrite(ctx, coll.name, id, data)
	}
	return once(ctx, c, coll.stored(contents))
}

func (coll *Collection[T]) stored(contents T) func(any) (*CollectionDocument[T], error) {
	return func(v any) (*CollectionDocument[T], error) {
		return &CollectionDocument[T]{Header: v.(Header), Contents: contents}, nil
	}
}

// Update writes doc back, conditioned on the revision doc holds. On success
// doc.Header is the new header; on a *ConflictError doc is left as is.
func (coll *Collection[T]) Update(ctx context.Context, conn Connection, doc *CollectionDocument[T]) error {
	data, err := coll.encode(&doc.Contents)
	if err != nil {
		return err
	}
	raw := &Document{
		Collection: coll.name,
		ID:         doc.Header.ID,
		Revision:   doc.Header.Revision,
		Contents:   data,
	}
	c := func(ctx context.Context) (any, error) {
		return conn.Update(ctx, raw)
	}
	header, err := once(ctx, c, func(v any) (Header, error) {
		return v.(Header), nil
	})
	if err != nil {
		return err
	}
	doc.Header = header
	return nil
}

func (doc *CollectionDocument[T]) Update(ctx context.Context, conn Connection, coll *Collection[T]) error {
	return coll.Update(ctx, conn, doc)
}

// Modify applies mutator and writes the result; see Update.
func (doc *CollectionDocument[T]) Modify(ctx context.Context, conn Connection, coll *Collection[T], mutator func(contents *T)) error {
	mutator(&doc.Contents)
	return coll.Update(ctx, conn, doc)
}
