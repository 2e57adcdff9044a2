package docdb

import (
	"context"
)

// Delete removes doc, conditioned on the revision it holds. Deleting a
// document that is already gone succeeds.
func (coll *Collection[T]) Delete(ctx context.Context, conn Connection, doc *CollectionDocument[T]) error {
	raw := &Document{
		Collection: coll.name,
		ID:         doc.Header.ID,
		Revision:   doc.Header.Revision,
	}
	c := func(ctx context.Context) (any, error) {
		return nil, conn.Delete(ctx, raw)
	}
	_, err := once(ctx, c, func(any) (struct{}, error) {
		return struct{}{}, nil
	})
	return err
}

func (doc *CollectionDocument[T]) Delete(ctx context.Context, conn Connection, coll *Collection[T]) error {
	return coll.Delete(ctx, conn, doc)
}

// DeleteByKey loads the document and deletes the revision it found. It
// reports whether there was anything to delete.
func (coll *Collection[T]) DeleteByKey(ctx context.Context, conn Connection, key any) (bool, error) {
	doc, err := coll.Get(ctx, conn, key)
	if err != nil || doc == nil {
		return false, err
	}
	if err := coll.Delete(ctx, conn, doc); err != nil {
		return false, err
	}
	return true, nil
}
