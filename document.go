package docdb

import (
	"encoding/hex"
	"fmt"
)

// DocumentID is the encoded primary key of a document. The encoding is
// order-preserving, so comparing DocumentIDs compares keys.
type DocumentID string

func NewDocumentID(key any) (DocumentID, error) {
	raw, err := EncodeKey(key)
	if err != nil {
		return "", err
	}
	return DocumentID(raw), nil
}

func MustDocumentID(key any) DocumentID {
	return must(NewDocumentID(key))
}

func DocumentIDFromBytes(raw []byte) DocumentID {
	return DocumentID(raw)
}

func (id DocumentID) Bytes() []byte {
	return []byte(id)
}

// Decode decodes the primary key into dst, which must be a pointer.
func (id DocumentID) Decode(dst any) error {
	return DecodeKey([]byte(id), dst)
}

func (id DocumentID) String() string {
	return hex.EncodeToString([]byte(id))
}

func (id DocumentID) Source() DocumentID {
	return id
}

type Header struct {
	ID       DocumentID `msgpack:"id" json:"id"`
	Revision Revision   `msgpack:"rev" json:"rev"`
}

func (h Header) Source() DocumentID {
	return h.ID
}

func (h Header) String() string {
	return fmt.Sprintf("%v@%v", h.ID, h.Revision)
}

// Document is a stored document in its raw form. Contents are opaque to
// this package; collections decode them using their Format.
type Document struct {
	Collection string
	ID         DocumentID
	Revision   Revision
	Contents   []byte
}

func NewDocument(collection string, id DocumentID, contents []byte) *Document {
	return &Document{
		Collection: collection,
		ID:         id,
		Revision:   InitialRevision(contents),
		Contents:   contents,
	}
}

func (doc *Document) Header() Header {
	return Header{ID: doc.ID, Revision: doc.Revision}
}

func (doc *Document) Source() DocumentID {
	return doc.ID
}

// UpdateWith returns the successor of doc holding contents, or false when
// contents are unchanged.
func (doc *Document) UpdateWith(contents []byte) (*Document, bool) {
	rev, changed := doc.Revision.Next(contents)
	if !changed {
		return nil, false
	}
	return &Document{
		Collection: doc.Collection,
		ID:         doc.ID,
		Revision:   rev,
		Contents:   contents,
	}, true
}

// CollectionDocument is a document decoded for a particular collection.
type CollectionDocument[T any] struct {
	Header   Header
	Contents T
}

func (doc *CollectionDocument[T]) Source() DocumentID {
	return doc.Header.ID
}

func (doc *CollectionDocument[T]) ID() DocumentID {
	return doc.Header.ID
}

// Key decodes the primary key into dst.
func (doc *CollectionDocument[T]) Key(dst any) error {
	return doc.Header.ID.Decode(dst)
}
