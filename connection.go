package docdb

import (
	"bytes"
	"context"
)

// KeyValue executes atomic key-value commands.
type KeyValue interface {
	ExecuteKeyOperation(ctx context.Context, op KeyOperation) (Output, error)
}

// Connection is everything this package needs from a database. Implementations
// compare revisions on every conditioned write; callers never do.
//
// Absence is not an error: Get returns nil, nil for a missing document.
type Connection interface {
	KeyValue

	Get(ctx context.Context, collection string, id DocumentID) (*Document, error)
	GetMultiple(ctx context.Context, collection string, ids []DocumentID) ([]*Document, error)
	List(ctx context.Context, collection string, rang Range, order Order, limit int) ([]*Document, error)

	Push(ctx context.Context, collection string, contents []byte) (Header, error)

	// Insert creates a document, failing with a *ConflictError when id exists.
	Insert(ctx context.Context, collection string, id DocumentID, contents []byte) (Header, error)

	// Overwrite stores contents regardless of the current revision.
	Overwrite(ctx context.Context, collection string, id DocumentID, contents []byte) (Header, error)

	// Update stores doc.Contents if doc.Revision is still current. It fails
	// with a *ConflictError carrying the current header otherwise, and with
	// ErrDocumentNotFound if the document is gone.
	Update(ctx context.Context, doc *Document) (Header, error)

	// Delete removes doc if doc.Revision is still current.
	Delete(ctx context.Context, doc *Document) error

	QueryView(ctx context.Context, view string, q ViewQuery) ([]ViewRecord, error)
}

type Order int

const (
	Ascending Order = iota
	Descending
)

func (o Order) String() string {
	if o == Descending {
		return "desc"
	}
	return "asc"
}

// Range bounds a scan over encoded keys. A nil bound is open.
type Range struct {
	Lower    []byte
	Upper    []byte
	LowerInc bool
	UpperInc bool
}

// FullRange matches everything.
func FullRange() Range {
	return Range{}
}

// ExactRange matches exactly one encoded key.
func ExactRange(key []byte) Range {
	return Range{Lower: key, Upper: key, LowerInc: true, UpperInc: true}
}

func (r Range) IsEmpty() bool {
	if r.Lower == nil || r.Upper == nil {
		return false
	}
	c := bytes.Compare(r.Lower, r.Upper)
	return c > 0 || (c == 0 && !(r.LowerInc && r.UpperInc))
}

func (r Range) Contains(key []byte) bool {
	if r.Lower != nil {
		c := bytes.Compare(key, r.Lower)
		if c < 0 || (c == 0 && !r.LowerInc) {
			return false
		}
	}
	if r.Upper != nil {
		c := bytes.Compare(key, r.Upper)
		if c > 0 || (c == 0 && !r.UpperInc) {
			return false
		}
	}
	return true
}

// ViewQuery selects records of one view, either by exact key or by range.
type ViewQuery struct {
	Key              []byte
	HasKey           bool
	Range            Range
	Order            Order
	Limit            int
	IncludeDocuments bool
}

func (q ViewQuery) Matches(key []byte) bool {
	if q.HasKey {
		return bytes.Equal(key, q.Key)
	}
	return q.Range.Contains(key)
}

// ViewRecord is one stored map record. Document is set only when the query
// asked for documents.
type ViewRecord struct {
	Key      []byte
	Value    []byte
	Source   DocumentID
	Document *Document
}
