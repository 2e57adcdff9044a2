package localdb

import (
	"errors"
	"fmt"
	"slices"

	"github.com/andreyvit/docdb"
)

var (
	ErrBucketNotFound = errors.New("bucket not found")
	ErrClosed         = errors.New("database closed")

	// errRetryTx is returned by a storage commit that lost an optimistic
	// race; the whole transaction function runs again.
	errRetryTx = errors.New("transaction conflict")
)

type DataError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

// dataErrf copies data, which may belong to a transaction that is about to
// end.
func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{slices.Clone(data), off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	if n <= prefixLen+suffixLen {
		if e.Err != nil {
			return fmt.Sprintf("%s at %d: %v: (%d) %x", e.Msg, e.Off, e.Err, n, e.Data)
		}
		return fmt.Sprintf("%s at %d: (%d) %x", e.Msg, e.Off, n, e.Data)
	}
	p, s := e.Data[:prefixLen], e.Data[n-suffixLen:]
	if e.Err != nil {
		return fmt.Sprintf("%s at %d: %v: (%d) %x...%x", e.Msg, e.Off, e.Err, n, p, s)
	}
	return fmt.Sprintf("%s at %d: (%d) %x...%x", e.Msg, e.Off, n, p, s)
}

// UniqueViolationError is returned by writes that would make a unique view
// map one key to two documents.
type UniqueViolationError struct {
	View     string
	Key      []byte
	Existing docdb.DocumentID
}

func (e *UniqueViolationError) Error() string {
	return fmt.Sprintf("%s: key %s is already taken by %v", e.View, hexstr(e.Key), e.Existing)
}

// DocumentError wraps a failure to process one stored document.
type DocumentError struct {
	Collection string
	ID         docdb.DocumentID
	Msg        string
	Err        error
}

func docErrf(coll string, id docdb.DocumentID, err error, format string, args ...any) error {
	return &DocumentError{coll, id, fmt.Sprintf(format, args...), err}
}

func (e *DocumentError) Unwrap() error {
	return e.Err
}

func (e *DocumentError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s/%v: %s", e.Collection, e.ID, e.Msg)
	}
	return fmt.Sprintf("%s/%v: %s: %v", e.Collection, e.ID, e.Msg, e.Err)
}
