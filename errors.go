package docdb

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConflict is matched by every *ConflictError.
	ErrConflict = errors.New("document conflict")

	// ErrDocumentNotFound is returned by writes that require an existing
	// document when there is none.
	ErrDocumentNotFound = errors.New("document not found")

	ErrReduceUnimplemented = errors.New("view has no reduce function")
	ErrNotNamed            = errors.New("collection has no name view")
)

// ConflictError reports a write that presented a revision which no longer
// matches the stored one. Header is the actual current header.
type ConflictError struct {
	Collection string
	Header     Header
}

func conflictErrf(collection string, header Header) error {
	return &ConflictError{collection, header}
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s/%v: conflict, current revision is %v", e.Collection, e.Header.ID, e.Header.Revision)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// NewConflictError is used by Connection implementations.
func NewConflictError(collection string, header Header) error {
	return conflictErrf(collection, header)
}

// AsConflict returns the *ConflictError in err's chain, if any.
func AsConflict(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

type SerializationError struct {
	Format string
	Op     string
	Type   string
	Err    error
}

func serializationErrf(format Format, op string, v any, err error) error {
	return &SerializationError{format.Name(), op, fmt.Sprintf("%T", v), err}
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("%s %s %s: %v", e.Format, e.Op, e.Type, e.Err)
}

// TypeMismatchError is the panic value raised when a server returns a value
// that does not match the type a caller requested. It signals a protocol bug,
// not a caller mistake.
type TypeMismatchError struct {
	Key      string
	Expected string
	Actual   string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("%s: server returned %s, expected %s", e.Key, e.Actual, e.Expected)
}

// IncompatibleTypeError is returned when a numeric value cannot be
// represented in the requested kind and width.
type IncompatibleTypeError struct {
	Value  Numeric
	Target string
}

func (e *IncompatibleTypeError) Error() string {
	return fmt.Sprintf("%v cannot be represented as %s", e.Value, e.Target)
}

type KeyError struct {
	Type string
	Raw  []byte
	Msg  string
	Err  error
}

func keyErrf(typ string, raw []byte, err error, format string, args ...any) error {
	return &KeyError{typ, raw, fmt.Sprintf(format, args...), err}
}

func (e *KeyError) Unwrap() error {
	return e.Err
}

func (e *KeyError) Error() string {
	var buf strings.Builder
	buf.WriteString("key ")
	buf.WriteString(e.Type)
	if e.Raw != nil {
		fmt.Fprintf(&buf, " %x", e.Raw)
	}
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
	}
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}
