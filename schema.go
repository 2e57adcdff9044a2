package docdb

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	uint64Type = reflect.TypeOf(uint64(0))
	ulidType   = reflect.TypeOf(ulid.ULID{})
	uuidType   = reflect.TypeOf(uuid.UUID{})
	stringType = reflect.TypeOf("")
)

type Schema struct {
	collections            []AnyCollection
	collectionsByLowerName map[string]AnyCollection
	views                  map[string]AnyView
}

func NewSchema() *Schema {
	scm := &Schema{}
	scm.init()
	return scm
}

func (scm *Schema) init() {
	if scm.collectionsByLowerName == nil {
		scm.collectionsByLowerName = make(map[string]AnyCollection)
		scm.views = make(map[string]AnyView)
	}
}

func (scm *Schema) Collections() []AnyCollection {
	return append([]AnyCollection(nil), scm.collections...)
}

func (scm *Schema) CollectionNamed(name string) AnyCollection {
	return scm.collectionsByLowerName[strings.ToLower(name)]
}

func (scm *Schema) ViewNamed(fullName string) AnyView {
	return scm.views[fullName]
}

// AnyCollection is the contract every collection fulfils towards storage
// backends, independent of its contents type.
type AnyCollection interface {
	Name() string
	Format() Format
	KeyType() reflect.Type
	Views() []AnyView
	NameView() AnyView
	EncryptionKeyID() string

	// NextID picks the id for a pushed document, given the greatest id in
	// the collection (if any).
	NextID(last DocumentID, hasLast bool) (DocumentID, error)
}

type keyTypeOpt struct {
	typ reflect.Type
}

// KeyOf sets the primary key type of a collection. The default is uint64.
func KeyOf[K any]() any {
	return keyTypeOpt{reflect.TypeOf((*K)(nil)).Elem()}
}

type encryptionKeyOpt string

// EncryptionKey names the key a backend must encrypt the collection with.
func EncryptionKey(id string) any {
	return encryptionKeyOpt(id)
}

// Collection binds the contents type T to a name, a format and views.
type Collection[T any] struct {
	schema   *Schema
	name     string
	format   Format
	keyType  reflect.Type
	views    []AnyView
	nameView AnyView
	encKeyID string
}

func AddCollection[T any](scm *Schema, name string, format Format, opts ...any) *Collection[T] {
	scm.init()
	if format == nil {
		panic(fmt.Errorf("%s: format is required", name))
	}
	if scm.collectionsByLowerName[strings.ToLower(name)] != nil {
		panic(fmt.Errorf("duplicate collection %q", name))
	}
	coll := &Collection[T]{
		schema:  scm,
		name:    name,
		format:  format,
		keyType: uint64Type,
	}
	for _, opt := range opts {
		switch opt := opt.(type) {
		case keyTypeOpt:
			coll.keyType = opt.typ
		case encryptionKeyOpt:
			coll.encKeyID = string(opt)
		default:
			panic(fmt.Errorf("invalid option %T %v", opt, opt))
		}
	}
	checkKeyType(coll.keyType)

	scm.collections = append(scm.collections, coll)
	scm.collectionsByLowerName[strings.ToLower(name)] = coll
	return coll
}

func (coll *Collection[T]) Name() string            { return coll.name }
func (coll *Collection[T]) Format() Format          { return coll.format }
func (coll *Collection[T]) KeyType() reflect.Type   { return coll.keyType }
func (coll *Collection[T]) Views() []AnyView        { return append([]AnyView(nil), coll.views...) }
func (coll *Collection[T]) NameView() AnyView       { return coll.nameView }
func (coll *Collection[T]) EncryptionKeyID() string { return coll.encKeyID }
func (coll *Collection[T]) Schema() *Schema         { return coll.schema }

func (coll *Collection[T]) addView(view AnyView, names bool) {
	if coll.schema.views[view.FullName()] != nil {
		panic(fmt.Errorf("%s: duplicate view", view.FullName()))
	}
	if names {
		if coll.nameView != nil {
			panic(fmt.Errorf("%s: collection already has name view %s", coll.name, coll.nameView.FullName()))
		}
		coll.nameView = view
	}
	coll.views = append(coll.views, view)
	coll.schema.views[view.FullName()] = view
}

// ID encodes a primary key of this collection.
func (coll *Collection[T]) ID(key any) (DocumentID, error) {
	kv := reflect.ValueOf(key)
	if !kv.IsValid() {
		return "", keyErrf(coll.keyType.String(), nil, nil, "nil key")
	}
	if kv.Type() != coll.keyType {
		var err error
		if kv, err = convertKey(kv, coll.keyType); err != nil {
			return "", keyErrf(coll.keyType.String(), nil, nil, "%s: %v", coll.name, err)
		}
	}
	raw, err := appendKey(nil, kv)
	if err != nil {
		return "", err
	}
	return DocumentID(raw), nil
}

func (coll *Collection[T]) NextID(last DocumentID, hasLast bool) (DocumentID, error) {
	switch coll.keyType {
	case uint64Type:
		var n uint64
		if hasLast {
			if err := last.Decode(&n); err != nil {
				return "", err
			}
		}
		if n == ^uint64(0) {
			return "", keyErrf(coll.keyType.String(), nil, nil, "%s: id space exhausted", coll.name)
		}
		return coll.ID(n + 1)
	case ulidType:
		return coll.ID(ulid.Make())
	case uuidType:
		return coll.ID(uuid.New())
	default:
		return "", keyErrf(coll.keyType.String(), nil, nil, "%s: cannot generate ids, use Insert", coll.name)
	}
}

func (coll *Collection[T]) decode(doc *Document) (*CollectionDocument[T], error) {
	return decodeDocument[T](coll.format, doc)
}

func (coll *Collection[T]) encode(contents *T) ([]byte, error) {
	return serialize(coll.format, contents)
}
