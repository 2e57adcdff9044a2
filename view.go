package docdb

import (
	"bytes"
	"context"
	"fmt"
	"reflect"
)

// Sourced is anything that identifies the document a map record comes from.
type Sourced interface {
	Source() DocumentID
}

// MapRecord is one record a view's map function emits for a document.
type MapRecord[K, V any] struct {
	Source DocumentID
	Key    K
	Value  V
}

func Emit(doc Sourced) MapRecord[Unit, Unit] {
	return EmitKeyAndValue(doc, Unit{}, Unit{})
}

func EmitKey[K any](doc Sourced, key K) MapRecord[K, Unit] {
	return EmitKeyAndValue(doc, key, Unit{})
}

func EmitValue[V any](doc Sourced, value V) MapRecord[Unit, V] {
	return EmitKeyAndValue(doc, Unit{}, value)
}

func EmitKeyAndValue[K, V any](doc Sourced, key K, value V) MapRecord[K, V] {
	return MapRecord[K, V]{Source: doc.Source(), Key: key, Value: value}
}

// MappedValue is a key with a value, either a mapped one or a reduced one.
type MappedValue[K, V any] struct {
	Key   K
	Value V
}

type MappedDocument[T, K, V any] struct {
	Key      K
	Value    V
	Document *CollectionDocument[T]
}

// MapFunc must be pure: the same document always maps to the same records.
type MapFunc[T, K, V any] func(doc *CollectionDocument[T]) ([]MapRecord[K, V], error)

// ReduceFunc aggregates mappings into one value. With rereduce set, mappings
// hold results of earlier reductions, so the function must be associative
// over its own output.
type ReduceFunc[K, V any] func(mappings []MappedValue[K, V], rereduce bool) (V, error)

// RawMapRecord is a map record with key and value encoded, as stored by
// backends.
type RawMapRecord struct {
	Key    []byte
	Value  []byte
	Source DocumentID
}

// AnyView is the contract views fulfil towards storage backends.
type AnyView interface {
	Name() string
	FullName() string
	CollectionName() string
	Unique() bool
	Version() uint64
	MapDocument(doc *Document) ([]RawMapRecord, error)
}

type viewOpt int

const (
	// ViewUnique makes the backend reject two documents emitting the same key.
	ViewUnique viewOpt = iota + 1

	// ViewNames marks the unique string-keyed view that resolves ByName
	// references for its collection.
	ViewNames
)

type viewVersionOpt uint64

// ViewVersion must be bumped whenever the map function changes, which makes
// backends rebuild the view.
func ViewVersion(v uint64) any {
	return viewVersionOpt(v)
}

type View[T, K, V any] struct {
	coll     *Collection[T]
	name     string
	mapFn    MapFunc[T, K, V]
	reduceFn ReduceFunc[K, V]
	unique   bool
	version  uint64
}

func AddView[T, K, V any](coll *Collection[T], name string, mapFn MapFunc[T, K, V], reduceFn ReduceFunc[K, V], opts ...any) *View[T, K, V] {
	if mapFn == nil {
		panic(fmt.Errorf("%s.%s: map function is required", coll.name, name))
	}
	keyType := reflect.TypeOf((*K)(nil)).Elem()
	checkKeyType(keyType)

	view := &View[T, K, V]{
		coll:     coll,
		name:     name,
		mapFn:    mapFn,
		reduceFn: reduceFn,
	}
	var names bool
	for _, opt := range opts {
		switch opt := opt.(type) {
		case viewOpt:
			switch opt {
			case ViewUnique:
				view.unique = true
			case ViewNames:
				if keyType != stringType {
					panic(fmt.Errorf("%s.%s: name view must be keyed by string, got %v", coll.name, name, keyType))
				}
				view.unique = true
				names = true
			}
		case viewVersionOpt:
			view.version = uint64(opt)
		default:
			panic(fmt.Errorf("invalid option %T %v", opt, opt))
		}
	}
	coll.addView(view, names)
	return view
}

func (v *View[T, K, V]) Name() string                { return v.name }
func (v *View[T, K, V]) FullName() string            { return v.coll.name + "." + v.name }
func (v *View[T, K, V]) CollectionName() string      { return v.coll.name }
func (v *View[T, K, V]) Collection() *Collection[T] { return v.coll }
func (v *View[T, K, V]) Unique() bool                { return v.unique }
func (v *View[T, K, V]) Version() uint64             { return v.version }

// Map runs the map function and checks that every record names doc as its
// source.
func (v *View[T, K, V]) Map(doc *CollectionDocument[T]) ([]MapRecord[K, V], error) {
	recs, err := v.mapFn(doc)
	if err != nil {
		return nil, fmt.Errorf("%s: map %v: %w", v.FullName(), doc.Header.ID, err)
	}
	for _, rec := range recs {
		if rec.Source != doc.Header.ID {
			return nil, fmt.Errorf("%s: map %v emitted a record for %v", v.FullName(), doc.Header.ID, rec.Source)
		}
	}
	return recs, nil
}

func (v *View[T, K, V]) MapDocument(doc *Document) ([]RawMapRecord, error) {
	cdoc, err := v.coll.decode(doc)
	if err != nil {
		return nil, err
	}
	recs, err := v.Map(cdoc)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	raws := make([]RawMapRecord, 0, len(recs))
	for _, rec := range recs {
		key, err := EncodeKey(rec.Key)
		if err != nil {
			return nil, err
		}
		value, err := serialize(v.coll.format, &rec.Value)
		if err != nil {
			return nil, err
		}
		raws = append(raws, RawMapRecord{Key: key, Value: value, Source: rec.Source})
	}
	return raws, nil
}

func (v *View[T, K, V]) WithKey(key K) ViewQuery {
	return ViewQuery{Key: MustEncodeKey(key), HasKey: true}
}

// WithKeyRange selects keys between lower and upper; a nil bound is open.
func (v *View[T, K, V]) WithKeyRange(lower, upper *K, lowerInc, upperInc bool) ViewQuery {
	var r Range
	if lower != nil {
		r.Lower, r.LowerInc = MustEncodeKey(*lower), lowerInc
	}
	if upper != nil {
		r.Upper, r.UpperInc = MustEncodeKey(*upper), upperInc
	}
	return ViewQuery{Range: r}
}

func (v *View[T, K, V]) All() ViewQuery {
	return ViewQuery{}
}

func (q ViewQuery) Reversed() ViewQuery {
	q.Order = Descending
	return q
}

func (q ViewQuery) Limited(n int) ViewQuery {
	q.Limit = n
	return q
}

func (v *View[T, K, V]) queryRaw(ctx context.Context, conn Connection, q ViewQuery) ([]ViewRecord, error) {
	name := v.FullName()
	c := func(ctx context.Context) (any, error) {
		return conn.QueryView(ctx, name, q)
	}
	return once(ctx, c, func(res any) ([]ViewRecord, error) {
		return res.([]ViewRecord), nil
	})
}

func (v *View[T, K, V]) decodeRecord(raw ViewRecord) (MapRecord[K, V], error) {
	rec := MapRecord[K, V]{Source: raw.Source}
	if err := DecodeKey(raw.Key, &rec.Key); err != nil {
		return rec, err
	}
	if err := v.coll.format.Unmarshal(raw.Value, &rec.Value); err != nil {
		return rec, serializationErrf(v.coll.format, "decode", &rec.Value, err)
	}
	return rec, nil
}

func (v *View[T, K, V]) Query(ctx context.Context, conn Connection, q ViewQuery) ([]MapRecord[K, V], error) {
	q.IncludeDocuments = false
	raws, err := v.queryRaw(ctx, conn, q)
	if err != nil {
		return nil, err
	}
	recs := make([]MapRecord[K, V], 0, len(raws))
	for _, raw := range raws {
		rec, err := v.decodeRecord(raw)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// QueryWithDocs returns matching records along with their source documents.
// Records whose document vanished are skipped.
func (v *View[T, K, V]) QueryWithDocs(ctx context.Context, conn Connection, q ViewQuery) ([]MappedDocument[T, K, V], error) {
	q.IncludeDocuments = true
	raws, err := v.queryRaw(ctx, conn, q)
	if err != nil {
		return nil, err
	}
	return v.decodeWithDocs(raws)
}

func (v *View[T, K, V]) decodeWithDocs(raws []ViewRecord) ([]MappedDocument[T, K, V], error) {
	result := make([]MappedDocument[T, K, V], 0, len(raws))
	for _, raw := range raws {
		if raw.Document == nil {
			continue
		}
		rec, err := v.decodeRecord(raw)
		if err != nil {
			return nil, err
		}
		doc, err := v.coll.decode(raw.Document)
		if err != nil {
			return nil, err
		}
		result = append(result, MappedDocument[T, K, V]{rec.Key, rec.Value, doc})
	}
	return result, nil
}

func (v *View[T, K, V]) reduce(mappings []MappedValue[K, V], rereduce bool) (V, error) {
	if v.reduceFn == nil {
		var zero V
		return zero, ErrReduceUnimplemented
	}
	return v.reduceFn(mappings, rereduce)
}

// Reduce aggregates every matching record into one value.
func (v *View[T, K, V]) Reduce(ctx context.Context, conn Connection, q ViewQuery) (V, error) {
	if v.reduceFn == nil {
		var zero V
		return zero, ErrReduceUnimplemented
	}
	recs, err := v.Query(ctx, conn, q)
	if err != nil {
		var zero V
		return zero, err
	}
	return v.reduce(mappedValues(recs), false)
}

// ReduceGrouped reduces each distinct key separately, in key order.
func (v *View[T, K, V]) ReduceGrouped(ctx context.Context, conn Connection, q ViewQuery) ([]MappedValue[K, V], error) {
	if v.reduceFn == nil {
		return nil, ErrReduceUnimplemented
	}
	q.IncludeDocuments = false
	raws, err := v.queryRaw(ctx, conn, q)
	if err != nil {
		return nil, err
	}
	var result []MappedValue[K, V]
	for start := 0; start < len(raws); {
		end := start + 1
		for end < len(raws) && bytes.Equal(raws[end].Key, raws[start].Key) {
			end++
		}
		group := make([]MappedValue[K, V], 0, end-start)
		for _, raw := range raws[start:end] {
			rec, err := v.decodeRecord(raw)
			if err != nil {
				return nil, err
			}
			group = append(group, MappedValue[K, V]{rec.Key, rec.Value})
		}
		value, err := v.reduce(group, false)
		if err != nil {
			return nil, err
		}
		result = append(result, MappedValue[K, V]{group[0].Key, value})
		start = end
	}
	return result, nil
}

// ReducePartitioned reduces matching records in partitions of at most size
// records, then re-reduces the partial results.
func (v *View[T, K, V]) ReducePartitioned(ctx context.Context, conn Connection, q ViewQuery, size int) (V, error) {
	var zero V
	if size <= 0 {
		panic(fmt.Errorf("invalid partition size %d", size))
	}
	if v.reduceFn == nil {
		return zero, ErrReduceUnimplemented
	}
	recs, err := v.Query(ctx, conn, q)
	if err != nil {
		return zero, err
	}
	return v.rereduce(mappedValues(recs), size)
}

func (v *View[T, K, V]) rereduce(mappings []MappedValue[K, V], size int) (V, error) {
	if len(mappings) <= size {
		return v.reduce(mappings, false)
	}
	var partials []MappedValue[K, V]
	for start := 0; start < len(mappings); start += size {
		part := mappings[start:min(start+size, len(mappings))]
		value, err := v.reduce(part, false)
		if err != nil {
			var zero V
			return zero, err
		}
		partials = append(partials, MappedValue[K, V]{part[0].Key, value})
	}
	return v.reduce(partials, true)
}

func mappedValues[K, V any](recs []MapRecord[K, V]) []MappedValue[K, V] {
	result := make([]MappedValue[K, V], len(recs))
	for i, rec := range recs {
		result[i] = MappedValue[K, V]{rec.Key, rec.Value}
	}
	return result
}
