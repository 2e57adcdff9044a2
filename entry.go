package docdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Entry loads the document a reference points at, then updates it, inserts
// it when absent, or just returns it, depending on what is configured.
//
// Updates are conditioned on the revision that was loaded. On a conflict the
// document is reloaded and the mutator runs again against the fresh
// contents, at most RetryLimit more times. A document deleted after it was
// loaded yields a nil result, whether the deletion is seen by the first
// update or by a reload while retrying.
type Entry[T any] struct {
	coll       *Collection[T]
	ref        NamedReference
	update     func(*T)
	insert     func() T
	retryLimit int
	started    bool
}

func (coll *Collection[T]) Entry(ref NamedReference) *Entry[T] {
	return &Entry[T]{coll: coll, ref: ref}
}

func (e *Entry[T]) configure() {
	if e.started {
		panic(fmt.Errorf("%s: entry %v modified after it started", e.coll.name, e.ref))
	}
}

func (e *Entry[T]) UpdateWith(mutator func(contents *T)) *Entry[T] {
	e.configure()
	e.update = mutator
	return e
}

func (e *Entry[T]) OrInsertWith(producer func() T) *Entry[T] {
	e.configure()
	e.insert = producer
	return e
}

func (e *Entry[T]) RetryLimit(n int) *Entry[T] {
	e.configure()
	if n < 0 {
		panic(fmt.Errorf("invalid retry limit %d", n))
	}
	e.retryLimit = n
	return e
}

// Execute runs the entry to completion.
func (e *Entry[T]) Execute(ctx context.Context, conn Connection) (*CollectionDocument[T], error) {
	return run(ctx, e.machine(conn))
}

// Start returns a future that runs the entry as it is polled.
func (e *Entry[T]) Start(ctx context.Context, conn Connection) *Future[*CollectionDocument[T]] {
	return startFuture(ctx, e.machine(conn))
}

func (e *Entry[T]) machine(conn Connection) *entryMachine[T] {
	e.started = true
	return &entryMachine[T]{
		coll:    e.coll,
		conn:    conn,
		ref:     e.ref,
		update:  e.update,
		insert:  e.insert,
		retries: e.retryLimit,
	}
}

type entryPhase uint8

const (
	entryStart entryPhase = iota
	entryLoading
	entryWriting
	entryReloading
	entryInserting
)

type entryMachine[T any] struct {
	coll    *Collection[T]
	conn    Connection
	ref     NamedReference
	update  func(*T)
	insert  func() T
	retries int

	phase    entryPhase
	found    func(any) (*CollectionDocument[T], error)
	doc      *CollectionDocument[T]
	inserted T
}

func (m *entryMachine[T]) advance(o outcome) step[*CollectionDocument[T]] {
	switch m.phase {
	case entryStart:
		c, found, err := m.coll.lookup(m.conn, m.ref)
		if err != nil {
			return fail[*CollectionDocument[T]](err)
		}
		m.phase, m.found = entryLoading, found
		return invoke[*CollectionDocument[T]](c)

	case entryLoading:
		if o.err != nil {
			return fail[*CollectionDocument[T]](o.err)
		}
		doc, err := m.found(o.v)
		if err != nil {
			return fail[*CollectionDocument[T]](err)
		}
		if doc == nil {
			return m.create()
		}
		if m.update == nil {
			return resolve(doc, nil)
		}
		m.doc = doc
		return m.write()

	case entryWriting:
		if o.err == nil {
			m.doc.Header = o.v.(Header)
			return resolve(m.doc, nil)
		}
		if errors.Is(o.err, ErrDocumentNotFound) {
			return resolve[*CollectionDocument[T]](nil, nil)
		}
		if _, ok := AsConflict(o.err); !ok || m.retries == 0 {
			return fail[*CollectionDocument[T]](o.err)
		}
		m.retries--
		slog.Debug("docdb: entry conflict", "collection", m.coll.name, "id", m.doc.Header.ID, "retries_left", m.retries)
		m.phase = entryReloading
		return invoke[*CollectionDocument[T]](m.coll.getCall(m.conn, m.doc.Header.ID))

	case entryReloading:
		if o.err != nil {
			return fail[*CollectionDocument[T]](o.err)
		}
		doc, err := m.coll.decodeFound(o.v)
		if err != nil {
			return fail[*CollectionDocument[T]](err)
		}
		if doc == nil {
			return resolve[*CollectionDocument[T]](nil, nil)
		}
		m.doc = doc
		return m.write()

	case entryInserting:
		if o.err != nil {
			return fail[*CollectionDocument[T]](o.err)
		}
		return resolve(&CollectionDocument[T]{Header: o.v.(Header), Contents: m.inserted}, nil)
	}
	panic(fmt.Errorf("entry: invalid phase %d", m.phase))
}

func (m *entryMachine[T]) write() step[*CollectionDocument[T]] {
	m.update(&m.doc.Contents)
	data, err := m.coll.encode(&m.doc.Contents)
	if err != nil {
		return fail[*CollectionDocument[T]](err)
	}
	raw := &Document{
		Collection: m.coll.name,
		ID:         m.doc.Header.ID,
		Revision:   m.doc.Header.Revision,
		Contents:   data,
	}
	m.phase = entryWriting
	conn := m.conn
	return invoke[*CollectionDocument[T]](func(ctx context.Context) (any, error) {
		return conn.Update(ctx, raw)
	})
}

func (m *entryMachine[T]) create() step[*CollectionDocument[T]] {
	if m.insert == nil {
		return resolve[*CollectionDocument[T]](nil, nil)
	}
	m.inserted = m.insert()
	data, err := m.coll.encode(&m.inserted)
	if err != nil {
		return fail[*CollectionDocument[T]](err)
	}
	coll, conn := m.coll.name, m.conn
	m.phase = entryInserting
	if m.ref.kind == refName {
		return invoke[*CollectionDocument[T]](func(ctx context.Context) (any, error) {
			return conn.Push(ctx, coll, data)
		})
	}
	id, err := m.coll.idOf(m.ref)
	if err != nil {
		return fail[*CollectionDocument[T]](err)
	}
	return invoke[*CollectionDocument[T]](func(ctx context.Context) (any, error) {
		return conn.Insert(ctx, coll, id, data)
	})
}
