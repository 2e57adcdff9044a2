/*
Package docdb is the client side of a document database.

Documents live in collections. A collection binds a Go type to a name, a
serialization Format and a set of views, and is registered on a Schema:

	scm := docdb.NewSchema()
	users := docdb.AddCollection[User](scm, "users", docdb.MsgPack)
	byName := docdb.AddView(users, "by-name", mapUserName, nil, docdb.ViewNames)

Everything that touches storage goes through a Connection. Package localdb
provides one backed by Bolt, Badger or memory.

# Revisions

Every stored document has a Revision: a counter plus a 128-bit fingerprint
of its contents. Writes carry the revision the writer last saw. The
connection swaps contents only when that revision is still current and
otherwise fails with a *ConflictError holding the current header. Writing
contents identical to the current ones is a no-op and keeps the revision.

# Entries

Collection.Entry loads a document by name, id or key, and then updates it,
inserts it, or returns it:

	doc, err := users.Entry(docdb.ByName("alice")).
		UpdateWith(func(u *User) { u.Rank++ }).
		OrInsertWith(func() User { return User{Name: "alice"} }).
		RetryLimit(3).
		Execute(ctx, conn)

Conflicting updates reload the document and run the mutator again, up to the
retry limit. A document deleted concurrently yields a nil result.

# Views

A view maps each document to zero or more records (key, value). Map
functions build records with Emit, EmitKey, EmitValue and EmitKeyAndValue.
Records are ordered by encoded key (see EncodeKey). An optional reduce
function aggregates values and must accept its own output again
(rereduce), so results can be combined per partition.

# Key-value store

Connections also expose a key-value store with atomic numeric commands:

	n, err := docdb.IncrementKeyBy("visits", uint8(10)).Execute(ctx, conn)

Numeric commands saturate at the bounds of their type unless AllowOverflow
is called, in which case they wrap.

# Blocking and polled execution

Every operation is written once as a sequence of connection calls. Execute
runs that sequence to completion; Start returns a Future which advances as
it is polled and reports Pending, Executing or Resolved.
*/
package docdb
