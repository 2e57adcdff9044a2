package docdb

import (
	"testing"
)

func TestCollectionGetAndList(t *testing.T) {
	conn := newMemConn(testSchema)
	seedPlayers(t, conn)

	doc, err := players.Get(ctx, conn, uint64(3))
	success(t, err)
	isnonnil(t, doc)
	deepEqual(t, doc.Contents.Name, "carol")

	missing, err := players.Get(ctx, conn, uint64(99))
	success(t, err)
	isnil(t, missing)

	docs, err := players.GetMultiple(ctx, conn, uint64(5), uint64(99), uint64(1))
	success(t, err)
	deepEqual(t, names(docs), []string{"erin", "alice"})

	rang, err := players.KeyRange(uint64(2), uint64(4), true, false)
	success(t, err)
	docs, err = players.List(ctx, conn, rang, Ascending, 0)
	success(t, err)
	deepEqual(t, names(docs), []string{"bob", "carol"})

	docs, err = players.List(ctx, conn, FullRange(), Descending, 2)
	success(t, err)
	deepEqual(t, names(docs), []string{"erin", "dave"})

	docs, err = players.All(ctx, conn)
	success(t, err)
	deepEqual(t, len(docs), 5)

	_, err = players.Get(ctx, conn, "not-a-number")
	if err == nil {
		t.Fatalf("** string key accepted by a uint64 collection")
	}
}

func names(docs []*CollectionDocument[Player]) []string {
	var result []string
	for _, doc := range docs {
		result = append(result, doc.Contents.Name)
	}
	return result
}

func TestCollectionWrites(t *testing.T) {
	conn := newMemConn(testSchema)
	doc, err := players.Insert(ctx, conn, uint64(10), Player{Name: "zed"})
	success(t, err)

	_, err = players.Insert(ctx, conn, uint64(10), Player{Name: "zed2"})
	failure(t, err, ErrConflict)

	stale := *doc
	success(t, doc.Modify(ctx, conn, players, func(p *Player) { p.Rank = 4 }))
	deepEqual(t, doc.Header.Revision.ID, uint32(1))

	stale.Contents.Rank = 8
	err = stale.Update(ctx, conn, players)
	failure(t, err, ErrConflict)
	deepEqual(t, stale.Header.Revision.ID, uint32(0))

	err = players.Delete(ctx, conn, &stale)
	failure(t, err, ErrConflict)

	over, err := players.Overwrite(ctx, conn, uint64(10), Player{Name: "zed", Rank: 100})
	success(t, err)
	deepEqual(t, over.Header.Revision.ID, uint32(2))

	ok, err := players.DeleteByKey(ctx, conn, uint64(10))
	success(t, err)
	deepEqual(t, ok, true)
	ok, err = players.DeleteByKey(ctx, conn, uint64(10))
	success(t, err)
	deepEqual(t, ok, false)

	// deleting what is already gone succeeds
	success(t, over.Delete(ctx, conn, players))
}

func TestLoadAndResolveID(t *testing.T) {
	conn := newMemConn(testSchema)
	seedPlayers(t, conn)

	doc, err := players.Load(ctx, conn, ByName("dave"))
	success(t, err)
	isnonnil(t, doc)

	id, ok, err := players.ResolveID(ctx, conn, ByName("dave"))
	success(t, err)
	deepEqual(t, ok, true)
	deepEqual(t, id, doc.Header.ID)

	_, ok, err = players.ResolveID(ctx, conn, ByName("nobody"))
	success(t, err)
	deepEqual(t, ok, false)

	id, ok, err = players.ResolveID(ctx, conn, ByKey(uint64(4)))
	success(t, err)
	deepEqual(t, ok, true)
	deepEqual(t, id, doc.Header.ID)

	byID, err := players.Load(ctx, conn, ByID(id))
	success(t, err)
	deepEqual(t, byID, doc)

	_, _, err = notes.ResolveID(ctx, conn, ByName("x"))
	failure(t, err, ErrNotNamed)

	raw, err := players.LoadDocument(ctx, conn, ByName("dave"))
	success(t, err)
	isnonnil(t, raw)
	deepEqual(t, raw.Header(), doc.Header)
	var p Player
	success(t, MsgPack.Unmarshal(raw.Contents, &p))
	deepEqual(t, p, doc.Contents)

	raw, err = players.LoadDocument(ctx, conn, ByKey(uint64(4)))
	success(t, err)
	deepEqual(t, raw.Header(), doc.Header)

	isnil(t, must(players.LoadDocument(ctx, conn, ByName("nobody"))))
	isnil(t, must(players.LoadDocument(ctx, conn, ByKey(uint64(99)))))
	_, err = notes.LoadDocument(ctx, conn, ByName("x"))
	failure(t, err, ErrNotNamed)

	deepEqual(t, ByName("a").String(), "name:a")
	deepEqual(t, NamedReference{}.IsZero(), true)
}
