package localdb

import (
	"log/slog"
	"strings"
	"testing"

	"go.etcd.io/bbolt"
)

func openTestStorage(t *testing.T, backend string) storage {
	t.Helper()
	var s storage
	switch backend {
	case "bolt":
		s = newBoltStorage(must(bbolt.Open(tempDBFile(t), 0666, &bbolt.Options{NoSync: true, InitialMmapSize: 1 << 20})))
	case "memory":
		s = newMemStorage()
	case "badger":
		s = must(openBadgerStorage("", Options{IsTesting: true}))
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func forEachStorage(t *testing.T, f func(t *testing.T, s storage)) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			f(t, openTestStorage(t, backend))
		})
	}
}

func scan(c *rawRangeCursor) string {
	var got []string
	for c.Next() {
		got = append(got, string(c.Value()))
	}
	return strings.Join(got, " ")
}

func TestRawRangeCursor(t *testing.T) {
	forEachStorage(t, func(t *testing.T, s storage) {
		wtx := must(s.BeginTx(true))
		buck := must(wtx.CreateBucket("b", "sub"))
		mustPut(t, buck, []byte{0x10, 0x01}, []byte("a"))
		mustPut(t, buck, []byte{0x10, 0x02}, []byte("b"))
		mustPut(t, buck, []byte{0x10, 0x03}, []byte("c"))
		mustPut(t, buck, []byte{0x11, 0x01}, []byte("x"))
		mustPut(t, buck, []byte{0xFF}, []byte("z"))
		ensure(wtx.Commit())

		rtx := must(s.BeginTx(false))
		defer rtx.Rollback()
		rbuck := rtx.Bucket("b", "sub")
		if rbuck == nil {
			t.Fatalf("** bucket not found after commit")
		}
		logger := slog.Default()
		o := func(r rawRange, e string) {
			t.Helper()
			deepEqual(t, scan(r.newCursor(rbuck.Cursor(), logger)), e)
		}

		o(rawRange{}, "a b c x z")
		o(rawRange{Reverse: true}, "z x c b a")
		o(rawPrefix([]byte{0x10}), "a b c")
		o(rawPrefix([]byte{0x10}).Reversed(true), "c b a")
		o(rawPrefix([]byte{0xFF}).Reversed(true), "z")
		o(rawPrefix([]byte{0x12}), "")
		o(rawPrefix([]byte{0x12}).Reversed(true), "")
		o(rawRange{Lower: []byte{0x10, 0x01}}, "b c x z")
		o(rawRange{Lower: []byte{0x10, 0x01}, LowerInc: true}, "a b c x z")
		o(rawRange{Lower: []byte{0x10, 0x01}, Upper: []byte{0x10, 0x03}}, "b")
		o(rawRange{Lower: []byte{0x10, 0x01}, Upper: []byte{0x10, 0x03}, LowerInc: true, UpperInc: true}, "a b c")
		o(rawRange{Upper: []byte{0x10, 0x03}, Reverse: true}, "b a")
		o(rawRange{Upper: []byte{0x10, 0x03}, UpperInc: true, Reverse: true}, "c b a")
		o(rawRange{Upper: []byte{0x10, 0x04}, Reverse: true}, "c b a")
		o(rawRange{Upper: []byte{0xFF, 0x00}, Reverse: true}, "z x c b a")
		o(rawRange{Lower: []byte{0x10, 0x02}, Upper: []byte{0x11, 0x01}, UpperInc: true, Reverse: true}, "x c")
	})
}

func TestStorageBuckets(t *testing.T) {
	forEachStorage(t, func(t *testing.T, s storage) {
		wtx := must(s.BeginTx(true))
		if wtx.Bucket("coll", "data") != nil {
			t.Fatalf("** bucket exists before creation")
		}
		data := must(wtx.CreateBucket("coll", "data"))
		view := must(wtx.CreateBucket("coll", "v/x"))
		mustPut(t, data, []byte("k1"), []byte("v1"))
		mustPut(t, data, []byte("k2"), []byte("v2"))
		mustPut(t, view, []byte("i1"), []byte{})
		if wtx.Bucket("coll", "") == nil {
			t.Fatalf("** root bucket was not created along with a nested one")
		}
		ensure(wtx.Commit())

		wtx = must(s.BeginTx(true))
		deepEqual(t, string(wtx.Bucket("coll", "data").Get([]byte("k1"))), "v1")
		success(t, wtx.Bucket("coll", "data").Delete([]byte("k1")))
		success(t, wtx.DeleteBucket("coll", "v/x"))
		failure(t, wtx.DeleteBucket("coll", "v/x"), ErrBucketNotFound)
		failure(t, wtx.DeleteBucket("nope", "v/x"), ErrBucketNotFound)
		ensure(wtx.Rollback())

		// rolled back
		rtx := must(s.BeginTx(false))
		deepEqual(t, string(rtx.Bucket("coll", "data").Get([]byte("k1"))), "v1")
		if v := rtx.Bucket("coll", "data").Get([]byte("k3")); v != nil {
			t.Errorf("** got %q for a missing key", v)
		}
		if rtx.Bucket("coll", "v/x") == nil {
			t.Fatalf("** rolled back bucket deletion is visible")
		}
		deepEqual(t, rtx.Bucket("coll", "data").Stats().KeyN, 2)
		ensure(rtx.Rollback())

		wtx = must(s.BeginTx(true))
		success(t, wtx.DeleteBucket("coll", "v/x"))
		ensure(wtx.Commit())

		rtx = must(s.BeginTx(false))
		defer rtx.Rollback()
		if rtx.Bucket("coll", "v/x") != nil {
			t.Fatalf("** deleted bucket still exists")
		}
		c := rtx.Bucket("coll", "data").Cursor()
		k, _ := c.Last()
		deepEqual(t, string(k), "k2")
		k, _ = c.Prev()
		deepEqual(t, string(k), "k1")
		k, _ = c.Prev()
		noKey(t, k)
		k, v := c.SeekLast([]byte("k"))
		deepEqual(t, string(k), "k2")
		deepEqual(t, string(v), "v2")
		k, _ = c.SeekLast([]byte("a"))
		noKey(t, k)
	})
}

func TestStorageSnapshotIsolation(t *testing.T) {
	forEachStorage(t, func(t *testing.T, s storage) {
		wtx := must(s.BeginTx(true))
		mustPut(t, must(wtx.CreateBucket("b", "")), []byte("k"), []byte("old"))
		ensure(wtx.Commit())

		rtx := must(s.BeginTx(false))
		defer rtx.Rollback()

		wtx = must(s.BeginTx(true))
		mustPut(t, wtx.Bucket("b", ""), []byte("k"), []byte("new"))
		ensure(wtx.Commit())

		deepEqual(t, string(rtx.Bucket("b", "").Get([]byte("k"))), "old")
	})
}

func TestBadgerCommitConflict(t *testing.T) {
	s := openTestStorage(t, "badger")
	setupTx := must(s.BeginTx(true))
	mustPut(t, must(setupTx.CreateBucket("b", "")), []byte("k"), []byte("0"))
	ensure(setupTx.Commit())

	tx1 := must(s.BeginTx(true))
	tx2 := must(s.BeginTx(true))
	defer tx2.Rollback()

	tx1.Bucket("b", "").Get([]byte("k"))
	tx2.Bucket("b", "").Get([]byte("k"))
	mustPut(t, tx1.Bucket("b", ""), []byte("k"), []byte("1"))
	mustPut(t, tx2.Bucket("b", ""), []byte("k"), []byte("2"))
	success(t, tx1.Commit())
	failure(t, tx2.Commit(), errRetryTx)
}

func noKey(t testing.TB, k []byte) {
	if k != nil {
		t.Helper()
		t.Errorf("** got key %x, wanted none", k)
	}
}

func TestInc(t *testing.T) {
	o := func(in []byte, e []byte, eok bool) {
		t.Helper()
		b := append([]byte(nil), in...)
		ok := inc(b)
		deepEqual(t, ok, eok)
		if ok {
			deepEqual(t, b, e)
		}
	}
	o([]byte{0x01}, []byte{0x02}, true)
	o([]byte{0x01, 0xFF}, []byte{0x02, 0x00}, true)
	o([]byte{0xFF, 0xFF}, nil, false)
	o([]byte{}, nil, false)
}
