package localdb

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"reflect"
	"strings"
	"testing"

	"github.com/andreyvit/docdb"
)

type (
	Player struct {
		Name string `msgpack:"n" json:"name"`
		Team string `msgpack:"t,omitempty" json:"team,omitempty"`
		Rank int    `msgpack:"r" json:"rank"`
		Bio  string `msgpack:"b,omitempty" json:"bio,omitempty"`
	}

	Note struct {
		Text string `json:"text"`
	}
)

var (
	testSchema    = docdb.NewSchema()
	players       = docdb.AddCollection[Player](testSchema, "players", docdb.MsgPack)
	playersByName = docdb.AddView(players, "by-name", func(doc *docdb.CollectionDocument[Player]) ([]docdb.MapRecord[string, docdb.Unit], error) {
		if doc.Contents.Name == "" {
			return nil, nil
		}
		return []docdb.MapRecord[string, docdb.Unit]{docdb.EmitKey(doc, doc.Contents.Name)}, nil
	}, nil, docdb.ViewNames)
	playersByTeam = docdb.AddView(players, "by-team", func(doc *docdb.CollectionDocument[Player]) ([]docdb.MapRecord[string, int], error) {
		if doc.Contents.Team == "" {
			return nil, nil
		}
		return []docdb.MapRecord[string, int]{docdb.EmitKeyAndValue(doc, doc.Contents.Team, doc.Contents.Rank)}, nil
	}, func(mappings []docdb.MappedValue[string, int], rereduce bool) (int, error) {
		var sum int
		for _, m := range mappings {
			sum += m.Value
		}
		return sum, nil
	})
	notes = docdb.AddCollection[Note](testSchema, "notes", docdb.JSON, docdb.KeyOf[string]())
)

var backends = []string{"bolt", "memory", "badger"}

var ctx = context.Background()

func init() {
	slog.SetLogLoggerLevel(slog.LevelDebug)
}

func setup(t testing.TB, backend string, schema *docdb.Schema, opt Options) *DB {
	t.Helper()
	opt.IsTesting = true
	if opt.Logf == nil {
		opt.Logf = t.Logf
	}

	var db *DB
	switch backend {
	case "bolt":
		db = must(Open(tempDBFile(t), schema, opt))
	case "memory":
		db = must(OpenMemory(schema, opt))
	case "badger":
		db = must(OpenBadger(t.TempDir(), schema, opt))
	default:
		t.Fatalf("unknown backend %q", backend)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func tempDBFile(t testing.TB) string {
	t.Helper()
	f := must(os.CreateTemp("", "docdb_test_*.db"))
	t.Logf("DB: %s", f.Name())
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })
	return f.Name()
}

func forEachBackend(t *testing.T, f func(t *testing.T, db *DB)) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			f(t, setup(t, backend, testSchema, Options{}))
		})
	}
}

func seedPlayers(t testing.TB, db *DB) {
	t.Helper()
	for _, p := range []Player{
		{Name: "alice", Rank: 3, Team: "red"},
		{Name: "bob", Rank: 5, Team: "blue"},
		{Name: "carol", Rank: 7, Team: "red"},
		{Name: "dave", Rank: 11, Team: "green"},
		{Name: "erin", Rank: 13, Team: "red"},
	} {
		_, err := players.Push(ctx, db, p)
		success(t, err)
	}
}

func names(docs []*docdb.CollectionDocument[Player]) string {
	var a []string
	for _, doc := range docs {
		a = append(a, doc.Contents.Name)
	}
	return strings.Join(a, " ")
}

func deepEqual[T any](t testing.TB, a, e T) {
	if !reflect.DeepEqual(a, e) {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
	}
}

func isempty[T any, S ~[]T](t testing.TB, a S) {
	if len(a) > 0 {
		t.Helper()
		t.Errorf("** got %v, wanted empty slice", a)
	}
}

func isnil[T any, P ~*T](t testing.TB, a P) {
	if a != nil {
		t.Helper()
		t.Errorf("** got &%v, wanted nil", *a)
	}
}

func isnonnil[T any](t testing.TB, a *T) {
	if a == nil {
		t.Helper()
		t.Fatalf("** got nil %T, wanted non-nil", a)
	}
}

func success(t testing.TB, err error) {
	if err != nil {
		t.Helper()
		t.Fatalf("** unexpected error: %v", err)
	}
}

func failure(t testing.TB, err, target error) {
	if !errors.Is(err, target) {
		t.Helper()
		t.Fatalf("** got error %v, wanted %v", err, target)
	}
}

func mustPut(t testing.TB, b storageBucket, k, v []byte) {
	t.Helper()
	success(t, b.Put(k, v))
}
