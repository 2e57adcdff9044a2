package docdb

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"testing"
)

type (
	Player struct {
		Name  string `msgpack:"n" json:"name"`
		Rank  int    `msgpack:"r" json:"rank"`
		Team  string `msgpack:"t,omitempty" json:"team,omitempty"`
		Score uint64 `msgpack:"s,omitempty" json:"score,omitempty"`
	}

	Note struct {
		Text string `json:"text"`
	}
)

var (
	testSchema    = NewSchema()
	players       = AddCollection[Player](testSchema, "players", MsgPack)
	playersByName = AddView(players, "by-name", func(doc *CollectionDocument[Player]) ([]MapRecord[string, Unit], error) {
		if doc.Contents.Name == "" {
			return nil, nil
		}
		return []MapRecord[string, Unit]{EmitKey(doc, doc.Contents.Name)}, nil
	}, nil, ViewNames)
	playersByTeam = AddView(players, "by-team", func(doc *CollectionDocument[Player]) ([]MapRecord[string, int], error) {
		return []MapRecord[string, int]{EmitKeyAndValue(doc, doc.Contents.Team, doc.Contents.Rank)}, nil
	}, sumRanks)
	notes = AddCollection[Note](testSchema, "notes", JSON, KeyOf[string]())
)

func sumRanks(mappings []MappedValue[string, int], rereduce bool) (int, error) {
	var sum int
	for _, m := range mappings {
		sum += m.Value
	}
	return sum, nil
}

func init() {
	slog.SetLogLoggerLevel(slog.LevelDebug)
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

func panics(t testing.TB, f func()) (reason any) {
	t.Helper()
	defer func() {
		reason = recover()
		if reason == nil {
			t.Fatalf("** did not panic")
		}
	}()
	f()
	return nil
}

var ctx = context.Background()
