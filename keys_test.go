package docdb

import (
	"bytes"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

func TestEncodeKeyOrder(t *testing.T) {
	ordered := func(name string, keys ...any) {
		t.Helper()
		for i := 1; i < len(keys); i++ {
			a, b := MustEncodeKey(keys[i-1]), MustEncodeKey(keys[i])
			if bytes.Compare(a, b) >= 0 {
				t.Errorf("** %s: %v (%x) does not sort before %v (%x)", name, keys[i-1], a, keys[i], b)
			}
		}
	}
	ordered("int", int64(math.MinInt64), int64(-10), int64(-1), int64(0), int64(1), int64(math.MaxInt64))
	ordered("uint", uint64(0), uint64(1), uint64(255), uint64(256), uint64(math.MaxUint64))
	ordered("float", math.Inf(-1), -1.5, -0.25, 0.0, 0.25, 1.5, math.Inf(1))
	ordered("string", "", "a", "ab", "b")
	ordered("bool", false, true)
	ordered("time", time.Unix(-100, 0), time.Unix(0, 0), time.Unix(100, 0))
}

func TestDecodeKey(t *testing.T) {
	o := func(key any, dst any) {
		t.Helper()
		raw := MustEncodeKey(key)
		success(t, DecodeKey(raw, dst))
	}

	var i int32
	o(int32(-42), &i)
	deepEqual(t, i, int32(-42))

	var u uint16
	o(uint16(65000), &u)
	deepEqual(t, u, uint16(65000))

	var f float64
	o(-3.75, &f)
	deepEqual(t, f, -3.75)

	var s string
	o("hello", &s)
	deepEqual(t, s, "hello")

	var tm time.Time
	now := time.Unix(1700000000, 123)
	o(now, &tm)
	deepEqual(t, tm.Equal(now), true)

	var ul ulid.ULID
	id := ulid.Make()
	o(id, &ul)
	deepEqual(t, ul, id)

	var uu uuid.UUID
	uid := uuid.New()
	o(uid, &uu)
	deepEqual(t, uu, uid)

	var unit Unit
	o(Unit{}, &unit)

	var small uint8
	err := DecodeKey(MustEncodeKey(uint64(1000)), &small)
	if err == nil {
		t.Errorf("** decoding 1000 into uint8 succeeded")
	}
}

func TestEncodeKeyUnsupported(t *testing.T) {
	_, err := EncodeKey(map[string]int{})
	if err == nil {
		t.Errorf("** map key encoded")
	}
	_, err = EncodeKey(nil)
	if err == nil {
		t.Errorf("** nil key encoded")
	}
	panics(t, func() { checkKeyType(reflect.TypeOf([]int{})) })
}

func TestCollectionNextID(t *testing.T) {
	id, err := players.NextID("", false)
	success(t, err)
	var n uint64
	success(t, id.Decode(&n))
	deepEqual(t, n, uint64(1))

	id, err = players.NextID(MustDocumentID(uint64(41)), true)
	success(t, err)
	success(t, id.Decode(&n))
	deepEqual(t, n, uint64(42))

	_, err = notes.NextID("", false)
	if err == nil {
		t.Errorf("** string keys generated an id")
	}

	scm := NewSchema()
	events := AddCollection[Note](scm, "events", MsgPack, KeyOf[ulid.ULID]())
	a, err := events.NextID("", false)
	success(t, err)
	deepEqual(t, len(a), 16)

	sessions := AddCollection[Note](scm, "sessions", MsgPack, KeyOf[uuid.UUID]())
	b, err := sessions.NextID("", false)
	success(t, err)
	deepEqual(t, len(b), 16)
}

func TestCollectionIDConversions(t *testing.T) {
	scm := NewSchema()
	nums := AddCollection[Note](scm, "nums", MsgPack)
	small := AddCollection[Note](scm, "small", MsgPack, KeyOf[int8]())
	strs := AddCollection[Note](scm, "strs", MsgPack, KeyOf[string]())
	ratios := AddCollection[Note](scm, "ratios", MsgPack, KeyOf[float32]())

	accepted := func(coll interface{ ID(any) (DocumentID, error) }, key any, dst any, want any) {
		t.Helper()
		id, err := coll.ID(key)
		success(t, err)
		success(t, id.Decode(dst))
		deepEqual(t, reflect.ValueOf(dst).Elem().Interface(), want)
	}
	rejected := func(coll interface{ ID(any) (DocumentID, error) }, key any) {
		t.Helper()
		_, err := coll.ID(key)
		var ke *KeyError
		if !errors.As(err, &ke) {
			t.Errorf("** ID(%T %v) = %v, wanted *KeyError", key, key, err)
		}
	}

	var u uint64
	accepted(nums, 7, &u, uint64(7))
	accepted(nums, int8(127), &u, uint64(127))
	accepted(nums, uint32(9), &u, uint64(9))
	rejected(nums, -1)
	rejected(nums, int64(math.MinInt64))
	rejected(nums, 1.9)
	rejected(nums, "1")

	var i int8
	accepted(small, -5, &i, int8(-5))
	accepted(small, uint64(127), &i, int8(127))
	rejected(small, 128)
	rejected(small, -129)
	rejected(small, uint64(math.MaxUint64))

	var s string
	accepted(strs, []byte("abc"), &s, "abc")
	rejected(strs, 65)
	rejected(strs, 'A')
	rejected(strs, true)

	var f float32
	accepted(ratios, 0.5, &f, float32(0.5))
	rejected(ratios, 0.1)
	rejected(ratios, 3)
}
