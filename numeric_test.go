package docdb

import (
	"errors"
	"math"
	"testing"
)

func TestNumericScenario(t *testing.T) {
	v := UnsignedNumeric(250, 8)
	sat, err := v.Add(NumericOf(uint8(10)), true)
	success(t, err)
	deepEqual(t, sat, UnsignedNumeric(255, 8))

	wrap, err := v.Add(NumericOf(uint8(10)), false)
	success(t, err)
	deepEqual(t, wrap, UnsignedNumeric(4, 8))
}

func TestNumericUint8MatchesNative(t *testing.T) {
	for a := 0; a < 256; a++ {
		for b := 0; b < 256; b++ {
			n := NumericOf(uint8(a))
			amt := NumericOf(uint8(b))

			sum := must(n.Add(amt, false))
			if got, want := uint8(sum.Uint), uint8(a)+uint8(b); got != want || sum.Uint > 255 {
				t.Fatalf("** %d + %d wrapping = %d, wanted %d", a, b, sum.Uint, want)
			}
			diff := must(n.Sub(amt, false))
			if got, want := uint8(diff.Uint), uint8(a)-uint8(b); got != want || diff.Uint > 255 {
				t.Fatalf("** %d - %d wrapping = %d, wanted %d", a, b, diff.Uint, want)
			}

			sat := must(n.Add(amt, true))
			if want := uint64(min(a+b, 255)); sat.Uint != want {
				t.Fatalf("** %d + %d saturating = %d, wanted %d", a, b, sat.Uint, want)
			}
			sat = must(n.Sub(amt, true))
			if want := uint64(max(a-b, 0)); sat.Uint != want {
				t.Fatalf("** %d - %d saturating = %d, wanted %d", a, b, sat.Uint, want)
			}
		}
	}
}

func TestNumericInt8MatchesNative(t *testing.T) {
	for a := -128; a < 128; a++ {
		for b := -128; b < 128; b++ {
			n := NumericOf(int8(a))
			amt := NumericOf(int8(b))

			sum := must(n.Add(amt, false))
			if want := int64(int8(a) + int8(b)); sum.Int != want {
				t.Fatalf("** %d + %d wrapping = %d, wanted %d", a, b, sum.Int, want)
			}
			diff := must(n.Sub(amt, false))
			if want := int64(int8(a) - int8(b)); diff.Int != want {
				t.Fatalf("** %d - %d wrapping = %d, wanted %d", a, b, diff.Int, want)
			}

			sat := must(n.Add(amt, true))
			if want := int64(max(min(a+b, 127), -128)); sat.Int != want {
				t.Fatalf("** %d + %d saturating = %d, wanted %d", a, b, sat.Int, want)
			}
			sat = must(n.Sub(amt, true))
			if want := int64(max(min(a-b, 127), -128)); sat.Int != want {
				t.Fatalf("** %d - %d saturating = %d, wanted %d", a, b, sat.Int, want)
			}
		}
	}
}

func TestNumeric64BitEdges(t *testing.T) {
	big := NumericOf(int64(math.MaxInt64))
	deepEqual(t, must(big.Add(NumericOf(int64(1)), true)).Int, int64(math.MaxInt64))
	deepEqual(t, must(big.Add(NumericOf(int64(1)), false)).Int, int64(math.MinInt64))

	small := NumericOf(int64(math.MinInt64))
	deepEqual(t, must(small.Sub(NumericOf(int64(1)), true)).Int, int64(math.MinInt64))
	deepEqual(t, must(small.Add(NumericOf(int64(-1)), true)).Int, int64(math.MinInt64))
	deepEqual(t, must(small.Sub(NumericOf(int64(-1)), true)).Int, int64(math.MinInt64+1))

	u := NumericOf(uint64(math.MaxUint64))
	deepEqual(t, must(u.Add(NumericOf(uint64(2)), true)).Uint, uint64(math.MaxUint64))
	deepEqual(t, must(u.Add(NumericOf(uint64(2)), false)).Uint, uint64(1))
	deepEqual(t, must(NumericOf(uint64(1)).Sub(NumericOf(uint64(2)), false)).Uint, uint64(math.MaxUint64))
}

func TestNumericFloat(t *testing.T) {
	f := NumericOf(math.MaxFloat64)
	deepEqual(t, must(f.Add(NumericOf(math.MaxFloat64), true)).Float, math.MaxFloat64)
	deepEqual(t, math.IsInf(must(f.Add(NumericOf(math.MaxFloat64), false)).Float, 1), true)
	deepEqual(t, must(NumericOf(-math.MaxFloat64).Sub(NumericOf(math.MaxFloat64), true)).Float, -math.MaxFloat64)

	f32 := NumericOf(float32(math.MaxFloat32))
	deepEqual(t, must(f32.Add(NumericOf(float32(math.MaxFloat32)), true)).Float, float64(math.MaxFloat32))
	deepEqual(t, must(NumericOf(1.5).Add(NumericOf(2.25), true)).Float, 3.75)
}

func TestNumericConvert(t *testing.T) {
	ok := func(n Numeric, kind NumericKind, bits uint8, want Numeric) {
		t.Helper()
		got, err := n.Convert(kind, bits)
		success(t, err)
		deepEqual(t, got, want)
	}
	bad := func(n Numeric, kind NumericKind, bits uint8) {
		t.Helper()
		_, err := n.Convert(kind, bits)
		var ite *IncompatibleTypeError
		if !errors.As(err, &ite) {
			t.Errorf("** %v to %s: got %v, wanted IncompatibleTypeError", n, typeName(kind, bits), err)
		}
	}
	ok(NumericOf(uint8(200)), Signed, 16, SignedNumeric(200, 16))
	ok(NumericOf(int64(-5)), Signed, 8, SignedNumeric(-5, 8))
	ok(NumericOf(int64(7)), Unsigned, 8, UnsignedNumeric(7, 8))
	ok(NumericOf(int64(1<<53)), Float, 64, FloatNumeric(1<<53, 64))
	ok(NumericOf(3.0), Unsigned, 8, UnsignedNumeric(3, 8))
	ok(NumericOf(0.5), Float, 32, FloatNumeric(0.5, 32))

	bad(NumericOf(uint8(200)), Signed, 8)
	bad(NumericOf(int64(-1)), Unsigned, 64)
	bad(NumericOf(int64(256)), Unsigned, 8)
	bad(NumericOf(int64(1<<53+1)), Float, 64)
	bad(NumericOf(3.5), Signed, 32)
	bad(NumericOf(0.1), Float, 32)
	bad(NumericOf(math.Ldexp(1, 63)), Signed, 64)
}

func TestNumericAs(t *testing.T) {
	v, err := NumericAs[uint8](UnsignedNumeric(9, 8))
	success(t, err)
	deepEqual(t, v, uint8(9))

	type Counter int32
	c, err := NumericAs[Counter](NumericOf(Counter(-3)))
	success(t, err)
	deepEqual(t, c, Counter(-3))

	_, err = NumericAs[uint16](UnsignedNumeric(9, 8))
	if err == nil {
		t.Errorf("** width mismatch accepted")
	}
}

func TestParseNumeric(t *testing.T) {
	n, err := ParseNumeric("u8", "250")
	success(t, err)
	deepEqual(t, n, UnsignedNumeric(250, 8))

	n, err = ParseNumeric("i16", "-300")
	success(t, err)
	deepEqual(t, n, SignedNumeric(-300, 16))

	_, err = ParseNumeric("u8", "256")
	if err == nil {
		t.Errorf("** out of range value parsed")
	}
	for _, bad := range []string{"", "x8", "i7", "f16", "u"} {
		if _, _, err := ParseNumericType(bad); err == nil {
			t.Errorf("** ParseNumericType(%q) succeeded", bad)
		}
	}
}
