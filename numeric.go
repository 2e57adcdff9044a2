package docdb

import (
	"fmt"
	"math"
	"math/bits"
	"reflect"
	"strconv"
)

type NumericKind uint8

const (
	Signed NumericKind = iota + 1
	Unsigned
	Float
)

func (k NumericKind) String() string {
	switch k {
	case Signed:
		return "i"
	case Unsigned:
		return "u"
	case Float:
		return "f"
	default:
		return "?"
	}
}

// Numeric is a number tagged with its kind and bit width. Arithmetic on it
// follows the rules of the fixed-width type it describes.
type Numeric struct {
	Kind  NumericKind `msgpack:"k" json:"kind"`
	Bits  uint8       `msgpack:"b" json:"bits"`
	Int   int64       `msgpack:"i,omitempty" json:"int,omitempty"`
	Uint  uint64      `msgpack:"u,omitempty" json:"uint,omitempty"`
	Float float64     `msgpack:"f,omitempty" json:"float,omitempty"`
}

type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr |
		~float32 | ~float64
}

func SignedNumeric(v int64, bits uint8) Numeric {
	return Numeric{Kind: Signed, Bits: bits, Int: v}
}

func UnsignedNumeric(v uint64, bits uint8) Numeric {
	return Numeric{Kind: Unsigned, Bits: bits, Uint: v}
}

func FloatNumeric(v float64, bits uint8) Numeric {
	return Numeric{Kind: Float, Bits: bits, Float: v}
}

func numericType(typ reflect.Type) (NumericKind, uint8) {
	switch typ.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Signed, uint8(typ.Bits())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return Unsigned, uint8(typ.Bits())
	case reflect.Float32, reflect.Float64:
		return Float, uint8(typ.Bits())
	default:
		panic(fmt.Errorf("%v is not numeric", typ))
	}
}

func NumericOf[V Number](v V) Numeric {
	rv := reflect.ValueOf(v)
	kind, bits := numericType(rv.Type())
	switch kind {
	case Signed:
		return SignedNumeric(rv.Int(), bits)
	case Unsigned:
		return UnsignedNumeric(rv.Uint(), bits)
	default:
		return FloatNumeric(rv.Float(), bits)
	}
}

// NumericAs extracts a V from n. Kind and width must match exactly.
func NumericAs[V Number](n Numeric) (V, error) {
	var v V
	rv := reflect.ValueOf(&v).Elem()
	kind, bits := numericType(rv.Type())
	if n.Kind != kind || n.Bits != bits {
		return v, &IncompatibleTypeError{n, typeName(kind, bits)}
	}
	switch kind {
	case Signed:
		rv.SetInt(n.Int)
	case Unsigned:
		rv.SetUint(n.Uint)
	default:
		rv.SetFloat(n.Float)
	}
	return v, nil
}

func typeName(kind NumericKind, bits uint8) string {
	return kind.String() + strconv.Itoa(int(bits))
}

func (n Numeric) TypeName() string {
	return typeName(n.Kind, n.Bits)
}

func (n Numeric) String() string {
	switch n.Kind {
	case Signed:
		return fmt.Sprintf("%s(%d)", n.TypeName(), n.Int)
	case Unsigned:
		return fmt.Sprintf("%s(%d)", n.TypeName(), n.Uint)
	case Float:
		return fmt.Sprintf("%s(%v)", n.TypeName(), n.Float)
	default:
		return "invalid"
	}
}

func (n Numeric) IsValid() bool {
	return validWidth(n.Kind, n.Bits)
}

func validWidth(kind NumericKind, bits uint8) bool {
	switch kind {
	case Signed, Unsigned:
		return bits == 8 || bits == 16 || bits == 32 || bits == 64
	case Float:
		return bits == 32 || bits == 64
	default:
		return false
	}
}

// ParseNumericType parses names like i8, u64 and f32.
func ParseNumericType(name string) (NumericKind, uint8, error) {
	if len(name) < 2 {
		return 0, 0, fmt.Errorf("invalid numeric type %q", name)
	}
	var kind NumericKind
	switch name[0] {
	case 'i':
		kind = Signed
	case 'u':
		kind = Unsigned
	case 'f':
		kind = Float
	default:
		return 0, 0, fmt.Errorf("invalid numeric type %q", name)
	}
	b, err := strconv.ParseUint(name[1:], 10, 8)
	if err != nil || !validWidth(kind, uint8(b)) {
		return 0, 0, fmt.Errorf("invalid numeric type %q", name)
	}
	return kind, uint8(b), nil
}

func ParseNumeric(typ string, s string) (Numeric, error) {
	kind, bits, err := ParseNumericType(typ)
	if err != nil {
		return Numeric{}, err
	}
	switch kind {
	case Signed:
		v, err := strconv.ParseInt(s, 10, int(bits))
		return SignedNumeric(v, bits), err
	case Unsigned:
		v, err := strconv.ParseUint(s, 10, int(bits))
		return UnsignedNumeric(v, bits), err
	default:
		v, err := strconv.ParseFloat(s, int(bits))
		return FloatNumeric(v, bits), err
	}
}

func signedBounds(w uint8) (int64, int64) {
	if w >= 64 {
		return math.MinInt64, math.MaxInt64
	}
	return -(int64(1) << (w - 1)), int64(1)<<(w-1) - 1
}

func unsignedMax(w uint8) uint64 {
	if w >= 64 {
		return math.MaxUint64
	}
	return uint64(1)<<w - 1
}

func floatMax(w uint8) float64 {
	if w == 32 {
		return math.MaxFloat32
	}
	return math.MaxFloat64
}

func mantissaBits(w uint8) int {
	if w == 32 {
		return 24
	}
	return 53
}

func exactInFloat(u uint64, w uint8) bool {
	if u == 0 {
		return true
	}
	return bits.Len64(u)-bits.TrailingZeros64(u) <= mantissaBits(w)
}

// Convert returns n represented as the given kind and width, failing unless
// the conversion is lossless.
func (n Numeric) Convert(kind NumericKind, w uint8) (Numeric, error) {
	if !validWidth(kind, w) {
		panic(fmt.Errorf("invalid numeric type %s", typeName(kind, w)))
	}
	if n.Kind == kind && n.Bits == w {
		return n, nil
	}
	fail := &IncompatibleTypeError{n, typeName(kind, w)}
	switch kind {
	case Signed:
		lo, hi := signedBounds(w)
		switch n.Kind {
		case Signed:
			if n.Int < lo || n.Int > hi {
				return Numeric{}, fail
			}
			return SignedNumeric(n.Int, w), nil
		case Unsigned:
			if n.Uint > uint64(hi) {
				return Numeric{}, fail
			}
			return SignedNumeric(int64(n.Uint), w), nil
		case Float:
			f := n.Float
			if f != math.Trunc(f) || f < float64(lo) || f >= -float64(lo) {
				return Numeric{}, fail
			}
			return SignedNumeric(int64(f), w), nil
		}
	case Unsigned:
		umax := unsignedMax(w)
		switch n.Kind {
		case Signed:
			if n.Int < 0 || uint64(n.Int) > umax {
				return Numeric{}, fail
			}
			return UnsignedNumeric(uint64(n.Int), w), nil
		case Unsigned:
			if n.Uint > umax {
				return Numeric{}, fail
			}
			return UnsignedNumeric(n.Uint, w), nil
		case Float:
			f := n.Float
			if f != math.Trunc(f) || f < 0 || f >= math.Ldexp(1, int(w)) {
				return Numeric{}, fail
			}
			return UnsignedNumeric(uint64(f), w), nil
		}
	case Float:
		switch n.Kind {
		case Signed:
			mag := uint64(n.Int)
			if n.Int < 0 {
				mag = -mag
			}
			if !exactInFloat(mag, w) {
				return Numeric{}, fail
			}
			return FloatNumeric(float64(n.Int), w), nil
		case Unsigned:
			if !exactInFloat(n.Uint, w) {
				return Numeric{}, fail
			}
			return FloatNumeric(float64(n.Uint), w), nil
		case Float:
			if w == 32 && !math.IsNaN(n.Float) && float64(float32(n.Float)) != n.Float {
				return Numeric{}, fail
			}
			return FloatNumeric(n.Float, w), nil
		}
	}
	return Numeric{}, fail
}

// Add returns n + amount in n's type. amount must convert losslessly to that
// type. Saturating arithmetic clamps to the bounds of the type; otherwise the
// result wraps like native fixed-width arithmetic.
func (n Numeric) Add(amount Numeric, saturating bool) (Numeric, error) {
	return n.apply(amount, saturating, false)
}

func (n Numeric) Sub(amount Numeric, saturating bool) (Numeric, error) {
	return n.apply(amount, saturating, true)
}

func (n Numeric) apply(amount Numeric, saturating, negate bool) (Numeric, error) {
	if !n.IsValid() {
		return Numeric{}, fmt.Errorf("invalid numeric %v", n)
	}
	amount, err := amount.Convert(n.Kind, n.Bits)
	if err != nil {
		return Numeric{}, err
	}
	w := n.Bits
	switch n.Kind {
	case Signed:
		a, b := n.Int, amount.Int
		var r int64
		var over, under bool
		if negate {
			r = a - b
			over, under = b < 0 && r < a, b > 0 && r > a
		} else {
			r = a + b
			over, under = b > 0 && r < a, b < 0 && r > a
		}
		lo, hi := signedBounds(w)
		if saturating {
			switch {
			case over || r > hi:
				r = hi
			case under || r < lo:
				r = lo
			}
		} else if w < 64 {
			r = int64(uint64(r)<<(64-w)) >> (64 - w)
		}
		return SignedNumeric(r, w), nil

	case Unsigned:
		a, b := n.Uint, amount.Uint
		umax := unsignedMax(w)
		if negate {
			if b > a {
				if saturating {
					return UnsignedNumeric(0, w), nil
				}
				return UnsignedNumeric((a-b)&umax, w), nil
			}
			return UnsignedNumeric(a-b, w), nil
		}
		r := a + b
		if r < a || r > umax {
			if saturating {
				return UnsignedNumeric(umax, w), nil
			}
			r &= umax
		}
		return UnsignedNumeric(r, w), nil

	default:
		b := amount.Float
		if negate {
			b = -b
		}
		var r float64
		if w == 32 {
			r = float64(float32(n.Float) + float32(b))
		} else {
			r = n.Float + b
		}
		if saturating && math.IsInf(r, 0) && !math.IsInf(n.Float, 0) && !math.IsInf(b, 0) {
			r = math.Copysign(floatMax(w), r)
		}
		return FloatNumeric(r, w), nil
	}
}
