package docdb

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
	"time"
)

// KeyMarshaler lets a type choose its own order-preserving key encoding.
type KeyMarshaler interface {
	MarshalKey() ([]byte, error)
}

type KeyUnmarshaler interface {
	UnmarshalKey(raw []byte) error
}

// Unit is the empty key or value, emitted by Emit.
type Unit struct{}

var (
	keyMarshalerType   = reflect.TypeOf((*KeyMarshaler)(nil)).Elem()
	keyUnmarshalerType = reflect.TypeOf((*KeyUnmarshaler)(nil)).Elem()
	timeType           = reflect.TypeOf((*time.Time)(nil)).Elem()
	unitType           = reflect.TypeOf(Unit{})
	byteType           = reflect.TypeOf(byte(0))
	bytesType          = reflect.TypeOf([]byte(nil))
)

const signBit = uint64(1) << 63

// EncodeKey encodes key so that byte-wise comparison of encodings matches
// the natural order of keys of the same type.
func EncodeKey(key any) ([]byte, error) {
	if key == nil {
		return nil, keyErrf("<nil>", nil, nil, "nil key")
	}
	if id, ok := key.(DocumentID); ok {
		return []byte(id), nil
	}
	return appendKey(nil, reflect.ValueOf(key))
}

// MustEncodeKey is EncodeKey for key types that are known to be supported.
func MustEncodeKey(key any) []byte {
	return must(EncodeKey(key))
}

func appendKey(buf []byte, v reflect.Value) ([]byte, error) {
	typ := v.Type()
	if typ.Implements(keyMarshalerType) {
		raw, err := v.Interface().(KeyMarshaler).MarshalKey()
		if err != nil {
			return nil, keyErrf(typ.String(), nil, err, "MarshalKey")
		}
		return append(buf, raw...), nil
	}
	switch typ {
	case timeType:
		return appendUint64(buf, uint64(v.Interface().(time.Time).UnixNano())^signBit), nil
	case unitType:
		return buf, nil
	}
	switch typ.Kind() {
	case reflect.String:
		return append(buf, v.String()...), nil
	case reflect.Bool:
		if v.Bool() {
			return append(buf, 1), nil
		}
		return append(buf, 0), nil
	case reflect.Uint, reflect.Uint64, reflect.Uint32, reflect.Uint16, reflect.Uint8, reflect.Uintptr:
		return appendUint64(buf, v.Uint()), nil
	case reflect.Int, reflect.Int64, reflect.Int32, reflect.Int16, reflect.Int8:
		return appendUint64(buf, uint64(v.Int())^signBit), nil
	case reflect.Float32, reflect.Float64:
		bits := math.Float64bits(v.Float())
		if bits&signBit != 0 {
			bits = ^bits
		} else {
			bits |= signBit
		}
		return appendUint64(buf, bits), nil
	case reflect.Slice:
		if typ.Elem() == byteType {
			return append(buf, v.Bytes()...), nil
		}
	case reflect.Array:
		if typ.Elem() == byteType {
			for i, n := 0, v.Len(); i < n; i++ {
				buf = append(buf, byte(v.Index(i).Uint()))
			}
			return buf, nil
		}
	case reflect.Ptr:
		if v.IsNil() {
			return nil, keyErrf(typ.String(), nil, nil, "nil pointer key")
		}
		return appendKey(buf, v.Elem())
	}
	return nil, keyErrf(typ.String(), nil, nil, "unsupported key type")
}

// convertKey converts v to typ when no information is lost: integers to
// integers that can hold the value, floats to floats, strings to and from
// byte slices, and between named types of the same kind.
func convertKey(v reflect.Value, typ reflect.Type) (reflect.Value, error) {
	src := v.Type()
	if !v.CanConvert(typ) {
		return v, fmt.Errorf("key must be %v, got %v", typ, src)
	}
	switch {
	case isIntKind(src.Kind()) && isIntKind(typ.Kind()):
		if typ.Kind() >= reflect.Int && typ.Kind() <= reflect.Int64 {
			if src.Kind() >= reflect.Uint {
				if v.Uint() > math.MaxInt64 || reflect.Zero(typ).OverflowInt(int64(v.Uint())) {
					return v, fmt.Errorf("key %d overflows %v", v.Uint(), typ)
				}
			} else if reflect.Zero(typ).OverflowInt(v.Int()) {
				return v, fmt.Errorf("key %d overflows %v", v.Int(), typ)
			}
		} else {
			if src.Kind() < reflect.Uint {
				if v.Int() < 0 {
					return v, fmt.Errorf("negative key %d for %v", v.Int(), typ)
				}
				if reflect.Zero(typ).OverflowUint(uint64(v.Int())) {
					return v, fmt.Errorf("key %d overflows %v", v.Int(), typ)
				}
			} else if reflect.Zero(typ).OverflowUint(v.Uint()) {
				return v, fmt.Errorf("key %d overflows %v", v.Uint(), typ)
			}
		}
	case isFloatKind(src.Kind()) && isFloatKind(typ.Kind()):
		if f := v.Float(); typ.Kind() == reflect.Float32 && float64(float32(f)) != f && !math.IsNaN(f) {
			return v, fmt.Errorf("key %v does not fit %v", f, typ)
		}
	case src.Kind() == reflect.String && typ.Kind() == reflect.String:
	case src.Kind() == reflect.String && typ.Kind() == reflect.Slice && typ.Elem().Kind() == reflect.Uint8:
	case src.Kind() == reflect.Slice && src.Elem().Kind() == reflect.Uint8 && typ.Kind() == reflect.String:
	case src.Kind() == typ.Kind() && !isIntKind(src.Kind()) && !isFloatKind(src.Kind()):
	default:
		return v, fmt.Errorf("key must be %v, got %v", typ, src)
	}
	return v.Convert(typ), nil
}

func isIntKind(k reflect.Kind) bool {
	return (k >= reflect.Int && k <= reflect.Int64) || (k >= reflect.Uint && k <= reflect.Uintptr)
}

func isFloatKind(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

// DecodeKey decodes a key produced by EncodeKey into dst, a non-nil pointer.
func DecodeKey(raw []byte, dst any) error {
	pv := reflect.ValueOf(dst)
	if pv.Kind() != reflect.Ptr || pv.IsNil() {
		panic(fmt.Errorf("DecodeKey: dst must be a non-nil pointer, got %T", dst))
	}
	if id, ok := dst.(*DocumentID); ok {
		*id = DocumentID(raw)
		return nil
	}
	return decodeKeyInto(raw, pv.Elem())
}

func decodeKeyInto(raw []byte, v reflect.Value) error {
	typ := v.Type()
	if reflect.PointerTo(typ).Implements(keyUnmarshalerType) {
		err := v.Addr().Interface().(KeyUnmarshaler).UnmarshalKey(raw)
		if err != nil {
			return keyErrf(typ.String(), raw, err, "UnmarshalKey")
		}
		return nil
	}
	switch typ {
	case timeType:
		u, err := keyUint64(typ, raw)
		if err != nil {
			return err
		}
		v.Set(reflect.ValueOf(time.Unix(0, int64(u^signBit))))
		return nil
	case unitType:
		if len(raw) != 0 {
			return keyErrf(typ.String(), raw, nil, "expected empty key")
		}
		return nil
	}
	switch typ.Kind() {
	case reflect.String:
		v.SetString(string(raw))
		return nil
	case reflect.Bool:
		if len(raw) != 1 || raw[0] > 1 {
			return keyErrf(typ.String(), raw, nil, "invalid bool")
		}
		v.SetBool(raw[0] == 1)
		return nil
	case reflect.Uint, reflect.Uint64, reflect.Uint32, reflect.Uint16, reflect.Uint8, reflect.Uintptr:
		u, err := keyUint64(typ, raw)
		if err != nil {
			return err
		}
		if v.OverflowUint(u) {
			return keyErrf(typ.String(), raw, nil, "value %d overflows", u)
		}
		v.SetUint(u)
		return nil
	case reflect.Int, reflect.Int64, reflect.Int32, reflect.Int16, reflect.Int8:
		u, err := keyUint64(typ, raw)
		if err != nil {
			return err
		}
		i := int64(u ^ signBit)
		if v.OverflowInt(i) {
			return keyErrf(typ.String(), raw, nil, "value %d overflows", i)
		}
		v.SetInt(i)
		return nil
	case reflect.Float32, reflect.Float64:
		bits, err := keyUint64(typ, raw)
		if err != nil {
			return err
		}
		if bits&signBit != 0 {
			bits &^= signBit
		} else {
			bits = ^bits
		}
		v.SetFloat(math.Float64frombits(bits))
		return nil
	case reflect.Slice:
		if typ.Elem() == byteType {
			v.Set(reflect.ValueOf(append([]byte(nil), raw...)).Convert(typ))
			return nil
		}
	case reflect.Array:
		if typ.Elem() == byteType {
			if len(raw) != v.Len() {
				return keyErrf(typ.String(), raw, nil, "got %d bytes, wanted %d", len(raw), v.Len())
			}
			for i, b := range raw {
				v.Index(i).SetUint(uint64(b))
			}
			return nil
		}
	case reflect.Ptr:
		if v.IsNil() {
			v.Set(reflect.New(typ.Elem()))
		}
		return decodeKeyInto(raw, v.Elem())
	}
	return keyErrf(typ.String(), raw, nil, "unsupported key type")
}

func keyUint64(typ reflect.Type, raw []byte) (uint64, error) {
	if len(raw) != 8 {
		return 0, keyErrf(typ.String(), raw, nil, "got %d bytes, wanted 8", len(raw))
	}
	return binary.BigEndian.Uint64(raw), nil
}

func appendUint64(buf []byte, v uint64) []byte {
	return binary.BigEndian.AppendUint64(buf, v)
}

func checkKeyType(typ reflect.Type) {
	zero := reflect.New(typ).Elem()
	if typ.Kind() == reflect.Ptr {
		return
	}
	if _, err := appendKey(nil, zero); err != nil {
		panic(fmt.Errorf("%v cannot be used as a key: %w", typ, err))
	}
}
