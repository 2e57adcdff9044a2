package localdb

import (
	"encoding/binary"
	"math"
	"slices"
)

// ensureCapacity returns buf, reallocated if it cannot hold minCap bytes.
func ensureCapacity(buf []byte, minCap int) []byte {
	if cap(buf) >= minCap {
		return buf
	}
	return slices.Grow(buf, max(minCap, 16)-len(buf))
}

// grow extends buf by n bytes and returns the offset of the new bytes.
func grow(buf []byte, n int) (int, []byte) {
	off := len(buf)
	return off, ensureCapacity(buf, off+n)[:off+n]
}

func appendVarbytes(buf []byte, v []byte) []byte {
	return append(binary.AppendUvarint(buf, uint64(len(v))), v...)
}

func appendVarstring(buf []byte, s string) []byte {
	return append(binary.AppendUvarint(buf, uint64(len(s))), s...)
}

// byteDecoder reads uvarint-framed fields from a value, reporting offsets
// relative to the start of the value in errors.
type byteDecoder struct {
	orig []byte
	rest []byte
}

func makeByteDecoder(buf []byte) byteDecoder {
	return byteDecoder{orig: buf, rest: buf}
}

func (d *byteDecoder) Off() int {
	return len(d.orig) - len(d.rest)
}

func (d *byteDecoder) Done() bool {
	return len(d.rest) == 0
}

func (d *byteDecoder) Uvarint() (uint64, error) {
	v, n := binary.Uvarint(d.rest)
	if n <= 0 {
		return 0, dataErrf(d.orig, d.Off(), nil, "invalid uvarint")
	}
	d.rest = d.rest[n:]
	return v, nil
}

func (d *byteDecoder) Uvarinti() (int, error) {
	v, err := d.Uvarint()
	if err == nil && v > math.MaxInt {
		err = dataErrf(d.orig, d.Off(), nil, "length %d overflows int", v)
	}
	return int(v), err
}

func (d *byteDecoder) Raw(n int) ([]byte, error) {
	if n > len(d.rest) {
		return nil, dataErrf(d.orig, d.Off(), nil, "truncated: want %d bytes, have %d", n, len(d.rest))
	}
	v := d.rest[:n:n]
	d.rest = d.rest[n:]
	return v, nil
}

func (d *byteDecoder) VarBytes() ([]byte, error) {
	n, err := d.Uvarinti()
	if err != nil {
		return nil, err
	}
	return d.Raw(n)
}
