package localdb

import (
	"encoding/binary"
	"fmt"

	"github.com/andreyvit/docdb"
)

// A stored document is a header followed by the contents and by the list
// of view keys the document was indexed under:
//
//	uvarint flags
//	uvarint revision id
//	uvarint data size
//	uvarint index size
//	[16]byte fingerprint
//	data (maybe compressed)
//	index: repeated (varbytes view name, varbytes view key)
const (
	valueFormatVer1 = 1
)

type valueFlags uint64

const (
	vfVerBit0 = valueFlags(1 << iota)
	vfVerBit1
	vfVerBit2
	vfVerBit3
	vfCompressionBit0
	vfCompressionBit1

	vfVerMask         = (vfVerBit0 | vfVerBit1 | vfVerBit2 | vfVerBit3)
	vfVer1            = vfVerBit0
	vfCompressionMask = (vfCompressionBit0 | vfCompressionBit1)
	vfCompressionBits = 4
	vfSupportedMask   = (vfVer1 | vfCompressionMask)

	fingerprintSize    = 16
	minValueSize       = 4 + fingerprintSize
	maxValueHeaderSize = binary.MaxVarintLen64*4 + fingerprintSize
)

func (vf valueFlags) ver() valueFlags {
	return vf & vfVerMask
}

func (vf valueFlags) compression() Compression {
	return Compression((vf & vfCompressionMask) >> vfCompressionBits)
}

func flagsFor(c Compression) valueFlags {
	return vfVer1 | valueFlags(c)<<vfCompressionBits
}

type value struct {
	Flags    valueFlags
	Revision docdb.Revision
	Data     []byte
	Index    []byte
}

type indexEntry struct {
	View string
	Key  []byte
}

func reserveValueHeader(buf []byte) []byte {
	if len(buf) != 0 {
		panic("value must be written to an empty buffer")
	}
	return ensureCapacity(buf, maxValueHeaderSize)[:maxValueHeaderSize]
}

func putValueHeader(buf []byte, flags valueFlags, rev docdb.Revision, indexOff int) []byte {
	if indexOff > len(buf) {
		panic(fmt.Errorf("invalid indexOff=%d", indexOff))
	}
	if (flags &^ vfSupportedMask) != 0 {
		panic(fmt.Errorf("invalid flags %x", flags))
	}
	dataSize := indexOff - maxValueHeaderSize
	indexSize := len(buf) - indexOff

	var off int
	off += binary.PutUvarint(buf[off:], uint64(flags))
	off += binary.PutUvarint(buf[off:], uint64(rev.ID))
	off += binary.PutUvarint(buf[off:], uint64(dataSize))
	off += binary.PutUvarint(buf[off:], uint64(indexSize))
	off += copy(buf[off:], rev.Fingerprint[:])
	headerSize := off
	if headerSize < maxValueHeaderSize {
		// move the header closer to data
		start := maxValueHeaderSize - headerSize
		copy(buf[start:maxValueHeaderSize], buf[:headerSize])
		return buf[start:]
	}
	return buf
}

// encodeValue appends contents, compressing them with c when they are at
// least threshold bytes long.
func encodeValue(buf []byte, rev docdb.Revision, contents []byte, index []indexEntry, c Compression, threshold int) ([]byte, error) {
	if len(contents) < threshold {
		c = NoCompression
	}
	buf = reserveValueHeader(buf)
	var err error
	buf, err = compress(c, buf, contents)
	if err != nil {
		return nil, err
	}
	indexOff := len(buf)
	for _, e := range index {
		buf = appendVarstring(buf, e.View)
		buf = appendVarbytes(buf, e.Key)
	}
	return putValueHeader(buf, flagsFor(c), rev, indexOff), nil
}

func (vle *value) decode(data []byte) error {
	if len(data) < minValueSize {
		return dataErrf(data, 0, nil, "invalid value: at least %d bytes required", minValueSize)
	}
	d := makeByteDecoder(data)

	v, err := d.Uvarint()
	if err != nil {
		return err
	}
	if (v &^ uint64(vfSupportedMask)) != 0 {
		return dataErrf(data, d.Off(), nil, "invalid value: unsupported flags %x", v)
	}
	vle.Flags = valueFlags(v)
	if vle.Flags.ver() != vfVer1 {
		return dataErrf(data, d.Off(), nil, "invalid value: unsupported version %d", vle.Flags.ver())
	}
	if vle.Flags.compression() >= compressionCount {
		return dataErrf(data, d.Off(), nil, "invalid value: unknown compression %d", vle.Flags.compression())
	}

	v, err = d.Uvarint()
	if err != nil {
		return err
	}
	if v > uint64(^uint32(0)) {
		return dataErrf(data, d.Off(), nil, "invalid value: revision %d out of range", v)
	}
	vle.Revision.ID = uint32(v)

	dataSize, err := d.Uvarinti()
	if err != nil {
		return err
	}
	indexSize, err := d.Uvarinti()
	if err != nil {
		return err
	}
	fp, err := d.Raw(fingerprintSize)
	if err != nil {
		return err
	}
	copy(vle.Revision.Fingerprint[:], fp)

	if len(d.rest) != dataSize+indexSize {
		return dataErrf(data, d.Off(), nil, "invalid value: got %d bytes for data+index, expected %d bytes", len(d.rest), dataSize+indexSize)
	}
	vle.Data, vle.Index = d.rest[:dataSize], d.rest[dataSize:]
	return nil
}

func decodeValue(data []byte) (value, error) {
	var vle value
	err := vle.decode(data)
	return vle, err
}

func (vle *value) contents() ([]byte, error) {
	c := vle.Flags.compression()
	raw, err := decompress(c, vle.Data)
	if err != nil {
		return nil, dataErrf(vle.Data, 0, err, "cannot decompress %v data", c)
	}
	return raw, nil
}

func (vle *value) indexEntries() ([]indexEntry, error) {
	var result []indexEntry
	d := makeByteDecoder(vle.Index)
	for !d.Done() {
		view, err := d.VarBytes()
		if err != nil {
			return nil, err
		}
		key, err := d.VarBytes()
		if err != nil {
			return nil, err
		}
		result = append(result, indexEntry{string(view), key})
	}
	return result, nil
}
