package localdb

import (
	"bytes"

	"github.com/andreyvit/docdb"
)

// An index entry key is the escaped view key, a terminator, and the source
// document id. Zero bytes of the view key are escaped as 0x00 0xFF, so the
// terminator 0x00 0x01 sorts below any continuation of the key and
// entries order by view key first, then by id.
const (
	escByte  = 0xFF
	termByte = 0x01
	pastByte = 0x02
)

func appendEscaped(buf, key []byte) []byte {
	for {
		i := bytes.IndexByte(key, 0)
		if i < 0 {
			return append(buf, key...)
		}
		buf = append(buf, key[:i+1]...)
		buf = append(buf, escByte)
		key = key[i+1:]
	}
}

// indexKeyPrefix is the common prefix of every entry for key.
func indexKeyPrefix(key []byte) []byte {
	buf := appendEscaped(make([]byte, 0, len(key)+2), key)
	return append(buf, 0, termByte)
}

// indexKeyPast sorts after every entry for key and before any greater key.
func indexKeyPast(key []byte) []byte {
	buf := appendEscaped(make([]byte, 0, len(key)+2), key)
	return append(buf, 0, pastByte)
}

func indexKey(key []byte, id docdb.DocumentID) []byte {
	buf := appendEscaped(make([]byte, 0, len(key)+len(id)+2), key)
	buf = append(buf, 0, termByte)
	return append(buf, id...)
}

func decodeIndexKey(k []byte) (key []byte, id docdb.DocumentID, err error) {
	key = make([]byte, 0, len(k))
	rest := k
	for {
		i := bytes.IndexByte(rest, 0)
		if i < 0 || i+1 >= len(rest) {
			return nil, "", dataErrf(k, len(k)-len(rest), nil, "unterminated index key")
		}
		key = append(key, rest[:i]...)
		switch rest[i+1] {
		case escByte:
			key = append(key, 0)
			rest = rest[i+2:]
		case termByte:
			return key, docdb.DocumentIDFromBytes(rest[i+2:]), nil
		default:
			return nil, "", dataErrf(k, len(k)-len(rest)+i, nil, "invalid escape 0x%02x in index key", rest[i+1])
		}
	}
}

// indexRange translates a query over view keys into a scan over entry keys.
func indexRange(q docdb.ViewQuery) (rawRange, bool) {
	var r rawRange
	if q.HasKey {
		r.Prefix = indexKeyPrefix(q.Key)
	} else {
		if q.Range.IsEmpty() {
			return r, false
		}
		if lo := q.Range.Lower; lo != nil {
			r.LowerInc = true
			if q.Range.LowerInc {
				r.Lower = indexKeyPrefix(lo)
			} else {
				r.Lower = indexKeyPast(lo)
			}
		}
		if hi := q.Range.Upper; hi != nil {
			if q.Range.UpperInc {
				r.Upper = indexKeyPast(hi)
			} else {
				r.Upper = indexKeyPrefix(hi)
			}
		}
	}
	r.Reverse = q.Order == docdb.Descending
	return r, true
}
