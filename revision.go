package docdb

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"
)

// Revision identifies one version of a document's contents: a lineage
// counter plus a fingerprint of the bytes. A revision carries no conflict
// detection of its own; writers present the revision they hold and the
// backend compares it with the stored one.
type Revision struct {
	ID          uint32   `msgpack:"i" json:"id"`
	Fingerprint [16]byte `msgpack:"f" json:"fingerprint"`
}

func fingerprint(contents []byte) [16]byte {
	h := xxh3.Hash128(contents)
	var fp [16]byte
	binary.BigEndian.PutUint64(fp[:8], h.Hi)
	binary.BigEndian.PutUint64(fp[8:], h.Lo)
	return fp
}

func InitialRevision(contents []byte) Revision {
	return Revision{ID: 0, Fingerprint: fingerprint(contents)}
}

// Next returns the revision that follows r once contents are stored.
// It returns false when contents are identical to what r already describes,
// in which case no write should happen.
func (r Revision) Next(contents []byte) (Revision, bool) {
	fp := fingerprint(contents)
	if fp == r.Fingerprint {
		return r, false
	}
	return Revision{ID: r.ID + 1, Fingerprint: fp}, true
}

func (r Revision) IsZero() bool {
	return r == Revision{}
}

func (r Revision) String() string {
	return strconv.FormatUint(uint64(r.ID), 10) + "-" + hex.EncodeToString(r.Fingerprint[:])
}

func ParseRevision(s string) (Revision, error) {
	idStr, fpStr, ok := strings.Cut(s, "-")
	if !ok {
		return Revision{}, fmt.Errorf("invalid revision %q", s)
	}
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		return Revision{}, fmt.Errorf("invalid revision %q: %w", s, err)
	}
	var r Revision
	r.ID = uint32(id)
	if len(fpStr) != 2*len(r.Fingerprint) {
		return Revision{}, fmt.Errorf("invalid revision fingerprint %q", s)
	}
	if _, err := hex.Decode(r.Fingerprint[:], []byte(fpStr)); err != nil {
		return Revision{}, fmt.Errorf("invalid revision fingerprint %q", s)
	}
	return r, nil
}
