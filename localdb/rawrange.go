package localdb

import (
	"bytes"
	"context"
	"log/slog"
)

const (
	debugLogRawScans = false
)

// rawRange is a range of byte strings within a bucket, optionally confined
// to a prefix. Lower and Upper must carry the prefix when both are set.
type rawRange struct {
	Prefix   []byte
	Lower    []byte
	Upper    []byte
	LowerInc bool
	UpperInc bool
	Reverse  bool
}

func rawPrefix(p []byte) rawRange            { return rawRange{Prefix: p} }
func (r rawRange) Reversed(rev bool) rawRange { r.Reverse = rev; return r }

func (r *rawRange) start(bcur storageCursor, logger *slog.Logger) ([]byte, []byte) {
	var k, v []byte
	var skipInitial bool
	if r.Reverse {
		if upper := r.Upper; upper != nil {
			k, v = bcur.Seek(upper)
			if k == nil {
				k, v = bcur.Last()
			} else if bytes.Compare(k, upper) > 0 {
				k, v = bcur.Prev()
			}
			skipInitial = !r.UpperInc && bytes.Equal(k, upper)
		} else if r.Prefix != nil {
			k, v = bcur.SeekLast(r.Prefix)
		} else {
			k, v = bcur.Last()
		}
	} else {
		lower := r.Lower
		if lower != nil {
			skipInitial = !r.LowerInc
		} else if r.Prefix != nil {
			lower = r.Prefix
		}
		if lower != nil {
			k, v = bcur.Seek(lower)
			if skipInitial && !bytes.Equal(k, lower) {
				skipInitial = false
			}
		} else {
			k, v = bcur.First()
		}
	}
	if debugLogRawScans {
		logger.LogAttrs(context.Background(), slog.LevelDebug, "scan start", hexAttr("lower", r.Lower), hexAttr("upper", r.Upper), hexAttr("key", k))
	}
	if k == nil || !r.match(k, logger) {
		return nil, nil
	}
	if skipInitial {
		return r.next(bcur, logger)
	}
	return k, v
}

func (r *rawRange) next(bcur storageCursor, logger *slog.Logger) ([]byte, []byte) {
	var k, v []byte
	if r.Reverse {
		k, v = bcur.Prev()
	} else {
		k, v = bcur.Next()
	}
	if k != nil && r.match(k, logger) {
		return k, v
	}
	return nil, nil
}

func (r *rawRange) match(k []byte, logger *slog.Logger) bool {
	if r.Prefix != nil && !bytes.HasPrefix(k, r.Prefix) {
		if debugLogRawScans {
			logger.LogAttrs(context.Background(), slog.LevelDebug, "BAIL on prefix", hexAttr("prefix", r.Prefix), hexAttr("key", k))
		}
		return false
	}
	if r.Reverse {
		if lower := r.Lower; lower != nil {
			cmp := bytes.Compare(k, lower)
			if cmp == -1 || (cmp == 0 && !r.LowerInc) {
				return false
			}
		}
	} else {
		if upper := r.Upper; upper != nil {
			cmp := bytes.Compare(k, upper)
			if cmp == 1 || (cmp == 0 && !r.UpperInc) {
				return false
			}
		}
	}
	return true
}

func (r rawRange) newCursor(bcur storageCursor, logger *slog.Logger) *rawRangeCursor {
	return &rawRangeCursor{rang: r, bcur: bcur, logger: logger}
}

type rawRangeCursor struct {
	rang   rawRange
	bcur   storageCursor
	logger *slog.Logger
	k, v   []byte
	init   bool
}

func (c *rawRangeCursor) Next() bool {
	if c.init {
		c.k, c.v = c.rang.next(c.bcur, c.logger)
	} else {
		c.init = true
		c.k, c.v = c.rang.start(c.bcur, c.logger)
	}
	return c.k != nil
}

func (c *rawRangeCursor) Key() []byte   { return c.k }
func (c *rawRangeCursor) Value() []byte { return c.v }
