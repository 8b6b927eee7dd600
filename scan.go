package docdb

import (
	"bytes"
	"context"
	"log/slog"
)

const (
	debugLogRawScans = false
)

// RawRange defines a range of byte strings. The constructors use mnemonics:
// O means open, I means inclusive, E means exclusive; the first letter is for
// the lower bound, the second for the upper bound.
type RawRange struct {
	Prefix   []byte
	Lower    []byte
	Upper    []byte
	LowerInc bool
	UpperInc bool
	Reverse  bool
}

func RawOO() RawRange         { return RawRange{} }
func RawIO(l []byte) RawRange { return RawRange{Lower: l, LowerInc: true} }
func RawEO(l []byte) RawRange { return RawRange{Lower: l, LowerInc: false} }
func RawIE(l, u []byte) RawRange {
	return RawRange{Lower: l, Upper: u, LowerInc: true, UpperInc: false}
}
func RawPrefix(p []byte) RawRange                { return RawRange{Prefix: p} }
func (rang RawRange) Prefixed(p []byte) RawRange { rang.Prefix = p; return rang }
func (rang RawRange) Reversed() RawRange         { rang.Reverse = true; return rang }

func (r *RawRange) start(bcur storageCursor, logger *slog.Logger) ([]byte, []byte) {
	var k, v []byte
	if r.Reverse {
		switch {
		case r.Upper != nil:
			k, v = bcur.Seek(r.Upper)
			if k == nil {
				k, v = bcur.Last()
			} else if !r.UpperInc || !bytes.Equal(k, r.Upper) {
				k, v = bcur.Prev()
			}
			if r.Prefix != nil && k != nil && bytes.Compare(k, r.Prefix) > 0 && !bytes.HasPrefix(k, r.Prefix) {
				k, v = bcur.SeekLast(r.Prefix)
			}
		case r.Prefix != nil:
			k, v = bcur.SeekLast(r.Prefix)
		default:
			k, v = bcur.Last()
		}
		if debugLogRawScans {
			logger.LogAttrs(context.Background(), slog.LevelDebug, "reverse scan start", hexAttr("upper", r.Upper), hexAttr("key", k))
		}
	} else {
		lower, exclusive := r.Lower, !r.LowerInc
		if lower == nil || (r.Prefix != nil && bytes.Compare(lower, r.Prefix) < 0) {
			lower, exclusive = r.Prefix, false
		}
		if lower != nil {
			k, v = bcur.Seek(lower)
			if k != nil && exclusive && bytes.Equal(k, lower) {
				k, v = bcur.Next()
			}
		} else {
			k, v = bcur.First()
		}
		if debugLogRawScans {
			logger.LogAttrs(context.Background(), slog.LevelDebug, "scan start", hexAttr("lower", lower), hexAttr("key", k))
		}
	}
	if k != nil && r.match(k, logger) {
		return k, v
	}
	return nil, nil
}

func (r *RawRange) next(bcur storageCursor, logger *slog.Logger) ([]byte, []byte) {
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

// match checks the bound the scan is moving towards. The other bound is
// satisfied by where the scan started.
func (r *RawRange) match(k []byte, logger *slog.Logger) bool {
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

func (rang *RawRange) newCursor(bcur storageCursor, logger *slog.Logger) *RawRangeCursor {
	return &RawRangeCursor{rang: *rang, bcur: bcur, logger: logger}
}

// RawRangeCursor walks the keys of a bucket that fall into a RawRange.
type RawRangeCursor struct {
	rang   RawRange
	bcur   storageCursor
	logger *slog.Logger
	k, v   []byte
	init   bool
}

func (c *RawRangeCursor) Next() bool {
	if c.init {
		c.k, c.v = c.rang.next(c.bcur, c.logger)
	} else {
		c.init = true
		c.k, c.v = c.rang.start(c.bcur, c.logger)
	}
	return c.k != nil
}

func (c *RawRangeCursor) Key() []byte   { return c.k }
func (c *RawRangeCursor) Value() []byte { return c.v }
