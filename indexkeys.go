package docdb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Index keys are order-preserving byte strings: comparing two encoded keys
// with bytes.Compare orders them the same way Compare orders the values.
// Each value starts with a type tag, so values of different kinds occupy
// disjoint key ranges. Every encoding is self-delimiting, which lets
// compound keys be plain concatenations and makes an encoded value a
// usable scan prefix.
const (
	keyTagNull   byte = 0x10
	keyTagBool   byte = 0x20
	keyTagNumber byte = 0x30
	keyTagString byte = 0x40
	keyTagBytes  byte = 0x50
)

const (
	keyEscape     byte = 0x00
	keyEscapedNul byte = 0xFF
	keyTerminator byte = 0x01
)

func appendKeyValue(buf []byte, v Value) ([]byte, error) {
	switch v.kind {
	case KindNull:
		return append(buf, keyTagNull), nil
	case KindBool:
		return append(buf, keyTagBool, byte(v.num)), nil
	case KindInt:
		i := int64(v.num)
		return appendKeyNumber(buf, float64(i), 0, i), nil
	case KindFloat:
		f := v.float()
		if f == 0 {
			f = 0 // -0 sorts and compares as 0
		}
		switch {
		case f >= two63:
			return appendKeyNumber(buf, f, 1, 0), nil
		case f >= -two63 && f == math.Trunc(f):
			return appendKeyNumber(buf, f, 0, int64(f)), nil
		default:
			return appendKeyNumber(buf, f, 0, 0), nil
		}
	case KindString:
		return appendKeyString(buf, keyTagString, v.str), nil
	case KindBytes:
		return appendKeyString(buf, keyTagBytes, string(v.bin)), nil
	default:
		return nil, fmt.Errorf("%s values cannot be used as index keys", v.kind)
	}
}

// appendKeyNumber orders by float value first; the integer part breaks
// ties between int64 values that round to the same float64.
func appendKeyNumber(buf []byte, f float64, marker byte, i int64) []byte {
	bits := math.Float64bits(f)
	if bits>>63 == 1 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	buf = append(buf, keyTagNumber)
	buf = binary.BigEndian.AppendUint64(buf, bits)
	buf = append(buf, marker)
	return binary.BigEndian.AppendUint64(buf, uint64(i)^(1<<63))
}

func appendKeyString(buf []byte, tag byte, s string) []byte {
	buf = appendKeyStringPrefix(buf, tag, s)
	return append(buf, keyEscape, keyTerminator)
}

// appendKeyStringPrefix encodes s without the terminator, producing a
// prefix of the keys of every string starting with s.
func appendKeyStringPrefix(buf []byte, tag byte, s string) []byte {
	buf = append(buf, tag)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == keyEscape {
			buf = append(buf, keyEscape, keyEscapedNul)
		} else {
			buf = append(buf, c)
		}
	}
	return buf
}

// decodeKeyString decodes a string or bytes component and returns the rest
// of the key.
func decodeKeyString(key []byte) (string, []byte, error) {
	if len(key) == 0 || (key[0] != keyTagString && key[0] != keyTagBytes) {
		return "", nil, dataErrf(key, 0, nil, "not a string key")
	}
	var out []byte
	for i := 1; i < len(key); i++ {
		c := key[i]
		if c != keyEscape {
			out = append(out, c)
			continue
		}
		if i+1 >= len(key) {
			break
		}
		switch key[i+1] {
		case keyTerminator:
			return string(out), key[i+2:], nil
		case keyEscapedNul:
			out = append(out, 0)
			i++
		default:
			return "", nil, dataErrf(key, i, nil, "invalid escape in string key")
		}
	}
	return "", nil, dataErrf(key, len(key), errShortBuffer, "unterminated string key")
}

// encodeIndexKey encodes the values of a (possibly compound) index key.
func encodeIndexKey(vals []Value) ([]byte, error) {
	var buf []byte
	for _, v := range vals {
		var err error
		buf, err = appendKeyValue(buf, v)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// indexEntryKey appends the document id, making every entry of an index
// unique even when several documents share a value.
func indexEntryKey(valueKey []byte, id ID) []byte {
	out := make([]byte, 0, len(valueKey)+8)
	out = append(out, valueKey...)
	return binary.BigEndian.AppendUint64(out, uint64(id))
}

// successor returns the smallest key greater than every key prefixed by k,
// or nil if there is none.
func successor(k []byte) []byte {
	n := len(k)
	for n > 0 && k[n-1] == 0xFF {
		n--
	}
	out := bytes.Clone(k[:n])
	if !inc(out) {
		return nil
	}
	return out
}

// kindKeyRange returns the key range occupied by all values of v's kind.
func kindKeyRange(v Value) (lower, upper []byte) {
	var tag byte
	switch v.kind {
	case KindNull:
		tag = keyTagNull
	case KindBool:
		tag = keyTagBool
	case KindInt, KindFloat:
		tag = keyTagNumber
	case KindString:
		tag = keyTagString
	case KindBytes:
		tag = keyTagBytes
	}
	return []byte{tag}, []byte{tag + 1}
}
