package docdb

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

type encodingMethod int

const (
	MsgPack encodingMethod = iota
	JSON

	defaultValueEncoding = MsgPack
)

func (enc encodingMethod) String() string {
	switch enc {
	case MsgPack:
		return "msgpack"
	case JSON:
		return "json"
	default:
		return fmt.Sprintf("encoding(%d)", int(enc))
	}
}

func (enc encodingMethod) encodeDocument(buf []byte, d *Document) ([]byte, error) {
	switch enc {
	case MsgPack:
		bb := bytesBuilder{buf}
		e := msgpack.GetEncoder()
		e.Reset(&bb)
		err := encodeMsgpackDocument(e, d)
		msgpack.PutEncoder(e)
		if err != nil {
			return nil, fmt.Errorf("failed to encode document using MsgPack: %w", err)
		}
		return bb.Buf, nil
	case JSON:
		raw, err := d.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("failed to encode document to JSON: %w", err)
		}
		return appendRaw(buf, raw), nil
	default:
		panic("unsupported encoding")
	}
}

func (enc encodingMethod) decodeDocument(buf []byte) (*Document, error) {
	switch enc {
	case MsgPack:
		var r bytes.Reader
		r.Reset(buf)
		dec := msgpack.GetDecoder()
		dec.Reset(&r)
		d, err := decodeMsgpackDocument(dec)
		msgpack.PutDecoder(dec)
		if err != nil {
			return nil, dataErrf(buf, 0, err, "failed to decode msgpack document")
		}
		return d, nil
	case JSON:
		d := NewDocument()
		if err := d.UnmarshalJSON(buf); err != nil {
			return nil, dataErrf(buf, 0, err, "failed to decode JSON document")
		}
		return d, nil
	default:
		panic("unsupported encoding")
	}
}

var (
	_ msgpack.CustomEncoder = (*Document)(nil)
	_ msgpack.CustomDecoder = (*Document)(nil)
)

// EncodeMsgpack writes the document as a msgpack map in field order.
func (d *Document) EncodeMsgpack(enc *msgpack.Encoder) error {
	return encodeMsgpackDocument(enc, d)
}

func (d *Document) DecodeMsgpack(dec *msgpack.Decoder) error {
	doc, err := decodeMsgpackDocument(dec)
	if err != nil {
		return err
	}
	*d = *doc
	return nil
}

func encodeMsgpackDocument(enc *msgpack.Encoder, d *Document) error {
	if d == nil {
		return enc.EncodeNil()
	}
	if err := enc.EncodeMapLen(len(d.keys)); err != nil {
		return err
	}
	for _, k := range d.keys {
		if err := enc.EncodeString(k); err != nil {
			return err
		}
		if err := encodeMsgpackValue(enc, d.vals[k]); err != nil {
			return err
		}
	}
	return nil
}

func encodeMsgpackValue(enc *msgpack.Encoder, v Value) error {
	switch v.kind {
	case KindNull:
		return enc.EncodeNil()
	case KindBool:
		return enc.EncodeBool(v.num != 0)
	case KindInt:
		return enc.EncodeInt(int64(v.num))
	case KindFloat:
		return enc.EncodeFloat64(v.float())
	case KindString:
		return enc.EncodeString(v.str)
	case KindBytes:
		return enc.EncodeBytes(v.bin)
	case KindDocument:
		return encodeMsgpackDocument(enc, v.doc)
	case KindArray:
		if err := enc.EncodeArrayLen(len(v.arr)); err != nil {
			return err
		}
		for _, item := range v.arr {
			if err := encodeMsgpackValue(enc, item); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("invalid value kind %d", v.kind)
	}
}

func decodeMsgpackDocument(dec *msgpack.Decoder) (*Document, error) {
	n, err := dec.DecodeMapLen()
	if err != nil {
		return nil, err
	}
	d := &Document{vals: make(map[string]Value, max(n, 0))}
	for i := 0; i < n; i++ {
		k, err := dec.DecodeString()
		if err != nil {
			return nil, err
		}
		v, err := decodeMsgpackValue(dec)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		d.set(k, v)
	}
	return d, nil
}

func decodeMsgpackValue(dec *msgpack.Decoder) (Value, error) {
	c, err := dec.PeekCode()
	if err != nil {
		return Null(), err
	}
	switch {
	case c == msgpcode.Nil:
		return Null(), dec.DecodeNil()
	case c == msgpcode.False || c == msgpcode.True:
		b, err := dec.DecodeBool()
		return Bool(b), err
	case c == msgpcode.Float || c == msgpcode.Double:
		f, err := dec.DecodeFloat64()
		return Float(f), err
	case msgpcode.IsFixedNum(c) || (c >= msgpcode.Uint8 && c <= msgpcode.Int64):
		n, err := dec.DecodeInt64()
		return Int(n), err
	case msgpcode.IsString(c):
		s, err := dec.DecodeString()
		return String(s), err
	case msgpcode.IsBin(c):
		b, err := dec.DecodeBytes()
		return Bytes(b), err
	case msgpcode.IsFixedMap(c) || c == msgpcode.Map16 || c == msgpcode.Map32:
		d, err := decodeMsgpackDocument(dec)
		if err != nil {
			return Null(), err
		}
		return DocValue(d), nil
	case msgpcode.IsFixedArray(c) || c == msgpcode.Array16 || c == msgpcode.Array32:
		n, err := dec.DecodeArrayLen()
		if err != nil {
			return Null(), err
		}
		arr := make([]Value, 0, max(n, 0))
		for i := 0; i < n; i++ {
			v, err := decodeMsgpackValue(dec)
			if err != nil {
				return Null(), err
			}
			arr = append(arr, v)
		}
		return Array(arr...), nil
	default:
		return Null(), fmt.Errorf("unsupported msgpack code %x", c)
	}
}
