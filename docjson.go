package docdb

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// binaryJSONKey marks a bytes value in the JSON form of a document.
const binaryJSONKey = "$binary"

// MarshalJSON renders the document as a JSON object, keeping field order.
// Floats always carry a fraction or exponent so that they read back as
// floats, bytes are rendered as {"$binary": "<base64>"}.
func (d *Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := appendDocumentJSON(&buf, d); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func appendDocumentJSON(buf *bytes.Buffer, d *Document) error {
	buf.WriteByte('{')
	for i, k := range d.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		appendJSONString(buf, k)
		buf.WriteByte(':')
		if err := appendValueJSON(buf, d.vals[k]); err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

func appendValueJSON(buf *bytes.Buffer, v Value) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.num != 0))
	case KindInt:
		buf.WriteString(strconv.FormatInt(int64(v.num), 10))
	case KindFloat:
		f := v.float()
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return fmt.Errorf("%v has no JSON representation", f)
		}
		s := strconv.FormatFloat(f, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		buf.WriteString(s)
	case KindString:
		appendJSONString(buf, v.str)
	case KindBytes:
		buf.WriteString(`{"` + binaryJSONKey + `":"`)
		buf.WriteString(base64.StdEncoding.EncodeToString(v.bin))
		buf.WriteString(`"}`)
	case KindDocument:
		return appendDocumentJSON(buf, v.doc)
	case KindArray:
		buf.WriteByte('[')
		for i, item := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := appendValueJSON(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	}
	return nil
}

func appendJSONString(buf *bytes.Buffer, s string) {
	raw, _ := json.Marshal(s)
	buf.Write(raw)
}

func (d *Document) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok != json.Delim('{') {
		return fmt.Errorf("document JSON must be an object, got %v", tok)
	}
	doc, err := decodeJSONObject(dec)
	if err != nil {
		return err
	}
	*d = *doc
	return nil
}

func decodeJSONObject(dec *json.Decoder) (*Document, error) {
	d := NewDocument()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("invalid object key %v", tok)
		}
		v, err := decodeJSONValue(dec)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		d.set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return d, nil
}

func decodeJSONValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Null(), err
	}
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		s := t.String()
		if !strings.ContainsAny(s, ".eE") {
			if n, err := t.Int64(); err == nil {
				return Int(n), nil
			}
		}
		f, err := t.Float64()
		if err != nil {
			return Null(), err
		}
		return Float(f), nil
	case json.Delim:
		switch t {
		case '{':
			sub, err := decodeJSONObject(dec)
			if err != nil {
				return Null(), err
			}
			if sub.Len() == 1 {
				if s, ok := sub.vals[binaryJSONKey].AsString(); ok {
					raw, err := base64.StdEncoding.DecodeString(s)
					if err != nil {
						return Null(), err
					}
					return Bytes(raw), nil
				}
			}
			return DocValue(sub), nil
		case '[':
			var arr []Value
			for dec.More() {
				v, err := decodeJSONValue(dec)
				if err != nil {
					return Null(), err
				}
				arr = append(arr, v)
			}
			if _, err := dec.Token(); err != nil {
				return Null(), err
			}
			return Array(arr...), nil
		}
	}
	return Null(), fmt.Errorf("unexpected JSON token %v", tok)
}
