package docdb

import (
	"bytes"
	"cmp"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strings"
)

// Kind is the type tag of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindDocument
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindDocument:
		return "document"
	case KindArray:
		return "array"
	default:
		return fmt.Sprintf("invalid kind %d", int(k))
	}
}

func (k Kind) isNumber() bool {
	return k == KindInt || k == KindFloat
}

// Value is a closed tagged variant holding one document field value.
// The zero Value is Null.
type Value struct {
	kind Kind
	num  uint64 // bool, int64 bits or float64 bits
	str  string
	bin  []byte
	doc  *Document
	arr  []Value
}

func Null() Value               { return Value{} }
func Int(v int64) Value         { return Value{kind: KindInt, num: uint64(v)} }
func Float(v float64) Value     { return Value{kind: KindFloat, num: math.Float64bits(v)} }
func String(v string) Value     { return Value{kind: KindString, str: v} }
func Bytes(v []byte) Value      { return Value{kind: KindBytes, bin: v} }
func Array(items ...Value) Value { return Value{kind: KindArray, arr: items} }

func Bool(v bool) Value {
	if v {
		return Value{kind: KindBool, num: 1}
	}
	return Value{kind: KindBool}
}

// DocValue wraps a nested document. A nil document becomes Null.
func DocValue(d *Document) Value {
	if d == nil {
		return Value{}
	}
	return Value{kind: KindDocument, doc: d}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsBool() (bool, bool) {
	return v.num != 0, v.kind == KindBool
}

func (v Value) AsInt() (int64, bool) {
	return int64(v.num), v.kind == KindInt
}

// AsFloat returns the numeric value of both Int and Float values.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(int64(v.num)), true
	case KindFloat:
		return math.Float64frombits(v.num), true
	default:
		return 0, false
	}
}

func (v Value) AsString() (string, bool) {
	return v.str, v.kind == KindString
}

func (v Value) AsBytes() ([]byte, bool) {
	return v.bin, v.kind == KindBytes
}

func (v Value) AsDocument() (*Document, bool) {
	return v.doc, v.kind == KindDocument
}

func (v Value) AsArray() ([]Value, bool) {
	return v.arr, v.kind == KindArray
}

func (v Value) float() float64 {
	return math.Float64frombits(v.num)
}

// Interface converts the value back into plain Go values: nil, bool, int64,
// float64, string, []byte, *Document or []any.
func (v Value) Interface() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.num != 0
	case KindInt:
		return int64(v.num)
	case KindFloat:
		return v.float()
	case KindString:
		return v.str
	case KindBytes:
		return v.bin
	case KindDocument:
		return v.doc
	case KindArray:
		out := make([]any, len(v.arr))
		for i, item := range v.arr {
			out[i] = item.Interface()
		}
		return out
	default:
		panic("unreachable")
	}
}

func (v Value) String() string {
	var buf bytes.Buffer
	if err := appendValueJSON(&buf, v); err != nil {
		return fmt.Sprintf("<%s: %v>", v.kind, err)
	}
	return buf.String()
}

func (v Value) clone() Value {
	switch v.kind {
	case KindBytes:
		v.bin = slices.Clone(v.bin)
	case KindDocument:
		v.doc = v.doc.Clone()
	case KindArray:
		arr := make([]Value, len(v.arr))
		for i, item := range v.arr {
			arr[i] = item.clone()
		}
		v.arr = arr
	}
	return v
}

// ValueOf converts a Go value into a Value. Types that cannot be stored fail
// with ErrValidation.
func ValueOf(x any) (Value, error) {
	switch x := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, x.validate()
	case *Document:
		return DocValue(x), nil
	case bool:
		return Bool(x), nil
	case int:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case int32:
		return Int(int64(x)), nil
	case float64:
		if math.IsNaN(x) {
			return Null(), validationErrf("NaN cannot be stored")
		}
		return Float(x), nil
	case string:
		return String(x), nil
	case []byte:
		return Bytes(x), nil
	case []Value:
		for _, item := range x {
			if err := item.validate(); err != nil {
				return Null(), err
			}
		}
		return Array(x...), nil
	case []any:
		arr := make([]Value, len(x))
		for i, item := range x {
			v, err := ValueOf(item)
			if err != nil {
				return Null(), err
			}
			arr[i] = v
		}
		return Array(arr...), nil
	case map[string]any:
		d, err := DocumentFromMap(x)
		if err != nil {
			return Null(), err
		}
		return DocValue(d), nil
	}
	return reflectValueOf(reflect.ValueOf(x))
}

func reflectValueOf(rv reflect.Value) (Value, error) {
	switch rv.Kind() {
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return Null(), validationErrf("%d overflows int64", u)
		}
		return Int(int64(u)), nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) {
			return Null(), validationErrf("NaN cannot be stored")
		}
		return Float(f), nil
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 && rv.Kind() == reflect.Slice {
			return Bytes(rv.Bytes()), nil
		}
		arr := make([]Value, rv.Len())
		for i := range arr {
			v, err := reflectValueOf(rv.Index(i))
			if err != nil {
				return Null(), err
			}
			arr[i] = v
		}
		return Array(arr...), nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		keys := rv.MapKeys()
		slices.SortFunc(keys, func(a, b reflect.Value) int { return strings.Compare(a.String(), b.String()) })
		d := NewDocument()
		for _, k := range keys {
			v, err := reflectValueOf(rv.MapIndex(k))
			if err != nil {
				return Null(), err
			}
			if err := d.Put(k.String(), v); err != nil {
				return Null(), err
			}
		}
		return DocValue(d), nil
	case reflect.Interface, reflect.Pointer:
		if rv.IsNil() {
			return Null(), nil
		}
		if rv.Kind() == reflect.Interface {
			return ValueOf(rv.Elem().Interface())
		}
		if d, ok := rv.Interface().(*Document); ok {
			return DocValue(d), nil
		}
	case reflect.Invalid:
		return Null(), nil
	}
	return Null(), validationErrf("%s cannot be stored", rv.Type())
}

func (v Value) validate() error {
	switch v.kind {
	case KindFloat:
		if math.IsNaN(v.float()) {
			return validationErrf("NaN cannot be stored")
		}
	case KindArray:
		for _, item := range v.arr {
			if err := item.validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Equal reports structural equality. Int and Float values are equal when
// they denote the same number.
func Equal(a, b Value) bool {
	if a.kind.isNumber() && b.kind.isNumber() {
		return compareNumbers(a, b) == 0
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.num == b.num
	case KindString:
		return a.str == b.str
	case KindBytes:
		return bytes.Equal(a.bin, b.bin)
	case KindDocument:
		return a.doc.Equal(b.doc)
	case KindArray:
		return slices.EqualFunc(a.arr, b.arr, Equal)
	default:
		return false
	}
}

// Compare orders two scalar values. Numbers compare across Int and Float.
// Values of different kinds, documents and arrays are not comparable.
func Compare(a, b Value) (int, error) {
	if a.kind.isNumber() && b.kind.isNumber() {
		return compareNumbers(a, b), nil
	}
	if a.kind != b.kind {
		return 0, fmt.Errorf("%w: %s and %s", ErrComparison, a.kind, b.kind)
	}
	switch a.kind {
	case KindNull:
		return 0, nil
	case KindBool:
		return cmp.Compare(a.num, b.num), nil
	case KindString:
		return strings.Compare(a.str, b.str), nil
	case KindBytes:
		return bytes.Compare(a.bin, b.bin), nil
	default:
		return 0, fmt.Errorf("%w: %s values have no order", ErrComparison, a.kind)
	}
}

func compareNumbers(a, b Value) int {
	switch {
	case a.kind == KindInt && b.kind == KindInt:
		return cmp.Compare(int64(a.num), int64(b.num))
	case a.kind == KindFloat && b.kind == KindFloat:
		return cmp.Compare(a.float(), b.float())
	case a.kind == KindInt:
		return compareIntFloat(int64(a.num), b.float())
	default:
		return -compareIntFloat(int64(b.num), a.float())
	}
}

const two63 = 9223372036854775808.0

func compareIntFloat(i int64, f float64) int {
	fi := float64(i)
	if fi < f {
		return -1
	} else if fi > f {
		return 1
	}
	// fi == f, so f is integral and the float64 rounding of i may hide a difference
	if f >= two63 {
		return -1
	}
	return cmp.Compare(i, int64(f))
}

// isOrderable reports whether a value can be a comparable index key.
func (v Value) isOrderable() bool {
	return v.kind != KindDocument && v.kind != KindArray
}
