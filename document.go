package docdb

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Reserved document fields.
const (
	FieldID       = "_id"
	FieldRevision = "_revision"
	FieldSource   = "_source"
	FieldModified = "_modified"

	// FieldSeparator splits embedded field paths like "address.city" or "tags.0".
	FieldSeparator = "."
)

func isReservedField(name string) bool {
	switch name {
	case FieldID, FieldRevision, FieldSource, FieldModified:
		return true
	default:
		return false
	}
}

// Document is an ordered, mutable, nested record. Use NewDocument,
// DocumentFromMap or Doc to create one. Documents are not safe for
// concurrent mutation.
type Document struct {
	keys []string
	vals map[string]Value
}

func NewDocument() *Document {
	return &Document{vals: make(map[string]Value)}
}

// DocumentFromMap builds a document out of a map. Keys are added in sorted
// order, dotted keys create embedded documents.
func DocumentFromMap(m map[string]any) (*Document, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	d := NewDocument()
	for _, k := range keys {
		if err := d.Put(k, m[k]); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Doc builds a document out of alternating keys and values, and panics if
// they cannot be stored. Meant for literals in code and tests.
func Doc(kv ...any) *Document {
	if len(kv)%2 != 0 {
		panic("docdb.Doc: odd number of arguments")
	}
	d := NewDocument()
	for i := 0; i < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			panic(fmt.Errorf("docdb.Doc: key %d is %T, not a string", i/2, kv[i]))
		}
		ensure(d.Put(k, kv[i+1]))
	}
	return d
}

func (d *Document) Len() int {
	if d == nil {
		return 0
	}
	return len(d.keys)
}

// Keys returns the top-level field names in insertion order.
func (d *Document) Keys() []string {
	if d == nil {
		return nil
	}
	return slices.Clone(d.keys)
}

// Get returns the value at the given path, or Null if there is none.
func (d *Document) Get(path string) Value {
	v, err := d.Lookup(path)
	if err != nil {
		return Null()
	}
	return v
}

// Lookup is Get that reports out-of-range array indices as
// ErrIndexOutOfRange instead of returning Null.
func (d *Document) Lookup(path string) (Value, error) {
	if d == nil {
		return Null(), nil
	}
	if v, ok := d.vals[path]; ok {
		return v, nil
	}
	if !strings.Contains(path, FieldSeparator) {
		return Null(), nil
	}
	return lookupPath(DocValue(d), strings.Split(path, FieldSeparator))
}

func lookupPath(cur Value, segs []string) (Value, error) {
	for i, seg := range segs {
		switch cur.kind {
		case KindDocument:
			v, ok := cur.doc.vals[seg]
			if !ok {
				return Null(), nil
			}
			cur = v
		case KindArray:
			idx, isIndex := parseIndex(seg)
			if !isIndex {
				return decompose(cur.arr, segs[i:])
			}
			if idx < 0 || idx >= len(cur.arr) {
				return Null(), fmt.Errorf("%w: index %s is not less than the size %d", ErrIndexOutOfRange, seg, len(cur.arr))
			}
			cur = cur.arr[idx]
		default:
			return Null(), nil
		}
	}
	return cur, nil
}

// decompose applies the remaining path to every element and collects the
// distinct non-null results, flattening arrays.
func decompose(items []Value, segs []string) (Value, error) {
	var out []Value
	add := func(v Value) {
		if !slices.ContainsFunc(out, func(o Value) bool { return Equal(o, v) }) {
			out = append(out, v)
		}
	}
	for _, item := range items {
		v, err := lookupPath(item, segs)
		if err != nil {
			return Null(), err
		}
		if v.IsNull() {
			continue
		}
		if arr, ok := v.AsArray(); ok {
			for _, a := range arr {
				add(a)
			}
		} else {
			add(v)
		}
	}
	return Array(out...), nil
}

func parseIndex(seg string) (int, bool) {
	n, err := strconv.Atoi(seg)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Contains reports whether the path resolves to an existing field.
func (d *Document) Contains(path string) bool {
	if d == nil {
		return false
	}
	if _, ok := d.vals[path]; ok {
		return true
	}
	segs := strings.Split(path, FieldSeparator)
	cur := d
	for i, seg := range segs {
		v, ok := cur.vals[seg]
		if !ok {
			return false
		}
		if i == len(segs)-1 {
			return true
		}
		switch v.kind {
		case KindDocument:
			cur = v.doc
		case KindArray:
			got, err := lookupPath(v, segs[i+1:])
			if arr, ok := got.AsArray(); ok && len(arr) == 0 {
				return false
			}
			return err == nil && !got.IsNull()
		default:
			return false
		}
	}
	return false
}

// Put stores a value at the given path, creating intermediate documents.
// The value can be a Value or anything accepted by ValueOf.
func (d *Document) Put(path string, x any) error {
	v, err := ValueOf(x)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if path == "" {
		return validationErrf("field name cannot be empty")
	}
	if path == FieldID {
		return d.putID(v)
	}
	if !strings.Contains(path, FieldSeparator) {
		d.set(path, v)
		return nil
	}
	segs := strings.Split(path, FieldSeparator)
	if slices.Contains(segs, "") {
		return validationErrf("invalid field path %q", path)
	}
	return d.deepPut(segs, v)
}

func (d *Document) putID(v Value) error {
	s, ok := v.AsString()
	if !ok {
		return fmt.Errorf("%w: %s is not an id string", ErrInvalidID, v)
	}
	id, err := ParseID(s)
	if err != nil {
		return err
	}
	if old, ok := d.vals[FieldID]; ok && old.str != s {
		return fmt.Errorf("%w: %s cannot be changed to %v", ErrInvalidID, old.str, id)
	}
	d.set(FieldID, v)
	return nil
}

func (d *Document) set(key string, v Value) {
	if _, ok := d.vals[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.vals[key] = v
}

func (d *Document) deepPut(segs []string, v Value) error {
	key := segs[0]
	if len(segs) == 1 {
		d.set(key, v)
		return nil
	}
	cur, ok := d.vals[key]
	switch {
	case !ok || cur.IsNull():
		sub := NewDocument()
		if err := sub.deepPut(segs[1:], v); err != nil {
			return err
		}
		d.set(key, DocValue(sub))
		return nil
	case cur.kind == KindDocument:
		return cur.doc.deepPut(segs[1:], v)
	case cur.kind == KindArray:
		idx, isIndex := parseIndex(segs[1])
		if !isIndex {
			return validationErrf("cannot put %q into array field %q", segs[1], key)
		}
		if idx < 0 || idx >= len(cur.arr) {
			return fmt.Errorf("%w: index %d is not less than the size %d", ErrIndexOutOfRange, idx, len(cur.arr))
		}
		if len(segs) == 2 {
			cur.arr[idx] = v
			return nil
		}
		elem, ok := cur.arr[idx].AsDocument()
		if !ok {
			return validationErrf("cannot descend into %s element %s.%d", cur.arr[idx].kind, key, idx)
		}
		return elem.deepPut(segs[2:], v)
	default:
		return validationErrf("cannot descend into %s field %q", cur.kind, key)
	}
}

// Remove deletes the field at the given path. An embedded document left
// empty by the removal is removed from its parent too.
func (d *Document) Remove(path string) error {
	if path == "" {
		return validationErrf("field name cannot be empty")
	}
	if _, ok := d.vals[path]; ok || !strings.Contains(path, FieldSeparator) {
		d.delete(path)
		return nil
	}
	return d.deepRemove(strings.Split(path, FieldSeparator))
}

func (d *Document) delete(key string) {
	if _, ok := d.vals[key]; !ok {
		return
	}
	delete(d.vals, key)
	d.keys = slices.DeleteFunc(d.keys, func(k string) bool { return k == key })
}

func (d *Document) deepRemove(segs []string) error {
	key := segs[0]
	if len(segs) == 1 {
		d.delete(key)
		return nil
	}
	cur, ok := d.vals[key]
	if !ok {
		return nil
	}
	switch cur.kind {
	case KindDocument:
		if err := cur.doc.deepRemove(segs[1:]); err != nil {
			return err
		}
		if cur.doc.Len() == 0 {
			d.delete(key)
		}
	case KindArray:
		idx, isIndex := parseIndex(segs[1])
		if !isIndex {
			return nil
		}
		if idx < 0 || idx >= len(cur.arr) {
			return fmt.Errorf("%w: index %d is not less than the size %d", ErrIndexOutOfRange, idx, len(cur.arr))
		}
		if len(segs) > 2 {
			if elem, ok := cur.arr[idx].AsDocument(); ok {
				return elem.deepRemove(segs[2:])
			}
			return nil
		}
		d.vals[key] = Array(slices.Delete(slices.Clone(cur.arr), idx, idx+1)...)
	}
	return nil
}

// Merge copies the fields of other into d. Embedded documents are merged
// recursively, everything else is overwritten.
func (d *Document) Merge(other *Document) error {
	if other == nil {
		return nil
	}
	for _, k := range other.keys {
		v := other.vals[k]
		if sub, ok := v.AsDocument(); ok {
			if mine, ok := d.vals[k].AsDocument(); ok {
				if err := mine.Merge(sub); err != nil {
					return err
				}
				continue
			}
			v = DocValue(sub.Clone())
		} else {
			v = v.clone()
		}
		if k == FieldID {
			if err := d.putID(v); err != nil {
				return err
			}
			continue
		}
		d.set(k, v)
	}
	return nil
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := &Document{
		keys: slices.Clone(d.keys),
		vals: make(map[string]Value, len(d.vals)),
	}
	for k, v := range d.vals {
		out.vals[k] = v.clone()
	}
	return out
}

// Fields returns the paths of all user fields, descending into embedded
// documents. Reserved fields and array-valued fields are skipped.
func (d *Document) Fields() []string {
	var out []string
	d.appendFields(&out, "")
	return out
}

func (d *Document) appendFields(out *[]string, prefix string) {
	if d == nil {
		return
	}
	for _, k := range d.keys {
		if isReservedField(k) {
			continue
		}
		name := k
		if prefix != "" {
			name = prefix + FieldSeparator + k
		}
		v := d.vals[k]
		switch v.kind {
		case KindDocument:
			v.doc.appendFields(out, name)
		case KindArray:
		default:
			*out = append(*out, name)
		}
	}
}

// Equal reports whether both documents hold equal fields, ignoring order.
func (d *Document) Equal(other *Document) bool {
	if d == other {
		return true
	}
	if d.Len() != other.Len() {
		return false
	}
	if d.Len() == 0 {
		return true
	}
	for k, v := range d.vals {
		ov, ok := other.vals[k]
		if !ok || !Equal(v, ov) {
			return false
		}
	}
	return true
}

func (d *Document) HasID() bool {
	if d == nil {
		return false
	}
	_, ok := d.vals[FieldID]
	return ok
}

// ID returns the document id, or 0 if the document has none.
func (d *Document) ID() ID {
	if d == nil {
		return 0
	}
	s, ok := d.vals[FieldID].AsString()
	if !ok {
		return 0
	}
	id, err := ParseID(s)
	if err != nil {
		return 0
	}
	return id
}

func (d *Document) Revision() int64 {
	n, _ := d.Get(FieldRevision).AsInt()
	return n
}

func (d *Document) Source() string {
	s, _ := d.Get(FieldSource).AsString()
	return s
}

// LastModified returns the time of the last write, or zero time.
func (d *Document) LastModified() time.Time {
	ms, ok := d.Get(FieldModified).AsInt()
	if !ok {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func (d *Document) setID(id ID) {
	d.set(FieldID, String(id.String()))
}

func (d *Document) stripMeta() {
	d.delete(FieldID)
	d.delete(FieldRevision)
	d.delete(FieldModified)
}

func (d *Document) String() string {
	if d == nil {
		return "null"
	}
	data, err := d.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<document: %v>", err)
	}
	return string(data)
}
