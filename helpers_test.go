package docdb

import (
	"encoding/hex"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func setup(t testing.TB) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	t.Logf("DB: %s", path)
	db := must(Open(path, Options{IsTesting: true}))
	t.Cleanup(func() { db.Close() })
	return db
}

func setupMem(t testing.TB) *DB {
	t.Helper()
	db := must(Open("", Options{}))
	t.Cleanup(func() { db.Close() })
	return db
}

func setupColl(t testing.TB, name string) *Collection {
	t.Helper()
	return must(setupMem(t).Collection(name))
}

func deepEqual[T any](t testing.TB, a, e T) {
	if !reflect.DeepEqual(a, e) {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
	}
}

func isempty[T any, S ~[]T](t testing.TB, a S) {
	if len(a) > 0 {
		t.Helper()
		t.Errorf("** got %v, wanted empty slice", a)
	}
}

func isnil[T any, P ~*T](t testing.TB, a P) {
	if a != nil {
		t.Helper()
		t.Errorf("** got %v, wanted nil", a)
	}
}

func x(data string) []byte {
	return must(hex.DecodeString(strings.ReplaceAll(data, " ", "")))
}

func findDocs(t testing.TB, c *Collection, filter Filter, opts ...FindOption) []*Document {
	t.Helper()
	cur, err := c.Find(filter, opts...)
	if err != nil {
		t.Fatalf("Find(%v) failed: %v", filter, err)
	}
	return must(cur.All())
}

// fieldOf returns the plain values of one field across documents.
func fieldOf(docs []*Document, field string) []any {
	out := make([]any, len(docs))
	for i, d := range docs {
		out[i] = d.Get(field).Interface()
	}
	return out
}

// userFields renders documents without metadata for structural diffs.
func userFields(docs []*Document) []map[string]any {
	out := make([]map[string]any, len(docs))
	for i, d := range docs {
		d = d.Clone()
		d.stripMeta()
		out[i] = docMap(d)
	}
	return out
}

func docMap(d *Document) map[string]any {
	m := make(map[string]any, d.Len())
	for _, k := range d.Keys() {
		m[k] = plain(d.Get(k))
	}
	return m
}

func plain(v Value) any {
	switch v.Kind() {
	case KindDocument:
		d, _ := v.AsDocument()
		return docMap(d)
	case KindArray:
		arr, _ := v.AsArray()
		out := make([]any, len(arr))
		for i, item := range arr {
			out[i] = plain(item)
		}
		return out
	default:
		return v.Interface()
	}
}

func docsEqual(t testing.TB, got []*Document, want ...*Document) {
	t.Helper()
	if diff := cmp.Diff(userFields(want), userFields(got)); diff != "" {
		t.Errorf("** documents mismatch (-want +got):\n%s", diff)
	}
}
