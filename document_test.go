package docdb

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestDocumentPutGet(t *testing.T) {
	d := NewDocument()
	ensure(d.Put("name", "foo"))
	ensure(d.Put("address.city", "Paris"))
	ensure(d.Put("address.zip", 75001))

	deepEqual(t, d.Get("name").Interface(), any("foo"))
	deepEqual(t, d.Get("address.city").Interface(), any("Paris"))
	deepEqual(t, d.Get("address.zip").Interface(), any(int64(75001)))
	deepEqual(t, d.Get("address.missing").IsNull(), true)
	deepEqual(t, d.Get("name.sub").IsNull(), true)
	deepEqual(t, d.Keys(), []string{"name", "address"})
	deepEqual(t, d.Fields(), []string{"name", "address.city", "address.zip"})
}

func TestDocumentArrayPaths(t *testing.T) {
	d := Doc(
		"tags", []any{"a", "b"},
		"items", []any{
			map[string]any{"sku": "x1", "qty": 2, "labels": []any{"red", "big"}},
			map[string]any{"sku": "x2", "qty": 5, "labels": []any{"red"}},
			map[string]any{"qty": 1},
		},
	)

	deepEqual(t, d.Get("tags.1").Interface(), any("b"))
	deepEqual(t, d.Get("items.1.sku").Interface(), any("x2"))
	deepEqual(t, d.Get("items.sku").Interface(), any([]any{"x1", "x2"}))
	deepEqual(t, d.Get("items.labels").Interface(), any([]any{"red", "big"}))

	_, err := d.Lookup("tags.5")
	if !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("Lookup(tags.5) err = %v, wanted ErrIndexOutOfRange", err)
	}
	deepEqual(t, d.Get("tags.5").IsNull(), true)
	deepEqual(t, d.Contains("items.sku"), true)
	deepEqual(t, d.Contains("items.color"), false)
}

func TestDocumentPutIntoArray(t *testing.T) {
	d := Doc("items", []any{map[string]any{"a": 1}, 2})
	require.NoError(t, d.Put("items.0.a", 10))
	require.NoError(t, d.Put("items.1", "two"))
	deepEqual(t, d.Get("items.0.a").Interface(), any(int64(10)))
	deepEqual(t, d.Get("items.1").Interface(), any("two"))

	require.ErrorIs(t, d.Put("items.7", 1), ErrIndexOutOfRange)
	require.ErrorIs(t, d.Put("items.x", 1), ErrValidation)
	require.ErrorIs(t, d.Put("items.1.deeper", 1), ErrValidation)
	require.ErrorIs(t, d.Put("a..b", 1), ErrValidation)
	require.ErrorIs(t, d.Put("", 1), ErrValidation)
}

func TestDocumentRemove(t *testing.T) {
	d := Doc("a", 1, "b.c", 2, "list", []any{1, 2, 3})
	require.NoError(t, d.Remove("b.c"))
	deepEqual(t, d.Contains("b"), false)

	require.NoError(t, d.Remove("list.1"))
	deepEqual(t, d.Get("list").Interface(), any([]any{int64(1), int64(3)}))

	require.NoError(t, d.Remove("missing.deep"))
	require.NoError(t, d.Remove("a"))
	deepEqual(t, d.Keys(), []string{"list"})
}

func TestDocumentRemoveBelowScalarElement(t *testing.T) {
	d := Doc("a", []any{1, 2}, "nested", []any{[]any{1, 2}}, "docs", []any{map[string]any{"x": 1, "y": 2}})

	require.NoError(t, d.Remove("a.0.x"))
	deepEqual(t, d.Get("a").Interface(), any([]any{int64(1), int64(2)}))

	require.NoError(t, d.Remove("nested.0.1"))
	deepEqual(t, d.Get("nested").Interface(), any([]any{[]any{int64(1), int64(2)}}))

	require.NoError(t, d.Remove("docs.0.x"))
	deepEqual(t, d.Contains("docs.0.x"), false)
	deepEqual(t, d.Get("docs.0.y").Interface(), any(int64(2)))
}

func TestDocumentID(t *testing.T) {
	d := NewDocument()
	deepEqual(t, d.HasID(), false)
	deepEqual(t, d.ID(), ID(0))

	require.ErrorIs(t, d.Put(FieldID, 123), ErrInvalidID)
	require.ErrorIs(t, d.Put(FieldID, "-5"), ErrInvalidID)
	require.ErrorIs(t, d.Put(FieldID, "abc"), ErrInvalidID)

	require.NoError(t, d.Put(FieldID, "42"))
	deepEqual(t, d.ID(), ID(42))
	require.NoError(t, d.Put(FieldID, "42"))
	require.ErrorIs(t, d.Put(FieldID, "43"), ErrInvalidID)
}

func TestDocumentMerge(t *testing.T) {
	d := Doc("a", 1, "sub", map[string]any{"x": 1, "y": 2})
	require.NoError(t, d.Merge(Doc("b", 2, "sub", map[string]any{"y": 3, "z": 4})))
	want := map[string]any{
		"a":   int64(1),
		"b":   int64(2),
		"sub": map[string]any{"x": int64(1), "y": int64(3), "z": int64(4)},
	}
	if diff := cmp.Diff(want, docMap(d)); diff != "" {
		t.Errorf("** merge mismatch (-want +got):\n%s", diff)
	}
}

func TestDocumentCloneIsIndependent(t *testing.T) {
	d := Doc("sub", map[string]any{"x": 1}, "list", []any{1})
	c := d.Clone()
	ensure(d.Put("sub.x", 2))
	deepEqual(t, c.Get("sub.x").Interface(), any(int64(1)))
	deepEqual(t, c.Equal(d), false)
	ensure(d.Put("sub.x", 1))
	deepEqual(t, c.Equal(d), true)
}

func TestDocumentJSON(t *testing.T) {
	d := Doc("s", "x", "i", 1, "f", 1.5, "whole", 2.0, "n", nil, "b", true, "bin", []byte{1, 2, 3}, "arr", []any{1, "a"}, "sub", map[string]any{"k": "v"})
	raw := must(json.Marshal(d))
	deepEqual(t, string(raw), `{"s":"x","i":1,"f":1.5,"whole":2.0,"n":null,"b":true,"bin":{"$binary":"AQID"},"arr":[1,"a"],"sub":{"k":"v"}}`)

	var back Document
	require.NoError(t, json.Unmarshal(raw, &back))
	if !back.Equal(d) {
		t.Errorf("** got %v, wanted %v", &back, d)
	}
	deepEqual(t, back.Get("whole").Kind(), KindFloat)
	deepEqual(t, back.Get("i").Kind(), KindInt)
	deepEqual(t, back.Keys(), d.Keys())
}

func TestDocumentFromMapSortsKeys(t *testing.T) {
	d := must(DocumentFromMap(map[string]any{"b": 1, "a": 2, "c.d": 3}))
	deepEqual(t, d.Keys(), []string{"a", "b", "c"})
	deepEqual(t, d.Get("c.d").Interface(), any(int64(3)))
}
