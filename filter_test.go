package docdb

import (
	"errors"
	"strings"
	"testing"
)

func TestFilterMatch(t *testing.T) {
	d := Doc(
		"name", "Alice",
		"age", 30,
		"score", 7.5,
		"active", true,
		"addr", map[string]any{"city": "Paris"},
		"tags", []any{"a", "b"},
		"marks", []any{3, 9, 12},
		"items", []any{
			map[string]any{"sku": "x", "qty": 2},
			map[string]any{"sku": "y", "qty": 8},
		},
		"bio", "Loves quick brown foxes",
	)
	ensure(d.Put(FieldID, "77"))

	tests := []struct {
		filter Filter
		match  bool
	}{
		{All(), true},
		{Eq("name", "Alice"), true},
		{Eq("age", 30.0), true},
		{Eq("missing", nil), true},
		{Eq("age", "30"), false},
		{Ne("name", "Bob"), true},
		{Gt("age", 29), true},
		{Gt("age", 30), false},
		{Gte("age", 30), true},
		{Lt("score", 8), true},
		{Lte("score", 7.5), true},
		{Gt("name", 5), false},
		{Gt("missing", 5), false},
		{Between("age", 30, 40, true, false), true},
		{Between("age", 30, 40, false, true), false},
		{Between("age", 20, 30, false, true), true},
		{In("name", "Bob", "Alice"), true},
		{In("name", "Bob"), false},
		{NotIn("name", "Bob"), true},
		{Regex("name", "^Al"), true},
		{Regex("age", "3"), false},
		{Eq("addr.city", "Paris"), true},
		{Eq("tags.1", "b"), true},
		{ElemMatch("marks", Gt(ElementFieldName, 10)), true},
		{ElemMatch("marks", Gt(ElementFieldName, 20)), false},
		{ElemMatch("items", And(Eq("sku", "y"), Gte("qty", 5))), true},
		{ElemMatch("items", And(Eq("sku", "x"), Gte("qty", 5))), false},
		{ElemMatch("name", Eq(ElementFieldName, "Alice")), false},
		{Where("age", func(v Value) bool { n, _ := v.AsInt(); return n%2 == 0 }), true},
		{ByID(77), true},
		{ByID(78), false},
		{And(Eq("active", true), Gt("age", 18)), true},
		{And(Eq("active", true), Gt("age", 40)), false},
		{Or(Eq("name", "Bob"), Eq("age", 30)), true},
		{Or(Eq("name", "Bob"), Eq("age", 31)), false},
		{Not(Eq("name", "Bob")), true},
		{Text("bio", "quick"), true},
		{Text("bio", "fox*"), true},
		{Text("bio", "slow"), false},
	}
	for _, tt := range tests {
		got, err := tt.filter.Match(d)
		if err != nil {
			t.Errorf("%v: failed: %v", tt.filter, err)
			continue
		}
		if got != tt.match {
			t.Errorf("%v = %v, wanted %v", tt.filter, got, tt.match)
		}
	}
}

func TestFilterInvalidArguments(t *testing.T) {
	d := Doc("a", 1)
	for _, f := range []Filter{
		Eq("a", make(chan int)),
		In("a", 1, func() {}),
		Between("a", 1, make(chan int), true, true),
		Regex("a", "("),
		Text("a", "*"),
	} {
		if _, err := f.Match(d); !errors.Is(err, ErrFilter) {
			t.Errorf("%v: err = %v, wanted ErrFilter", f, err)
		}
	}
}

func TestFilterOutOfRangePath(t *testing.T) {
	d := Doc("list", []any{1})
	_, err := Eq("list.3", 1).Match(d)
	if !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("err = %v, wanted ErrIndexOutOfRange", err)
	}
	_, err = Not(Eq("list.3", 1)).Match(d)
	if !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("Not: err = %v, wanted ErrIndexOutOfRange", err)
	}
}

func TestFilterString(t *testing.T) {
	s := And(Eq("a", 1), Or(Gt("b", "x"), Not(In("c", 1, 2)))).String()
	for _, part := range []string{"a", "==", "||", "&&", "!", "in"} {
		if !strings.Contains(s, part) {
			t.Errorf("String() = %q, wanted it to contain %q", s, part)
		}
	}
}

func TestFilterConstructorsPanic(t *testing.T) {
	mustPanic := func(name string, f func()) {
		t.Helper()
		defer func() {
			if recover() == nil {
				t.Errorf("%s did not panic", name)
			}
		}()
		f()
	}
	mustPanic("And()", func() { And() })
	mustPanic("Or(nil)", func() { Or(nil, nil) })
	mustPanic("Not(nil)", func() { Not(nil) })
	mustPanic("Where(nil)", func() { Where("a", nil) })
}
