package docdb

import (
	"bytes"
	"math"
	"testing"
)

func TestKeyOrderMatchesCompare(t *testing.T) {
	groups := [][]Value{
		{Int(math.MinInt64), Float(-1e300), Int(-5), Float(-4.5), Int(-1), Float(-0.25), Int(0), Float(0.5), Int(1), Float(1.25), Int(1 << 53), Int(1<<53 + 1), Int(math.MaxInt64), Float(1e19), Float(math.Inf(1))},
		{String(""), String("\x00"), String("\x00\x00"), String("\x01"), String("a"), String("a\x00"), String("a\x00b"), String("aa"), String("b"), String("ü")},
		{Bytes(nil), Bytes([]byte{0}), Bytes([]byte{0, 1}), Bytes([]byte{1})},
		{Bool(false), Bool(true)},
	}
	for _, vals := range groups {
		for i := range vals {
			for j := range vals {
				ki := must(appendKeyValue(nil, vals[i]))
				kj := must(appendKeyValue(nil, vals[j]))
				want := must(Compare(vals[i], vals[j]))
				if got := bytes.Compare(ki, kj); got != want {
					t.Errorf("key order of %v vs %v = %d, wanted %d (%x vs %x)", vals[i], vals[j], got, want, ki, kj)
				}
			}
		}
	}
}

func TestKeyEqualNumbers(t *testing.T) {
	deepEqual(t, must(appendKeyValue(nil, Int(3))), must(appendKeyValue(nil, Float(3))))
	deepEqual(t, must(appendKeyValue(nil, Float(0))), must(appendKeyValue(nil, Float(math.Copysign(0, -1)))))
}

func TestKeyKindsAreDisjoint(t *testing.T) {
	ordered := []Value{Null(), Bool(true), Int(math.MaxInt64), String(""), Bytes(nil)}
	for i := 1; i < len(ordered); i++ {
		a := must(appendKeyValue(nil, ordered[i-1]))
		b := must(appendKeyValue(nil, ordered[i]))
		if bytes.Compare(a, b) >= 0 {
			t.Errorf("%v key %x not below %v key %x", ordered[i-1], a, ordered[i], b)
		}
		lo, hi := kindKeyRange(ordered[i])
		if bytes.Compare(b, lo) < 0 || bytes.Compare(b, hi) >= 0 {
			t.Errorf("%v key %x outside its kind range [%x, %x)", ordered[i], b, lo, hi)
		}
	}
}

func TestKeyRejectsContainers(t *testing.T) {
	if _, err := appendKeyValue(nil, Array(Int(1))); err == nil {
		t.Errorf("appendKeyValue(array) succeeded, wanted failure")
	}
	if _, err := appendKeyValue(nil, DocValue(Doc("a", 1))); err == nil {
		t.Errorf("appendKeyValue(document) succeeded, wanted failure")
	}
}

func TestKeyStringRoundTrip(t *testing.T) {
	for _, s := range []string{"", "abc", "a\x00b", "\x00", "\x00\x01", "日本"} {
		k := appendKeyString(nil, keyTagString, s)
		k = append(k, 0xAA)
		got, rest, err := decodeKeyString(k)
		if err != nil {
			t.Errorf("decodeKeyString(%x) failed: %v", k, err)
			continue
		}
		deepEqual(t, got, s)
		deepEqual(t, rest, []byte{0xAA})
	}

	_, _, err := decodeKeyString(x("40 61 62"))
	if err == nil {
		t.Errorf("decodeKeyString(unterminated) succeeded, wanted failure")
	}
	_, _, err = decodeKeyString(x("30 00"))
	if err == nil {
		t.Errorf("decodeKeyString(number) succeeded, wanted failure")
	}
}

func TestKeyStringPrefix(t *testing.T) {
	prefix := appendKeyStringPrefix(nil, keyTagString, "ab")
	for _, s := range []string{"ab", "abc", "ab\x00"} {
		if !bytes.HasPrefix(appendKeyString(nil, keyTagString, s), prefix) {
			t.Errorf("key of %q does not start with prefix of %q", s, "ab")
		}
	}
	if bytes.HasPrefix(appendKeyString(nil, keyTagString, "a"), prefix) {
		t.Errorf("key of %q starts with prefix of %q", "a", "ab")
	}
}

func TestIndexEntryKey(t *testing.T) {
	vk := must(encodeIndexKey([]Value{String("x"), Int(1)}))
	k := indexEntryKey(vk, 0x0102)
	deepEqual(t, idFromKey(k), ID(0x0102))
	deepEqual(t, k[:len(k)-8], vk)
}

func TestSuccessor(t *testing.T) {
	deepEqual(t, successor(x("01 02")), x("01 03"))
	deepEqual(t, successor(x("01 ff")), x("02"))
	deepEqual(t, successor(x("01 ff ff")), x("02"))
	if s := successor(x("ff ff")); s != nil {
		t.Errorf("successor(ffff) = %x, wanted nil", s)
	}
	if s := successor(nil); s != nil {
		t.Errorf("successor(nil) = %x, wanted nil", s)
	}
}
