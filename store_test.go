package docdb

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"
)

func storeBackends(t *testing.T, f func(t *testing.T, s *store)) {
	t.Run("mem", func(t *testing.T) {
		s := newMemStore(nil)
		t.Cleanup(func() { s.Close() })
		f(t, s)
	})
	t.Run("bolt", func(t *testing.T) {
		bdb := must(bbolt.Open(filepath.Join(t.TempDir(), "store.db"), 0666, &bbolt.Options{NoSync: true}))
		s := newStore(newBoltStorage(bdb), nil)
		t.Cleanup(func() { s.Close() })
		f(t, s)
	})
}

func fill(t testing.TB, s *store, name string, keys ...string) {
	t.Helper()
	require.NoError(t, s.Update(func(tx *storeTx) error {
		m := tx.Map(name)
		for _, k := range keys {
			if err := m.Put(x(k), []byte("v"+k)); err != nil {
				return err
			}
		}
		return nil
	}))
}

func scanKeys(s *store, name string, rang RawRange) string {
	var out []string
	_ = s.View(func(tx *storeTx) error {
		tx.Map(name).Scan(rang, func(k, _ []byte) bool {
			out = append(out, hexstr(k))
			return true
		})
		return nil
	})
	return strings.Join(out, " ")
}

func TestStoreBasics(t *testing.T) {
	storeBackends(t, func(t *testing.T, s *store) {
		deepEqual(t, s.HasMap("m"), false)
		fill(t, s, "m", "02", "01", "03")
		deepEqual(t, s.HasMap("m"), true)
		deepEqual(t, s.MapNames(), []string{"m"})

		require.NoError(t, s.View(func(tx *storeTx) error {
			m := tx.Map("m")
			deepEqual(t, string(m.Get(x("01"))), "v01")
			deepEqual(t, m.Get(x("09")) == nil, true)
			deepEqual(t, m.Has(x("02")), true)
			deepEqual(t, m.Has(x("0200")), false)
			deepEqual(t, m.Size(), 3)
			deepEqual(t, tx.Map("missing").Size(), 0)
			deepEqual(t, tx.Map("missing").Exists(), false)
			return nil
		}))

		require.NoError(t, s.Update(func(tx *storeTx) error {
			return tx.Map("m").Remove(x("02"))
		}))
		deepEqual(t, scanKeys(s, "m", RawOO()), "01 03")

		require.NoError(t, s.Update(func(tx *storeTx) error {
			return tx.Map("m").Clear()
		}))
		deepEqual(t, scanKeys(s, "m", RawOO()), "")
		deepEqual(t, s.HasMap("m"), true)

		require.NoError(t, s.RemoveMap("m"))
		deepEqual(t, s.HasMap("m"), false)
		require.NoError(t, s.RemoveMap("m"))
	})
}

func TestStoreUpdateRollsBack(t *testing.T) {
	storeBackends(t, func(t *testing.T, s *store) {
		fill(t, s, "m", "01")
		boom := errors.New("boom")
		err := s.Update(func(tx *storeTx) error {
			ensure(tx.Map("m").Put(x("02"), nil))
			ensure(tx.Map("other").Put(x("01"), nil))
			return boom
		})
		require.ErrorIs(t, err, boom)
		deepEqual(t, scanKeys(s, "m", RawOO()), "01")
		deepEqual(t, s.HasMap("other"), false)

		err = s.Update(func(tx *storeTx) error {
			ensure(tx.Map("m").Put(x("03"), nil))
			panic("kaboom")
		})
		var p panicked
		require.ErrorAs(t, err, &p)
		require.Contains(t, err.Error(), "kaboom")
		deepEqual(t, scanKeys(s, "m", RawOO()), "01")
	})
}

func TestStoreScanRanges(t *testing.T) {
	storeBackends(t, func(t *testing.T, s *store) {
		fill(t, s, "m", "01", "0201", "0202", "0203", "03", "04")

		t.Run("full scan", func(t *testing.T) {
			deepEqual(t, scanKeys(s, "m", RawOO()), "01 0201 0202 0203 03 04")
			deepEqual(t, scanKeys(s, "m", RawOO().Reversed()), "04 03 0203 0202 0201 01")
		})
		t.Run("prefix", func(t *testing.T) {
			deepEqual(t, scanKeys(s, "m", RawPrefix(x("02"))), "0201 0202 0203")
			deepEqual(t, scanKeys(s, "m", RawPrefix(x("02")).Reversed()), "0203 0202 0201")
			deepEqual(t, scanKeys(s, "m", RawPrefix(x("05"))), "")
			deepEqual(t, scanKeys(s, "m", RawPrefix(x("05")).Reversed()), "")
		})
		t.Run("bounds", func(t *testing.T) {
			deepEqual(t, scanKeys(s, "m", RawIO(x("0202"))), "0202 0203 03 04")
			deepEqual(t, scanKeys(s, "m", RawEO(x("0202"))), "0203 03 04")
			deepEqual(t, scanKeys(s, "m", RawRange{Upper: x("0202"), UpperInc: true}), "01 0201 0202")
			deepEqual(t, scanKeys(s, "m", RawRange{Upper: x("0202")}), "01 0201")
			deepEqual(t, scanKeys(s, "m", RawIE(x("0201"), x("03"))), "0201 0202 0203")
			deepEqual(t, scanKeys(s, "m", RawRange{Lower: x("0201"), Upper: x("03"), UpperInc: true}), "0202 0203 03")
		})
		t.Run("reverse bounds", func(t *testing.T) {
			deepEqual(t, scanKeys(s, "m", RawRange{Upper: x("0202"), UpperInc: true}.Reversed()), "0202 0201 01")
			deepEqual(t, scanKeys(s, "m", RawRange{Upper: x("0202")}.Reversed()), "0201 01")
			deepEqual(t, scanKeys(s, "m", RawRange{Upper: x("05")}.Reversed()), "04 03 0203 0202 0201 01")
			deepEqual(t, scanKeys(s, "m", RawRange{Lower: x("01"), Upper: x("03")}.Reversed()), "0203 0202 0201")
			deepEqual(t, scanKeys(s, "m", RawIE(x("01"), x("03")).Reversed()), "0203 0202 0201 01")
		})
		t.Run("prefix with bounds", func(t *testing.T) {
			deepEqual(t, scanKeys(s, "m", RawIO(x("0202")).Prefixed(x("02"))), "0202 0203")
			deepEqual(t, scanKeys(s, "m", RawIE(x("00"), x("0203")).Prefixed(x("02"))), "0201 0202")
			deepEqual(t, scanKeys(s, "m", RawIO(x("00")).Prefixed(x("02"))), "0201 0202 0203")
			deepEqual(t, scanKeys(s, "m", RawIE(x("00"), x("09")).Prefixed(x("02")).Reversed()), "0203 0202 0201")
		})
	})
}

func TestStoreNavigation(t *testing.T) {
	storeBackends(t, func(t *testing.T, s *store) {
		fill(t, s, "m", "10", "20", "30")
		require.NoError(t, s.View(func(tx *storeTx) error {
			m := tx.Map("m")
			deepEqual(t, m.HigherKey(x("10")), x("20"))
			deepEqual(t, m.CeilingKey(x("10")), x("10"))
			deepEqual(t, m.CeilingKey(x("15")), x("20"))
			deepEqual(t, m.CeilingKey(x("00")), x("10"))
			deepEqual(t, m.HigherKey(x("30")) == nil, true)
			deepEqual(t, tx.Map("missing").CeilingKey(x("00")) == nil, true)
			return nil
		}))
	})
}

func TestStoreSnapshotIsPrivate(t *testing.T) {
	storeBackends(t, func(t *testing.T, s *store) {
		fill(t, s, "a", "01", "02")
		fill(t, s, "b", "01")
		snap := must(s.snapshot([]string{"a", "missing"}))
		defer snap.Close()

		deepEqual(t, snap.MapNames(), []string{"a"})
		fill(t, snap, "a", "03")
		fill(t, s, "a", "04")
		deepEqual(t, scanKeys(snap, "a", RawOO()), "01 02 03")
		deepEqual(t, scanKeys(s, "a", RawOO()), "01 02 04")
	})
}

func TestStoreClosed(t *testing.T) {
	s := newMemStore(nil)
	require.NoError(t, s.Close())
	require.ErrorIs(t, s.View(func(*storeTx) error { return nil }), ErrClosed)
	require.ErrorIs(t, s.Update(func(*storeTx) error { return nil }), ErrClosed)
	require.NoError(t, s.Close())
}

func TestMemStorageIsolation(t *testing.T) {
	s := newMemStore(nil)
	defer s.Close()
	fill(t, s, "m", "01")

	// a reader keeps seeing the data it started with
	stx := must(s.st.BeginTx(false))
	defer stx.Rollback()
	fill(t, s, "m", "02")
	deepEqual(t, stx.Bucket("m").KeyCount(), 1)
	deepEqual(t, scanKeys(s, "m", RawOO()), "01 02")
}
