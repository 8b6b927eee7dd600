package docdb

import (
	"fmt"
	"strings"
)

type DumpFlags uint64

const (
	DumpCollectionHeaders = DumpFlags(1 << iota)
	DumpDocuments
	DumpStats
	DumpIndices
	DumpIndexEntries

	DumpAll = DumpFlags(0xFFFFFFFFFFFFFFFF)

	indentStep = "  "
)

var (
	dumpSep1 = strings.Repeat("=", 80)
	dumpSep2 = strings.Repeat("-", 60)
)

func (f DumpFlags) Contains(v DumpFlags) bool {
	return (f & v) == v
}

// Dump renders the contents of every collection for debugging and tests.
func (db *DB) Dump(f DumpFlags) string {
	var buf strings.Builder
	for _, name := range db.ListCollections() {
		c, err := db.Collection(name)
		if err != nil {
			fmt.Fprintf(&buf, "%s ** ERROR: %v\n", name, err)
			continue
		}
		c.dump(&buf, f)
	}
	return buf.String()
}

func (c *Collection) Dump(f DumpFlags) string {
	var buf strings.Builder
	c.dump(&buf, f)
	return buf.String()
}

func (c *Collection) dump(w *strings.Builder, f DumpFlags) {
	if err := c.lockRead(); err != nil {
		fmt.Fprintf(w, "%s ** ERROR: %v\n", c.name, err)
		return
	}
	defer c.rw.RUnlock()
	_ = c.st.View(func(tx *storeTx) error {
		c.dumpIn(w, tx, f)
		return nil
	})
}

func (c *Collection) dumpIn(w *strings.Builder, tx *storeTx, f DumpFlags) {
	prefix := c.name
	s := c.statsIn(tx)

	if f.Contains(DumpCollectionHeaders) {
		fmt.Fprintln(w, dumpSep1)
		fmt.Fprintf(w, "%s (%d documents)\n", prefix, s.Documents)
	}
	if f.Contains(DumpStats) {
		fmt.Fprintf(w, "%s.stats: index_entries = %d, data_size = %d, data_alloc = %d, index_size = %d, index_alloc = %d, total_alloc = %d\n", prefix, s.IndexEntries, s.DataSize, s.DataAlloc, s.IndexSize, s.IndexAlloc, s.TotalAlloc())
	}

	if f.Contains(DumpDocuments) {
		if f.Contains(DumpStats) {
			fmt.Fprintln(w, dumpSep2)
		}
		var pos int
		tx.Map(c.name).Scan(RawOO(), func(k, v []byte) bool {
			pos++
			d, err := decodeStoredDocument(v)
			if err != nil {
				fmt.Fprintf(w, "%s.%d = (%s) ** ERROR: %v\n", prefix, pos, idFromKey(k), err)
				return true
			}
			fmt.Fprintf(w, "%s.%d = (r%d) %s\n", prefix, pos, d.Revision(), d)
			return true
		})
	}

	if f.Contains(DumpIndices) {
		for _, desc := range c.catalog.list() {
			dumpIndex(w, tx, prefix, f, desc)
		}
	}
}

func dumpIndex(w *strings.Builder, tx *storeTx, prefix string, f DumpFlags, desc *IndexDescriptor) {
	fmt.Fprintln(w, dumpSep2)
	prefix = prefix + ".i." + fieldsKey(desc.Fields)
	fmt.Fprintf(w, "%s (%s)%s\n", prefix, desc.Kind, map[bool]string{false: "", true: " PENDING"}[desc.Dirty])

	if f.Contains(DumpIndexEntries) {
		var pos int
		tx.Map(desc.MapName).Scan(RawOO(), func(k, _ []byte) bool {
			pos++
			if len(k) < 8 {
				fmt.Fprintf(w, "%s.%d: ** ERROR: short key %s\n", prefix, pos, hexstr(k))
				return true
			}
			fmt.Fprintf(w, "%s.%d: %v => %s\n", prefix, pos, hexBytes(k[:len(k)-8]), idFromKey(k))
			return true
		})
	}
}
