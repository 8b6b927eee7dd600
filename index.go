package docdb

import (
	"bytes"
	"slices"
)

// indexValues returns the values a document contributes to a comparable
// index, one per indexed field. Missing fields index as Null.
func indexValues(desc *IndexDescriptor, d *Document) ([]Value, error) {
	vals := make([]Value, len(desc.Fields))
	for i, field := range desc.Fields {
		v, err := d.Lookup(field)
		if err != nil {
			return nil, collErrf(desc.Collection, desc.Fields, d.ID(), ErrIndexing, "%s: %v", field, err)
		}
		if !v.isOrderable() && !v.IsNull() {
			return nil, collErrf(desc.Collection, desc.Fields, d.ID(), ErrIndexing, "cannot index %s value of field %s", v.Kind(), field)
		}
		vals[i] = v
	}
	return vals, nil
}

// indexKeysOf returns the entry keys the document occupies in the index.
func indexKeysOf(desc *IndexDescriptor, d *Document) ([][]byte, error) {
	id := d.ID()
	if desc.Kind == Fulltext {
		v, err := d.Lookup(desc.Fields[0])
		if err != nil {
			return nil, collErrf(desc.Collection, desc.Fields, id, ErrIndexing, "%v", err)
		}
		if v.IsNull() {
			return nil, nil
		}
		s, ok := v.AsString()
		if !ok {
			return nil, collErrf(desc.Collection, desc.Fields, id, ErrIndexing, "full-text index requires a string, got %s", v.Kind())
		}
		tokens := tokenize(s)
		keys := make([][]byte, 0, len(tokens))
		for _, token := range tokens {
			keys = append(keys, indexEntryKey(appendKeyString(nil, keyTagString, token), id))
		}
		return keys, nil
	}

	vals, err := indexValues(desc, d)
	if err != nil {
		return nil, err
	}
	valueKey, err := encodeIndexKey(vals)
	if err != nil {
		return nil, collErrf(desc.Collection, desc.Fields, id, ErrIndexing, "%v", err)
	}
	return [][]byte{indexEntryKey(valueKey, id)}, nil
}

// uniqueEnforced reports whether the index entry takes part in uniqueness
// checks. Documents missing every indexed field do not.
func uniqueEnforced(d *Document, desc *IndexDescriptor) bool {
	for _, field := range desc.Fields {
		if !d.Get(field).IsNull() {
			return true
		}
	}
	return false
}

// updateIndex moves a document's entries in one index from old to nd.
// Either may be nil (insert or removal).
func updateIndex(tx *storeTx, desc *IndexDescriptor, old, nd *Document) error {
	var oldKeys, newKeys [][]byte
	var err error
	if old != nil {
		oldKeys, err = indexKeysOf(desc, old)
		if err != nil {
			// an unindexable old document has no entries to remove
			oldKeys = nil
		}
	}
	if nd != nil {
		newKeys, err = indexKeysOf(desc, nd)
		if err != nil {
			return err
		}
	}

	m := tx.Map(desc.MapName)
	for _, k := range oldKeys {
		if !containsKey(newKeys, k) {
			if err := m.Remove(k); err != nil {
				return err
			}
		}
	}
	if nd == nil {
		return nil
	}
	if desc.Kind == Unique && len(newKeys) > 0 && uniqueEnforced(nd, desc) {
		k := newKeys[0]
		valueKey := k[:len(k)-8]
		id := nd.ID()
		var dup ID
		for ek := m.CeilingKey(valueKey); ek != nil && bytes.HasPrefix(ek, valueKey); ek = m.HigherKey(ek) {
			if len(ek) != len(k) {
				continue
			}
			if other := idFromKey(ek); other != id {
				dup = other
				break
			}
		}
		if dup != 0 {
			return collErrf(desc.Collection, desc.Fields, id, ErrUniqueConstraint, "value already used by document %s", dup)
		}
	}
	for _, k := range newKeys {
		if !containsKey(oldKeys, k) {
			if err := m.Put(k, emptyIndexValue); err != nil {
				return err
			}
		}
	}
	return nil
}

func containsKey(keys [][]byte, k []byte) bool {
	return slices.ContainsFunc(keys, func(x []byte) bool { return bytes.Equal(x, k) })
}

// scanIndexIDs returns the ids of entries within the ranges, in range order.
// With reverse set, ranges and entries within them are walked backwards.
func scanIndexIDs(tx *storeTx, desc *IndexDescriptor, ranges []RawRange, reverse bool) []ID {
	m := tx.Map(desc.MapName)
	var ids []ID
	seen := newIDSet()
	visit := func(rang RawRange) {
		if reverse {
			rang = rang.Reversed()
		}
		m.Scan(rang, func(k, _ []byte) bool {
			id := idFromKey(k)
			if seen.Add(id) {
				ids = append(ids, id)
			}
			return true
		})
	}
	if reverse {
		for i := len(ranges) - 1; i >= 0; i-- {
			visit(ranges[i])
		}
	} else {
		for _, rang := range ranges {
			visit(rang)
		}
	}
	return ids
}

type scoredID struct {
	id    ID
	score int
}

// searchText answers a full-text query from a Fulltext index. Exact word
// queries rank documents by the number of distinct matched words.
func searchText(tx *storeTx, desc *IndexDescriptor, q textQuery) []ID {
	m := tx.Map(desc.MapName)
	scores := make(map[ID]int)
	var order []ID
	hit := func(id ID) {
		if _, ok := scores[id]; !ok {
			order = append(order, id)
		}
		scores[id]++
	}

	switch q.mode {
	case textExact:
		buf := keyBytesPool.Get().([]byte)
		for _, term := range q.terms {
			prefix := appendKeyString(buf[:0], keyTagString, term)
			m.Scan(RawPrefix(prefix), func(k, _ []byte) bool {
				if len(k) == len(prefix)+8 {
					hit(idFromKey(k))
				}
				return true
			})
			buf = prefix
		}
		releaseKeyBytes(buf)
	case textPrefix:
		prefix := appendKeyStringPrefix(keyBytesPool.Get().([]byte), keyTagString, q.terms[0])
		m.Scan(RawPrefix(prefix), func(k, _ []byte) bool {
			hit(idFromKey(k))
			return true
		})
		releaseKeyBytes(prefix)
	default:
		m.Scan(RawPrefix([]byte{keyTagString}), func(k, _ []byte) bool {
			token, _, err := decodeKeyString(k)
			if err == nil && q.matchToken(token) {
				hit(idFromKey(k))
			}
			return true
		})
	}

	if q.mode != textExact {
		slices.Sort(order)
		return slices.Compact(order)
	}
	ranked := make([]scoredID, len(order))
	for i, id := range order {
		ranked[i] = scoredID{id, scores[id]}
	}
	slices.SortStableFunc(ranked, func(a, b scoredID) int {
		if a.score != b.score {
			return b.score - a.score
		}
		switch {
		case a.id < b.id:
			return -1
		case a.id > b.id:
			return 1
		}
		return 0
	})
	ids := make([]ID, len(ranked))
	for i, s := range ranked {
		ids[i] = s.id
	}
	return ids
}
