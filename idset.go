package docdb

import (
	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// idSet is a compressed set of document ids.
type idSet struct {
	bm *roaring64.Bitmap
}

func newIDSet(ids ...ID) idSet {
	s := idSet{roaring64.New()}
	for _, id := range ids {
		s.bm.Add(uint64(id))
	}
	return s
}

// Add adds id and reports whether it was not in the set before.
func (s idSet) Add(id ID) bool {
	return s.bm.CheckedAdd(uint64(id))
}

func (s idSet) Len() int {
	return int(s.bm.GetCardinality())
}

// IDs returns the members in ascending order.
func (s idSet) IDs() []ID {
	raw := s.bm.ToArray()
	ids := make([]ID, len(raw))
	for i, v := range raw {
		ids[i] = ID(v)
	}
	return ids
}
