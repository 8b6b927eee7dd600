package docdb

// CollectionStats reports the storage used by a collection. In memory,
// sizes count key and value bytes.
type CollectionStats struct {
	Documents    int
	IndexEntries int

	DataSize   int64
	DataAlloc  int64
	IndexSize  int64
	IndexAlloc int64
}

func (cs *CollectionStats) TotalSize() int64 {
	return cs.DataSize + cs.IndexSize
}

func (cs *CollectionStats) TotalAlloc() int64 {
	return cs.DataAlloc + cs.IndexAlloc
}

func (c *Collection) Stats() (CollectionStats, error) {
	if err := c.lockRead(); err != nil {
		return CollectionStats{}, err
	}
	defer c.rw.RUnlock()

	var result CollectionStats
	err := c.st.View(func(tx *storeTx) error {
		result = c.statsIn(tx)
		return nil
	})
	return result, err
}

func (c *Collection) statsIn(tx *storeTx) CollectionStats {
	bs := tx.Map(c.name).Stats()
	result := CollectionStats{
		Documents: bs.KeyN,
		DataSize:  bs.LeafInuse,
		DataAlloc: bs.TotalAlloc(),
	}
	for _, desc := range c.catalog.list() {
		bs = tx.Map(desc.MapName).Stats()
		result.IndexEntries += bs.KeyN
		result.IndexSize += bs.LeafInuse
		result.IndexAlloc += bs.TotalAlloc()
	}
	return result
}

// Size returns the size of the database file in bytes. In memory it is
// the total size of all keys and values.
func (db *DB) Size() int64 {
	var size int64
	_ = db.st.View(func(tx *storeTx) error {
		size = tx.Size()
		return nil
	})
	return size
}
