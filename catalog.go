package docdb

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// IndexKind selects how an index stores and answers values.
type IndexKind int

const (
	Unique    IndexKind = 1
	NonUnique IndexKind = 2
	Fulltext  IndexKind = 3
)

func (k IndexKind) String() string {
	switch k {
	case Unique:
		return "unique"
	case NonUnique:
		return "nonunique"
	case Fulltext:
		return "fulltext"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func (k IndexKind) valid() bool {
	return k == Unique || k == NonUnique || k == Fulltext
}

// IndexDescriptor describes one index of a collection. MapName is derived
// from the collection, fields and kind, so two live indexes never share a
// backing map. Dirty is set while the index is being (re)built.
type IndexDescriptor struct {
	Fields     []string  `msgpack:"f"`
	Kind       IndexKind `msgpack:"k"`
	Collection string    `msgpack:"c"`
	MapName    string    `msgpack:"m"`
	Dirty      bool      `msgpack:"d"`
}

func (desc *IndexDescriptor) key() string {
	return fieldsKey(desc.Fields)
}

func (desc IndexDescriptor) String() string {
	s := fmt.Sprintf("%s[%s] %s", desc.Collection, fieldsKey(desc.Fields), desc.Kind)
	if desc.Dirty {
		s += " (building)"
	}
	return s
}

func fieldsKey(fields []string) string {
	return strings.Join(fields, ",")
}

const (
	mapNameSep     = "|"
	indexMapPrefix = "$idx" + mapNameSep
	catalogPrefix  = "$catalog" + mapNameSep
)

func indexMapName(coll string, fields []string, kind IndexKind) string {
	return indexMapPrefix + coll + mapNameSep + fieldsKey(fields) + mapNameSep + kind.String()
}

func catalogMapName(coll string) string {
	return catalogPrefix + coll
}

var catalogStateKey = []byte("_state")

// catalogState is what gets persisted in the catalog map.
type catalogState struct {
	Indices    []*IndexDescriptor `msgpack:"i"`
	Attributes map[string]string  `msgpack:"a,omitempty"`
	LastSeen   time.Time          `msgpack:"t"`
}

// indexCatalog is the per-collection registry of indexes. It has its own
// lock so that index metadata stays readable while a build holds the
// collection lock.
type indexCatalog struct {
	mu      sync.RWMutex
	coll    string
	mapName string
	state   catalogState
}

func newIndexCatalog(coll string) *indexCatalog {
	return &indexCatalog{
		coll:    coll,
		mapName: catalogMapName(coll),
	}
}

func (cat *indexCatalog) load(tx *storeTx) error {
	cat.mu.Lock()
	defer cat.mu.Unlock()
	raw := tx.Map(cat.mapName).Get(catalogStateKey)
	var st catalogState
	if raw != nil {
		if err := msgpack.Unmarshal(raw, &st); err != nil {
			return collErrf(cat.coll, nil, 0, dataErrf(raw, 0, err, "bad catalog"), "failed to decode index catalog")
		}
	}
	cat.state = st
	return nil
}

// save must be called with cat.mu held.
func (cat *indexCatalog) save(tx *storeTx) error {
	cat.state.LastSeen = time.Now()
	raw, err := msgpack.Marshal(&cat.state)
	if err != nil {
		return err
	}
	return tx.Map(cat.mapName).Put(catalogStateKey, raw)
}

func (cat *indexCatalog) findLocked(fields []string) *IndexDescriptor {
	key := fieldsKey(fields)
	for _, desc := range cat.state.Indices {
		if desc.key() == key {
			return desc
		}
	}
	return nil
}

func (cat *indexCatalog) has(fields []string) bool {
	cat.mu.RLock()
	defer cat.mu.RUnlock()
	return cat.findLocked(fields) != nil
}

// find returns a copy of the descriptor, or nil.
func (cat *indexCatalog) find(fields []string) *IndexDescriptor {
	cat.mu.RLock()
	defer cat.mu.RUnlock()
	desc := cat.findLocked(fields)
	if desc == nil {
		return nil
	}
	return desc.clone()
}

func (desc *IndexDescriptor) clone() *IndexDescriptor {
	c := *desc
	c.Fields = slices.Clone(desc.Fields)
	return &c
}

// list returns copies of all descriptors in creation order.
func (cat *indexCatalog) list() []*IndexDescriptor {
	cat.mu.RLock()
	defer cat.mu.RUnlock()
	out := make([]*IndexDescriptor, len(cat.state.Indices))
	for i, desc := range cat.state.Indices {
		out[i] = desc.clone()
	}
	return out
}

// create registers a new index. It starts out dirty, the first build
// clears the flag through endBuild.
func (cat *indexCatalog) create(tx *storeTx, fields []string, kind IndexKind) (*IndexDescriptor, error) {
	cat.mu.Lock()
	defer cat.mu.Unlock()
	if cat.findLocked(fields) != nil {
		return nil, collErrf(cat.coll, fields, 0, ErrIndexing, "index already exists")
	}
	desc := &IndexDescriptor{
		Fields:     slices.Clone(fields),
		Kind:       kind,
		Collection: cat.coll,
		MapName:    indexMapName(cat.coll, fields, kind),
		Dirty:      true,
	}
	cat.state.Indices = append(cat.state.Indices, desc)
	if err := cat.save(tx); err != nil {
		cat.state.Indices = cat.state.Indices[:len(cat.state.Indices)-1]
		return nil, err
	}
	return desc.clone(), nil
}

// drop removes the descriptor. It fails while the index is being built.
func (cat *indexCatalog) drop(tx *storeTx, fields []string) (*IndexDescriptor, error) {
	cat.mu.Lock()
	defer cat.mu.Unlock()
	desc := cat.findLocked(fields)
	if desc == nil {
		return nil, collErrf(cat.coll, fields, 0, ErrIndexing, "index does not exist")
	}
	if desc.Dirty {
		return nil, collErrf(cat.coll, fields, 0, ErrIndexing, "cannot drop index while it is being built")
	}
	old := cat.state.Indices
	cat.state.Indices = slices.DeleteFunc(slices.Clone(old), func(d *IndexDescriptor) bool { return d == desc })
	if err := cat.save(tx); err != nil {
		cat.state.Indices = old
		return nil, err
	}
	return desc.clone(), nil
}

func (cat *indexCatalog) setDirty(tx *storeTx, fields []string, dirty bool) error {
	cat.mu.Lock()
	defer cat.mu.Unlock()
	desc := cat.findLocked(fields)
	if desc == nil {
		return collErrf(cat.coll, fields, 0, ErrIndexing, "index does not exist")
	}
	if dirty && desc.Dirty {
		return collErrf(cat.coll, fields, 0, ErrIndexing, "index is already being built")
	}
	desc.Dirty = dirty
	return cat.save(tx)
}

// beginBuild marks an index as being rebuilt. It fails if a build is
// already running.
func (cat *indexCatalog) beginBuild(tx *storeTx, fields []string) error {
	return cat.setDirty(tx, fields, true)
}

func (cat *indexCatalog) endBuild(tx *storeTx, fields []string) error {
	return cat.setDirty(tx, fields, false)
}

func (cat *indexCatalog) isDirty(fields []string) bool {
	cat.mu.RLock()
	defer cat.mu.RUnlock()
	desc := cat.findLocked(fields)
	return desc != nil && desc.Dirty
}

func (cat *indexCatalog) anyDirty() bool {
	cat.mu.RLock()
	defer cat.mu.RUnlock()
	for _, desc := range cat.state.Indices {
		if desc.Dirty {
			return true
		}
	}
	return false
}

func (cat *indexCatalog) attributes() map[string]string {
	cat.mu.RLock()
	defer cat.mu.RUnlock()
	out := make(map[string]string, len(cat.state.Attributes))
	for k, v := range cat.state.Attributes {
		out[k] = v
	}
	return out
}

func (cat *indexCatalog) setAttributes(tx *storeTx, attrs map[string]string) error {
	cat.mu.Lock()
	defer cat.mu.Unlock()
	old := cat.state.Attributes
	cat.state.Attributes = make(map[string]string, len(attrs))
	for k, v := range attrs {
		cat.state.Attributes[k] = v
	}
	if err := cat.save(tx); err != nil {
		cat.state.Attributes = old
		return err
	}
	return nil
}

// mapNames returns the catalog map and every index map.
func (cat *indexCatalog) mapNames() []string {
	cat.mu.RLock()
	defer cat.mu.RUnlock()
	names := []string{cat.mapName}
	for _, desc := range cat.state.Indices {
		names = append(names, desc.MapName)
	}
	return names
}

// reset forgets every descriptor, used when the collection is dropped.
func (cat *indexCatalog) reset() {
	cat.mu.Lock()
	defer cat.mu.Unlock()
	cat.state = catalogState{}
}
