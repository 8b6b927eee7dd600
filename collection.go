package docdb

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collection is a named set of documents with its indexes.
//
// Reads run concurrently. Writes are serialized by a writer gate that a
// Transaction holds for its whole lifetime, so a goroutine that has begun a
// transaction must not write to the collection directly until it ends.
type Collection struct {
	name    string
	st      *store
	codec   valueCodec
	ids     *IDGenerator
	logger  *slog.Logger
	verbose bool

	gate    sync.Mutex   // writers and transactions
	rw      sync.RWMutex // data and index maps
	catalog *indexCatalog
	events  *eventBus
	builds  sync.WaitGroup

	closed  atomic.Bool
	dropped atomic.Bool
	release func(c *Collection)
	txns    *txnTracker

	undo *undoLog // set while a transaction is being committed
}

// testHookBeforeAsyncBuild runs on the build goroutine before it locks the
// collection.
var testHookBeforeAsyncBuild func()

type collectionConfig struct {
	store   *store
	codec   valueCodec
	ids     *IDGenerator
	logger  *slog.Logger
	verbose bool
	release func(c *Collection)
	txns    *txnTracker
}

// WriteResult lists the ids of the documents a write affected.
type WriteResult struct {
	IDs []ID
}

func (r WriteResult) AffectedCount() int {
	return len(r.IDs)
}

type updateOptions struct {
	insertIfAbsent bool
	justOnce       bool
}

type UpdateOption func(uo *updateOptions)

// InsertIfAbsent makes Update insert the update document when nothing
// matches the filter.
func InsertIfAbsent() UpdateOption {
	return func(uo *updateOptions) { uo.insertIfAbsent = true }
}

// JustOnce makes Update change only the first matching document.
func JustOnce() UpdateOption {
	return func(uo *updateOptions) { uo.justOnce = true }
}

func makeUpdateOptions(opts []UpdateOption) updateOptions {
	var uo updateOptions
	for _, opt := range opts {
		opt(&uo)
	}
	return uo
}

type IndexOptions struct {
	Kind IndexKind

	// Async builds the index on a background goroutine. IsIndexing reports
	// true until it is done, and queries do not use the index meanwhile.
	Async bool
}

func validateCollectionName(name string) error {
	if name == "" {
		return validationErrf("empty collection name")
	}
	if strings.Contains(name, mapNameSep) || strings.HasPrefix(name, "$") {
		return validationErrf("invalid collection name %q", name)
	}
	return nil
}

func openCollection(name string, cfg collectionConfig) (*Collection, error) {
	if err := validateCollectionName(name); err != nil {
		return nil, err
	}
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Collection{
		name:    name,
		st:      cfg.store,
		codec:   cfg.codec,
		ids:     cfg.ids,
		logger:  logger,
		verbose: cfg.verbose,
		catalog: newIndexCatalog(name),
		events:  newEventBus(logger),
		release: cfg.release,
		txns:    cfg.txns,
	}
	if c.ids == nil {
		c.ids = defaultIDGenerator
	}

	err := c.st.Update(func(tx *storeTx) error {
		if err := c.catalog.load(tx); err != nil {
			return err
		}
		if !tx.Map(c.catalog.mapName).Exists() {
			c.catalog.mu.Lock()
			defer c.catalog.mu.Unlock()
			return c.catalog.save(tx)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := c.rebuildDirty(); err != nil {
		return nil, err
	}
	return c, nil
}

// rebuildDirty finishes builds that were interrupted.
func (c *Collection) rebuildDirty() error {
	c.rw.Lock()
	defer c.rw.Unlock()
	for _, desc := range c.catalog.list() {
		if !desc.Dirty {
			continue
		}
		c.logger.Warn("docdb: rebuilding interrupted index", "collection", c.name, "index", fieldsKey(desc.Fields))
		if err := c.buildIndex(desc); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collection) Name() string { return c.name }

func (c *Collection) IsOpen() bool { return !c.closed.Load() }

func (c *Collection) IsDropped() bool { return c.dropped.Load() }

func (c *Collection) checkOpen() error {
	if c.closed.Load() {
		return collErrf(c.name, nil, 0, ErrClosed, "")
	}
	return nil
}

func (c *Collection) lockWrite() error {
	c.gate.Lock()
	if err := c.checkOpen(); err != nil {
		c.gate.Unlock()
		return err
	}
	c.rw.Lock()
	return nil
}

func (c *Collection) unlockWrite() {
	c.rw.Unlock()
	c.gate.Unlock()
}

func (c *Collection) lockRead() error {
	c.rw.RLock()
	if err := c.checkOpen(); err != nil {
		c.rw.RUnlock()
		return err
	}
	return nil
}

// mapNames returns the maps holding the collection's data.
func (c *Collection) mapNames() []string {
	return append([]string{c.name}, c.catalog.mapNames()...)
}

func (c *Collection) load(tx *storeTx, id ID) (*Document, error) {
	raw := tx.Map(c.name).Get(id.key())
	if raw == nil {
		return nil, nil
	}
	d, err := decodeStoredDocument(raw)
	if err != nil {
		return nil, collErrf(c.name, nil, id, err, "cannot decode document")
	}
	return d, nil
}

// writeDoc replaces old with nd, maintaining every index. A nil old means
// insert, a nil nd means removal.
func (c *Collection) writeDoc(tx *storeTx, old, nd *Document) error {
	var id ID
	if nd != nil {
		id = nd.ID()
	} else {
		id = old.ID()
	}
	for _, desc := range c.catalog.list() {
		if err := updateIndex(tx, desc, old, nd); err != nil {
			return err
		}
	}
	prim := tx.Map(c.name)
	if nd == nil {
		if err := prim.Remove(id.key()); err != nil {
			return err
		}
	} else {
		data, err := c.codec.encode(nd)
		if err != nil {
			return collErrf(c.name, nil, id, err, "cannot encode document")
		}
		if err := prim.Put(id.key(), data); err != nil {
			return err
		}
	}
	c.undo.recordDoc(id, old)
	return nil
}

func (c *Collection) emitDocs(typ EventType, docs []*Document) {
	if len(docs) == 0 || !c.events.hasSubscribers() {
		return
	}
	copies := make([]*Document, len(docs))
	for i, d := range docs {
		copies[i] = d.Clone()
	}
	c.events.publish(Event{Type: typ, Collection: c.name, Documents: copies})
}

func (c *Collection) emitIndex(typ EventType, fields []string) {
	c.events.publish(Event{Type: typ, Collection: c.name, Fields: slices.Clone(fields)})
}

// Insert stores new documents. Documents without an id get one, which is
// also set on the passed document. Documents are inserted one at a time: on
// failure the documents before the failing one stay inserted and are
// listed in the result.
func (c *Collection) Insert(docs ...*Document) (WriteResult, error) {
	if err := c.lockWrite(); err != nil {
		return WriteResult{}, err
	}
	defer c.unlockWrite()
	return c.insertLocked(docs)
}

func (c *Collection) insertLocked(docs []*Document) (WriteResult, error) {
	var res WriteResult
	var inserted []*Document
	defer func() { c.emitDocs(EventInsert, inserted) }()

	now := time.Now().UnixMilli()
	for _, doc := range docs {
		if doc == nil {
			return res, collErrf(c.name, nil, 0, ErrValidation, "nil document")
		}
		if !doc.HasID() {
			doc.setID(c.ids.Next())
		}
		id := doc.ID()
		if id == 0 {
			return res, collErrf(c.name, nil, 0, ErrInvalidID, "bad id %s", doc.Get(FieldID))
		}
		d := doc.Clone()
		d.set(FieldRevision, Int(1))
		d.set(FieldModified, Int(now))

		err := c.st.Update(func(tx *storeTx) error {
			if tx.Map(c.name).Has(id.key()) {
				return collErrf(c.name, nil, id, ErrUniqueConstraint, "document already exists")
			}
			return c.writeDoc(tx, nil, d)
		})
		if err != nil {
			return res, err
		}
		if c.verbose {
			c.logger.Debug("docdb: inserted", "collection", c.name, "id", id)
		}
		res.IDs = append(res.IDs, id)
		inserted = append(inserted, d)
	}
	return res, nil
}

// Update merges the fields of update into every document matching filter.
// The id and metadata fields of update are ignored.
func (c *Collection) Update(filter Filter, update *Document, opts ...UpdateOption) (WriteResult, error) {
	if err := c.lockWrite(); err != nil {
		return WriteResult{}, err
	}
	defer c.unlockWrite()
	return c.updateLocked(filter, update, makeUpdateOptions(opts))
}

func (c *Collection) updateLocked(filter Filter, update *Document, uo updateOptions) (WriteResult, error) {
	if update == nil {
		return WriteResult{}, collErrf(c.name, nil, 0, ErrValidation, "nil update document")
	}
	matches, err := c.matchLocked(filter, uo.justOnce)
	if err != nil {
		return WriteResult{}, err
	}
	if len(matches) == 0 {
		if uo.insertIfAbsent {
			return c.insertLocked([]*Document{update.Clone()})
		}
		return WriteResult{}, nil
	}

	changes := update.Clone()
	changes.stripMeta()

	var res WriteResult
	var updated []*Document
	defer func() { c.emitDocs(EventUpdate, updated) }()

	now := time.Now().UnixMilli()
	for _, old := range matches {
		id := old.ID()
		nd := old.Clone()
		if err := nd.Merge(changes); err != nil {
			return res, collErrf(c.name, nil, id, err, "cannot apply update")
		}
		nd.set(FieldRevision, Int(old.Revision()+1))
		nd.set(FieldModified, Int(now))
		err := c.st.Update(func(tx *storeTx) error {
			return c.writeDoc(tx, old, nd)
		})
		if err != nil {
			return res, err
		}
		res.IDs = append(res.IDs, id)
		updated = append(updated, nd)
	}
	return res, nil
}

// UpdateDocument writes doc over the stored document with the same id. A
// document without an id is inserted when insertIfAbsent is set.
func (c *Collection) UpdateDocument(doc *Document, insertIfAbsent bool) (WriteResult, error) {
	if err := c.lockWrite(); err != nil {
		return WriteResult{}, err
	}
	defer c.unlockWrite()
	return c.updateDocumentLocked(doc, insertIfAbsent)
}

func (c *Collection) updateDocumentLocked(doc *Document, insertIfAbsent bool) (WriteResult, error) {
	if doc == nil {
		return WriteResult{}, collErrf(c.name, nil, 0, ErrValidation, "nil document")
	}
	if !doc.HasID() {
		if insertIfAbsent {
			return c.insertLocked([]*Document{doc})
		}
		return WriteResult{}, collErrf(c.name, nil, 0, ErrNotIdentifiable, "cannot update a document without an id")
	}
	id := doc.ID()
	if id == 0 {
		return WriteResult{}, collErrf(c.name, nil, 0, ErrInvalidID, "bad id %s", doc.Get(FieldID))
	}
	return c.updateLocked(ByID(id), doc, updateOptions{insertIfAbsent: insertIfAbsent, justOnce: true})
}

// Remove deletes the documents matching filter, or only the first one when
// justOne is set.
func (c *Collection) Remove(filter Filter, justOne bool) (WriteResult, error) {
	if err := c.lockWrite(); err != nil {
		return WriteResult{}, err
	}
	defer c.unlockWrite()
	return c.removeLocked(filter, justOne)
}

func (c *Collection) removeLocked(filter Filter, justOne bool) (WriteResult, error) {
	matches, err := c.matchLocked(filter, justOne)
	if err != nil {
		return WriteResult{}, err
	}
	var res WriteResult
	var removed []*Document
	defer func() { c.emitDocs(EventRemove, removed) }()

	for _, old := range matches {
		err := c.st.Update(func(tx *storeTx) error {
			return c.writeDoc(tx, old, nil)
		})
		if err != nil {
			return res, err
		}
		res.IDs = append(res.IDs, old.ID())
		removed = append(removed, old)
	}
	return res, nil
}

func (c *Collection) RemoveDocument(doc *Document) (WriteResult, error) {
	if err := c.lockWrite(); err != nil {
		return WriteResult{}, err
	}
	defer c.unlockWrite()
	return c.removeDocumentLocked(doc)
}

func (c *Collection) removeDocumentLocked(doc *Document) (WriteResult, error) {
	if !doc.HasID() {
		return WriteResult{}, collErrf(c.name, nil, 0, ErrNotIdentifiable, "cannot remove a document without an id")
	}
	return c.removeLocked(ByID(doc.ID()), true)
}

// matchLocked returns the documents matching filter in plan order.
func (c *Collection) matchLocked(filter Filter, first bool) ([]*Document, error) {
	fo := &findOptions{limit: -1}
	if first {
		fo.limit = 1
	}
	cur, err := c.findLocked(filter, fo)
	if err != nil {
		return nil, err
	}
	return cur.docs, nil
}

// Find returns the documents matching filter. A nil filter matches all.
func (c *Collection) Find(filter Filter, opts ...FindOption) (*Cursor, error) {
	fo, err := makeFindOptions(opts)
	if err != nil {
		return nil, err
	}
	if err := c.lockRead(); err != nil {
		return nil, err
	}
	defer c.rw.RUnlock()
	return c.findLocked(filter, fo)
}

func (c *Collection) findLocked(filter Filter, fo *findOptions) (*Cursor, error) {
	p, err := newPlanner(c.name, c.catalog.list()).plan(filter, fo)
	if err != nil {
		return nil, err
	}
	var docs []*Document
	err = c.st.View(func(tx *storeTx) error {
		var err error
		docs, err = c.execute(tx, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Cursor{plan: p, docs: docs}, nil
}

// Explain returns the plan Find would use.
func (c *Collection) Explain(filter Filter, opts ...FindOption) (*Plan, error) {
	fo, err := makeFindOptions(opts)
	if err != nil {
		return nil, err
	}
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return newPlanner(c.name, c.catalog.list()).plan(filter, fo)
}

// GetByID returns the document with the given id, or nil.
func (c *Collection) GetByID(id ID) (*Document, error) {
	if err := c.lockRead(); err != nil {
		return nil, err
	}
	defer c.rw.RUnlock()
	var d *Document
	err := c.st.View(func(tx *storeTx) error {
		var err error
		d, err = c.load(tx, id)
		return err
	})
	return d, err
}

func (c *Collection) Size() (int, error) {
	if err := c.lockRead(); err != nil {
		return 0, err
	}
	defer c.rw.RUnlock()
	var n int
	err := c.st.View(func(tx *storeTx) error {
		n = tx.Map(c.name).Size()
		return nil
	})
	return n, err
}

// Clear removes every document but keeps the indexes.
func (c *Collection) Clear() error {
	if err := c.lockWrite(); err != nil {
		return err
	}
	defer c.unlockWrite()
	return c.clearLocked()
}

func (c *Collection) clearLocked() error {
	return c.st.Update(func(tx *storeTx) error {
		prim := tx.Map(c.name)
		if c.undo != nil {
			var err error
			prim.Scan(RawOO(), func(k, v []byte) bool {
				var d *Document
				d, err = decodeStoredDocument(v)
				if err != nil {
					return false
				}
				c.undo.recordDoc(d.ID(), d)
				return true
			})
			if err != nil {
				return err
			}
		}
		if err := prim.Clear(); err != nil {
			return err
		}
		for _, desc := range c.catalog.list() {
			if err := tx.Map(desc.MapName).Clear(); err != nil {
				return err
			}
		}
		return nil
	})
}

func validateIndexFields(fields []string, kind IndexKind) error {
	if !kind.valid() {
		return validationErrf("invalid index kind %d", int(kind))
	}
	if len(fields) == 0 {
		return validationErrf("no fields to index")
	}
	if kind == Fulltext && len(fields) > 1 {
		return validationErrf("full-text indexes cover a single field")
	}
	for i, f := range fields {
		if f == "" || strings.ContainsAny(f, ","+mapNameSep) {
			return validationErrf("invalid index field %q", f)
		}
		if slices.Contains(fields[:i], f) {
			return validationErrf("field %q is indexed twice", f)
		}
	}
	return nil
}

// CreateIndex adds an index on fields and builds it from existing documents.
// A build that fails, like on a unique violation in existing data, removes the
// index again.
func (c *Collection) CreateIndex(opts IndexOptions, fields ...string) error {
	if err := c.lockWrite(); err != nil {
		return err
	}
	defer c.unlockWrite()
	return c.createIndexLocked(fields, opts, false)
}

func (c *Collection) createIndexLocked(fields []string, opts IndexOptions, forceSync bool) error {
	if opts.Kind == 0 {
		opts.Kind = Unique
	}
	if err := validateIndexFields(fields, opts.Kind); err != nil {
		return collErrf(c.name, fields, 0, err, "")
	}
	var desc *IndexDescriptor
	err := c.st.Update(func(tx *storeTx) error {
		var err error
		desc, err = c.catalog.create(tx, fields, opts.Kind)
		return err
	})
	if err != nil {
		return err
	}
	c.undo.recordCreatedIndex(fields)
	return c.startBuild(desc, true, opts.Async && !forceSync)
}

// RebuildIndex rebuilds an existing index from the stored documents.
func (c *Collection) RebuildIndex(fields []string, async bool) error {
	if err := c.lockWrite(); err != nil {
		return err
	}
	defer c.unlockWrite()
	return c.rebuildIndexLocked(fields, async)
}

func (c *Collection) rebuildIndexLocked(fields []string, async bool) error {
	desc := c.catalog.find(fields)
	if desc == nil {
		return collErrf(c.name, fields, 0, ErrIndexing, "index does not exist")
	}
	err := c.st.Update(func(tx *storeTx) error {
		return c.catalog.beginBuild(tx, fields)
	})
	if err != nil {
		return err
	}
	return c.startBuild(desc, false, async)
}

// startBuild runs a build of an index that has already been marked dirty.
// Must be called with the write lock held.
func (c *Collection) startBuild(desc *IndexDescriptor, fresh, async bool) error {
	if !async {
		return c.finishBuild(desc, fresh)
	}
	c.builds.Add(1)
	hook := testHookBeforeAsyncBuild
	go func() {
		defer c.builds.Done()
		if hook != nil {
			hook()
		}
		c.rw.Lock()
		defer c.rw.Unlock()
		if c.dropped.Load() {
			return
		}
		if err := c.finishBuild(desc, fresh); err != nil {
			c.logger.Error("docdb: background index build failed", "collection", c.name, "index", fieldsKey(desc.Fields), "err", err)
		}
	}()
	return nil
}

func (c *Collection) finishBuild(desc *IndexDescriptor, fresh bool) error {
	err := c.buildIndex(desc)
	if err != nil && fresh {
		if e := c.st.Update(func(tx *storeTx) error {
			if _, err := c.catalog.drop(tx, desc.Fields); err != nil {
				return err
			}
			return tx.RemoveMap(desc.MapName)
		}); e != nil {
			c.logger.Error("docdb: cannot remove index after failed build", "collection", c.name, "index", fieldsKey(desc.Fields), "err", e)
		}
	}
	return err
}

// buildIndex fills the index from scratch. The index stays dirty until it
// returns, whatever the outcome.
func (c *Collection) buildIndex(desc *IndexDescriptor) (err error) {
	c.emitIndex(EventIndexStart, desc.Fields)
	start := time.Now()
	var count int
	defer func() {
		if e := c.st.Update(func(tx *storeTx) error {
			return c.catalog.endBuild(tx, desc.Fields)
		}); e != nil && err == nil {
			err = e
		}
		c.emitIndex(EventIndexEnd, desc.Fields)
		if err != nil {
			c.logger.Warn("docdb: index build failed", "collection", c.name, "index", fieldsKey(desc.Fields), "documents", count, "err", err)
		} else if c.verbose {
			c.logger.Debug("docdb: index built", "collection", c.name, "index", fieldsKey(desc.Fields), "documents", count, "elapsed", time.Since(start))
		}
	}()

	return c.st.Update(func(tx *storeTx) error {
		if err := tx.Map(desc.MapName).Clear(); err != nil {
			return err
		}
		var err error
		tx.Map(c.name).Scan(RawOO(), func(k, v []byte) bool {
			var d *Document
			d, err = decodeStoredDocument(v)
			if err != nil {
				err = collErrf(c.name, desc.Fields, idFromKey(k), err, "cannot decode document")
				return false
			}
			count++
			err = updateIndex(tx, desc, nil, d)
			return err == nil
		})
		return err
	})
}

// DropIndex removes an index. It fails while the index is being built.
func (c *Collection) DropIndex(fields ...string) error {
	if err := c.lockWrite(); err != nil {
		return err
	}
	defer c.unlockWrite()
	return c.dropIndexLocked(fields)
}

func (c *Collection) dropIndexLocked(fields []string) error {
	return c.st.Update(func(tx *storeTx) error {
		desc, err := c.catalog.drop(tx, fields)
		if err != nil {
			return err
		}
		if err := tx.RemoveMap(desc.MapName); err != nil {
			return err
		}
		c.undo.recordDroppedIndex(desc)
		return nil
	})
}

// DropAllIndices removes every index. It fails if any index is being built.
func (c *Collection) DropAllIndices() error {
	if err := c.lockWrite(); err != nil {
		return err
	}
	defer c.unlockWrite()
	return c.dropAllIndicesLocked()
}

func (c *Collection) dropAllIndicesLocked() error {
	if c.catalog.anyDirty() {
		return collErrf(c.name, nil, 0, ErrIndexing, "cannot drop indexes while one is being built")
	}
	for _, desc := range c.catalog.list() {
		if err := c.dropIndexLocked(desc.Fields); err != nil {
			return err
		}
	}
	return nil
}

// ListIndices returns the descriptors of all indexes, including ones being
// built.
func (c *Collection) ListIndices() ([]IndexDescriptor, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	descs := c.catalog.list()
	out := make([]IndexDescriptor, len(descs))
	for i, desc := range descs {
		out[i] = *desc
	}
	return out, nil
}

func (c *Collection) HasIndex(fields ...string) (bool, error) {
	if err := c.checkOpen(); err != nil {
		return false, err
	}
	return c.catalog.has(fields), nil
}

// IsIndexing reports whether the index is being built. It never waits for
// a running build.
func (c *Collection) IsIndexing(fields ...string) (bool, error) {
	if err := c.checkOpen(); err != nil {
		return false, err
	}
	return c.catalog.isDirty(fields), nil
}

// Attributes returns the user metadata stored with the collection.
func (c *Collection) Attributes() (map[string]string, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return c.catalog.attributes(), nil
}

func (c *Collection) SetAttributes(attrs map[string]string) error {
	if err := c.lockWrite(); err != nil {
		return err
	}
	defer c.unlockWrite()
	return c.st.Update(func(tx *storeTx) error {
		return c.catalog.setAttributes(tx, attrs)
	})
}

// Subscribe registers a listener for changes. Listeners run on their own
// goroutine and never block writers.
func (c *Collection) Subscribe(l Listener) (SubscriptionID, error) {
	if err := c.checkOpen(); err != nil {
		return SubscriptionID{}, err
	}
	return c.events.subscribe(l), nil
}

func (c *Collection) Unsubscribe(id SubscriptionID) {
	c.events.unsubscribe(id)
}

// Drop deletes the collection with its indexes. The handle is closed.
func (c *Collection) Drop() error {
	c.gate.Lock()
	defer c.gate.Unlock()
	if err := c.checkOpen(); err != nil {
		return err
	}
	c.builds.Wait()
	c.rw.Lock()
	defer c.rw.Unlock()
	return c.dropLocked()
}

func (c *Collection) dropLocked() error {
	names := c.mapNames()
	err := c.st.Update(func(tx *storeTx) error {
		for _, name := range names {
			if err := tx.RemoveMap(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	c.catalog.reset()
	c.dropped.Store(true)
	c.shutdown()
	return nil
}

// Close releases the handle. Pending background builds finish first.
func (c *Collection) Close() error {
	c.gate.Lock()
	defer c.gate.Unlock()
	if c.closed.Load() {
		return nil
	}
	c.builds.Wait()
	c.rw.Lock()
	defer c.rw.Unlock()
	c.shutdown()
	return nil
}

func (c *Collection) shutdown() {
	if c.closed.Swap(true) {
		return
	}
	c.events.close()
	if c.release != nil {
		c.release(c)
	}
}

func (c *Collection) String() string {
	return fmt.Sprintf("collection %s", c.name)
}
