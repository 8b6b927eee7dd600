package docdb

import (
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type changeKind int

const (
	changePut changeKind = iota + 1
	changeDelete
	changeClear
	changeCreateIndex
	changeRebuildIndex
	changeDropIndex
	changeDropCollection
)

func (k changeKind) String() string {
	switch k {
	case changePut:
		return "put"
	case changeDelete:
		return "delete"
	case changeClear:
		return "clear"
	case changeCreateIndex:
		return "create-index"
	case changeRebuildIndex:
		return "rebuild-index"
	case changeDropIndex:
		return "drop-index"
	case changeDropCollection:
		return "drop-collection"
	default:
		return fmt.Sprintf("change(%d)", int(k))
	}
}

// changeLogEntry is one change made in a transaction. Document writes are
// recorded as the resulting state of each affected document.
type changeLogEntry struct {
	kind     changeKind
	id       ID
	doc      *Document
	fields   []string
	indexOpt IndexOptions
}

func (e *changeLogEntry) String() string {
	switch e.kind {
	case changePut, changeDelete:
		return fmt.Sprintf("%s %s", e.kind, e.id)
	case changeCreateIndex, changeRebuildIndex, changeDropIndex:
		return fmt.Sprintf("%s %s", e.kind, fieldsKey(e.fields))
	default:
		return e.kind.String()
	}
}

type txState int

const (
	txActive txState = iota
	txCommitted
	txRolledBack
)

// Transaction buffers writes to one collection. Writes go to a private copy
// of the collection and are recorded; Commit replays them against the real
// collection. Other goroutines keep reading the collection meanwhile, but
// its writers wait until the transaction ends.
type Transaction struct {
	id      uuid.UUID
	primary *Collection
	private *Collection

	mu    sync.Mutex
	state txState
	log   []*changeLogEntry

	startTime time.Time
	stack     []byte
	tracker   *txnTracker
}

// BeginTransaction starts a transaction. It waits for running writes and
// for any other transaction on the collection to end.
func (c *Collection) BeginTransaction() (*Transaction, error) {
	c.gate.Lock()
	if err := c.checkOpen(); err != nil {
		c.gate.Unlock()
		return nil, err
	}

	c.rw.RLock()
	snap, err := c.st.snapshot(c.mapNames())
	c.rw.RUnlock()
	if err != nil {
		c.gate.Unlock()
		return nil, err
	}
	private, err := openCollection(c.name, collectionConfig{
		store:   snap,
		codec:   c.codec,
		ids:     c.ids,
		logger:  c.logger,
		verbose: c.verbose,
	})
	if err != nil {
		c.gate.Unlock()
		return nil, err
	}

	t := &Transaction{
		id:        uuid.New(),
		primary:   c,
		private:   private,
		startTime: time.Now(),
		tracker:   c.txns,
	}
	if t.tracker != nil {
		t.stack = debug.Stack()
		t.tracker.add(t)
	}
	if c.verbose {
		c.logger.Debug("docdb: transaction started", "collection", c.name, "tx", t.id)
	}
	return t, nil
}

func (t *Transaction) ID() uuid.UUID { return t.id }

func (t *Transaction) IsActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == txActive
}

func (t *Transaction) checkActive() error {
	if t.state != txActive {
		return collErrf(t.primary.name, nil, 0, ErrTransaction, "transaction %s", t.id)
	}
	return nil
}

func (t *Transaction) record(e *changeLogEntry) {
	t.log = append(t.log, e)
}

// recordDocs logs the current private state of the documents a write
// touched, including the ones a failed write changed before failing.
func (t *Transaction) recordDocs(res WriteResult, err error) (WriteResult, error) {
	for _, id := range res.IDs {
		d, lerr := t.private.GetByID(id)
		if lerr != nil {
			return res, errors.Join(err, lerr)
		}
		if d == nil {
			t.record(&changeLogEntry{kind: changeDelete, id: id})
		} else {
			t.record(&changeLogEntry{kind: changePut, id: id, doc: d})
		}
	}
	return res, err
}

func (t *Transaction) Insert(docs ...*Document) (WriteResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkActive(); err != nil {
		return WriteResult{}, err
	}
	return t.recordDocs(t.private.Insert(docs...))
}

func (t *Transaction) Update(filter Filter, update *Document, opts ...UpdateOption) (WriteResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkActive(); err != nil {
		return WriteResult{}, err
	}
	return t.recordDocs(t.private.Update(filter, update, opts...))
}

func (t *Transaction) UpdateDocument(doc *Document, insertIfAbsent bool) (WriteResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkActive(); err != nil {
		return WriteResult{}, err
	}
	return t.recordDocs(t.private.UpdateDocument(doc, insertIfAbsent))
}

func (t *Transaction) Remove(filter Filter, justOne bool) (WriteResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkActive(); err != nil {
		return WriteResult{}, err
	}
	return t.recordDocs(t.private.Remove(filter, justOne))
}

func (t *Transaction) RemoveDocument(doc *Document) (WriteResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkActive(); err != nil {
		return WriteResult{}, err
	}
	return t.recordDocs(t.private.RemoveDocument(doc))
}

func (t *Transaction) Clear() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkActive(); err != nil {
		return err
	}
	err := t.private.Clear()
	if err == nil {
		t.record(&changeLogEntry{kind: changeClear})
	}
	return err
}

// CreateIndex creates the index in the transaction. Inside a transaction
// indexes are always built synchronously.
func (t *Transaction) CreateIndex(opts IndexOptions, fields ...string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkActive(); err != nil {
		return err
	}
	opts.Async = false
	err := t.private.CreateIndex(opts, fields...)
	if err == nil {
		t.record(&changeLogEntry{kind: changeCreateIndex, fields: slices.Clone(fields), indexOpt: opts})
	}
	return err
}

func (t *Transaction) RebuildIndex(fields []string, async bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkActive(); err != nil {
		return err
	}
	err := t.private.RebuildIndex(fields, false)
	if err == nil {
		t.record(&changeLogEntry{kind: changeRebuildIndex, fields: slices.Clone(fields)})
	}
	return err
}

func (t *Transaction) DropIndex(fields ...string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkActive(); err != nil {
		return err
	}
	err := t.private.DropIndex(fields...)
	if err == nil {
		t.record(&changeLogEntry{kind: changeDropIndex, fields: slices.Clone(fields)})
	}
	return err
}

// DropAllIndices drops every index in the transaction. Indexes dropped
// before a failure stay dropped.
func (t *Transaction) DropAllIndices() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkActive(); err != nil {
		return err
	}
	before := t.private.catalog.list()
	err := t.private.DropAllIndices()
	for _, desc := range before {
		if !t.private.catalog.has(desc.Fields) {
			t.record(&changeLogEntry{kind: changeDropIndex, fields: slices.Clone(desc.Fields)})
		}
	}
	return err
}

// Drop drops the collection when the transaction commits. The transaction
// itself cannot be used for anything but Commit or Rollback afterwards.
func (t *Transaction) Drop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkActive(); err != nil {
		return err
	}
	err := t.private.Drop()
	if err == nil {
		t.record(&changeLogEntry{kind: changeDropCollection})
	}
	return err
}

func (t *Transaction) Find(filter Filter, opts ...FindOption) (*Cursor, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkActive(); err != nil {
		return nil, err
	}
	return t.private.Find(filter, opts...)
}

func (t *Transaction) GetByID(id ID) (*Document, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkActive(); err != nil {
		return nil, err
	}
	return t.private.GetByID(id)
}

func (t *Transaction) Size() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkActive(); err != nil {
		return 0, err
	}
	return t.private.Size()
}

func (t *Transaction) HasIndex(fields ...string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkActive(); err != nil {
		return false, err
	}
	return t.private.HasIndex(fields...)
}

func (t *Transaction) IsIndexing(fields ...string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkActive(); err != nil {
		return false, err
	}
	return t.private.IsIndexing(fields...)
}

func (t *Transaction) ListIndices() ([]IndexDescriptor, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkActive(); err != nil {
		return nil, err
	}
	return t.private.ListIndices()
}

// Commit applies the recorded writes to the collection in order. If one of
// them fails, the ones already applied are undone and the error is returned.
// The transaction ends either way.
func (t *Transaction) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkActive(); err != nil {
		return err
	}
	defer t.end(txCommitted)

	c := t.primary
	if err := c.checkOpen(); err != nil {
		return err
	}
	if slices.ContainsFunc(t.log, func(e *changeLogEntry) bool { return e.kind == changeDropCollection }) {
		c.builds.Wait()
		c.rw.Lock()
		defer c.rw.Unlock()
		return c.dropLocked()
	}

	c.rw.Lock()
	defer c.rw.Unlock()
	u := newUndoLog()
	c.undo = u
	defer func() { c.undo = nil }()

	for i, e := range t.log {
		if err := t.replay(e); err != nil {
			c.undo = nil
			if uerr := c.revert(u); uerr != nil {
				c.logger.Error("docdb: cannot undo partially committed transaction", "collection", c.name, "tx", t.id, "err", uerr)
			}
			return fmt.Errorf("%s: commit of transaction %s failed at #%d (%s): %w", c.name, t.id, i+1, e, err)
		}
	}
	if c.verbose {
		c.logger.Debug("docdb: transaction committed", "collection", c.name, "tx", t.id, "changes", len(t.log))
	}
	return nil
}

// replay applies one entry to the primary collection, which is write-locked.
func (t *Transaction) replay(e *changeLogEntry) error {
	c := t.primary
	var err error
	switch e.kind {
	case changePut:
		err = c.applyDoc(e.id, e.doc)
	case changeDelete:
		err = c.applyDoc(e.id, nil)
	case changeClear:
		err = c.clearLocked()
	case changeCreateIndex:
		if !c.catalog.has(e.fields) {
			err = c.createIndexLocked(e.fields, e.indexOpt, true)
		}
	case changeRebuildIndex:
		if c.catalog.has(e.fields) && !c.catalog.isDirty(e.fields) {
			err = c.rebuildIndexLocked(e.fields, false)
		}
	case changeDropIndex:
		if c.catalog.has(e.fields) && !c.catalog.isDirty(e.fields) {
			err = c.dropIndexLocked(e.fields)
		}
	default:
		panic(fmt.Errorf("unknown change %v", e.kind))
	}
	return err
}

// applyDoc makes the stored document with the given id equal nd, or
// removes it when nd is nil. Must be called with the write lock held.
func (c *Collection) applyDoc(id ID, nd *Document) error {
	var old *Document
	err := c.st.Update(func(tx *storeTx) error {
		var err error
		old, err = c.load(tx, id)
		if err != nil {
			return err
		}
		if old == nil && nd == nil {
			return nil
		}
		return c.writeDoc(tx, old, nd)
	})
	if err != nil {
		return err
	}
	switch {
	case nd == nil && old != nil:
		c.emitDocs(EventRemove, []*Document{old})
	case nd != nil && old == nil:
		c.emitDocs(EventInsert, []*Document{nd})
	case nd != nil:
		c.emitDocs(EventUpdate, []*Document{nd})
	}
	return nil
}

// Rollback discards the recorded writes.
func (t *Transaction) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkActive(); err != nil {
		return err
	}
	t.end(txRolledBack)
	return nil
}

// Close rolls back an active transaction and does nothing otherwise, so it
// can be deferred right after BeginTransaction.
func (t *Transaction) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == txActive {
		t.end(txRolledBack)
	}
}

func (t *Transaction) end(state txState) {
	t.state = state
	t.log = nil
	t.private.Close()
	t.private.st.Close()
	if t.tracker != nil {
		t.tracker.remove(t)
	}
	t.primary.gate.Unlock()
}

// undoLog remembers what a commit replay changed so it can be reverted.
type undoLog struct {
	before         map[ID]*Document
	order          []ID
	createdIndexes [][]string
	droppedIndexes []*IndexDescriptor
}

func newUndoLog() *undoLog {
	return &undoLog{before: make(map[ID]*Document)}
}

func (u *undoLog) recordDoc(id ID, old *Document) {
	if u == nil {
		return
	}
	if _, seen := u.before[id]; seen {
		return
	}
	u.before[id] = old
	u.order = append(u.order, id)
}

func (u *undoLog) recordCreatedIndex(fields []string) {
	if u != nil {
		u.createdIndexes = append(u.createdIndexes, slices.Clone(fields))
	}
}

func (u *undoLog) recordDroppedIndex(desc *IndexDescriptor) {
	if u != nil {
		u.droppedIndexes = append(u.droppedIndexes, desc.clone())
	}
}

// revert restores the documents and indexes recorded in u. Must be called
// with the write lock held and c.undo unset.
func (c *Collection) revert(u *undoLog) error {
	for _, fields := range slices.Backward(u.createdIndexes) {
		if c.catalog.has(fields) {
			if err := c.dropIndexLocked(fields); err != nil {
				return err
			}
		}
	}
	err := c.st.Update(func(tx *storeTx) error {
		for _, id := range slices.Backward(u.order) {
			cur, err := c.load(tx, id)
			if err != nil {
				return err
			}
			before := u.before[id]
			if cur == nil && before == nil {
				continue
			}
			if err := c.writeDoc(tx, cur, before); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, desc := range slices.Backward(u.droppedIndexes) {
		if c.catalog.has(desc.Fields) {
			continue
		}
		if err := c.createIndexLocked(desc.Fields, IndexOptions{Kind: desc.Kind}, true); err != nil {
			return err
		}
	}
	return nil
}

// txnTracker keeps the open transactions of a database for diagnostics.
type txnTracker struct {
	mu   sync.Mutex
	txns []*Transaction
}

func (tt *txnTracker) add(t *Transaction) {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	tt.txns = append(tt.txns, t)
}

func (tt *txnTracker) remove(t *Transaction) {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	i := slices.Index(tt.txns, t)
	if i < 0 {
		panic("transaction not found in list")
	}
	n := len(tt.txns)
	tt.txns[i] = tt.txns[n-1]
	tt.txns[n-1] = nil // ensure it gets collected
	tt.txns = tt.txns[:n-1]
}

func (tt *txnTracker) describe() string {
	tt.mu.Lock()
	txns := slices.Clone(tt.txns)
	tt.mu.Unlock()

	if len(txns) == 0 {
		return "NO OPEN TRANSACTIONS"
	}

	slices.SortFunc(txns, func(a, b *Transaction) int {
		return a.startTime.Compare(b.startTime)
	})

	now := time.Now()

	var buf strings.Builder
	fmt.Fprintf(&buf, "%d OPEN TRANSACTIONS:\n", len(txns))
	for _, t := range txns {
		ms := now.Sub(t.startTime).Milliseconds()
		if ms < 100 {
			fmt.Fprintf(&buf, "\n---\n%s on %s open for %d ms\n", t.id, t.primary.name, ms)
		} else {
			fmt.Fprintf(&buf, "\n---\n%s on %s open for %d ms:\n%s", t.id, t.primary.name, ms, t.stack)
		}
	}
	return buf.String()
}
