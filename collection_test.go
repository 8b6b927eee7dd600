package docdb

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func insertAll(t testing.TB, c *Collection, docs ...*Document) []ID {
	t.Helper()
	res, err := c.Insert(docs...)
	require.NoError(t, err)
	return res.IDs
}

func TestCollectionDropIndexFallsBackToScan(t *testing.T) {
	c := setupColl(t, "users")
	insertAll(t, c, Doc("firstName", "fn1"), Doc("firstName", "fn2"), Doc("firstName", "fn3"))
	require.NoError(t, c.CreateIndex(IndexOptions{Kind: Unique}, "firstName"))

	cur := must(c.Find(Eq("firstName", "fn1")))
	deepEqual(t, cur.Size(), 1)
	deepEqual(t, cur.Plan().IndexScan != nil, true)

	require.NoError(t, c.DropIndex("firstName"))
	cur = must(c.Find(Eq("firstName", "fn1")))
	deepEqual(t, cur.Size(), 1)
	deepEqual(t, cur.Plan().collectionScan(), true)
}

func TestCollectionInsertAssignsMetadata(t *testing.T) {
	c := setupColl(t, "c")
	d := Doc("a", 1)
	ids := insertAll(t, c, d)
	deepEqual(t, d.ID(), ids[0])

	got := must(c.GetByID(ids[0]))
	deepEqual(t, got.Revision(), int64(1))
	deepEqual(t, got.Get(FieldModified).Kind(), KindInt)
	docsEqual(t, []*Document{got}, Doc("a", 1))

	// the caller's document is not the stored one
	ensure(d.Put("a", 2))
	deepEqual(t, must(c.GetByID(ids[0])).Get("a").Interface(), any(int64(1)))

	_, err := c.Insert(d)
	require.ErrorIs(t, err, ErrUniqueConstraint)
	isnil(t, must(c.GetByID(ID(12345))))
}

func TestCollectionBatchInsertIsPartial(t *testing.T) {
	c := setupColl(t, "c")
	require.NoError(t, c.CreateIndex(IndexOptions{Kind: Unique}, "email"))
	res, err := c.Insert(Doc("email", "a"), Doc("email", "b"), Doc("email", "a"), Doc("email", "c"))
	require.ErrorIs(t, err, ErrUniqueConstraint)
	deepEqual(t, res.AffectedCount(), 2)
	deepEqual(t, must(c.Size()), 2)

	var ce *CollectionError
	require.ErrorAs(t, err, &ce)
	deepEqual(t, ce.Index, []string{"email"})
}

func TestCollectionUniqueIndex(t *testing.T) {
	c := setupColl(t, "c")
	require.NoError(t, c.CreateIndex(IndexOptions{}, "email"))
	deepEqual(t, must(c.ListIndices())[0].Kind, Unique)

	ids := insertAll(t, c, Doc("email", "a"), Doc("email", "b"), Doc("name", "no email"), Doc("name", "none either"))

	_, err := c.Update(Eq("email", "b"), Doc("email", "a"))
	require.ErrorIs(t, err, ErrUniqueConstraint)
	deepEqual(t, must(c.GetByID(ids[1])).Get("email").Interface(), any("b"))

	// a document may keep its own value
	_, err = c.Update(Eq("email", "a"), Doc("email", "a", "x", 1))
	require.NoError(t, err)

	// equal numbers are the same key
	require.NoError(t, c.CreateIndex(IndexOptions{Kind: Unique}, "n"))
	insertAll(t, c, Doc("n", 1))
	_, err = c.Insert(Doc("n", 1.0))
	require.ErrorIs(t, err, ErrUniqueConstraint)

	// existing duplicates make the build fail and the index disappear
	insertAll(t, c, Doc("dup", "x"), Doc("dup", "x"))
	err = c.CreateIndex(IndexOptions{Kind: Unique}, "dup")
	require.ErrorIs(t, err, ErrUniqueConstraint)
	deepEqual(t, must(c.HasIndex("dup")), false)
}

func TestCollectionNonUniqueAndCompoundIndexes(t *testing.T) {
	c := setupColl(t, "people")
	require.NoError(t, c.CreateIndex(IndexOptions{Kind: NonUnique}, "city", "age"))
	require.NoError(t, c.CreateIndex(IndexOptions{Kind: NonUnique}, "age"))
	insertAll(t, c,
		Doc("name", "ann", "city", "Paris", "age", 31),
		Doc("name", "bob", "city", "Paris", "age", 25),
		Doc("name", "cid", "city", "Rome", "age", 40),
		Doc("name", "dan", "city", "Paris", "age", 25.5),
		Doc("name", "eve", "age", "unknown"),
	)

	deepEqual(t, fieldOf(findDocs(t, c, And(Eq("city", "Paris"), Gt("age", 25)), Sort("age", Ascending)), "name"), []any{"dan", "ann"})
	deepEqual(t, fieldOf(findDocs(t, c, Eq("city", "Paris"), Sort("age", Descending)), "name"), []any{"ann", "dan", "bob"})
	deepEqual(t, fieldOf(findDocs(t, c, Between("age", 25, 31, false, true), Sort("age", Ascending)), "name"), []any{"dan", "ann"})
	deepEqual(t, fieldOf(findDocs(t, c, Lte("age", 25.5), Sort("age", Ascending)), "name"), []any{"bob", "dan"})
	deepEqual(t, fieldOf(findDocs(t, c, In("age", 40, 25), Sort("name", Ascending)), "name"), []any{"bob", "cid"})
	deepEqual(t, fieldOf(findDocs(t, c, Eq("age", "unknown")), "name"), []any{"eve"})
	deepEqual(t, fieldOf(findDocs(t, c, Gt("age", "a")), "name"), []any{"eve"})
}

func TestCollectionIndexAndScanAgree(t *testing.T) {
	indexed := setupColl(t, "a")
	plain := setupColl(t, "b")
	require.NoError(t, indexed.CreateIndex(IndexOptions{Kind: NonUnique}, "v"))
	require.NoError(t, indexed.CreateIndex(IndexOptions{Kind: NonUnique}, "w"))
	vals := []any{nil, 3, 1.5, -2, "x", "", true, []byte{1}, 3.0, "y"}
	for i, v := range vals {
		d1, d2 := Doc("v", v, "w", i%3), Doc("v", v, "w", i%3)
		ensure(d1.Put(FieldID, ID(i+1).String()))
		ensure(d2.Put(FieldID, ID(i+1).String()))
		insertAll(t, indexed, d1)
		insertAll(t, plain, d2)
	}
	filters := []Filter{
		Eq("v", 3), Eq("v", "x"), Eq("v", nil), Gt("v", 1), Gte("v", 1.5), Lt("v", "y"), Lte("v", 3),
		Between("v", -2, 3, true, false), In("v", 3, "x", true), Or(Eq("v", 3), Eq("w", 1)),
		And(Eq("w", 0), Gt("v", 0)),
	}
	for _, f := range filters {
		a := must(indexed.Find(f, Sort(FieldID, Ascending)))
		b := must(plain.Find(f, Sort(FieldID, Ascending)))
		deepEqual(t, a.IDs(), b.IDs())
	}
}

func TestCollectionUpdate(t *testing.T) {
	c := setupColl(t, "c")
	ids := insertAll(t, c, Doc("k", "a", "n", 1), Doc("k", "a", "n", 2), Doc("k", "b", "n", 3))

	res, err := c.Update(Eq("k", "a"), Doc("tag", "x", FieldRevision, 99))
	require.NoError(t, err)
	deepEqual(t, len(res.IDs), 2)
	d := must(c.GetByID(ids[0]))
	deepEqual(t, d.Get("tag").Interface(), any("x"))
	deepEqual(t, d.Revision(), int64(2))

	res, err = c.Update(Eq("k", "a"), Doc("once", true), JustOnce())
	require.NoError(t, err)
	deepEqual(t, len(res.IDs), 1)

	res, err = c.Update(Eq("k", "zzz"), Doc("k", "zzz"))
	require.NoError(t, err)
	deepEqual(t, res.AffectedCount(), 0)

	res, err = c.Update(Eq("k", "zzz"), Doc("k", "zzz"), InsertIfAbsent())
	require.NoError(t, err)
	deepEqual(t, res.AffectedCount(), 1)
	deepEqual(t, must(c.Size()), 4)

	_, err = c.Update(All(), nil)
	require.ErrorIs(t, err, ErrValidation)
}

func TestCollectionUpdateDocument(t *testing.T) {
	c := setupColl(t, "c")
	ids := insertAll(t, c, Doc("a", 1))

	d := must(c.GetByID(ids[0]))
	ensure(d.Put("a", 2))
	res, err := c.UpdateDocument(d, false)
	require.NoError(t, err)
	deepEqual(t, res.IDs, ids)
	deepEqual(t, must(c.GetByID(ids[0])).Get("a").Interface(), any(int64(2)))

	_, err = c.UpdateDocument(Doc("a", 3), false)
	require.ErrorIs(t, err, ErrNotIdentifiable)

	res, err = c.UpdateDocument(Doc("a", 3), true)
	require.NoError(t, err)
	deepEqual(t, res.AffectedCount(), 1)

	ghost := Doc("a", 4)
	ensure(ghost.Put(FieldID, "999"))
	res, err = c.UpdateDocument(ghost, false)
	require.NoError(t, err)
	deepEqual(t, res.AffectedCount(), 0)
}

func TestCollectionRemove(t *testing.T) {
	c := setupColl(t, "c")
	require.NoError(t, c.CreateIndex(IndexOptions{Kind: NonUnique}, "k"))
	ids := insertAll(t, c, Doc("k", 1), Doc("k", 1), Doc("k", 2))

	res, err := c.Remove(Eq("k", 1), true)
	require.NoError(t, err)
	deepEqual(t, res.AffectedCount(), 1)
	deepEqual(t, must(c.Find(Eq("k", 1))).Size(), 1)

	_, err = c.RemoveDocument(Doc("k", 2))
	require.ErrorIs(t, err, ErrNotIdentifiable)

	res, err = c.RemoveDocument(must(c.GetByID(ids[2])))
	require.NoError(t, err)
	deepEqual(t, res.IDs, []ID{ids[2]})

	res, err = c.Remove(All(), false)
	require.NoError(t, err)
	deepEqual(t, res.AffectedCount(), 1)
	deepEqual(t, must(c.Size()), 0)
	deepEqual(t, must(c.Stats()).IndexEntries, 0)
}

func TestCollectionClearKeepsIndexes(t *testing.T) {
	c := setupColl(t, "c")
	require.NoError(t, c.CreateIndex(IndexOptions{Kind: Unique}, "k"))
	insertAll(t, c, Doc("k", 1), Doc("k", 2))
	require.NoError(t, c.Clear())
	deepEqual(t, must(c.Size()), 0)
	deepEqual(t, must(c.HasIndex("k")), true)
	insertAll(t, c, Doc("k", 1))
}

func TestCollectionFindWindowAndSort(t *testing.T) {
	c := setupColl(t, "c")
	for i := range 10 {
		insertAll(t, c, Doc("n", i, "parity", i%2))
	}
	deepEqual(t, fieldOf(findDocs(t, c, All(), Sort("n", Descending), Skip(2), Limit(3)), "n"), []any{int64(7), int64(6), int64(5)})
	deepEqual(t, fieldOf(findDocs(t, c, Eq("parity", 0), Sort("n", Ascending), Limit(2)), "n"), []any{int64(0), int64(2)})
	deepEqual(t, len(findDocs(t, c, All(), Skip(20))), 0)
	deepEqual(t, fieldOf(findDocs(t, c, All(), Sort("parity", Descending), ThenSort("n", Ascending), Limit(3)), "n"), []any{int64(1), int64(3), int64(5)})

	// the same through an index
	require.NoError(t, c.CreateIndex(IndexOptions{Kind: Unique}, "n"))
	cur := must(c.Find(All(), Sort("n", Descending), Skip(2), Limit(3)))
	isempty(t, cur.Plan().BlockingSort)
	deepEqual(t, fieldOf(must(cur.All()), "n"), []any{int64(7), int64(6), int64(5)})

	first := must(must(c.Find(Gt("n", 4))).First())
	deepEqual(t, first.Get("n").Interface(), any(int64(5)))
}

func TestCollectionSortErrorsAndNulls(t *testing.T) {
	c := setupColl(t, "c")
	insertAll(t, c, Doc("v", 2), Doc("v", nil), Doc("w", 1), Doc("v", 1))
	deepEqual(t, fieldOf(findDocs(t, c, All(), Sort("v", Ascending)), "v"), []any{nil, nil, int64(1), int64(2)})

	insertAll(t, c, Doc("v", "str"))
	_, err := c.Find(All(), Sort("v", Ascending))
	require.ErrorIs(t, err, ErrComparison)
}

func TestCollectionCollation(t *testing.T) {
	c := setupColl(t, "c")
	insertAll(t, c, Doc("s", "Zebra"), Doc("s", "apple"), Doc("s", "Äpfel"))
	deepEqual(t, fieldOf(findDocs(t, c, All(), Sort("s", Ascending)), "s"), []any{"Zebra", "apple", "Äpfel"})
	deepEqual(t, fieldOf(findDocs(t, c, All(), Sort("s", Ascending), Collation("de")), "s"), []any{"Äpfel", "apple", "Zebra"})
}

func TestCollectionFullText(t *testing.T) {
	c := setupColl(t, "posts")
	_, err := c.Find(Text("body", "fox"))
	require.ErrorIs(t, err, ErrFilter)

	require.NoError(t, c.CreateIndex(IndexOptions{Kind: Fulltext}, "body"))
	insertAll(t, c,
		Doc("t", 1, "body", "The quick brown fox"),
		Doc("t", 2, "body", "A lazy dog sleeps"),
		Doc("t", 3, "body", "Quick thinking"),
		Doc("t", 4, "other", "no body"),
	)

	deepEqual(t, fieldOf(findDocs(t, c, Text("body", "quick fox")), "t"), []any{int64(1), int64(3)})
	deepEqual(t, fieldOf(findDocs(t, c, Text("body", "dog")), "t"), []any{int64(2)})
	deepEqual(t, fieldOf(findDocs(t, c, Text("body", "quic*"), Sort("t", Ascending)), "t"), []any{int64(1), int64(3)})
	deepEqual(t, fieldOf(findDocs(t, c, Text("body", "*eeps")), "t"), []any{int64(2)})
	deepEqual(t, fieldOf(findDocs(t, c, Text("body", "*hink*")), "t"), []any{int64(3)})
	deepEqual(t, len(findDocs(t, c, Text("body", "the"))), 0)

	_, err = c.Insert(Doc("body", 42))
	require.ErrorIs(t, err, ErrIndexing)

	_, err = c.Update(Eq("t", 2), Doc("body", "energetic dog"))
	require.NoError(t, err)
	deepEqual(t, len(findDocs(t, c, Text("body", "lazy"))), 0)
	deepEqual(t, fieldOf(findDocs(t, c, Text("body", "energetic")), "t"), []any{int64(2)})
}

func TestCollectionElemMatchAndProjection(t *testing.T) {
	c := setupColl(t, "orders")
	insertAll(t, c,
		Doc("no", 1, "items", []any{map[string]any{"sku": "a", "qty": 1}, map[string]any{"sku": "b", "qty": 9}}, "meta", map[string]any{"src": "web", "ip": "1.2.3.4"}),
		Doc("no", 2, "items", []any{map[string]any{"sku": "b", "qty": 2}}, "meta", map[string]any{"src": "app"}),
	)
	docs := findDocs(t, c, ElemMatch("items", And(Eq("sku", "b"), Gt("qty", 5))))
	deepEqual(t, fieldOf(docs, "no"), []any{int64(1)})

	cur := must(c.Find(All(), Sort("no", Ascending)))
	projected := must(cur.Project(Doc("no", nil, "meta.src", nil)).All())
	docsEqual(t, projected, Doc("no", 1, "meta", map[string]any{"src": "web"}), Doc("no", 2, "meta", map[string]any{"src": "app"}))
	deepEqual(t, projected[0].HasID(), false)
}

func TestCollectionJoin(t *testing.T) {
	db := setupMem(t)
	users := must(db.Collection("users"))
	orders := must(db.Collection("orders"))
	insertAll(t, users, Doc("uid", 1, "name", "ann"), Doc("uid", 2, "name", "bob"))
	insertAll(t, orders, Doc("uid", 1, "total", 10), Doc("uid", 1, "total", 5))

	cur := must(users.Find(All(), Sort("uid", Ascending)))
	docs := must(cur.Join(must(orders.Find(All(), Sort("total", Ascending))), Lookup{LocalField: "uid", ForeignField: "uid", TargetField: "orders"}).All())
	deepEqual(t, len(docs), 2)
	deepEqual(t, docs[0].Get("orders.total").Interface(), any([]any{int64(5), int64(10)}))
	deepEqual(t, docs[1].Contains("orders"), false)
}

func TestCollectionAsyncRebuild(t *testing.T) {
	c := setupColl(t, "c")
	for i := range 200 {
		insertAll(t, c, Doc("f", i%7, "i", i))
	}
	require.NoError(t, c.CreateIndex(IndexOptions{Kind: NonUnique}, "f"))
	before := must(c.Find(Eq("f", 3), Sort("i", Ascending))).IDs()
	deepEqual(t, len(before), 29)

	release := make(chan struct{})
	testHookBeforeAsyncBuild = func() { <-release }
	defer func() { testHookBeforeAsyncBuild = nil }()

	require.NoError(t, c.RebuildIndex([]string{"f"}, true))
	deepEqual(t, must(c.IsIndexing("f")), true)

	// while building, queries fall back to scanning
	cur := must(c.Find(Eq("f", 3), Sort("i", Ascending)))
	deepEqual(t, cur.Plan().collectionScan(), true)
	deepEqual(t, cur.IDs(), before)

	require.ErrorIs(t, c.DropIndex("f"), ErrIndexing)
	require.ErrorIs(t, c.RebuildIndex([]string{"f"}, false), ErrIndexing)

	close(release)
	require.Eventually(t, func() bool { return !must(c.IsIndexing("f")) }, 5*time.Second, time.Millisecond)
	cur = must(c.Find(Eq("f", 3), Sort("i", Ascending)))
	deepEqual(t, cur.Plan().IndexScan != nil, true)
	deepEqual(t, cur.IDs(), before)
}

func TestCollectionAsyncCreate(t *testing.T) {
	c := setupColl(t, "c")
	insertAll(t, c, Doc("f", 1), Doc("f", 2))
	require.NoError(t, c.CreateIndex(IndexOptions{Kind: Unique, Async: true}, "f"))
	require.Eventually(t, func() bool { return !must(c.IsIndexing("f")) }, 5*time.Second, time.Millisecond)
	deepEqual(t, must(c.Find(Eq("f", 2))).Plan().IndexScan != nil, true)

	err := c.RebuildIndex([]string{"missing"}, false)
	require.ErrorIs(t, err, ErrIndexing)
}

func TestCollectionIndexValidation(t *testing.T) {
	c := setupColl(t, "c")
	for _, tt := range []struct {
		opts   IndexOptions
		fields []string
	}{
		{IndexOptions{Kind: NonUnique}, nil},
		{IndexOptions{Kind: Fulltext}, []string{"a", "b"}},
		{IndexOptions{Kind: IndexKind(9)}, []string{"a"}},
		{IndexOptions{Kind: Unique}, []string{"a", "a"}},
		{IndexOptions{Kind: Unique}, []string{"a,b"}},
	} {
		err := c.CreateIndex(tt.opts, tt.fields...)
		if !errors.Is(err, ErrValidation) {
			t.Errorf("CreateIndex(%v, %v) err = %v, wanted ErrValidation", tt.opts, tt.fields, err)
		}
	}
	require.NoError(t, c.CreateIndex(IndexOptions{Kind: Unique}, "a"))
	require.ErrorIs(t, c.CreateIndex(IndexOptions{Kind: NonUnique}, "a"), ErrIndexing)
	require.NoError(t, c.CreateIndex(IndexOptions{Kind: NonUnique}, "b"))
	require.NoError(t, c.DropAllIndices())
	isempty(t, must(c.ListIndices()))

	// documents and arrays cannot be indexed by comparable indexes
	require.NoError(t, c.CreateIndex(IndexOptions{Kind: NonUnique}, "x"))
	_, err := c.Insert(Doc("x", []any{1}))
	require.ErrorIs(t, err, ErrIndexing)
}

func TestCollectionEvents(t *testing.T) {
	c := setupColl(t, "c")
	events := make(chan Event, 16)
	sub := must(c.Subscribe(func(ev Event) { events <- ev }))

	next := func() Event {
		t.Helper()
		select {
		case ev := <-events:
			return ev
		case <-time.After(5 * time.Second):
			t.Fatalf("no event")
			return Event{}
		}
	}

	ids := insertAll(t, c, Doc("a", 1), Doc("a", 2))
	ev := next()
	deepEqual(t, ev.Type, EventInsert)
	deepEqual(t, ev.Collection, "c")
	deepEqual(t, len(ev.Documents), 2)
	deepEqual(t, ev.Documents[0].ID(), ids[0])

	must(c.Update(Eq("a", 1), Doc("b", 1)))
	ev = next()
	deepEqual(t, ev.Type, EventUpdate)
	deepEqual(t, ev.Documents[0].Get("b").Interface(), any(int64(1)))

	require.NoError(t, c.CreateIndex(IndexOptions{Kind: NonUnique}, "a"))
	deepEqual(t, next().Type, EventIndexStart)
	ev = next()
	deepEqual(t, ev.Type, EventIndexEnd)
	deepEqual(t, ev.Fields, []string{"a"})

	must(c.Remove(Eq("a", 2), false))
	deepEqual(t, next().Type, EventRemove)

	c.Unsubscribe(sub)
	insertAll(t, c, Doc("a", 3))
	select {
	case ev := <-events:
		t.Errorf("got %v after unsubscribing", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCollectionRebuildsDirtyIndexOnOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dirty.db")
	db := must(Open(path, Options{IsTesting: true}))
	c := must(db.Collection("c"))
	require.NoError(t, c.CreateIndex(IndexOptions{Kind: NonUnique}, "k"))
	insertAll(t, c, Doc("k", 1), Doc("k", 2))

	// simulate a crash in the middle of a rebuild
	require.NoError(t, c.st.Update(func(tx *storeTx) error {
		if err := c.catalog.beginBuild(tx, []string{"k"}); err != nil {
			return err
		}
		return tx.Map(c.catalog.find([]string{"k"}).MapName).Clear()
	}))
	require.NoError(t, db.Close())

	db = must(Open(path, Options{IsTesting: true}))
	defer db.Close()
	c = must(db.Collection("c"))
	deepEqual(t, must(c.IsIndexing("k")), false)
	cur := must(c.Find(Eq("k", 2)))
	deepEqual(t, cur.Size(), 1)
	deepEqual(t, cur.Plan().IndexScan != nil, true)
}

func TestCollectionCloseAndDrop(t *testing.T) {
	db := setupMem(t)
	c := must(db.Collection("c"))
	insertAll(t, c, Doc("a", 1))
	require.NoError(t, c.CreateIndex(IndexOptions{Kind: Unique}, "a"))
	require.NoError(t, c.SetAttributes(map[string]string{"k": "v"}))

	require.NoError(t, c.Close())
	deepEqual(t, c.IsOpen(), false)
	_, err := c.Insert(Doc("a", 2))
	require.ErrorIs(t, err, ErrClosed)
	_, err = c.Find(All())
	require.ErrorIs(t, err, ErrClosed)
	_, err = c.HasIndex("a")
	require.ErrorIs(t, err, ErrClosed)
	_, err = c.IsIndexing("a")
	require.ErrorIs(t, err, ErrClosed)
	_, err = c.ListIndices()
	require.ErrorIs(t, err, ErrClosed)
	_, err = c.Attributes()
	require.ErrorIs(t, err, ErrClosed)
	_, err = c.Subscribe(func(Event) {})
	require.ErrorIs(t, err, ErrClosed)
	require.NoError(t, c.Close())

	c = must(db.Collection("c"))
	deepEqual(t, must(c.Size()), 1)
	deepEqual(t, must(c.Attributes()), map[string]string{"k": "v"})
	deepEqual(t, must(c.HasIndex("a")), true)

	require.NoError(t, c.Drop())
	deepEqual(t, c.IsDropped(), true)
	deepEqual(t, db.HasCollection("c"), false)
	require.ErrorIs(t, c.Drop(), ErrClosed)

	c = must(db.Collection("c"))
	deepEqual(t, must(c.Size()), 0)
	deepEqual(t, must(c.HasIndex("a")), false)
}

func TestCollectionStatsAndDump(t *testing.T) {
	db := setupMem(t)
	c := must(db.Collection("c"))
	require.NoError(t, c.CreateIndex(IndexOptions{Kind: NonUnique}, "a"))
	require.NoError(t, c.CreateIndex(IndexOptions{Kind: Fulltext}, "t"))
	insertAll(t, c, Doc("a", 1, "t", "hello world"), Doc("a", 2))

	stats := must(c.Stats())
	deepEqual(t, stats.Documents, 2)
	deepEqual(t, stats.IndexEntries, 4)
	if stats.DataSize <= 0 || stats.TotalSize() < stats.DataSize {
		t.Errorf("** got %+v, wanted positive sizes", stats)
	}

	out := c.Dump(DumpAll)
	for _, part := range []string{"c.i.a (nonunique)", "c.i.t (fulltext)", `"a":1`} {
		require.Contains(t, out, part)
	}
	require.NotContains(t, c.Dump(DumpCollectionHeaders), `"a":1`)
}

func TestCollectionNames(t *testing.T) {
	db := setupMem(t)
	for _, name := range []string{"", "a|b", "$x"} {
		if _, err := db.Collection(name); !errors.Is(err, ErrValidation) {
			t.Errorf("Collection(%q) err = %v, wanted ErrValidation", name, err)
		}
	}
}

func TestCollectionFailedRebuildKeepsIndex(t *testing.T) {
	c := setupColl(t, "c")
	require.NoError(t, c.CreateIndex(IndexOptions{Kind: NonUnique}, "n"))
	ids := insertAll(t, c, Doc("n", 1), Doc("n", 2))
	require.NoError(t, c.st.Update(func(stx *storeTx) error {
		return stx.Map(c.name).Put(ids[1].key(), []byte{0x7F, 0x00})
	}))

	var de *DataError
	require.ErrorAs(t, c.RebuildIndex([]string{"n"}, false), &de)
	deepEqual(t, must(c.IsIndexing("n")), false)
	deepEqual(t, must(c.HasIndex("n")), true)

	cur := must(c.Find(Eq("n", 1)))
	deepEqual(t, cur.Size(), 1)
	deepEqual(t, cur.Plan().IndexScan != nil, true)
}
