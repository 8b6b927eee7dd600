package docdb

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

type SortOrder int

const (
	Ascending SortOrder = iota
	Descending
)

func (o SortOrder) String() string {
	if o == Descending {
		return "desc"
	}
	return "asc"
}

type SortSpec struct {
	Field string
	Order SortOrder
}

func (s SortSpec) String() string {
	return s.Field + " " + s.Order.String()
}

func formatSortSpecs(specs []SortSpec) string {
	parts := make([]string, len(specs))
	for i, s := range specs {
		parts[i] = s.String()
	}
	return strings.Join(parts, ", ")
}

type findOptions struct {
	sort      []SortSpec
	skip      int
	limit     int
	collation string
}

func makeFindOptions(opts []FindOption) (*findOptions, error) {
	fo := &findOptions{limit: -1}
	for _, opt := range opts {
		opt(fo)
	}
	if fo.skip < 0 {
		return nil, validationErrf("negative skip %d", fo.skip)
	}
	if fo.collation != "" {
		if _, err := language.Parse(fo.collation); err != nil {
			return nil, filterErrf("invalid collation %q: %v", fo.collation, err)
		}
	}
	return fo, nil
}

// FindOption adjusts the order and window of Find results.
type FindOption func(fo *findOptions)

// Sort replaces the sort order with a single field.
func Sort(field string, order SortOrder) FindOption {
	return func(fo *findOptions) {
		fo.sort = []SortSpec{{field, order}}
	}
}

// ThenSort adds a tie-breaking sort field.
func ThenSort(field string, order SortOrder) FindOption {
	return func(fo *findOptions) {
		fo.sort = append(fo.sort, SortSpec{field, order})
	}
}

func Skip(n int) FindOption {
	return func(fo *findOptions) { fo.skip = n }
}

// Limit caps the number of results. A negative n means no limit.
func Limit(n int) FindOption {
	return func(fo *findOptions) { fo.limit = n }
}

// Collation sorts strings by the rules of a BCP 47 language tag, like "de"
// or "sv-SE", instead of by bytes.
func Collation(tag string) FindOption {
	return func(fo *findOptions) { fo.collation = tag }
}

// Cursor iterates over the results of one Find call. The results are
// captured when Find runs; later writes to the collection are not seen.
type Cursor struct {
	plan *Plan
	docs []*Document
	pos  int
	cur  *Document
	err  error

	transforms []func(*Document) (*Document, error)
}

func (c *Cursor) Next() bool {
	if c.err != nil || c.pos >= len(c.docs) {
		c.cur = nil
		return false
	}
	d := c.docs[c.pos].Clone()
	c.pos++
	for _, t := range c.transforms {
		var err error
		d, err = t(d)
		if err != nil {
			c.err, c.cur = err, nil
			return false
		}
	}
	c.cur = d
	return true
}

// Doc returns the document Next moved to.
func (c *Cursor) Doc() *Document { return c.cur }

func (c *Cursor) Err() error { return c.err }

// All returns the remaining documents.
func (c *Cursor) All() ([]*Document, error) {
	var out []*Document
	for c.Next() {
		out = append(out, c.cur)
	}
	return out, c.err
}

// First returns the first remaining document, or nil.
func (c *Cursor) First() (*Document, error) {
	if c.Next() {
		return c.cur, nil
	}
	return nil, c.err
}

// Size returns the total number of results.
func (c *Cursor) Size() int { return len(c.docs) }

// IDs returns the ids of all results in order.
func (c *Cursor) IDs() []ID {
	ids := make([]ID, len(c.docs))
	for i, d := range c.docs {
		ids[i] = d.ID()
	}
	return ids
}

func (c *Cursor) Plan() *Plan { return c.plan }

// Project keeps only the fields named by the template's leaf paths. Fields
// missing from a result are left out.
func (c *Cursor) Project(template *Document) *Cursor {
	paths := template.Fields()
	c.transforms = append(c.transforms, func(d *Document) (*Document, error) {
		out := NewDocument()
		for _, path := range paths {
			if !d.Contains(path) {
				continue
			}
			if err := out.Put(path, d.Get(path)); err != nil {
				return nil, err
			}
		}
		return out, nil
	})
	return c
}

// Lookup describes a join: documents of the foreign collection whose
// ForeignField equals the result's LocalField are stored as an array under
// TargetField.
type Lookup struct {
	LocalField   string
	ForeignField string
	TargetField  string
}

// Join adds matching documents of foreign to every result.
func (c *Cursor) Join(foreign *Cursor, lookup Lookup) *Cursor {
	var (
		loaded      bool
		foreignDocs []*Document
	)
	c.transforms = append(c.transforms, func(d *Document) (*Document, error) {
		if !loaded {
			var err error
			foreignDocs, err = foreign.All()
			if err != nil {
				return nil, err
			}
			loaded = true
		}
		local := d.Get(lookup.LocalField)
		var matches []Value
		for _, fd := range foreignDocs {
			if Equal(fd.Get(lookup.ForeignField), local) {
				matches = append(matches, DocValue(fd.Clone()))
			}
		}
		if len(matches) > 0 {
			if err := d.Put(lookup.TargetField, Array(matches...)); err != nil {
				return nil, err
			}
		}
		return d, nil
	})
	return c
}

// execute runs the plan and returns the matching documents in result order.
func (coll *Collection) execute(tx *storeTx, p *Plan) ([]*Document, error) {
	want := -1
	if len(p.BlockingSort) == 0 && p.Limit >= 0 {
		want = p.Skip + p.Limit
	}
	docs, err := coll.candidates(tx, p, want)
	if err != nil {
		return nil, err
	}
	if len(p.BlockingSort) > 0 {
		if err := sortDocuments(docs, p.BlockingSort, p.Collation); err != nil {
			return nil, err
		}
	}
	if p.Skip > 0 {
		docs = docs[min(p.Skip, len(docs)):]
	}
	if p.Limit >= 0 && len(docs) > p.Limit {
		docs = docs[:p.Limit]
	}
	return docs, nil
}

// candidates returns documents that satisfy the plan's filter, stopping
// after want documents unless want is negative.
func (coll *Collection) candidates(tx *storeTx, p *Plan, want int) ([]*Document, error) {
	var docs []*Document
	accept := func(d *Document) (bool, error) {
		if p.Residual != nil {
			ok, err := p.Residual.Match(d)
			if err != nil || !ok {
				return true, err
			}
		}
		docs = append(docs, d)
		return want < 0 || len(docs) < want, nil
	}
	byIDs := func(ids []ID) error {
		for _, id := range ids {
			d, err := coll.load(tx, id)
			if err != nil {
				return err
			}
			if d == nil {
				continue
			}
			more, err := accept(d)
			if err != nil || !more {
				return err
			}
		}
		return nil
	}

	switch {
	case p.idLookup:
		err := byIDs([]ID{p.ByID})
		return docs, err

	case p.IndexScan != nil:
		s := p.IndexScan
		var ids []ID
		switch {
		case s.text != nil:
			ids = searchText(tx, &s.Index, *s.text)
		case s.ranges != nil:
			ids = scanIndexIDs(tx, &s.Index, s.ranges, s.Reverse)
		default:
			ids = scanIndexIDs(tx, &s.Index, []RawRange{RawOO()}, s.Reverse)
		}
		err := byIDs(ids)
		return docs, err

	case len(p.SubPlans) > 0:
		set := newIDSet()
		for _, sub := range p.SubPlans {
			subDocs, err := coll.candidates(tx, sub, -1)
			if err != nil {
				return nil, err
			}
			for _, d := range subDocs {
				set.Add(d.ID())
			}
		}
		err := byIDs(set.IDs())
		return docs, err

	default:
		var err error
		tx.Map(coll.name).Scan(RawOO(), func(k, v []byte) bool {
			var d *Document
			d, err = decodeStoredDocument(v)
			if err != nil {
				err = collErrf(coll.name, nil, idFromKey(k), err, "cannot decode document")
				return false
			}
			var more bool
			more, err = accept(d)
			return err == nil && more
		})
		return docs, err
	}
}

// sortDocuments sorts in place. Missing and null values sort first. Values
// of different kinds, documents and arrays fail with ErrComparison.
func sortDocuments(docs []*Document, specs []SortSpec, collation string) error {
	var col *collate.Collator
	if collation != "" {
		col = collate.New(language.Make(collation))
	}
	var failure error
	slices.SortStableFunc(docs, func(a, b *Document) int {
		if failure != nil {
			return 0
		}
		for _, spec := range specs {
			c, err := compareForSort(a.Get(spec.Field), b.Get(spec.Field), col)
			if err != nil {
				failure = fmt.Errorf("sort by %s: %w", spec.Field, err)
				return 0
			}
			if c != 0 {
				if spec.Order == Descending {
					return -c
				}
				return c
			}
		}
		return 0
	})
	return failure
}

func compareForSort(a, b Value, col *collate.Collator) (int, error) {
	switch {
	case a.IsNull() && b.IsNull():
		return 0, nil
	case a.IsNull():
		return -1, nil
	case b.IsNull():
		return 1, nil
	}
	if col != nil && a.kind == KindString && b.kind == KindString {
		return col.CompareString(a.str, b.str), nil
	}
	return Compare(a, b)
}
