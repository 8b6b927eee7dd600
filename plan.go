package docdb

import (
	"bytes"
	"fmt"
	"slices"
	"strings"
)

// Plan is the execution strategy chosen for one query.
type Plan struct {
	// ByID is set when the query is answered by a direct id lookup.
	ByID ID

	// IndexScan is the index answering one conjunct of the filter, if any.
	IndexScan *IndexScan

	// SubPlans answer an OR whose every branch is index-backed. Their
	// results are unioned.
	SubPlans []*Plan

	// Residual is evaluated against every candidate document. Nil means
	// every candidate matches.
	Residual Filter

	// BlockingSort is the part of the requested order the candidates must
	// be sorted by in memory. Empty when the index scan already yields the
	// requested order.
	BlockingSort []SortSpec
	Collation    string

	Skip  int
	Limit int // negative means no limit

	idLookup bool
}

// IndexScan describes a scan of one index.
type IndexScan struct {
	Index   IndexDescriptor
	Filters []Filter // conjuncts answered by the scan
	Reverse bool

	ranges []RawRange
	text   *textQuery
}

func (p *Plan) collectionScan() bool {
	return !p.idLookup && p.IndexScan == nil && len(p.SubPlans) == 0
}

func (p *Plan) String() string {
	var buf strings.Builder
	p.format(&buf, "")
	return buf.String()
}

func (p *Plan) format(w *strings.Builder, indent string) {
	switch {
	case p.idLookup:
		fmt.Fprintf(w, "%sid lookup %s\n", indent, p.ByID)
	case p.IndexScan != nil:
		s := p.IndexScan
		dir := ""
		if s.Reverse {
			dir = " reverse"
		}
		fmt.Fprintf(w, "%sindex scan %s%s", indent, s.Index, dir)
		if len(s.Filters) > 0 {
			fmt.Fprintf(w, " for %s", joinFilters(s.Filters, " && "))
		}
		w.WriteByte('\n')
	case len(p.SubPlans) > 0:
		fmt.Fprintf(w, "%sunion of %d plans\n", indent, len(p.SubPlans))
		for _, sub := range p.SubPlans {
			sub.format(w, indent+indentStep)
		}
	default:
		fmt.Fprintf(w, "%scollection scan\n", indent)
	}
	if p.Residual != nil {
		fmt.Fprintf(w, "%sfilter %s\n", indent, p.Residual)
	}
	if len(p.BlockingSort) > 0 {
		fmt.Fprintf(w, "%ssort %s", indent, formatSortSpecs(p.BlockingSort))
		if p.Collation != "" {
			fmt.Fprintf(w, " collation %s", p.Collation)
		}
		w.WriteByte('\n')
	}
	if p.Skip > 0 {
		fmt.Fprintf(w, "%sskip %d\n", indent, p.Skip)
	}
	if p.Limit >= 0 {
		fmt.Fprintf(w, "%slimit %d\n", indent, p.Limit)
	}
}

// planner picks a plan given a snapshot of the collection's indexes.
type planner struct {
	coll    string
	indexes []*IndexDescriptor // clean indexes only
}

func newPlanner(coll string, all []*IndexDescriptor) *planner {
	pl := &planner{coll: coll}
	for _, desc := range all {
		if !desc.Dirty {
			pl.indexes = append(pl.indexes, desc)
		}
	}
	return pl
}

func (pl *planner) plan(filter Filter, fo *findOptions) (*Plan, error) {
	if filter == nil {
		filter = All()
	}
	if err := pl.check(filter); err != nil {
		return nil, err
	}
	p, err := pl.planFilter(filter)
	if err != nil {
		return nil, err
	}
	p.Skip, p.Limit = fo.skip, fo.limit
	if len(fo.sort) > 0 {
		pl.planSort(p, fo)
	}
	return p, nil
}

// check surfaces filter construction errors and text filters that have no
// usable index.
func (pl *planner) check(f Filter) error {
	switch f := f.(type) {
	case *invalidFilter:
		return f.err
	case *textFilter:
		if f.err != nil {
			return f.err
		}
		if pl.fulltextIndex(f.field) == nil {
			return collErrf(pl.coll, []string{f.field}, 0, ErrFilter, "no full-text index available for text search")
		}
	case *andFilter:
		for _, sub := range f.filters {
			if err := pl.check(sub); err != nil {
				return err
			}
		}
	case *orFilter:
		for _, sub := range f.filters {
			if err := pl.check(sub); err != nil {
				return err
			}
		}
	case *notFilter:
		return pl.check(f.filter)
	case *elemMatchFilter:
		var err error
		walkFilters(f.elem, func(sub Filter) {
			if bad, ok := sub.(*invalidFilter); ok && err == nil {
				err = bad.err
			}
		})
		return err
	}
	return nil
}

func (pl *planner) fulltextIndex(field string) *IndexDescriptor {
	for _, desc := range pl.indexes {
		if desc.Kind == Fulltext && desc.Fields[0] == field {
			return desc
		}
	}
	return nil
}

// flattenAnd returns the conjuncts of f, dropping All.
func flattenAnd(f Filter, out []Filter) []Filter {
	switch f := f.(type) {
	case *andFilter:
		for _, sub := range f.filters {
			out = flattenAnd(sub, out)
		}
	case allFilter:
	default:
		out = append(out, f)
	}
	return out
}

func residualOf(conjuncts []Filter, consumed []bool) Filter {
	var rest []Filter
	for i, f := range conjuncts {
		if consumed == nil || !consumed[i] {
			rest = append(rest, f)
		}
	}
	switch len(rest) {
	case 0:
		return nil
	case 1:
		return rest[0]
	default:
		return &andFilter{rest}
	}
}

func (pl *planner) planFilter(filter Filter) (*Plan, error) {
	conjuncts := flattenAnd(filter, nil)
	p := &Plan{Limit: -1}

	for i, f := range conjuncts {
		if id, ok := idEquality(f); ok {
			consumed := make([]bool, len(conjuncts))
			consumed[i] = true
			p.idLookup, p.ByID = true, id
			p.Residual = residualOf(conjuncts, consumed)
			return p, nil
		}
	}

	if best := pl.bestScan(conjuncts); best != nil {
		p.IndexScan = best.scan
		p.Residual = residualOf(conjuncts, best.consumed)
		return p, nil
	}

	for i, f := range conjuncts {
		or, ok := f.(*orFilter)
		if !ok {
			continue
		}
		subs, err := pl.planBranches(or)
		if err != nil {
			return nil, err
		}
		if subs == nil {
			continue
		}
		consumed := make([]bool, len(conjuncts))
		consumed[i] = true
		p.SubPlans = subs
		p.Residual = residualOf(conjuncts, consumed)
		return p, nil
	}

	p.Residual = residualOf(conjuncts, nil)
	return p, nil
}

// planBranches returns sub-plans for every branch of an OR, or nil if any
// branch would need a collection scan.
func (pl *planner) planBranches(or *orFilter) ([]*Plan, error) {
	subs := make([]*Plan, 0, len(or.filters))
	for _, branch := range or.filters {
		sub, err := pl.planFilter(branch)
		if err != nil {
			return nil, err
		}
		if sub.collectionScan() {
			return nil, nil
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func idEquality(f Filter) (ID, bool) {
	switch f := f.(type) {
	case *idFilter:
		return f.id, true
	case *cmpFilter:
		if f.field != FieldID || f.op != opEq {
			return 0, false
		}
		if s, ok := f.value.AsString(); ok {
			id, err := ParseID(s)
			return id, err == nil
		}
	}
	return 0, false
}

// Scan preference classes, best first.
const (
	scanUniqueEq = iota
	scanEq
	scanText
	scanIn
	scanRange
)

type scanCandidate struct {
	scan     *IndexScan
	consumed []bool
	class    int
	eqCount  int
	pos      int
}

func (a *scanCandidate) better(b *scanCandidate) bool {
	if a.class != b.class {
		return a.class < b.class
	}
	if a.eqCount != b.eqCount {
		return a.eqCount > b.eqCount
	}
	if len(a.scan.Filters) != len(b.scan.Filters) {
		return len(a.scan.Filters) > len(b.scan.Filters)
	}
	if (a.scan.Index.Kind == Unique) != (b.scan.Index.Kind == Unique) {
		return a.scan.Index.Kind == Unique
	}
	return a.pos < b.pos
}

func (pl *planner) bestScan(conjuncts []Filter) *scanCandidate {
	var best *scanCandidate
	for pos, desc := range pl.indexes {
		var cand *scanCandidate
		if desc.Kind == Fulltext {
			cand = textCandidate(desc, conjuncts)
		} else {
			cand = comparableCandidate(desc, conjuncts)
		}
		if cand == nil {
			continue
		}
		cand.pos = pos
		if best == nil || cand.better(best) {
			best = cand
		}
	}
	return best
}

func textCandidate(desc *IndexDescriptor, conjuncts []Filter) *scanCandidate {
	for i, f := range conjuncts {
		tf, ok := f.(*textFilter)
		if !ok || tf.field != desc.Fields[0] {
			continue
		}
		consumed := make([]bool, len(conjuncts))
		consumed[i] = true
		q := tf.query
		return &scanCandidate{
			scan:     &IndexScan{Index: *desc, Filters: []Filter{f}, text: &q},
			consumed: consumed,
			class:    scanText,
		}
	}
	return nil
}

func comparableCandidate(desc *IndexDescriptor, conjuncts []Filter) *scanCandidate {
	consumed := make([]bool, len(conjuncts))
	var used []Filter
	var prefix []byte

	eqCount := 0
	for _, field := range desc.Fields {
		i := findConjunct(conjuncts, consumed, func(f Filter) bool {
			cf, ok := f.(*cmpFilter)
			return ok && cf.field == field && cf.op == opEq && cf.value.isOrderable()
		})
		if i < 0 {
			break
		}
		consumed[i] = true
		used = append(used, conjuncts[i])
		prefix = must(appendKeyValue(prefix, conjuncts[i].(*cmpFilter).value))
		eqCount++
	}

	scan := &IndexScan{Index: *desc}
	class := scanEq
	if eqCount == len(desc.Fields) && desc.Kind == Unique {
		class = scanUniqueEq
	}
	if eqCount > 0 {
		scan.ranges = []RawRange{RawPrefix(prefix)}
	}

	if eqCount < len(desc.Fields) {
		field := desc.Fields[eqCount]
		for i, f := range conjuncts {
			if consumed[i] {
				continue
			}
			ranges, rclass, ok := keyRanges(f, field, prefix)
			if !ok {
				continue
			}
			consumed[i] = true
			used = append(used, f)
			scan.ranges = ranges
			if eqCount == 0 {
				class = rclass
			}
			break
		}
	}
	if len(used) == 0 {
		return nil
	}
	scan.Filters = used
	return &scanCandidate{scan: scan, consumed: consumed, class: class, eqCount: eqCount}
}

func findConjunct(conjuncts []Filter, consumed []bool, pred func(Filter) bool) int {
	for i, f := range conjuncts {
		if !consumed[i] && pred(f) {
			return i
		}
	}
	return -1
}

// keyRanges translates a comparison on field into index key ranges within
// prefix. Entries of values of another kind never fall into the ranges.
func keyRanges(f Filter, field string, prefix []byte) ([]RawRange, int, bool) {
	join := func(k []byte) []byte {
		if k == nil {
			return nil
		}
		return append(slices.Clip(prefix), k...)
	}
	bounded := func(lower, upper []byte) RawRange {
		rang := RawIE(join(lower), join(upper))
		if len(prefix) > 0 {
			rang = rang.Prefixed(prefix)
		}
		return rang
	}

	switch f := f.(type) {
	case *cmpFilter:
		if f.field != field || !f.value.isOrderable() {
			return nil, 0, false
		}
		enc := must(appendKeyValue(nil, f.value))
		kindLo, kindHi := kindKeyRange(f.value)
		var rang RawRange
		switch f.op {
		case opEq:
			return []RawRange{RawPrefix(join(enc))}, scanEq, true
		case opGt:
			rang = bounded(successorOr(enc, kindHi), kindHi)
		case opGte:
			rang = bounded(enc, kindHi)
		case opLt:
			rang = bounded(kindLo, enc)
		case opLte:
			rang = bounded(kindLo, successorOr(enc, kindHi))
		default:
			return nil, 0, false
		}
		return []RawRange{rang}, scanRange, true

	case *betweenFilter:
		if f.field != field || !f.lower.isOrderable() || !f.upper.isOrderable() {
			return nil, 0, false
		}
		if _, err := Compare(f.lower, f.upper); err != nil {
			return []RawRange{}, scanRange, true
		}
		lo := must(appendKeyValue(nil, f.lower))
		hi := must(appendKeyValue(nil, f.upper))
		_, kindHi := kindKeyRange(f.upper)
		if !f.lowerInc {
			lo = successorOr(lo, kindHi)
		}
		if f.upperInc {
			hi = successorOr(hi, kindHi)
		}
		return []RawRange{bounded(lo, hi)}, scanRange, true

	case *inFilter:
		if f.field != field || f.negate {
			return nil, 0, false
		}
		keys := make([][]byte, 0, len(f.values))
		for _, v := range f.values {
			if !v.isOrderable() {
				return nil, 0, false
			}
			keys = append(keys, join(must(appendKeyValue(nil, v))))
		}
		slices.SortFunc(keys, bytes.Compare)
		keys = slices.CompactFunc(keys, bytes.Equal)
		ranges := make([]RawRange, len(keys))
		for i, k := range keys {
			ranges[i] = RawPrefix(k)
		}
		return ranges, scanIn, true
	}
	return nil, 0, false
}

func successorOr(k, fallback []byte) []byte {
	if s := successor(k); s != nil {
		return s
	}
	return fallback
}

// planSort decides whether the index scan already yields the requested
// order, picking an index for ordered traversal when nothing else needs one.
func (pl *planner) planSort(p *Plan, fo *findOptions) {
	p.Collation = fo.collation
	if p.idLookup {
		return
	}
	if fo.collation == "" {
		if p.IndexScan != nil {
			if reverse, ok := sortServedBy(&p.IndexScan.Index, p.IndexScan, fo.sort); ok {
				p.IndexScan.Reverse = reverse
				return
			}
		} else if len(p.SubPlans) == 0 {
			for _, desc := range pl.indexes {
				if desc.Kind == Fulltext {
					continue
				}
				if reverse, ok := sortServedBy(desc, nil, fo.sort); ok {
					p.IndexScan = &IndexScan{Index: *desc, Reverse: reverse}
					return
				}
			}
		}
	}
	p.BlockingSort = slices.Clone(fo.sort)
}

func sortServedBy(desc *IndexDescriptor, scan *IndexScan, specs []SortSpec) (reverse bool, ok bool) {
	if desc.Kind == Fulltext {
		return false, false
	}
	eqCount := 0
	if scan != nil {
		for _, f := range scan.Filters {
			if cf, ok := f.(*cmpFilter); ok && cf.op == opEq && eqCount < len(desc.Fields) && cf.field == desc.Fields[eqCount] {
				eqCount++
			}
		}
	}
	rest := desc.Fields[eqCount:]
	if len(specs) > len(rest) {
		return false, false
	}
	for i, spec := range specs {
		if spec.Field != rest[i] || spec.Order != specs[0].Order {
			return false, false
		}
	}
	return specs[0].Order == Descending, true
}
