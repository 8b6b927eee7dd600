package docdb

import (
	"fmt"
	"regexp"
	"strings"
)

// Filter is a predicate over documents. Filters built by this package also
// tell the planner which index could answer them.
type Filter interface {
	Match(d *Document) (bool, error)
	String() string
}

type cmpOp int

const (
	opEq cmpOp = iota
	opNe
	opGt
	opGte
	opLt
	opLte
)

func (op cmpOp) String() string {
	switch op {
	case opEq:
		return "=="
	case opNe:
		return "!="
	case opGt:
		return ">"
	case opGte:
		return ">="
	case opLt:
		return "<"
	case opLte:
		return "<="
	default:
		return fmt.Sprintf("op(%d)", int(op))
	}
}

// invalidFilter carries a constructor error until the filter is used.
type invalidFilter struct {
	err error
}

func (f *invalidFilter) Match(*Document) (bool, error) { return false, f.err }
func (f *invalidFilter) String() string                { return fmt.Sprintf("invalid(%v)", f.err) }

func valueArg(field string, x any) (Value, *invalidFilter) {
	v, err := ValueOf(x)
	if err != nil {
		return Null(), &invalidFilter{fmt.Errorf("%w: %s: %w", ErrFilter, field, err)}
	}
	return v, nil
}

type cmpFilter struct {
	field string
	op    cmpOp
	value Value
}

func newCmpFilter(field string, op cmpOp, x any) Filter {
	v, bad := valueArg(field, x)
	if bad != nil {
		return bad
	}
	return &cmpFilter{field, op, v}
}

// Eq matches documents whose field equals the value. Missing fields equal nil.
func Eq(field string, value any) Filter  { return newCmpFilter(field, opEq, value) }
func Ne(field string, value any) Filter  { return newCmpFilter(field, opNe, value) }
func Gt(field string, value any) Filter  { return newCmpFilter(field, opGt, value) }
func Gte(field string, value any) Filter { return newCmpFilter(field, opGte, value) }
func Lt(field string, value any) Filter  { return newCmpFilter(field, opLt, value) }
func Lte(field string, value any) Filter { return newCmpFilter(field, opLte, value) }

func (f *cmpFilter) Match(d *Document) (bool, error) {
	v, err := d.Lookup(f.field)
	if err != nil {
		return false, err
	}
	switch f.op {
	case opEq:
		return Equal(v, f.value), nil
	case opNe:
		return !Equal(v, f.value), nil
	}
	c, err := Compare(v, f.value)
	if err != nil {
		return false, nil
	}
	switch f.op {
	case opGt:
		return c > 0, nil
	case opGte:
		return c >= 0, nil
	case opLt:
		return c < 0, nil
	default:
		return c <= 0, nil
	}
}

func (f *cmpFilter) String() string {
	return fmt.Sprintf("(%s %s %s)", f.field, f.op, f.value)
}

type betweenFilter struct {
	field              string
	lower, upper       Value
	lowerInc, upperInc bool
}

// Between matches values between lower and upper, with each bound
// inclusive when the matching flag is set.
func Between(field string, lower, upper any, lowerInc, upperInc bool) Filter {
	lo, bad := valueArg(field, lower)
	if bad != nil {
		return bad
	}
	hi, bad := valueArg(field, upper)
	if bad != nil {
		return bad
	}
	return &betweenFilter{field, lo, hi, lowerInc, upperInc}
}

func (f *betweenFilter) Match(d *Document) (bool, error) {
	v, err := d.Lookup(f.field)
	if err != nil {
		return false, err
	}
	c1, err := Compare(v, f.lower)
	if err != nil {
		return false, nil
	}
	c2, err := Compare(v, f.upper)
	if err != nil {
		return false, nil
	}
	return (c1 > 0 || (c1 == 0 && f.lowerInc)) && (c2 < 0 || (c2 == 0 && f.upperInc)), nil
}

func (f *betweenFilter) String() string {
	lb, ub := "(", ")"
	if f.lowerInc {
		lb = "["
	}
	if f.upperInc {
		ub = "]"
	}
	return fmt.Sprintf("(%s in %s%s, %s%s)", f.field, lb, f.lower, f.upper, ub)
}

type inFilter struct {
	field  string
	values []Value
	negate bool
}

func newInFilter(field string, negate bool, xs []any) Filter {
	values := make([]Value, 0, len(xs))
	for _, x := range xs {
		v, bad := valueArg(field, x)
		if bad != nil {
			return bad
		}
		values = append(values, v)
	}
	return &inFilter{field, values, negate}
}

func In(field string, values ...any) Filter    { return newInFilter(field, false, values) }
func NotIn(field string, values ...any) Filter { return newInFilter(field, true, values) }

func (f *inFilter) Match(d *Document) (bool, error) {
	v, err := d.Lookup(f.field)
	if err != nil {
		return false, err
	}
	for _, want := range f.values {
		if Equal(v, want) {
			return !f.negate, nil
		}
	}
	return f.negate, nil
}

func (f *inFilter) String() string {
	op := "in"
	if f.negate {
		op = "not in"
	}
	items := make([]string, len(f.values))
	for i, v := range f.values {
		items[i] = v.String()
	}
	return fmt.Sprintf("(%s %s [%s])", f.field, op, strings.Join(items, ", "))
}

type regexFilter struct {
	field string
	re    *regexp.Regexp
}

// Regex matches string fields against a regular expression.
func Regex(field string, pattern string) Filter {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return &invalidFilter{fmt.Errorf("%w: %s: %w", ErrFilter, field, err)}
	}
	return &regexFilter{field, re}
}

func (f *regexFilter) Match(d *Document) (bool, error) {
	v, err := d.Lookup(f.field)
	if err != nil {
		return false, err
	}
	s, ok := v.AsString()
	return ok && f.re.MatchString(s), nil
}

func (f *regexFilter) String() string {
	return fmt.Sprintf("(%s =~ /%s/)", f.field, f.re)
}

type textFilter struct {
	field string
	raw   string
	query textQuery
	err   error
}

// Text performs a full-text search and requires a Fulltext index on the
// field. The search string is either a set of words (documents matching
// more words come first) or a single word with a leading and/or trailing
// '*' wildcard.
func Text(field string, search string) Filter {
	q, err := parseTextQuery(search)
	return &textFilter{field: field, raw: search, query: q, err: err}
}

func (f *textFilter) Match(d *Document) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	v, err := d.Lookup(f.field)
	if err != nil {
		return false, err
	}
	s, ok := v.AsString()
	return ok && f.query.matchText(s), nil
}

func (f *textFilter) String() string {
	return fmt.Sprintf("(%s text %q)", f.field, f.raw)
}

// ElementFieldName names the element itself when ElemMatch is applied to an
// array of scalars: ElemMatch("scores", Gt("$", 10)).
const ElementFieldName = "$"

type elemMatchFilter struct {
	field string
	elem  Filter
}

// ElemMatch matches array fields having at least one element that matches
// elem. Document elements are matched directly, scalar elements are
// presented as a document with a single ElementFieldName field.
func ElemMatch(field string, elem Filter) Filter {
	if elem == nil {
		panic("docdb.ElemMatch: nil filter")
	}
	return &elemMatchFilter{field, elem}
}

func (f *elemMatchFilter) Match(d *Document) (bool, error) {
	v, err := d.Lookup(f.field)
	if err != nil {
		return false, err
	}
	arr, ok := v.AsArray()
	if !ok {
		return false, nil
	}
	for _, item := range arr {
		doc, ok := item.AsDocument()
		if !ok {
			doc = &Document{keys: []string{ElementFieldName}, vals: map[string]Value{ElementFieldName: item}}
		}
		matched, err := f.elem.Match(doc)
		if err != nil {
			return false, err
		}
		if matched {
			return true, nil
		}
	}
	return false, nil
}

func (f *elemMatchFilter) String() string {
	return fmt.Sprintf("(%s elemMatch %s)", f.field, f.elem)
}

type whereFilter struct {
	field string
	pred  func(Value) bool
}

// Where matches documents for which pred returns true on the field value.
// It is never answered by an index.
func Where(field string, pred func(Value) bool) Filter {
	if pred == nil {
		panic("docdb.Where: nil predicate")
	}
	return &whereFilter{field, pred}
}

func (f *whereFilter) Match(d *Document) (bool, error) {
	v, err := d.Lookup(f.field)
	if err != nil {
		return false, err
	}
	return f.pred(v), nil
}

func (f *whereFilter) String() string {
	return fmt.Sprintf("(%s where <func>)", f.field)
}

type idFilter struct {
	id ID
}

// ByID matches the document with the given id.
func ByID(id ID) Filter {
	return &idFilter{id}
}

func (f *idFilter) Match(d *Document) (bool, error) {
	return d.ID() == f.id, nil
}

func (f *idFilter) String() string {
	return fmt.Sprintf("(%s == %s)", FieldID, f.id)
}

type allFilter struct{}

// All matches every document.
func All() Filter { return allFilter{} }

func (allFilter) Match(*Document) (bool, error) { return true, nil }
func (allFilter) String() string                { return "all" }

type andFilter struct {
	filters []Filter
}

func And(filters ...Filter) Filter {
	if len(filters) == 1 {
		return filters[0]
	}
	return &andFilter{mustFilters("And", filters)}
}

func (f *andFilter) Match(d *Document) (bool, error) {
	for _, sub := range f.filters {
		ok, err := sub.Match(d)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (f *andFilter) String() string {
	return joinFilters(f.filters, " && ")
}

type orFilter struct {
	filters []Filter
}

func Or(filters ...Filter) Filter {
	if len(filters) == 1 {
		return filters[0]
	}
	return &orFilter{mustFilters("Or", filters)}
}

func (f *orFilter) Match(d *Document) (bool, error) {
	for _, sub := range f.filters {
		ok, err := sub.Match(d)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (f *orFilter) String() string {
	return joinFilters(f.filters, " || ")
}

type notFilter struct {
	filter Filter
}

func Not(filter Filter) Filter {
	if filter == nil {
		panic("docdb.Not: nil filter")
	}
	return &notFilter{filter}
}

func (f *notFilter) Match(d *Document) (bool, error) {
	ok, err := f.filter.Match(d)
	return !ok && err == nil, err
}

func (f *notFilter) String() string {
	return "!" + f.filter.String()
}

func mustFilters(op string, filters []Filter) []Filter {
	if len(filters) == 0 {
		panic(fmt.Errorf("docdb.%s: no filters", op))
	}
	for i, f := range filters {
		if f == nil {
			panic(fmt.Errorf("docdb.%s: filter %d is nil", op, i))
		}
	}
	return filters
}

func joinFilters(filters []Filter, sep string) string {
	parts := make([]string, len(filters))
	for i, f := range filters {
		parts[i] = f.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}

// walkFilters calls fn for f and every filter nested in it.
func walkFilters(f Filter, fn func(Filter)) {
	fn(f)
	switch f := f.(type) {
	case *andFilter:
		for _, sub := range f.filters {
			walkFilters(sub, fn)
		}
	case *orFilter:
		for _, sub := range f.filters {
			walkFilters(sub, fn)
		}
	case *notFilter:
		walkFilters(f.filter, fn)
	case *elemMatchFilter:
		walkFilters(f.elem, fn)
	}
}
