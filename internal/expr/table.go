package expr

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tably/tably/internal/shape"
)

// Selection filters rows by a boolean-valued predicate expression
// evaluated per row. The predicate is not a data input: it is fused into
// a row function over the child.
type Selection struct {
	Child     Expr
	Predicate Expr
}

func (*Selection) exprNode() {}

func (s *Selection) Kind() Kind         { return KindSelection }
func (s *Selection) Shape() shape.Shape { return s.Child.Shape() }
func (s *Selection) Children() []Expr   { return []Expr{s.Child} }
func (s *Selection) String() string     { return fmt.Sprintf("%s[%s]", s.Child, s.Predicate) }

// NewSelection filters child by a boolean predicate that must be
// element-wise reachable from child.
func NewSelection(child, predicate Expr) (*Selection, error) {
	row, ok := rowOf(predicate)
	if !ok || !shape.IsBoolean(row) {
		return nil, shape.Errorf(shape.ErrCodeInvalidShape, "selection predicate %s is not a boolean column", predicate)
	}
	if _, ok := dimOf(child); !ok {
		return nil, shape.Errorf(shape.ErrCodeInvalidShape, "selection child %s is not a collection", child)
	}
	if !ElemwiseReachable(predicate, child) {
		return nil, Errorf(ErrCodeNotElemwise, "predicate %s is not element-wise over %s", predicate, child)
	}
	return &Selection{Child: child, Predicate: predicate}, nil
}

// Distinct removes duplicate rows under structural equality.
type Distinct struct {
	Child Expr
}

func (*Distinct) exprNode() {}

func (d *Distinct) Kind() Kind         { return KindDistinct }
func (d *Distinct) Shape() shape.Shape { return d.Child.Shape() }
func (d *Distinct) Children() []Expr   { return []Expr{d.Child} }
func (d *Distinct) String() string     { return fmt.Sprintf("distinct(%s)", d.Child) }

// NewDistinct removes duplicate rows from child.
func NewDistinct(child Expr) (*Distinct, error) {
	if _, ok := dimOf(child); !ok {
		return nil, shape.Errorf(shape.ErrCodeInvalidShape, "distinct child %s is not a collection", child)
	}
	return &Distinct{Child: child}, nil
}

// Sort orders rows by named columns or by an element-wise key
// expression. Sorting is stable; Ascending false reverses the
// comparator.
type Sort struct {
	Child     Expr
	Fields    []string // sort key columns; empty when KeyExpr is set
	KeyExpr   Expr     // element-wise key expression; nil when Fields is set
	Ascending bool
}

func (*Sort) exprNode() {}

func (s *Sort) Kind() Kind         { return KindSort }
func (s *Sort) Shape() shape.Shape { return s.Child.Shape() }
func (s *Sort) Children() []Expr   { return []Expr{s.Child} }

func (s *Sort) String() string {
	key := ""
	if s.KeyExpr != nil {
		key = s.KeyExpr.String()
	} else {
		key = strings.Join(s.Fields, ", ")
	}
	return fmt.Sprintf("sort(%s, key=%s, ascending=%t)", s.Child, key, s.Ascending)
}

// NewSort sorts child by the named columns. With no fields the first
// column is the default key (record order is significant).
func NewSort(child Expr, ascending bool, fields ...string) (*Sort, error) {
	rec, ok := recordOf(child)
	if !ok {
		if _, unit := dimOf(child); unit && len(fields) == 0 {
			return &Sort{Child: child, Ascending: ascending}, nil
		}
		return nil, shape.Errorf(shape.ErrCodeInvalidShape, "sort child %s is not a table of records", child)
	}
	if len(fields) == 0 {
		fields = []string{rec.Fields[0].Name}
	}
	for _, f := range fields {
		if rec.Index(f) < 0 {
			return nil, shape.Errorf(shape.ErrCodeUnknownField, "%s has no field %q", child, f)
		}
	}
	return &Sort{Child: child, Fields: fields, Ascending: ascending}, nil
}

// NewSortBy sorts child by an element-wise key expression.
func NewSortBy(child, key Expr, ascending bool) (*Sort, error) {
	if _, ok := dimOf(child); !ok {
		return nil, shape.Errorf(shape.ErrCodeInvalidShape, "sort child %s is not a collection", child)
	}
	if !ElemwiseReachable(key, child) {
		return nil, Errorf(ErrCodeNotElemwise, "sort key %s is not element-wise over %s", key, child)
	}
	return &Sort{Child: child, KeyExpr: key, Ascending: ascending}, nil
}

// Head takes the first n rows.
type Head struct {
	Child Expr
	N     int64

	schema shape.Shape
}

func (*Head) exprNode() {}

func (h *Head) Kind() Kind         { return KindHead }
func (h *Head) Shape() shape.Shape { return h.schema }
func (h *Head) Children() []Expr   { return []Expr{h.Child} }
func (h *Head) String() string     { return fmt.Sprintf("head(%s, %d)", h.Child, h.N) }

// NewHead takes the first n rows of child. The result dimension is the
// fixed count n.
func NewHead(child Expr, n int64) (*Head, error) {
	if n < 0 {
		return nil, Errorf(ErrCodeInvalidArgument, "head count must be non-negative, got %d", n)
	}
	row, ok := rowOf(child)
	if !ok {
		return nil, shape.Errorf(shape.ErrCodeInvalidShape, "head child %s is not a collection", child)
	}
	return &Head{Child: child, N: n, schema: shape.Collection{Dim: shape.FixedDim(n), Elem: row}}, nil
}

// FieldPattern is one field's glob pattern in a Like node.
type FieldPattern struct {
	Field string
	Glob  string
}

// Like filters rows by per-field glob patterns. A row passes only if
// every patterned field matches.
type Like struct {
	Child    Expr
	Patterns []FieldPattern // sorted by field name
}

func (*Like) exprNode() {}

func (l *Like) Kind() Kind         { return KindLike }
func (l *Like) Shape() shape.Shape { return l.Child.Shape() }
func (l *Like) Children() []Expr   { return []Expr{l.Child} }

func (l *Like) String() string {
	parts := make([]string, len(l.Patterns))
	for i, p := range l.Patterns {
		parts[i] = fmt.Sprintf("%s=%q", p.Field, p.Glob)
	}
	return fmt.Sprintf("like(%s, %s)", l.Child, strings.Join(parts, ", "))
}

// NewLike filters child rows by glob patterns over string fields.
// Patterns are stored sorted by field name so equal maps hash equally.
func NewLike(child Expr, patterns map[string]string) (*Like, error) {
	rec, ok := recordOf(child)
	if !ok {
		return nil, shape.Errorf(shape.ErrCodeInvalidShape, "like child %s is not a table of records", child)
	}
	if len(patterns) == 0 {
		return nil, Errorf(ErrCodeInvalidArgument, "like requires at least one pattern")
	}
	sorted := make([]FieldPattern, 0, len(patterns))
	for field, glob := range patterns {
		typ, ok := rec.TypeOf(field)
		if !ok {
			return nil, shape.Errorf(shape.ErrCodeUnknownField, "%s has no field %q", child, field)
		}
		if !shape.Equal(shape.Unwrap(typ), shape.String) {
			return nil, shape.Errorf(shape.ErrCodeInvalidShape, "like field %q is not a string column", field)
		}
		sorted = append(sorted, FieldPattern{Field: field, Glob: glob})
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Field < sorted[j].Field })
	return &Like{Child: child, Patterns: sorted}, nil
}

// Index addresses a Slice: a single element or a simple half-open
// range. Anything richer is unsupported by contract.
type Index struct {
	At    int64
	Start int64
	Stop  int64
	Range bool
}

// Slice takes a single element or a contiguous range of elements.
type Slice struct {
	Child Expr
	Index Index

	schema shape.Shape
}

func (*Slice) exprNode() {}

func (s *Slice) Kind() Kind         { return KindSlice }
func (s *Slice) Shape() shape.Shape { return s.schema }
func (s *Slice) Children() []Expr   { return []Expr{s.Child} }

func (s *Slice) String() string {
	if s.Index.Range {
		return fmt.Sprintf("%s[%d:%d]", s.Child, s.Index.Start, s.Index.Stop)
	}
	return fmt.Sprintf("%s[%d]", s.Child, s.Index.At)
}

// NewSliceAt takes the element at position i.
func NewSliceAt(child Expr, i int64) (*Slice, error) {
	row, ok := rowOf(child)
	if !ok {
		return nil, shape.Errorf(shape.ErrCodeInvalidShape, "slice child %s is not a collection", child)
	}
	if i < 0 {
		return nil, Errorf(ErrCodeInvalidArgument, "slice index must be non-negative, got %d", i)
	}
	return &Slice{Child: child, Index: Index{At: i}, schema: row}, nil
}

// NewSliceRange takes elements in the half-open range [start, stop).
func NewSliceRange(child Expr, start, stop int64) (*Slice, error) {
	row, ok := rowOf(child)
	if !ok {
		return nil, shape.Errorf(shape.ErrCodeInvalidShape, "slice child %s is not a collection", child)
	}
	if start < 0 || stop < start {
		return nil, Errorf(ErrCodeInvalidArgument, "invalid slice range [%d:%d]", start, stop)
	}
	return &Slice{
		Child:  child,
		Index:  Index{Start: start, Stop: stop, Range: true},
		schema: shape.Collection{Dim: shape.FixedDim(stop - start), Elem: row},
	}, nil
}

// Apply brings an arbitrary Go function over the fully materialized
// child into the expression tree. The output shape cannot be inferred
// and must be declared; Tag stands in for the function in structural
// identity. This is an explicitly unchecked boundary.
type Apply struct {
	Child Expr
	Fn    func(data any) any
	Out   shape.Shape
	Tag   string
}

func (*Apply) exprNode() {}

func (a *Apply) Kind() Kind         { return KindApply }
func (a *Apply) Shape() shape.Shape { return a.Out }
func (a *Apply) Children() []Expr   { return []Expr{a.Child} }
func (a *Apply) String() string     { return fmt.Sprintf("apply(%s, %s)", a.Child, a.Tag) }

// NewApply applies fn to the materialized child. out declares the
// result shape; tag identifies the function for structural equality.
func NewApply(child Expr, fn func(data any) any, out shape.Shape, tag string) (*Apply, error) {
	if fn == nil {
		return nil, Errorf(ErrCodeInvalidArgument, "apply function must not be nil")
	}
	if out == nil {
		return nil, Errorf(ErrCodeInvalidArgument, "apply output shape must be declared")
	}
	if tag == "" {
		return nil, Errorf(ErrCodeInvalidArgument, "apply requires a non-empty tag for structural identity")
	}
	return &Apply{Child: child, Fn: fn, Out: out, Tag: tag}, nil
}

// Union row-concatenates children sharing one schema. It does not
// deduplicate.
type Union struct {
	Tables []Expr
}

func (*Union) exprNode() {}

func (u *Union) Kind() Kind         { return KindUnion }
func (u *Union) Shape() shape.Shape { return u.Tables[0].Shape() }
func (u *Union) Children() []Expr   { return u.Tables }

func (u *Union) String() string {
	parts := make([]string, len(u.Tables))
	for i, t := range u.Tables {
		parts[i] = t.String()
	}
	return fmt.Sprintf("union(%s)", strings.Join(parts, ", "))
}

// NewUnion row-concatenates the children, which must share one schema.
func NewUnion(tables ...Expr) (*Union, error) {
	if len(tables) < 2 {
		return nil, Errorf(ErrCodeInvalidArgument, "union requires at least two tables")
	}
	first, ok := rowOf(tables[0])
	if !ok {
		return nil, shape.Errorf(shape.ErrCodeInvalidShape, "union child %s is not a collection", tables[0])
	}
	for _, t := range tables[1:] {
		row, ok := rowOf(t)
		if !ok || !shape.Equal(first, row) {
			return nil, shape.Errorf(shape.ErrCodeInvalidShape, "inconsistent union schemas: %s vs %s", tables[0].Shape(), t.Shape())
		}
	}
	return &Union{Tables: tables}, nil
}
