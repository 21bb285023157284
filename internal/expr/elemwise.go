package expr

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tably/tably/internal/shape"
)

// Element-wise nodes: the output for a given row depends only on that
// row's input. Chains of these fuse into a single row function (see
// package rowfn).

// Projection selects an ordered subset of fields.
type Projection struct {
	Child  Expr
	Fields []string

	schema shape.Shape
}

func (*Projection) exprNode() {}

func (p *Projection) Kind() Kind         { return KindProjection }
func (p *Projection) Shape() shape.Shape { return p.schema }
func (p *Projection) Children() []Expr   { return []Expr{p.Child} }

func (p *Projection) String() string {
	quoted := make([]string, len(p.Fields))
	for i, f := range p.Fields {
		quoted[i] = fmt.Sprintf("%q", f)
	}
	return fmt.Sprintf("%s[%s]", p.Child, strings.Join(quoted, ", "))
}

// NewProjection selects the named fields, in the order given.
func NewProjection(child Expr, fields ...string) (*Projection, error) {
	rec, ok := recordOf(child)
	if !ok {
		return nil, shape.Errorf(shape.ErrCodeInvalidShape, "projection child %s is not a table of records", child)
	}
	if len(fields) == 0 {
		return nil, Errorf(ErrCodeInvalidArgument, "projection requires at least one field")
	}
	dim, _ := dimOf(child)

	out := make([]shape.Field, len(fields))
	for i, name := range fields {
		typ, ok := rec.TypeOf(name)
		if !ok {
			return nil, shape.Errorf(shape.ErrCodeUnknownField, "%s has no field %q", child, name)
		}
		out[i] = shape.Field{Name: name, Type: typ}
	}
	outRec, err := shape.NewRecord(out...)
	if err != nil {
		return nil, err
	}
	return &Projection{Child: child, Fields: fields, schema: shape.Collection{Dim: dim, Elem: outRec}}, nil
}

// Field selects exactly one field; the output is unit-shaped.
type Field struct {
	Child Expr
	Name  string

	schema shape.Shape
}

func (*Field) exprNode() {}

func (f *Field) Kind() Kind         { return KindField }
func (f *Field) Shape() shape.Shape { return f.schema }
func (f *Field) Children() []Expr   { return []Expr{f.Child} }
func (f *Field) String() string     { return fmt.Sprintf("%s.%s", f.Child, f.Name) }

// NewField selects a single column as a unit-shaped expression.
func NewField(child Expr, name string) (*Field, error) {
	rec, ok := recordOf(child)
	if !ok {
		return nil, shape.Errorf(shape.ErrCodeInvalidShape, "field access on non-record %s", child)
	}
	typ, ok := rec.TypeOf(name)
	if !ok {
		return nil, shape.Errorf(shape.ErrCodeUnknownField, "%s has no field %q", child, name)
	}
	dim, _ := dimOf(child)
	return &Field{Child: child, Name: name, schema: shape.Collection{Dim: dim, Elem: typ}}, nil
}

// MustField is like NewField but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustField(child Expr, name string) *Field {
	f, err := NewField(child, name)
	if err != nil {
		panic(err)
	}
	return f
}

// Broadcast applies a scalar operator element-wise over its operands.
//
// When at least one operand is collection-shaped, all collection
// operands must be reachable from one common ancestor via element-wise
// steps; Common holds that ancestor and the node evaluates row-wise
// against it. With only scalar operands the node evaluates once, on the
// already-computed operand values.
type Broadcast struct {
	Op       Op
	Operands []Expr

	// Common is the shared element-wise ancestor of the collection
	// operands, nil in scalar mode.
	Common Expr

	schema shape.Shape
}

func (*Broadcast) exprNode() {}

func (b *Broadcast) Kind() Kind         { return KindBroadcast }
func (b *Broadcast) Shape() shape.Shape { return b.schema }

func (b *Broadcast) Children() []Expr {
	if b.Common != nil {
		return []Expr{b.Common}
	}
	return b.Operands
}

func (b *Broadcast) String() string {
	if b.Op.Arity() == 1 {
		return fmt.Sprintf("(%s%s)", b.Op.symbol(), b.Operands[0])
	}
	return fmt.Sprintf("(%s %s %s)", b.Operands[0], b.Op.symbol(), b.Operands[1])
}

// NewBroadcast applies op element-wise over the operands.
func NewBroadcast(op Op, operands ...Expr) (*Broadcast, error) {
	if len(operands) != op.Arity() {
		return nil, Errorf(ErrCodeInvalidArgument, "operator %s takes %d operand(s), got %d", op, op.Arity(), len(operands))
	}

	elems := make([]shape.Shape, len(operands))
	var collections []Expr
	for i, o := range operands {
		if row, ok := rowOf(o); ok {
			elems[i] = row
			collections = append(collections, o)
		} else {
			elems[i] = o.Shape()
		}
	}

	out, err := broadcastType(op, elems)
	if err != nil {
		return nil, err
	}

	b := &Broadcast{Op: op, Operands: operands, schema: out}
	if len(collections) == 0 {
		return b, nil
	}

	// Anchor the common-ancestor search at each operand's data source,
	// not the operand column itself, so `t.amount < 0` broadcasts over t.
	candidates := make([]Expr, len(collections))
	for i, c := range collections {
		candidates[i] = c
		if child := childOf(c); child != nil {
			candidates[i] = child
		}
	}
	common, err := CommonSubexpression(candidates...)
	if err != nil {
		return nil, err
	}
	for _, c := range collections {
		if !ElemwiseReachable(c, common) {
			return nil, Errorf(ErrCodeNotElemwise, "broadcast operand %s is not element-wise over %s", c, common)
		}
	}
	dim, _ := dimOf(common)
	b.Common = common
	b.schema = shape.Collection{Dim: dim, Elem: out}
	return b, nil
}

// broadcastType computes the scalar result type of op over element
// shapes, validating operand categories.
func broadcastType(op Op, elems []shape.Shape) (shape.Shape, error) {
	switch {
	case op.IsComparison():
		if !shape.Compatible(elems[0], elems[1]) {
			return nil, shape.Errorf(shape.ErrCodeInvalidShape, "cannot compare %s with %s", elems[0], elems[1])
		}
		return shape.Bool, nil

	case op.IsLogical():
		for _, e := range elems {
			if !shape.IsBoolean(e) {
				return nil, shape.Errorf(shape.ErrCodeInvalidShape, "logical operator %s requires bool, got %s", op, e)
			}
		}
		return shape.Bool, nil

	default: // arithmetic
		for _, e := range elems {
			if !shape.IsNumeric(e) {
				return nil, shape.Errorf(shape.ErrCodeInvalidShape, "arithmetic operator %s requires a number, got %s", op, e)
			}
		}
		if op == OpDiv || op == OpPow {
			return shape.Float, nil
		}
		for _, e := range elems {
			if shape.Equal(shape.Unwrap(unitType(e)), shape.Float) {
				return shape.Float, nil
			}
		}
		return shape.Int, nil
	}
}

// unitType reduces a single-field record to its field type.
func unitType(s shape.Shape) shape.Shape {
	if r, ok := shape.Unwrap(s).(shape.Record); ok && len(r.Fields) == 1 {
		return r.Fields[0].Type
	}
	return s
}

// Map applies an arbitrary unary Go function row-wise.
//
// The algebra cannot inspect Fn; Out declares the per-row output shape
// and Tag stands in for the function in structural identity. This is an
// explicitly unchecked boundary.
type Map struct {
	Child Expr
	Fn    func(args ...any) any
	Out   shape.Shape
	Tag   string

	schema shape.Shape
}

func (*Map) exprNode() {}

func (m *Map) Kind() Kind         { return KindMap }
func (m *Map) Shape() shape.Shape { return m.schema }
func (m *Map) Children() []Expr   { return []Expr{m.Child} }
func (m *Map) String() string     { return fmt.Sprintf("map(%s, %s)", m.Child, m.Tag) }

// NewMap applies fn to each row of child. out is the declared row shape
// of the result; tag identifies the function for structural equality.
func NewMap(child Expr, fn func(args ...any) any, out shape.Shape, tag string) (*Map, error) {
	if fn == nil {
		return nil, Errorf(ErrCodeInvalidArgument, "map function must not be nil")
	}
	if out == nil {
		return nil, Errorf(ErrCodeInvalidArgument, "map output shape must be declared")
	}
	if tag == "" {
		return nil, Errorf(ErrCodeInvalidArgument, "map requires a non-empty tag for structural identity")
	}
	dim, ok := dimOf(child)
	if !ok {
		return nil, shape.Errorf(shape.ErrCodeInvalidShape, "map child %s is not a collection", child)
	}
	return &Map{Child: child, Fn: fn, Out: out, Tag: tag, schema: shape.Collection{Dim: dim, Elem: out}}, nil
}

// Label names a unit-shaped expression's value.
type Label struct {
	Child Expr
	Name  string
}

func (*Label) exprNode() {}

func (l *Label) Kind() Kind         { return KindLabel }
func (l *Label) Shape() shape.Shape { return l.Child.Shape() }
func (l *Label) Children() []Expr   { return []Expr{l.Child} }
func (l *Label) String() string     { return fmt.Sprintf("label(%s, %q)", l.Child, l.Name) }

// NewLabel names the value of a unit-shaped expression.
func NewLabel(child Expr, name string) (*Label, error) {
	if name == "" {
		return nil, Errorf(ErrCodeInvalidArgument, "label name must not be empty")
	}
	row := child.Shape()
	if r, ok := rowOf(child); ok {
		row = r
	}
	if !shape.IsUnit(row) {
		return nil, shape.Errorf(shape.ErrCodeInvalidShape, "label applies to unit-shaped expressions, got %s", child.Shape())
	}
	return &Label{Child: child, Name: name}, nil
}

// Rename is one field renaming of a ReLabel.
type Rename struct {
	From string
	To   string
}

// ReLabel renames record fields, preserving order and types.
type ReLabel struct {
	Child   Expr
	Renames []Rename

	schema shape.Shape
}

func (*ReLabel) exprNode() {}

func (r *ReLabel) Kind() Kind         { return KindReLabel }
func (r *ReLabel) Shape() shape.Shape { return r.schema }
func (r *ReLabel) Children() []Expr   { return []Expr{r.Child} }

func (r *ReLabel) String() string {
	parts := make([]string, len(r.Renames))
	for i, rn := range r.Renames {
		parts[i] = fmt.Sprintf("%s=%s", rn.From, rn.To)
	}
	return fmt.Sprintf("relabel(%s, %s)", r.Child, strings.Join(parts, ", "))
}

// NewRelabel renames fields of child per the given mapping. Unknown
// source fields are an error; renames are stored sorted by source name
// so equal mappings hash equally.
func NewRelabel(child Expr, renames map[string]string) (*ReLabel, error) {
	rec, ok := recordOf(child)
	if !ok {
		return nil, shape.Errorf(shape.ErrCodeInvalidShape, "relabel child %s is not a table of records", child)
	}
	if len(renames) == 0 {
		return nil, Errorf(ErrCodeInvalidArgument, "relabel requires at least one rename")
	}

	sorted := make([]Rename, 0, len(renames))
	for from, to := range renames {
		if rec.Index(from) < 0 {
			return nil, shape.Errorf(shape.ErrCodeUnknownField, "%s has no field %q", child, from)
		}
		if to == "" {
			return nil, Errorf(ErrCodeInvalidArgument, "empty target name for field %q", from)
		}
		sorted = append(sorted, Rename{From: from, To: to})
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].From < sorted[j].From })

	out := make([]shape.Field, len(rec.Fields))
	for i, f := range rec.Fields {
		name := f.Name
		if to, ok := renames[name]; ok {
			name = to
		}
		out[i] = shape.Field{Name: name, Type: f.Type}
	}
	outRec, err := shape.NewRecord(out...)
	if err != nil {
		return nil, err
	}
	dim, _ := dimOf(child)
	return &ReLabel{Child: child, Renames: sorted, schema: shape.Collection{Dim: dim, Elem: outRec}}, nil
}

// DateTimeAttr extracts a datetime component element-wise.
type DateTimeAttr struct {
	Child Expr
	Attr  Attr

	schema shape.Shape
}

func (*DateTimeAttr) exprNode() {}

func (d *DateTimeAttr) Kind() Kind         { return KindDateTime }
func (d *DateTimeAttr) Shape() shape.Shape { return d.schema }
func (d *DateTimeAttr) Children() []Expr   { return []Expr{d.Child} }
func (d *DateTimeAttr) String() string     { return fmt.Sprintf("%s(%s)", d.Attr, d.Child) }

// NewDateTimeAttr extracts the named component from a datetime column.
func NewDateTimeAttr(child Expr, attr Attr) (*DateTimeAttr, error) {
	if !validAttr(attr) {
		return nil, Errorf(ErrCodeInvalidArgument, "unknown datetime attribute %q", attr)
	}
	row, ok := rowOf(child)
	if !ok {
		return nil, shape.Errorf(shape.ErrCodeInvalidShape, "datetime attribute child %s is not a collection", child)
	}
	if !shape.Equal(shape.Unwrap(unitType(row)), shape.DateTime) {
		return nil, shape.Errorf(shape.ErrCodeInvalidShape, "%s is not a datetime column", child)
	}
	dim, _ := dimOf(child)
	return &DateTimeAttr{Child: child, Attr: attr, schema: shape.Collection{Dim: dim, Elem: attr.resultType()}}, nil
}

// Merge concatenates the columns of several element-wise branches of
// one common ancestor. Equal row count and order are guaranteed by the
// element-wise-only reachability requirement.
type Merge struct {
	Child Expr // common ancestor of the branches
	Parts []Expr

	schema shape.Shape
}

func (*Merge) exprNode() {}

func (m *Merge) Kind() Kind         { return KindMerge }
func (m *Merge) Shape() shape.Shape { return m.schema }
func (m *Merge) Children() []Expr   { return []Expr{m.Child} }

func (m *Merge) String() string {
	parts := make([]string, len(m.Parts))
	for i, p := range m.Parts {
		parts[i] = p.String()
	}
	return fmt.Sprintf("merge(%s)", strings.Join(parts, ", "))
}

// NewMerge column-concatenates the parts. All parts must descend from
// one common ancestor via element-wise steps, and the resulting field
// names must be pairwise distinct.
func NewMerge(parts ...Expr) (*Merge, error) {
	if len(parts) == 0 {
		return nil, Errorf(ErrCodeInvalidArgument, "merge requires at least one part")
	}
	common, err := CommonSubexpression(parts...)
	if err != nil {
		return nil, err
	}
	for _, p := range parts {
		if !ElemwiseReachable(p, common) {
			return nil, Errorf(ErrCodeNotElemwise, "merge part %s is not element-wise over %s", p, common)
		}
	}

	var fields []shape.Field
	for _, p := range parts {
		nt, err := namesAndTypes(p)
		if err != nil {
			return nil, err
		}
		fields = append(fields, nt...)
	}
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if seen[f.Name] {
			return nil, Errorf(ErrCodeDuplicateColumns, "repeated column %q in merge", f.Name)
		}
		seen[f.Name] = true
	}
	rec, err := shape.NewRecord(fields...)
	if err != nil {
		return nil, err
	}
	dim, _ := dimOf(common)
	return &Merge{Child: common, Parts: parts, schema: shape.Collection{Dim: dim, Elem: rec}}, nil
}

// IsElemwiseKind reports whether the node kind is element-wise.
func IsElemwiseKind(k Kind) bool {
	switch k {
	case KindProjection, KindField, KindBroadcast, KindMap, KindLabel,
		KindReLabel, KindDateTime, KindMerge, KindLiteral, KindSymbol:
		return true
	}
	return false
}
