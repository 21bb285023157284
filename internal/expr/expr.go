package expr

import (
	"fmt"
	"time"

	"github.com/tably/tably/internal/shape"
)

// Kind is the tagged variant of an expression node. Backend handler
// registration is keyed by Kind.
type Kind string

const (
	KindSymbol     Kind = "symbol"
	KindLiteral    Kind = "literal"
	KindProjection Kind = "projection"
	KindField      Kind = "field"
	KindBroadcast  Kind = "broadcast"
	KindMap        Kind = "map"
	KindLabel      Kind = "label"
	KindReLabel    Kind = "relabel"
	KindDateTime   Kind = "datetime"
	KindMerge      Kind = "merge"
	KindSelection  Kind = "selection"
	KindReduction  Kind = "reduction"
	KindSummary    Kind = "summary"
	KindBy         Kind = "by"
	KindDistinct   Kind = "distinct"
	KindSort       Kind = "sort"
	KindHead       Kind = "head"
	KindLike       Kind = "like"
	KindSlice      Kind = "slice"
	KindApply      Kind = "apply"
	KindUnion      Kind = "union"
	KindJoin       Kind = "join"
)

// Expr is a sealed interface representing an expression node.
//
// Children returns the node's data inputs: the sub-expressions the
// engine computes before dispatching the node itself. Structural
// sub-expressions that are fused rather than computed (a Selection's
// predicate, a By's grouper and apply, Merge branches) are reachable via
// operands() instead.
type Expr interface {
	Kind() Kind
	Shape() shape.Shape
	Children() []Expr
	String() string
	exprNode() // Marker method - seals interface to this package
}

// Symbol is a named leaf carrying its declared shape. Symbols are the
// binding points for concrete data at evaluation time.
type Symbol struct {
	Name string
	Typ  shape.Shape
}

func (*Symbol) exprNode() {}

func (s *Symbol) Kind() Kind         { return KindSymbol }
func (s *Symbol) Shape() shape.Shape { return s.Typ }
func (s *Symbol) Children() []Expr   { return nil }
func (s *Symbol) String() string     { return s.Name }

// NewSymbol creates a leaf symbol with the given shape. A bare Record
// shape is promoted to a variable-length table of that record.
func NewSymbol(name string, typ shape.Shape) (*Symbol, error) {
	if name == "" {
		return nil, Errorf(ErrCodeInvalidArgument, "symbol name must not be empty")
	}
	if typ == nil {
		return nil, Errorf(ErrCodeInvalidArgument, "symbol %q has nil shape", name)
	}
	if rec, ok := typ.(shape.Record); ok {
		typ = shape.Table(rec)
	}
	return &Symbol{Name: name, Typ: typ}, nil
}

// MustSymbol is like NewSymbol but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustSymbol(name string, typ shape.Shape) *Symbol {
	s, err := NewSymbol(name, typ)
	if err != nil {
		panic(err)
	}
	return s
}

// TableSymbol creates a table symbol from a record literal like
// "{name: string, amount: int}".
func TableSymbol(name, recordLiteral string) (*Symbol, error) {
	rec, err := shape.ParseRecord(recordLiteral)
	if err != nil {
		return nil, err
	}
	return NewSymbol(name, rec)
}

// MustTableSymbol is like TableSymbol but panics on error.
func MustTableSymbol(name, recordLiteral string) *Symbol {
	s, err := TableSymbol(name, recordLiteral)
	if err != nil {
		panic(err)
	}
	return s
}

// Literal is a constant scalar embedded in an expression, typically as
// a Broadcast operand.
type Literal struct {
	Value any
	Typ   shape.Shape
}

func (*Literal) exprNode() {}

func (l *Literal) Kind() Kind         { return KindLiteral }
func (l *Literal) Shape() shape.Shape { return l.Typ }
func (l *Literal) Children() []Expr   { return nil }

func (l *Literal) String() string {
	if s, ok := l.Value.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprintf("%v", l.Value)
}

// NewLiteral creates a constant scalar, inferring its shape from the
// Go value. Supported: string, bool, int, int64, float64, time.Time.
func NewLiteral(v any) (*Literal, error) {
	var typ shape.Shape
	switch v.(type) {
	case string:
		typ = shape.String
	case bool:
		typ = shape.Bool
	case int, int64:
		typ = shape.Int
	case float64:
		typ = shape.Float
	case time.Time:
		typ = shape.DateTime
	default:
		return nil, Errorf(ErrCodeInvalidArgument, "unsupported literal type %T", v)
	}
	return &Literal{Value: v, Typ: typ}, nil
}

// MustLiteral is like NewLiteral but panics on error.
func MustLiteral(v any) *Literal {
	l, err := NewLiteral(v)
	if err != nil {
		panic(err)
	}
	return l
}

// rowOf returns the element shape of a collection-shaped expression.
func rowOf(e Expr) (shape.Shape, bool) {
	return shape.RowOf(e.Shape())
}

// dimOf returns the outermost dimension of a collection-shaped
// expression.
func dimOf(e Expr) (shape.Dim, bool) {
	c, ok := e.Shape().(shape.Collection)
	if !ok {
		return shape.Dim{}, false
	}
	return c.Dim, true
}

// recordOf returns the row schema of e as a Record, when e is a
// collection of records.
func recordOf(e Expr) (shape.Record, bool) {
	row, ok := rowOf(e)
	if !ok {
		return shape.Record{}, false
	}
	rec, ok := shape.Unwrap(row).(shape.Record)
	return rec, ok
}

// Names returns the column names of a collection-of-records expression,
// or the single inferred name for a unit-shaped one.
func Names(e Expr) []string {
	if rec, ok := recordOf(e); ok {
		return rec.Names()
	}
	if name, ok := NameOf(e); ok {
		return []string{name}
	}
	return nil
}

// NameOf infers the value name of a unit-shaped or scalar expression:
// the symbol name, the selected field, the label, or for reductions the
// child name suffixed with the reduction op. Returns false for
// expressions with no inferable name.
func NameOf(e Expr) (string, bool) {
	switch n := e.(type) {
	case *Symbol:
		return n.Name, true
	case *Field:
		return n.Name, true
	case *Label:
		return n.Name, true
	case *Reduction:
		if child, ok := NameOf(n.Child); ok {
			return child + "_" + string(n.Op), true
		}
		return string(n.Op), true
	case *Selection:
		return NameOf(n.Child)
	case *Sort:
		return NameOf(n.Child)
	case *Distinct:
		return NameOf(n.Child)
	case *Head:
		return NameOf(n.Child)
	case *DateTimeAttr:
		if child, ok := NameOf(n.Child); ok {
			return child + "_" + string(n.Attr), true
		}
		return string(n.Attr), true
	case *Map:
		return NameOf(n.Child)
	case *Projection:
		if len(n.Fields) == 1 {
			return n.Fields[0], true
		}
	}
	return "", false
}

// namesAndTypes flattens an expression's output into (name, type) pairs
// for schema concatenation in Merge, By, and Summary.
func namesAndTypes(e Expr) ([]shape.Field, error) {
	s := e.Shape()
	if c, ok := s.(shape.Collection); ok {
		s = c.Elem
	}
	s = shape.Unwrap(s)
	switch t := s.(type) {
	case shape.Record:
		return t.Fields, nil
	case shape.Scalar:
		name, ok := NameOf(e)
		if !ok {
			return nil, Errorf(ErrCodeUnnamed, "expression %s is unnamed; wrap it with label(...)", e)
		}
		return []shape.Field{{Name: name, Type: t}}, nil
	}
	return nil, shape.Errorf(shape.ErrCodeInvalidShape, "cannot flatten shape %s of %s", e.Shape(), e)
}

// childOf returns the single data input of a unary node.
func childOf(e Expr) Expr {
	kids := e.Children()
	if len(kids) != 1 {
		return nil
	}
	return kids[0]
}
