package shape

import (
	"fmt"
	"strings"
)

// Shape is a sealed interface describing a value's structural type.
// Only Scalar, Record, Option, and Collection implement it.
// The marker method pattern prevents external implementations and enables
// exhaustive type switches in the engine and the backends.
type Shape interface {
	shapeNode() // Marker method - seals interface to this package
	String() string
}

// Scalar is a named unit type: "string", "int", "float", "bool", "datetime".
type Scalar struct {
	Name string
}

func (Scalar) shapeNode() {}

func (s Scalar) String() string { return s.Name }

// Well-known scalar shapes. Use these instead of constructing Scalar
// literals so equality checks compare against one canonical spelling.
var (
	String   = Scalar{Name: "string"}
	Int      = Scalar{Name: "int"}
	Float    = Scalar{Name: "float"}
	Bool     = Scalar{Name: "bool"}
	DateTime = Scalar{Name: "datetime"}
)

// Field is one named entry of a Record.
type Field struct {
	Name string
	Type Shape
}

// Record is an ordered mapping of unique field names to shapes.
// Order is significant: it drives default join column order and the
// default sort key.
type Record struct {
	Fields []Field
}

func (Record) shapeNode() {}

func (r Record) String() string {
	parts := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		parts[i] = fmt.Sprintf("%s: %s", f.Name, f.Type)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Names returns the field names in declaration order.
func (r Record) Names() []string {
	names := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		names[i] = f.Name
	}
	return names
}

// TypeOf returns the shape of the named field.
func (r Record) TypeOf(name string) (Shape, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Type, true
		}
	}
	return nil, false
}

// Index returns the position of the named field, or -1.
func (r Record) Index(name string) int {
	for i, f := range r.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// NewRecord builds a Record, rejecting duplicate field names.
func NewRecord(fields ...Field) (Record, error) {
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f.Type == nil {
			return Record{}, &Error{Code: ErrCodeInvalidShape, Message: fmt.Sprintf("field %q has nil type", f.Name)}
		}
		if seen[f.Name] {
			return Record{}, &Error{Code: ErrCodeFieldCollision, Message: fmt.Sprintf("duplicate field name %q", f.Name)}
		}
		seen[f.Name] = true
	}
	return Record{Fields: fields}, nil
}

// MustRecord is like NewRecord but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustRecord(fields ...Field) Record {
	r, err := NewRecord(fields...)
	if err != nil {
		panic(err)
	}
	return r
}

// Option wraps a shape whose values may be missing (nil at runtime).
// The outer side of a left/right/outer join wraps its non-key columns
// in Option.
type Option struct {
	Elem Shape
}

func (Option) shapeNode() {}

func (o Option) String() string { return "?" + o.Elem.String() }

// Optional wraps s in Option unless it already is one.
func Optional(s Shape) Shape {
	if _, ok := s.(Option); ok {
		return s
	}
	return Option{Elem: s}
}

// Unwrap strips a single Option layer, if present.
func Unwrap(s Shape) Shape {
	if o, ok := s.(Option); ok {
		return o.Elem
	}
	return s
}

// Dim is a collection dimension: a fixed element count or "variable".
type Dim struct {
	Fixed int64
	Var   bool
}

// VarDim is the variable-length dimension.
var VarDim = Dim{Var: true}

// FixedDim returns a fixed-count dimension.
func FixedDim(n int64) Dim { return Dim{Fixed: n} }

func (d Dim) String() string {
	if d.Var {
		return "var"
	}
	return fmt.Sprintf("%d", d.Fixed)
}

// Collection is a dimensioned sequence of elements.
// A table is Collection(var, Record); the result of head(5) is
// Collection(5, Record).
type Collection struct {
	Dim  Dim
	Elem Shape
}

func (Collection) shapeNode() {}

func (c Collection) String() string { return c.Dim.String() + " * " + c.Elem.String() }

// Table wraps a row schema in a variable-length collection.
func Table(row Shape) Collection {
	return Collection{Dim: VarDim, Elem: row}
}

// NDim counts the nesting depth of Collection layers in s.
func NDim(s Shape) int {
	n := 0
	for {
		c, ok := s.(Collection)
		if !ok {
			return n
		}
		n++
		s = c.Elem
	}
}

// RowOf returns the element shape of a collection, descending one level.
func RowOf(s Shape) (Shape, bool) {
	c, ok := s.(Collection)
	if !ok {
		return nil, false
	}
	return c.Elem, true
}

// Equal reports structural equality of two shapes.
func Equal(a, b Shape) bool {
	switch x := a.(type) {
	case Scalar:
		y, ok := b.(Scalar)
		return ok && x.Name == y.Name
	case Option:
		y, ok := b.(Option)
		return ok && Equal(x.Elem, y.Elem)
	case Collection:
		y, ok := b.(Collection)
		return ok && x.Dim == y.Dim && Equal(x.Elem, y.Elem)
	case Record:
		y, ok := b.(Record)
		if !ok || len(x.Fields) != len(y.Fields) {
			return false
		}
		for i := range x.Fields {
			if x.Fields[i].Name != y.Fields[i].Name || !Equal(x.Fields[i].Type, y.Fields[i].Type) {
				return false
			}
		}
		return true
	}
	return false
}

// Compatible reports whether two shapes may serve as matching join keys.
// Option wrappers are ignored; scalar names must agree exactly.
func Compatible(a, b Shape) bool {
	return Equal(Unwrap(a), Unwrap(b))
}

// IsNumeric reports whether s is an int or float scalar, possibly
// Option-wrapped or a single-field record of one.
func IsNumeric(s Shape) bool {
	s = Unwrap(s)
	if r, ok := s.(Record); ok && len(r.Fields) == 1 {
		return IsNumeric(r.Fields[0].Type)
	}
	sc, ok := s.(Scalar)
	return ok && (sc.Name == Int.Name || sc.Name == Float.Name)
}

// IsBoolean reports whether s is a bool scalar, possibly Option-wrapped
// or a single-field record of one.
func IsBoolean(s Shape) bool {
	s = Unwrap(s)
	if r, ok := s.(Record); ok && len(r.Fields) == 1 {
		return IsBoolean(r.Fields[0].Type)
	}
	sc, ok := s.(Scalar)
	return ok && sc.Name == Bool.Name
}

// IsUnit reports whether s is a scalar (possibly Option-wrapped),
// i.e. a single unnamed value rather than a record.
func IsUnit(s Shape) bool {
	_, ok := Unwrap(s).(Scalar)
	return ok
}
