package engine

import "time"

// Class categorizes a runtime value for dispatch. Classes form a small
// fixed hierarchy; matching is by declared capability, never by duck
// typing:
//
//	Any
//	├── Scalar
//	│   ├── Number
//	│   ├── Bool
//	│   └── String
//	└── Seq
//	    ├── Table
//	    └── Stream
//
// Specificity is the depth in this hierarchy: Any is 0, Scalar and Seq
// are 1, the leaves are 2.
type Class string

const (
	ClassAny    Class = "any"
	ClassScalar Class = "scalar"
	ClassSeq    Class = "seq"
	ClassNumber Class = "number"
	ClassBool   Class = "bool"
	ClassString Class = "string"
	ClassTable  Class = "table"
	ClassStream Class = "stream"
)

// Specificity ranks the class for handler resolution. Higher wins.
func (c Class) Specificity() int {
	switch c {
	case ClassAny:
		return 0
	case ClassScalar, ClassSeq:
		return 1
	case ClassNumber, ClassBool, ClassString, ClassTable, ClassStream:
		return 2
	}
	return 0
}

func (c Class) parent() (Class, bool) {
	switch c {
	case ClassNumber, ClassBool, ClassString:
		return ClassScalar, true
	case ClassTable, ClassStream:
		return ClassSeq, true
	case ClassScalar, ClassSeq:
		return ClassAny, true
	}
	return "", false
}

// ClassOf returns the most specific class of a runtime value. Scalars
// outside the known kinds (including nil) classify as plain Scalar.
func ClassOf(v any) Class {
	switch v.(type) {
	case *Table:
		return ClassTable
	case *Stream:
		return ClassStream
	case int, int64, float64:
		return ClassNumber
	case bool:
		return ClassBool
	case string:
		return ClassString
	case time.Time:
		return ClassScalar
	}
	return ClassScalar
}

// Matches reports whether a value of class got satisfies c.
func (c Class) Matches(got Class) bool {
	for {
		if c == got {
			return true
		}
		p, ok := got.parent()
		if !ok {
			return false
		}
		got = p
	}
}

// overlaps reports whether some runtime value could satisfy both
// classes: true iff one is an ancestor of the other (or they are
// equal).
func overlaps(a, b Class) bool {
	return a.Matches(b) || b.Matches(a)
}
