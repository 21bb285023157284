// Package shape provides the structural type model for tabular expressions.
//
// A Shape describes a value's composition: a Scalar is a named unit type,
// a Record is an ordered mapping of field names to shapes, an Option wraps
// a nullable shape, and a Collection is a dimensioned sequence of elements.
//
// Shapes are the schema layer of the expression algebra. Every expression
// node reports its output as a Shape that is a pure function of its
// children's shapes, so schema mistakes surface before any data is touched.
//
// Key design constraints:
//   - Record field names are unique and order is significant. Field order
//     determines default join/merge column order and the default sort key.
//   - Shapes are immutable value objects; never mutate a Shape after
//     construction.
//   - shape imports nothing internal. All other internal packages import
//     shape, keeping it the foundational layer with no cycles.
package shape
