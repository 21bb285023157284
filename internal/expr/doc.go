// Package expr provides the expression algebra for tabular data
// transformations.
//
// An expression is an immutable node in a DAG describing a table
// computation: projections, selections, joins, grouping, sorting,
// reductions, and row-wise maps. Nodes carry no data; every node's
// output shape is a pure function of its children's shapes and its own
// parameters, so schema mistakes surface at construction time, before
// any data is touched.
//
// Expr is a sealed interface using the marker method pattern. Only types
// in this package implement it, which enables exhaustive type switches
// in the row-function compiler and backend handlers.
//
// Nodes are constructed through combinators (NewProjection, NewSelection,
// NewJoin, NewBy, ...) that validate shape compatibility immediately and
// return a ConstructionError or shape.Error on mismatch. Constructed
// nodes are never mutated and may be freely shared across parents.
//
// Expression identity is structural, not referential: Hash computes a
// content-addressed digest over a canonical encoding of the node, its
// parameters, and its children, so two independently built but equal
// leaves denote the same data source. The Map and Apply escape hatches
// hold opaque Go functions the algebra cannot inspect; their identity is
// the caller-declared tag, an explicitly unchecked boundary.
package expr
