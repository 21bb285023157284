// Package rowfn compiles element-wise expression chains into single
// per-row Go functions.
//
// Every element-wise node has a local row transform: projection picks
// positions, field indexes one position, broadcast applies a scalar
// operator, merge splices branch outputs. Fuse composes these local
// transforms along the chain from an ancestor down to a descendant, so
// a pipeline like
//
//	filter(t, t.amount * 2 < 100)
//
// evaluates its predicate with one fused closure per row instead of
// materializing each intermediate column.
//
// Record rows are represented as []any in field order; unit-shaped
// values are bare Go scalars (int64, float64, string, bool, time.Time).
package rowfn
