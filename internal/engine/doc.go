// Package engine evaluates expressions against concrete data by
// multiple dispatch.
//
// Backends register handlers keyed by (node kind, runtime class
// pattern). Compute walks the expression post-order, resolves the most
// specific handler for each node's computed inputs, and threads results
// through a per-evaluation scope keyed by structural hash. Shared
// subexpressions are therefore computed once; a consumed stream fetched
// from the scope a second time is transparently duplicated via Tee.
//
// Registration is strict: two handlers for the same kind whose
// patterns overlap at equal specificity are rejected immediately with
// AmbiguousDispatchError rather than resolved by registration order.
package engine
