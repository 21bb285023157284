// Package stream is the reference backend: it evaluates expressions
// over in-memory rows and pull iterators.
//
// Element-wise nodes and selection predicates are fused into per-row
// functions (package rowfn) and applied lazily, so a lazy input yields
// a lazy output. Reductions run in a single pass with constant memory;
// grouping folds combiner-friendly reductions in one pass and falls
// back to materialized per-group evaluation otherwise. Joins
// materialize their left side into a key index and stream the right.
package stream
