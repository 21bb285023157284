// Package sqlback pushes a fragment of the expression algebra down to
// SQLite instead of streaming rows through Go.
//
// The compiled fragment covers table scans, projection, field access,
// selection over broadcast predicates, sort by named columns, head,
// distinct, the sum/min/max/count/mean reductions, and inner and left
// joins. Everything else is an UnsupportedOperationError at compile
// time, so callers can fall back to the stream backend.
//
// Values are always bound as query parameters, never interpolated into
// the SQL text.
package sqlback
