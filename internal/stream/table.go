package stream

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/tably/tably/internal/engine"
	"github.com/tably/tably/internal/expr"
	"github.com/tably/tably/internal/rowfn"
	"github.com/tably/tably/internal/shape"
)

// headEagerLimit bounds eager materialization of head: small prefixes
// become Tables for convenient inspection, large ones stay lazy.
const headEagerLimit = 100

func selectionHandler(ev *engine.Eval, e expr.Expr, args []any) (any, error) {
	sel := e.(*expr.Selection)
	pred, err := rowfn.Fuse(sel.Predicate, sel.Child)
	if err != nil {
		return nil, err
	}
	return filterDataset(args[0].(engine.Dataset), pred)
}

func distinctHandler(ev *engine.Eval, e expr.Expr, args []any) (any, error) {
	switch ds := args[0].(type) {
	case *engine.Table:
		seen := make(map[string]bool, len(ds.Rows))
		var out []any
		for _, r := range ds.Rows {
			k := keyOf(r)
			if !seen[k] {
				seen[k] = true
				out = append(out, r)
			}
		}
		return engine.NewTable(out...), nil

	case *engine.Stream:
		// Peek one element so an empty input yields an empty result
		// immediately instead of a stream that fails on first pull.
		first, ok, err := ds.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return engine.NewTable(), nil
		}
		src := ds.Prepend(first)
		seen := make(map[string]bool)
		return engine.NewStream(func() (any, bool, error) {
			for {
				r, ok, err := src.Next()
				if err != nil || !ok {
					return nil, false, err
				}
				k := keyOf(r)
				if !seen[k] {
					seen[k] = true
					return r, true, nil
				}
			}
		}), nil
	}
	return nil, engine.Unsupportedf(expr.KindDistinct, "unknown dataset %T", args[0])
}

func sortHandler(ev *engine.Eval, e expr.Expr, args []any) (any, error) {
	s := e.(*expr.Sort)
	key, err := sortKeyFunc(s)
	if err != nil {
		return nil, err
	}

	rows, err := engine.Rows(args[0].(engine.Dataset))
	if err != nil {
		return nil, err
	}
	keys := make([]any, len(rows))
	for i, r := range rows {
		if keys[i], err = key(r); err != nil {
			return nil, err
		}
	}

	out := make([]any, len(rows))
	copy(out, rows)
	idx := make([]int, len(rows))
	for i := range idx {
		idx[i] = i
	}
	var sortErr error
	sort.SliceStable(idx, func(i, j int) bool {
		c, err := compareKeys(keys[idx[i]], keys[idx[j]])
		if err != nil && sortErr == nil {
			sortErr = err
		}
		if s.Ascending {
			return c < 0
		}
		return c > 0
	})
	if sortErr != nil {
		return nil, sortErr
	}
	for i, j := range idx {
		out[i] = rows[j]
	}
	return engine.NewTable(out...), nil
}

// sortKeyFunc builds the per-row sort key: the named column values, or
// the fused key expression.
func sortKeyFunc(s *expr.Sort) (rowfn.Func, error) {
	if s.KeyExpr != nil {
		return rowfn.Fuse(s.KeyExpr, s.Child)
	}
	if len(s.Fields) == 0 {
		// Unit-shaped child: the element is its own key.
		return rowfn.Identity, nil
	}
	rec, ok := rowRecord(s.Child)
	if !ok {
		return nil, engine.Unsupportedf(expr.KindSort, "child %s has no record schema", s.Child)
	}
	indices := make([]int, len(s.Fields))
	for i, f := range s.Fields {
		indices[i] = rec.Index(f)
	}
	if len(indices) == 1 {
		i := indices[0]
		return func(row any) (any, error) { return row.([]any)[i], nil }, nil
	}
	return func(row any) (any, error) {
		in := row.([]any)
		out := make([]any, len(indices))
		for i, idx := range indices {
			out[i] = in[idx]
		}
		return out, nil
	}, nil
}

// compareKeys orders scalar keys directly and composite keys
// lexicographically.
func compareKeys(a, b any) (int, error) {
	as, aOK := a.([]any)
	bs, bOK := b.([]any)
	if !aOK || !bOK {
		return rowfn.Compare(a, b)
	}
	for i := range as {
		if i >= len(bs) {
			return 1, nil
		}
		c, err := rowfn.Compare(as[i], bs[i])
		if err != nil || c != 0 {
			return c, err
		}
	}
	if len(as) < len(bs) {
		return -1, nil
	}
	return 0, nil
}

func headHandler(ev *engine.Eval, e expr.Expr, args []any) (any, error) {
	n := e.(*expr.Head).N

	switch ds := args[0].(type) {
	case *engine.Table:
		if int64(len(ds.Rows)) < n {
			n = int64(len(ds.Rows))
		}
		return engine.NewTable(ds.Rows[:n]...), nil

	case *engine.Stream:
		if n < headEagerLimit {
			var out []any
			for int64(len(out)) < n {
				r, ok, err := ds.Next()
				if err != nil {
					return nil, err
				}
				if !ok {
					break
				}
				out = append(out, r)
			}
			return engine.NewTable(out...), nil
		}
		taken := int64(0)
		return engine.NewStream(func() (any, bool, error) {
			if taken >= n {
				return nil, false, nil
			}
			r, ok, err := ds.Next()
			if err != nil || !ok {
				return nil, false, err
			}
			taken++
			return r, true, nil
		}), nil
	}
	return nil, engine.Unsupportedf(expr.KindHead, "unknown dataset %T", args[0])
}

func likeHandler(ev *engine.Eval, e expr.Expr, args []any) (any, error) {
	l := e.(*expr.Like)
	rec, ok := rowRecord(l.Child)
	if !ok {
		return nil, engine.Unsupportedf(expr.KindLike, "child %s has no record schema", l.Child)
	}

	type compiled struct {
		idx int
		re  *regexp.Regexp
	}
	patterns := make([]compiled, len(l.Patterns))
	for i, p := range l.Patterns {
		re, err := regexp.Compile(globToRegexp(p.Glob))
		if err != nil {
			return nil, engine.Unsupportedf(expr.KindLike, "pattern %q: %v", p.Glob, err)
		}
		patterns[i] = compiled{idx: rec.Index(p.Field), re: re}
	}

	return filterDataset(args[0].(engine.Dataset), func(row any) (any, error) {
		in, ok := row.([]any)
		if !ok {
			return nil, engine.Unsupportedf(expr.KindLike, "row is %T, want a record row", row)
		}
		for _, p := range patterns {
			s, ok := in[p.idx].(string)
			if !ok || !p.re.MatchString(s) {
				return false, nil
			}
		}
		return true, nil
	})
}

// globToRegexp translates a glob into an anchored regexp: '*' matches
// any run, '?' one character, everything else literally.
func globToRegexp(glob string) string {
	var b strings.Builder
	b.WriteString(`\A`)
	for _, r := range glob {
		switch r {
		case '*':
			b.WriteString(`.*`)
		case '?':
			b.WriteString(`.`)
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString(`\z`)
	return b.String()
}

func sliceHandler(ev *engine.Eval, e expr.Expr, args []any) (any, error) {
	idx := e.(*expr.Slice).Index

	if !idx.Range {
		switch ds := args[0].(type) {
		case *engine.Table:
			if idx.At >= int64(len(ds.Rows)) {
				return nil, fmt.Errorf("stream: index %d out of range (%d rows)", idx.At, len(ds.Rows))
			}
			return ds.Rows[idx.At], nil
		case *engine.Stream:
			var i int64
			for {
				r, ok, err := ds.Next()
				if err != nil {
					return nil, err
				}
				if !ok {
					return nil, fmt.Errorf("stream: index %d out of range (%d rows)", idx.At, i)
				}
				if i == idx.At {
					return r, nil
				}
				i++
			}
		}
	}

	switch ds := args[0].(type) {
	case *engine.Table:
		start, stop := idx.Start, idx.Stop
		if start > int64(len(ds.Rows)) {
			start = int64(len(ds.Rows))
		}
		if stop > int64(len(ds.Rows)) {
			stop = int64(len(ds.Rows))
		}
		return engine.NewTable(ds.Rows[start:stop]...), nil
	case *engine.Stream:
		var i int64
		return engine.NewStream(func() (any, bool, error) {
			for {
				if i >= idx.Stop {
					return nil, false, nil
				}
				r, ok, err := ds.Next()
				if err != nil || !ok {
					return nil, false, err
				}
				i++
				if i > idx.Start {
					return r, true, nil
				}
			}
		}), nil
	}
	return nil, engine.Unsupportedf(expr.KindSlice, "unknown dataset %T", args[0])
}

func applyHandler(ev *engine.Eval, e expr.Expr, args []any) (any, error) {
	a := e.(*expr.Apply)
	rows, err := engine.Rows(args[0].(engine.Dataset))
	if err != nil {
		return nil, err
	}
	out := a.Fn(rows)
	if vs, ok := out.([]any); ok {
		if _, isColl := a.Out.(shape.Collection); isColl {
			return engine.NewTable(vs...), nil
		}
	}
	return out, nil
}

func unionHandler(ev *engine.Eval, e expr.Expr, args []any) (any, error) {
	// Concatenation without deduplication; laziness survives when any
	// input is a stream.
	allTables := true
	for _, a := range args {
		if _, ok := a.(*engine.Table); !ok {
			allTables = false
			break
		}
	}
	if allTables {
		var out []any
		for _, a := range args {
			out = append(out, a.(*engine.Table).Rows...)
		}
		return engine.NewTable(out...), nil
	}

	i := 0
	var cur *engine.Stream
	return engine.NewStream(func() (any, bool, error) {
		for {
			if cur == nil {
				if i >= len(args) {
					return nil, false, nil
				}
				switch ds := args[i].(type) {
				case *engine.Table:
					cur = engine.StreamOf(ds.Rows...)
				case *engine.Stream:
					cur = ds
				}
				i++
			}
			r, ok, err := cur.Next()
			if err != nil {
				return nil, false, err
			}
			if ok {
				return r, true, nil
			}
			cur = nil
		}
	}), nil
}

// rowRecord returns the record schema of a collection-shaped
// expression's rows.
func rowRecord(e expr.Expr) (shape.Record, bool) {
	row, ok := shape.RowOf(e.Shape())
	if !ok {
		return shape.Record{}, false
	}
	rec, ok := shape.Unwrap(row).(shape.Record)
	return rec, ok
}
