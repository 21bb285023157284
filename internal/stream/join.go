package stream

import (
	"github.com/tably/tably/internal/engine"
	"github.com/tably/tably/internal/expr"
)

// joinHandler materializes the left side into a key index and streams
// the right side through it. Self-joins arrive as two handles of one
// structurally shared child; the engine's scope has already duplicated
// the underlying stream, so both sides see the full sequence.
func joinHandler(ev *engine.Eval, e expr.Expr, args []any) (any, error) {
	j := e.(*expr.Join)
	lrec, ok := rowRecord(j.Lhs)
	if !ok {
		return nil, engine.Unsupportedf(expr.KindJoin, "lhs %s has no record schema", j.Lhs)
	}
	rrec, ok := rowRecord(j.Rhs)
	if !ok {
		return nil, engine.Unsupportedf(expr.KindJoin, "rhs %s has no record schema", j.Rhs)
	}

	lkey := fieldIndices(lrec.Names(), j.OnLeft)
	rkey := fieldIndices(rrec.Names(), j.OnRight)
	lrest := restIndices(len(lrec.Fields), lkey)
	rrest := restIndices(len(rrec.Fields), rkey)

	// Left side is the build side.
	lrows, err := engine.Rows(args[0].(engine.Dataset))
	if err != nil {
		return nil, err
	}
	index := make(map[string][][]any, len(lrows))
	var lorder []string
	for _, r := range lrows {
		row := r.([]any)
		k := keyOf(pick(row, lkey))
		if _, ok := index[k]; !ok {
			lorder = append(lorder, k)
		}
		index[k] = append(index[k], row)
	}

	matched := make(map[string]bool, len(index))
	var out []any

	// Probe with the right side.
	err = forEach(args[1].(engine.Dataset), func(r any) error {
		row := r.([]any)
		keyVals := pick(row, rkey)
		k := keyOf(keyVals)
		if lmatches, ok := index[k]; ok {
			matched[k] = true
			for _, l := range lmatches {
				out = append(out, joinRow(pick(l, lkey), pick(l, lrest), pick(row, rrest)))
			}
			return nil
		}
		if j.How == expr.JoinRight || j.How == expr.JoinOuter {
			out = append(out, joinRow(keyVals, nilFill(len(lrest)), pick(row, rrest)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Unmatched left rows survive left and outer joins, in build order.
	if j.How == expr.JoinLeft || j.How == expr.JoinOuter {
		for _, k := range lorder {
			if matched[k] {
				continue
			}
			for _, l := range index[k] {
				out = append(out, joinRow(pick(l, lkey), pick(l, lrest), nilFill(len(rrest))))
			}
		}
	}
	return engine.NewTable(out...), nil
}

func joinRow(keys, left, right []any) []any {
	row := make([]any, 0, len(keys)+len(left)+len(right))
	row = append(row, keys...)
	row = append(row, left...)
	return append(row, right...)
}

func fieldIndices(names, fields []string) []int {
	pos := make(map[string]int, len(names))
	for i, n := range names {
		pos[n] = i
	}
	out := make([]int, len(fields))
	for i, f := range fields {
		out[i] = pos[f]
	}
	return out
}

func restIndices(width int, keys []int) []int {
	keySet := make(map[int]bool, len(keys))
	for _, k := range keys {
		keySet[k] = true
	}
	var rest []int
	for i := 0; i < width; i++ {
		if !keySet[i] {
			rest = append(rest, i)
		}
	}
	return rest
}

func pick(row []any, indices []int) []any {
	out := make([]any, len(indices))
	for i, idx := range indices {
		out[i] = row[idx]
	}
	return out
}

func nilFill(n int) []any {
	return make([]any, n)
}
