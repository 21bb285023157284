package stream

import (
	"fmt"
	"math"

	"github.com/tably/tably/internal/engine"
	"github.com/tably/tably/internal/expr"
	"github.com/tably/tably/internal/rowfn"
)

func reductionHandler(ev *engine.Eval, e expr.Expr, args []any) (any, error) {
	r := e.(*expr.Reduction)
	acc := newAccumulator(r.Op, r.Unbiased)
	err := forEach(args[0].(engine.Dataset), acc.add)
	if err != nil {
		return nil, err
	}
	return acc.result()
}

func summaryHandler(ev *engine.Eval, e expr.Expr, args []any) (any, error) {
	s := e.(*expr.Summary)

	// All reductions accumulate in parallel over one pass of the
	// shared child.
	accs := make([]*accumulator, len(s.Fields))
	fns := make([]rowfn.Func, len(s.Fields))
	for i, f := range s.Fields {
		accs[i] = newAccumulator(f.Value.Op, f.Value.Unbiased)
		fn, err := rowfn.Fuse(f.Value.Child, s.Child)
		if err != nil {
			return nil, err
		}
		fns[i] = fn
	}

	err := forEach(args[0].(engine.Dataset), func(row any) error {
		for i := range accs {
			v, err := fns[i](row)
			if err != nil {
				return err
			}
			if err := accs[i].add(v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make(engine.Row, len(accs))
	for i, acc := range accs {
		if out[i], err = acc.result(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func byHandler(ev *engine.Eval, e expr.Expr, args []any) (any, error) {
	b := e.(*expr.By)
	grouper, err := rowfn.Fuse(b.Grouper, b.Child)
	if err != nil {
		return nil, err
	}

	var reds []*expr.Reduction
	switch a := b.Apply.(type) {
	case *expr.Reduction:
		reds = []*expr.Reduction{a}
	case *expr.Summary:
		for _, f := range a.Fields {
			reds = append(reds, f.Value)
		}
	default:
		return nil, engine.Unsupportedf(expr.KindBy, "apply %s is not a reduction or summary", b.Apply)
	}

	streamable := true
	for _, r := range reds {
		if !r.Op.HasCombiner() {
			streamable = false
			break
		}
	}
	if streamable {
		return byFold(b, grouper, reds, args[0].(engine.Dataset))
	}
	return byMaterialized(ev, b, grouper, args[0].(engine.Dataset))
}

// byFold folds every group in a single pass. Only reductions with
// associative, commutative combiners take this path.
func byFold(b *expr.By, grouper rowfn.Func, reds []*expr.Reduction, d engine.Dataset) (any, error) {
	fns := make([]rowfn.Func, len(reds))
	for i, r := range reds {
		fn, err := rowfn.Fuse(r.Child, b.Child)
		if err != nil {
			return nil, err
		}
		fns[i] = fn
	}

	type group struct {
		key  any
		accs []*accumulator
	}
	groups := make(map[string]*group)
	var order []string

	err := forEach(d, func(row any) error {
		k, err := grouper(row)
		if err != nil {
			return err
		}
		gk := keyOf(k)
		g, ok := groups[gk]
		if !ok {
			g = &group{key: k, accs: make([]*accumulator, len(reds))}
			for i, r := range reds {
				g.accs[i] = newAccumulator(r.Op, r.Unbiased)
			}
			groups[gk] = g
			order = append(order, gk)
		}
		for i := range fns {
			v, err := fns[i](row)
			if err != nil {
				return err
			}
			if err := g.accs[i].add(v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]any, 0, len(order))
	for _, gk := range order {
		g := groups[gk]
		row := spliceRow(nil, g.key)
		for _, acc := range g.accs {
			v, err := acc.result()
			if err != nil {
				return nil, err
			}
			row = append(row, v)
		}
		out = append(out, []any(row))
	}
	return engine.NewTable(out...), nil
}

// byMaterialized groups all rows, then evaluates the apply expression
// per group with a fresh computation bound to that group's table.
func byMaterialized(ev *engine.Eval, b *expr.By, grouper rowfn.Func, d engine.Dataset) (any, error) {
	type group struct {
		key  any
		rows []any
	}
	groups := make(map[string]*group)
	var order []string

	err := forEach(d, func(row any) error {
		k, err := grouper(row)
		if err != nil {
			return err
		}
		gk := keyOf(k)
		g, ok := groups[gk]
		if !ok {
			g = &group{key: k}
			groups[gk] = g
			order = append(order, gk)
		}
		g.rows = append(g.rows, row)
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]any, 0, len(order))
	for _, gk := range order {
		g := groups[gk]
		res, err := ev.Engine().Compute(b.Apply, map[expr.Expr]any{
			b.Child: engine.NewTable(g.rows...),
		})
		if err != nil {
			return nil, err
		}
		row := spliceRow(nil, g.key)
		row = spliceRow(row, res)
		out = append(out, []any(row))
	}
	return engine.NewTable(out...), nil
}

// spliceRow appends a value flat: record values extend, scalars append.
func spliceRow(row []any, v any) []any {
	if vs, ok := v.([]any); ok {
		return append(row, vs...)
	}
	return append(row, v)
}

// forEach pulls every element of a dataset without materializing it.
func forEach(d engine.Dataset, fn func(any) error) error {
	switch ds := d.(type) {
	case *engine.Table:
		for _, r := range ds.Rows {
			if err := fn(r); err != nil {
				return err
			}
		}
		return nil
	case *engine.Stream:
		for {
			r, ok, err := ds.Next()
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			if err := fn(r); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("stream: unknown dataset %T", d)
}

// accumulator is the single-pass state of one reduction. Moment-based
// statistics use the plain (count, sum, sum of squares) formulation;
// the variance formula is the textbook one and can lose precision on
// large values with small spread.
type accumulator struct {
	op       expr.ReduceOp
	unbiased bool

	n     int64
	sumI  int64
	sumF  float64
	float bool
	sumSq float64

	extreme any
	boolAcc bool
	seen    bool
	uniq    map[string]bool
}

func newAccumulator(op expr.ReduceOp, unbiased bool) *accumulator {
	a := &accumulator{op: op, unbiased: unbiased}
	if op == expr.ReduceNUnique {
		a.uniq = make(map[string]bool)
	}
	if op == expr.ReduceAll {
		a.boolAcc = true
	}
	return a
}

func (a *accumulator) add(v any) error {
	v = rowfn.Normalize(v)
	switch a.op {
	case expr.ReduceCount:
		if v != nil {
			a.n++
		}
		return nil

	case expr.ReduceNUnique:
		a.uniq[keyOf(v)] = true
		return nil

	case expr.ReduceAny:
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("stream: any over non-bool %T", v)
		}
		a.boolAcc = a.boolAcc || b
		return nil

	case expr.ReduceAll:
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("stream: all over non-bool %T", v)
		}
		a.boolAcc = a.boolAcc && b
		return nil

	case expr.ReduceMin, expr.ReduceMax:
		if !a.seen {
			a.extreme, a.seen = v, true
			return nil
		}
		c, err := rowfn.Compare(v, a.extreme)
		if err != nil {
			return err
		}
		if (a.op == expr.ReduceMin && c < 0) || (a.op == expr.ReduceMax && c > 0) {
			a.extreme = v
		}
		return nil

	case expr.ReduceSum:
		switch n := v.(type) {
		case int64:
			a.sumI += n
		case float64:
			a.float = true
			a.sumF += n
		default:
			return fmt.Errorf("stream: sum over non-number %T", v)
		}
		a.n++
		return nil

	case expr.ReduceMean, expr.ReduceVar, expr.ReduceStd:
		f, ok := rowfn.AsFloat(v)
		if !ok {
			return fmt.Errorf("stream: %s over non-number %T", a.op, v)
		}
		a.n++
		a.sumF += f
		a.sumSq += f * f
		return nil
	}
	return fmt.Errorf("stream: unknown reduction %s", a.op)
}

func (a *accumulator) result() (any, error) {
	switch a.op {
	case expr.ReduceCount:
		return a.n, nil
	case expr.ReduceNUnique:
		return int64(len(a.uniq)), nil
	case expr.ReduceAny, expr.ReduceAll:
		return a.boolAcc, nil

	case expr.ReduceMin, expr.ReduceMax:
		if !a.seen {
			return nil, fmt.Errorf("stream: %s of an empty sequence", a.op)
		}
		return a.extreme, nil

	case expr.ReduceSum:
		if a.float {
			return a.sumF + float64(a.sumI), nil
		}
		return a.sumI, nil

	case expr.ReduceMean:
		if a.n == 0 {
			return nil, fmt.Errorf("stream: mean of an empty sequence")
		}
		return a.sumF / float64(a.n), nil

	case expr.ReduceVar, expr.ReduceStd:
		if a.n == 0 || (a.unbiased && a.n == 1) {
			return nil, fmt.Errorf("stream: %s of too few values (n=%d)", a.op, a.n)
		}
		n := float64(a.n)
		mean := a.sumF / n
		variance := a.sumSq/n - mean*mean
		if a.unbiased {
			variance = (a.sumSq - n*mean*mean) / (n - 1)
		}
		if a.op == expr.ReduceStd {
			return math.Sqrt(variance), nil
		}
		return variance, nil
	}
	return nil, fmt.Errorf("stream: unknown reduction %s", a.op)
}
