package stream

import (
	"github.com/tably/tably/internal/engine"
	"github.com/tably/tably/internal/expr"
	"github.com/tably/tably/internal/rowfn"
)

// elemwiseHandler applies a node's fused row transform over its data
// input. Lazy in, lazy out: streams map lazily, tables eagerly.
func elemwiseHandler(ev *engine.Eval, e expr.Expr, args []any) (any, error) {
	f, err := rowfn.Local(e)
	if err != nil {
		return nil, err
	}
	return mapDataset(args[0].(engine.Dataset), f)
}

// scalarBroadcastHandler evaluates an operator whose operands are all
// scalars, computed by the engine before dispatch.
func scalarBroadcastHandler(ev *engine.Eval, e expr.Expr, args []any) (any, error) {
	return rowfn.ApplyOp(e.(*expr.Broadcast).Op, args...)
}

// mapDataset applies f per element, preserving laziness.
func mapDataset(d engine.Dataset, f rowfn.Func) (any, error) {
	switch ds := d.(type) {
	case *engine.Table:
		out := make([]any, len(ds.Rows))
		for i, r := range ds.Rows {
			v, err := f(r)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return engine.NewTable(out...), nil

	case *engine.Stream:
		return engine.NewStream(func() (any, bool, error) {
			r, ok, err := ds.Next()
			if err != nil || !ok {
				return nil, false, err
			}
			v, err := f(r)
			if err != nil {
				return nil, false, err
			}
			return v, true, nil
		}), nil
	}
	return nil, engine.Unsupportedf(expr.KindBroadcast, "unknown dataset %T", d)
}

// filterDataset keeps elements whose fused predicate is true,
// preserving laziness.
func filterDataset(d engine.Dataset, pred rowfn.Func) (any, error) {
	keep := func(r any) (bool, error) {
		v, err := pred(r)
		if err != nil {
			return false, err
		}
		b, ok := v.(bool)
		if !ok {
			return false, engine.Unsupportedf(expr.KindSelection, "predicate produced %T, want bool", v)
		}
		return b, nil
	}

	switch ds := d.(type) {
	case *engine.Table:
		var out []any
		for _, r := range ds.Rows {
			ok, err := keep(r)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, r)
			}
		}
		return engine.NewTable(out...), nil

	case *engine.Stream:
		return engine.NewStream(func() (any, bool, error) {
			for {
				r, ok, err := ds.Next()
				if err != nil || !ok {
					return nil, false, err
				}
				hit, err := keep(r)
				if err != nil {
					return nil, false, err
				}
				if hit {
					return r, true, nil
				}
			}
		}), nil
	}
	return nil, engine.Unsupportedf(expr.KindSelection, "unknown dataset %T", d)
}
