package rowfn

import (
	"fmt"
	"time"

	"github.com/tably/tably/internal/expr"
	"github.com/tably/tably/internal/shape"
)

// Func transforms one row. Record rows come in and out as []any in
// field order; unit-shaped values are bare scalars.
type Func func(row any) (any, error)

// Identity returns its input unchanged.
func Identity(row any) (any, error) { return row, nil }

// Fuse composes the local row transforms along the element-wise chain
// from stop up to e into one function: the returned Func maps a row of
// stop to the corresponding row of e.
//
// Fuse(e, e) is the identity. Literal nodes terminate a chain on their
// own, ignoring stop, so constant operands fuse to constant functions.
func Fuse(e, stop expr.Expr) (Func, error) {
	var locals []Func
	cur := e
	for stop == nil || !expr.Equal(cur, stop) {
		if lit, ok := cur.(*expr.Literal); ok {
			v := lit.Value
			locals = append(locals, func(any) (any, error) { return v, nil })
			break
		}
		f, err := Local(cur)
		if err != nil {
			return nil, err
		}
		locals = append(locals, f)
		next := dataChild(cur)
		if next == nil {
			return nil, fmt.Errorf("rowfn: %s is not reachable from %s by element-wise steps", e, stop)
		}
		cur = next
	}
	return compose(locals), nil
}

// compose chains local transforms deepest-first. locals is ordered
// parent-first, the way Fuse collects them walking down.
func compose(locals []Func) Func {
	if len(locals) == 0 {
		return Identity
	}
	if len(locals) == 1 {
		return locals[0]
	}
	return func(row any) (any, error) {
		v := row
		var err error
		for i := len(locals) - 1; i >= 0; i-- {
			v, err = locals[i](v)
			if err != nil {
				return nil, err
			}
		}
		return v, nil
	}
}

// Local builds the single-step row transform of an element-wise node,
// relative to its data child. Broadcast and Merge close over fused
// functions for their operands and branches.
func Local(e expr.Expr) (Func, error) {
	switch n := e.(type) {
	case *expr.Symbol:
		return Identity, nil

	case *expr.Literal:
		v := n.Value
		return func(any) (any, error) { return v, nil }, nil

	case *expr.Projection:
		rec, err := childRecord(n.Child)
		if err != nil {
			return nil, err
		}
		indices := make([]int, len(n.Fields))
		for i, f := range n.Fields {
			indices[i] = rec.Index(f)
		}
		return func(row any) (any, error) {
			in, ok := row.([]any)
			if !ok {
				return nil, fmt.Errorf("rowfn: projection expects a record row, got %T", row)
			}
			out := make([]any, len(indices))
			for i, idx := range indices {
				out[i] = in[idx]
			}
			return out, nil
		}, nil

	case *expr.Field:
		rec, err := childRecord(n.Child)
		if err != nil {
			return nil, err
		}
		idx := rec.Index(n.Name)
		return func(row any) (any, error) {
			in, ok := row.([]any)
			if !ok {
				return nil, fmt.Errorf("rowfn: field access expects a record row, got %T", row)
			}
			return in[idx], nil
		}, nil

	case *expr.Broadcast:
		return broadcastFunc(n)

	case *expr.Map:
		fn := n.Fn
		if _, ok := childRecordOK(n.Child); ok {
			return func(row any) (any, error) {
				in, ok := row.([]any)
				if !ok {
					return nil, fmt.Errorf("rowfn: map expects a record row, got %T", row)
				}
				return fn(in...), nil
			}, nil
		}
		return func(row any) (any, error) { return fn(row), nil }, nil

	case *expr.Label, *expr.ReLabel:
		// Renaming changes the schema, never the values.
		return Identity, nil

	case *expr.DateTimeAttr:
		attr := n.Attr
		return func(row any) (any, error) {
			if row == nil {
				return nil, nil
			}
			t, ok := row.(time.Time)
			if !ok {
				return nil, fmt.Errorf("rowfn: %s expects a datetime, got %T", attr, row)
			}
			return ExtractAttr(t, attr), nil
		}, nil

	case *expr.Merge:
		parts := make([]Func, len(n.Parts))
		for i, p := range n.Parts {
			f, err := Fuse(p, n.Child)
			if err != nil {
				return nil, err
			}
			parts[i] = f
		}
		return func(row any) (any, error) {
			var out []any
			for _, f := range parts {
				v, err := f(row)
				if err != nil {
					return nil, err
				}
				// Record-valued branches splice flat.
				if vs, ok := v.([]any); ok {
					out = append(out, vs...)
				} else {
					out = append(out, v)
				}
			}
			return out, nil
		}, nil
	}
	return nil, fmt.Errorf("rowfn: %s node has no row function", e.Kind())
}

// broadcastFunc fuses each operand down to the broadcast's common
// ancestor and applies the scalar operator to the per-row results.
func broadcastFunc(b *expr.Broadcast) (Func, error) {
	ops := make([]Func, len(b.Operands))
	for i, o := range b.Operands {
		f, err := operandFunc(o, b.Common)
		if err != nil {
			return nil, err
		}
		ops[i] = f
	}
	op := b.Op
	return func(row any) (any, error) {
		args := make([]any, len(ops))
		for i, f := range ops {
			v, err := f(row)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		return ApplyOp(op, args...)
	}, nil
}

func operandFunc(o expr.Expr, common expr.Expr) (Func, error) {
	if common != nil {
		return Fuse(o, common)
	}
	// Scalar mode: operands carry no rows at all.
	switch n := o.(type) {
	case *expr.Literal:
		v := n.Value
		return func(any) (any, error) { return v, nil }, nil
	case *expr.Broadcast:
		if n.Common == nil {
			return broadcastFunc(n)
		}
	}
	return nil, fmt.Errorf("rowfn: operand %s of a scalar broadcast is not constant", o)
}

// ExtractAttr pulls one component out of a datetime value. date and
// time return truncated datetimes; the numeric attributes return int64.
func ExtractAttr(t time.Time, attr expr.Attr) any {
	switch attr {
	case expr.AttrYear:
		return int64(t.Year())
	case expr.AttrMonth:
		return int64(t.Month())
	case expr.AttrDay:
		return int64(t.Day())
	case expr.AttrHour:
		return int64(t.Hour())
	case expr.AttrMinute:
		return int64(t.Minute())
	case expr.AttrSecond:
		return int64(t.Second())
	case expr.AttrMillisecond:
		return int64(t.Nanosecond() / 1e6)
	case expr.AttrDate:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	case expr.AttrTime:
		return time.Date(1, time.January, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	}
	return nil
}

// dataChild returns the node the fused chain continues through: the
// common ancestor for Broadcast and Merge, the single child otherwise.
func dataChild(e expr.Expr) expr.Expr {
	switch n := e.(type) {
	case *expr.Broadcast:
		return n.Common
	case *expr.Merge:
		return n.Child
	}
	kids := e.Children()
	if len(kids) == 1 {
		return kids[0]
	}
	return nil
}

func childRecord(child expr.Expr) (shape.Record, error) {
	rec, ok := childRecordOK(child)
	if !ok {
		return shape.Record{}, fmt.Errorf("rowfn: %s is not a table of records", child)
	}
	return rec, nil
}

func childRecordOK(child expr.Expr) (shape.Record, bool) {
	row, ok := shape.RowOf(child.Shape())
	if !ok {
		return shape.Record{}, false
	}
	rec, ok := shape.Unwrap(row).(shape.Record)
	return rec, ok
}
