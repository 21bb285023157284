package sqlback

import (
	"context"
	"fmt"

	"github.com/tably/tably/internal/engine"
	"github.com/tably/tably/internal/expr"
	"github.com/tably/tably/internal/shape"
)

// Compute compiles e, runs the query, and shapes the result the way the
// stream backend would: a Table for collections, a bare scalar for
// reductions. Record rows come back as []any in schema order, unit
// collections as bare element values.
func (d *DB) Compute(ctx context.Context, e expr.Expr, tables map[*expr.Symbol]string) (any, error) {
	sqlText, params, err := Compile(e, tables)
	if err != nil {
		return nil, err
	}
	d.logger.DebugContext(ctx, "pushdown", "sql", sqlText, "params", len(params))

	rows, err := d.db.QueryContext(ctx, sqlText, params...)
	if err != nil {
		return nil, fmt.Errorf("sqlback: query: %w", err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("sqlback: columns: %w", err)
	}

	var out []any
	for rows.Next() {
		vals := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("sqlback: scan: %w", err)
		}
		out = append(out, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlback: iterate: %w", err)
	}

	return shapeResult(e, out)
}

// shapeResult converts scanned rows into the backend's value model,
// coercing driver values per the expression's declared column shapes.
func shapeResult(e expr.Expr, scanned []any) (any, error) {
	row, isColl := shape.RowOf(e.Shape())
	if !isColl {
		// Scalar result of a reduction: one row, one column.
		if len(scanned) != 1 {
			return nil, fmt.Errorf("sqlback: scalar query returned %d rows", len(scanned))
		}
		return convertValue(scanned[0].([]any)[0], e.Shape()), nil
	}

	rec, isRec := shape.Unwrap(row).(shape.Record)
	for i, r := range scanned {
		vals := r.([]any)
		if !isRec {
			scanned[i] = convertValue(vals[0], row)
			continue
		}
		for j, f := range rec.Fields {
			vals[j] = convertValue(vals[j], f.Type)
		}
	}
	return engine.NewTable(scanned...), nil
}

// convertValue maps a driver value to the shape's Go representation.
// The driver already produces bool and time.Time for declared BOOLEAN
// and DATETIME columns; expressions and aggregates lose the declared
// type, so the shape decides.
func convertValue(v any, typ shape.Shape) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case int64:
		switch shape.Unwrap(typ) {
		case shape.Bool:
			return val != 0
		case shape.Float:
			return float64(val)
		}
	}
	return v
}
