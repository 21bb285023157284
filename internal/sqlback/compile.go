package sqlback

import (
	"fmt"
	"strings"

	"github.com/tably/tably/internal/engine"
	"github.com/tably/tably/internal/expr"
	"github.com/tably/tably/internal/shape"
)

// query is a SELECT under construction. Operators merge into the open
// clause slots when the clause order allows it and wrap the current
// query as a subquery when it does not (a filter after a limit, a
// projection after distinct).
//
// Invariant: in a mergeable query every select item is a plain quoted
// column identifier, aligned with cols. Aggregates and joins produce
// richer select lists and are wrapped before they are returned.
type query struct {
	selects  []string
	cols     []string
	from     string
	where    []string
	orderBy  []string
	limit    int64 // -1 when unset
	distinct bool
	params   []any
}

// Compile translates e into one parameterized SQLite SELECT. tables
// maps symbol leaves to the database tables backing them.
func Compile(e expr.Expr, tables map[*expr.Symbol]string) (string, []any, error) {
	q, err := compile(e, tables)
	if err != nil {
		return "", nil, err
	}
	return q.render(), q.params, nil
}

func compile(e expr.Expr, tables map[*expr.Symbol]string) (*query, error) {
	switch n := e.(type) {
	case *expr.Symbol:
		return compileSymbol(n, tables)
	case *expr.Projection:
		return compileColumns(n.Child, n.Fields, tables)
	case *expr.Field:
		return compileColumns(n.Child, []string{n.Name}, tables)
	case *expr.Selection:
		return compileSelection(n, tables)
	case *expr.Distinct:
		q, err := compile(n.Child, tables)
		if err != nil {
			return nil, err
		}
		// DISTINCT restricts ORDER BY to result columns, so the child
		// always moves into a subquery.
		q = q.wrap()
		q.distinct = true
		return q, nil
	case *expr.Sort:
		return compileSort(n, tables)
	case *expr.Head:
		q, err := compile(n.Child, tables)
		if err != nil {
			return nil, err
		}
		if q.limit >= 0 {
			q = q.wrap()
		}
		q.limit = n.N
		return q, nil
	case *expr.Reduction:
		return compileReduction(n, tables)
	case *expr.Join:
		return compileJoin(n, tables)
	}
	return nil, engine.Unsupportedf(e.Kind(), "no SQL translation for %s", e)
}

func compileSymbol(s *expr.Symbol, tables map[*expr.Symbol]string) (*query, error) {
	table, ok := tables[s]
	if !ok {
		return nil, engine.Unsupportedf(expr.KindSymbol, "symbol %s is not bound to a table", s.Name)
	}
	row, ok := shape.RowOf(s.Shape())
	if !ok {
		return nil, engine.Unsupportedf(expr.KindSymbol, "symbol %s is not a collection", s.Name)
	}
	rec, ok := shape.Unwrap(row).(shape.Record)
	if !ok {
		return nil, engine.Unsupportedf(expr.KindSymbol, "symbol %s has no record schema", s.Name)
	}
	names := rec.Names()
	selects := make([]string, len(names))
	for i, name := range names {
		selects[i] = quoteIdent(name)
	}
	return &query{
		selects: selects,
		cols:    names,
		from:    quoteIdent(table),
		// Base scans follow insertion order so results are stable
		// across SQLite versions.
		orderBy: []string{"rowid ASC"},
		limit:   -1,
	}, nil
}

// compileColumns narrows a child query to the named columns, in order.
func compileColumns(child expr.Expr, fields []string, tables map[*expr.Symbol]string) (*query, error) {
	q, err := compile(child, tables)
	if err != nil {
		return nil, err
	}
	if q.distinct || q.limit >= 0 {
		q = q.wrap()
	}
	selects := make([]string, len(fields))
	for i, f := range fields {
		idx := indexOf(q.cols, f)
		if idx < 0 {
			return nil, engine.Unsupportedf(expr.KindProjection, "no column %q in %s", f, child)
		}
		selects[i] = q.selects[idx]
	}
	q.selects = selects
	q.cols = append([]string(nil), fields...)
	return q, nil
}

func compileSelection(sel *expr.Selection, tables map[*expr.Symbol]string) (*query, error) {
	q, err := compile(sel.Child, tables)
	if err != nil {
		return nil, err
	}
	if q.distinct || q.limit >= 0 {
		q = q.wrap()
	}
	cols := make(map[string]bool, len(q.cols))
	for _, c := range q.cols {
		cols[c] = true
	}
	cond, params, err := compilePredicate(sel.Predicate, cols)
	if err != nil {
		return nil, err
	}
	q.where = append(q.where, cond)
	q.params = append(q.params, params...)
	return q, nil
}

func compileSort(s *expr.Sort, tables map[*expr.Symbol]string) (*query, error) {
	if s.KeyExpr != nil {
		return nil, engine.Unsupportedf(expr.KindSort, "sort by key expression %s has no SQL translation", s.KeyExpr)
	}
	q, err := compile(s.Child, tables)
	if err != nil {
		return nil, err
	}
	if q.limit >= 0 {
		q = q.wrap()
	}
	dir := "ASC"
	if !s.Ascending {
		dir = "DESC"
	}
	orderBy := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		if indexOf(q.cols, f) < 0 {
			return nil, engine.Unsupportedf(expr.KindSort, "no column %q in %s", f, s.Child)
		}
		orderBy[i] = quoteIdent(f) + " " + dir
	}
	q.orderBy = orderBy
	return q, nil
}

func compileReduction(r *expr.Reduction, tables map[*expr.Symbol]string) (*query, error) {
	var fn string
	switch r.Op {
	case expr.ReduceSum:
		fn = "SUM"
	case expr.ReduceMin:
		fn = "MIN"
	case expr.ReduceMax:
		fn = "MAX"
	case expr.ReduceCount:
		fn = "COUNT"
	case expr.ReduceMean:
		fn = "AVG"
	default:
		return nil, engine.Unsupportedf(expr.KindReduction, "reduction %s has no SQL translation", r.Op)
	}

	child, err := compile(r.Child, tables)
	if err != nil {
		return nil, err
	}
	if len(child.cols) != 1 {
		return nil, engine.Unsupportedf(expr.KindReduction, "%s reduces %d columns, want one", r.Op, len(child.cols))
	}
	name, ok := expr.NameOf(r)
	if !ok {
		name = string(r.Op)
	}
	q := child.wrap()
	q.selects = []string{fmt.Sprintf("%s(%s) AS %s", fn, quoteIdent(child.cols[0]), quoteIdent(name))}
	q.cols = []string{name}
	return q.wrap(), nil
}

func compileJoin(j *expr.Join, tables map[*expr.Symbol]string) (*query, error) {
	var kw string
	switch j.How {
	case expr.JoinInner:
		kw = "INNER JOIN"
	case expr.JoinLeft:
		kw = "LEFT JOIN"
	default:
		return nil, engine.Unsupportedf(expr.KindJoin, "%s join has no SQL translation", j.How)
	}

	l, err := compile(j.Lhs, tables)
	if err != nil {
		return nil, err
	}
	r, err := compile(j.Rhs, tables)
	if err != nil {
		return nil, err
	}

	on := make([]string, len(j.OnLeft))
	for i := range j.OnLeft {
		if indexOf(l.cols, j.OnLeft[i]) < 0 {
			return nil, engine.Unsupportedf(expr.KindJoin, "no column %q in %s", j.OnLeft[i], j.Lhs)
		}
		if indexOf(r.cols, j.OnRight[i]) < 0 {
			return nil, engine.Unsupportedf(expr.KindJoin, "no column %q in %s", j.OnRight[i], j.Rhs)
		}
		on[i] = fmt.Sprintf("l.%s = r.%s", quoteIdent(j.OnLeft[i]), quoteIdent(j.OnRight[i]))
	}

	// Key columns once, then left non-keys, then right non-keys,
	// matching the join's record schema.
	var selects, cols []string
	for _, k := range j.OnLeft {
		selects = append(selects, fmt.Sprintf("l.%s AS %s", quoteIdent(k), quoteIdent(k)))
		cols = append(cols, k)
	}
	for _, c := range l.cols {
		if indexOf(j.OnLeft, c) < 0 {
			selects = append(selects, fmt.Sprintf("l.%s AS %s", quoteIdent(c), quoteIdent(c)))
			cols = append(cols, c)
		}
	}
	for _, c := range r.cols {
		if indexOf(j.OnRight, c) < 0 {
			selects = append(selects, fmt.Sprintf("r.%s AS %s", quoteIdent(c), quoteIdent(c)))
			cols = append(cols, c)
		}
	}

	q := &query{
		selects: selects,
		cols:    cols,
		from: fmt.Sprintf("(%s) AS l %s (%s) AS r ON %s",
			l.render(), kw, r.render(), strings.Join(on, " AND ")),
		limit:  -1,
		params: append(append([]any(nil), l.params...), r.params...),
	}
	return q.wrap(), nil
}

// compilePredicate renders a fused broadcast predicate over the child's
// columns. Field references become column identifiers, literals become
// parameters.
func compilePredicate(p expr.Expr, cols map[string]bool) (string, []any, error) {
	switch n := p.(type) {
	case *expr.Field:
		if !cols[n.Name] {
			return "", nil, engine.Unsupportedf(expr.KindField, "no column %q in scope", n.Name)
		}
		return quoteIdent(n.Name), nil, nil

	case *expr.Literal:
		return "?", []any{n.Value}, nil

	case *expr.Broadcast:
		op, ok := sqlOp(n.Op)
		if !ok {
			return "", nil, engine.Unsupportedf(expr.KindBroadcast, "operator %s has no SQL translation", n.Op)
		}
		if n.Op.Arity() == 1 {
			s, params, err := compilePredicate(n.Operands[0], cols)
			if err != nil {
				return "", nil, err
			}
			return fmt.Sprintf("(%s %s)", op, s), params, nil
		}
		ls, lp, err := compilePredicate(n.Operands[0], cols)
		if err != nil {
			return "", nil, err
		}
		rs, rp, err := compilePredicate(n.Operands[1], cols)
		if err != nil {
			return "", nil, err
		}
		params := append(lp, rp...)
		if n.Op == expr.OpDiv {
			// True division even over integer columns.
			return fmt.Sprintf("(CAST(%s AS REAL) / %s)", ls, rs), params, nil
		}
		return fmt.Sprintf("(%s %s %s)", ls, op, rs), params, nil
	}
	return "", nil, engine.Unsupportedf(p.Kind(), "predicate %s has no SQL translation", p)
}

func sqlOp(op expr.Op) (string, bool) {
	switch op {
	case expr.OpAdd:
		return "+", true
	case expr.OpSub:
		return "-", true
	case expr.OpMul:
		return "*", true
	case expr.OpDiv:
		return "/", true
	case expr.OpMod:
		return "%", true
	case expr.OpEq:
		return "=", true
	case expr.OpNe:
		return "<>", true
	case expr.OpLt:
		return "<", true
	case expr.OpLe:
		return "<=", true
	case expr.OpGt:
		return ">", true
	case expr.OpGe:
		return ">=", true
	case expr.OpAnd:
		return "AND", true
	case expr.OpOr:
		return "OR", true
	case expr.OpNot:
		return "NOT", true
	case expr.OpNeg:
		return "-", true
	}
	return "", false
}

func (q *query) render() string {
	var b strings.Builder
	b.WriteString("SELECT ")
	if q.distinct {
		b.WriteString("DISTINCT ")
	}
	b.WriteString(strings.Join(q.selects, ", "))
	b.WriteString(" FROM ")
	b.WriteString(q.from)
	if len(q.where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(q.where, " AND "))
	}
	if len(q.orderBy) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(q.orderBy, ", "))
	}
	if q.limit >= 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.limit)
	}
	return b.String()
}

// wrap turns the query into the FROM clause of a fresh one, resetting
// every clause slot. The inner ORDER BY survives in the subquery text.
func (q *query) wrap() *query {
	selects := make([]string, len(q.cols))
	for i, c := range q.cols {
		selects[i] = quoteIdent(c)
	}
	return &query{
		selects: selects,
		cols:    append([]string(nil), q.cols...),
		from:    "(" + q.render() + ")",
		limit:   -1,
		params:  q.params,
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func indexOf(xs []string, x string) int {
	for i, v := range xs {
		if v == x {
			return i
		}
	}
	return -1
}
