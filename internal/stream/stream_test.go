package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tably/tably/internal/engine"
	"github.com/tably/tably/internal/expr"
	"github.com/tably/tably/internal/shape"
)

func accounts(t *testing.T) *expr.Symbol {
	t.Helper()
	return expr.MustTableSymbol("accounts", "{name: string, amount: int}")
}

func accountRows() []any {
	return []any{
		[]any{"Alice", int64(100)},
		[]any{"Bob", int64(-200)},
		[]any{"Charlie", int64(-300)},
	}
}

func compute(t *testing.T, e expr.Expr, bindings map[expr.Expr]any) any {
	t.Helper()
	v, err := NewEngine().Compute(e, bindings)
	require.NoError(t, err)
	return v
}

func computeOne(t *testing.T, e expr.Expr, data any) any {
	t.Helper()
	v, err := NewEngine().ComputeOne(e, data)
	require.NoError(t, err)
	return v
}

func tableRows(t *testing.T, v any) []any {
	t.Helper()
	ds, ok := v.(engine.Dataset)
	require.True(t, ok, "expected a dataset, got %T", v)
	rows, err := engine.Rows(ds)
	require.NoError(t, err)
	return rows
}

func numbers(t *testing.T) *expr.Symbol {
	t.Helper()
	return expr.MustSymbol("xs", shape.Collection{Dim: shape.VarDim, Elem: shape.Int})
}

func TestReductionsOverKnownSequence(t *testing.T) {
	xs := numbers(t)
	data := engine.NewTable(int64(1), int64(2), int64(3), int64(4))

	sum, err := expr.Sum(xs)
	require.NoError(t, err)
	assert.Equal(t, int64(10), computeOne(t, sum, data))

	mean, err := expr.Mean(xs)
	require.NoError(t, err)
	assert.Equal(t, 2.5, computeOne(t, mean, data))

	count, err := expr.Count(xs)
	require.NoError(t, err)
	assert.Equal(t, int64(4), computeOne(t, count, data))

	biased, err := expr.Var(xs, false)
	require.NoError(t, err)
	assert.Equal(t, 1.25, computeOne(t, biased, data))

	unbiased, err := expr.Var(xs, true)
	require.NoError(t, err)
	assert.InDelta(t, 5.0/3.0, computeOne(t, unbiased, data), 1e-12)

	minE, err := expr.Min(xs)
	require.NoError(t, err)
	assert.Equal(t, int64(1), computeOne(t, minE, data))

	maxE, err := expr.Max(xs)
	require.NoError(t, err)
	assert.Equal(t, int64(4), computeOne(t, maxE, data))
}

func TestReductionIsSinglePassOverStream(t *testing.T) {
	xs := numbers(t)
	pulls := 0
	src := engine.NewStream(func() (any, bool, error) {
		if pulls >= 4 {
			return nil, false, nil
		}
		pulls++
		return int64(pulls), true, nil
	})

	sum, err := expr.Sum(xs)
	require.NoError(t, err)
	assert.Equal(t, int64(10), computeOne(t, sum, src))
	assert.Equal(t, 4, pulls)
}

func TestNUniqueAndBoolReductions(t *testing.T) {
	xs := numbers(t)
	nu, err := expr.NUnique(xs)
	require.NoError(t, err)
	got := computeOne(t, nu, engine.NewTable(int64(1), int64(2), int64(1), int64(2)))
	assert.Equal(t, int64(2), got)

	bs := expr.MustSymbol("bs", shape.Collection{Dim: shape.VarDim, Elem: shape.Bool})
	anyE, err := expr.Any(bs)
	require.NoError(t, err)
	allE, err := expr.All(bs)
	require.NoError(t, err)
	data := engine.NewTable(true, false, true)
	assert.Equal(t, true, computeOne(t, anyE, data))
	assert.Equal(t, false, computeOne(t, allE, data))
}

func TestCountSkipsNil(t *testing.T) {
	opt := expr.MustSymbol("vals", shape.Collection{Dim: shape.VarDim, Elem: shape.Optional(shape.Int)})
	count, err := expr.Count(opt)
	require.NoError(t, err)
	got := computeOne(t, count, engine.NewTable(int64(1), nil, int64(3)))
	assert.Equal(t, int64(2), got)
}

func TestSelectionFiltersLazily(t *testing.T) {
	acc := accounts(t)
	amount := expr.MustField(acc, "amount")
	pred, err := expr.NewBroadcast(expr.OpLt, amount, expr.MustLiteral(int64(0)))
	require.NoError(t, err)
	sel, err := expr.NewSelection(acc, pred)
	require.NoError(t, err)
	name, err := expr.NewProjection(sel, "name")
	require.NoError(t, err)

	v := computeOne(t, name, engine.StreamOf(accountRows()...))
	_, isStream := v.(*engine.Stream)
	assert.True(t, isStream, "lazy in, lazy out")
	assert.Equal(t, []any{[]any{"Bob"}, []any{"Charlie"}}, tableRows(t, v))
}

func TestProjectionAndFieldOverTable(t *testing.T) {
	acc := accounts(t)
	amount := expr.MustField(acc, "amount")

	v := computeOne(t, amount, engine.NewTable(accountRows()...))
	assert.Equal(t, []any{int64(100), int64(-200), int64(-300)}, tableRows(t, v))
}

func TestBroadcastColumnArithmetic(t *testing.T) {
	acc := accounts(t)
	doubled, err := expr.NewBroadcast(expr.OpMul, expr.MustField(acc, "amount"), expr.MustLiteral(int64(2)))
	require.NoError(t, err)

	v := computeOne(t, doubled, engine.NewTable(accountRows()...))
	assert.Equal(t, []any{int64(200), int64(-400), int64(-600)}, tableRows(t, v))
}

func TestScalarBroadcast(t *testing.T) {
	xs := numbers(t)
	total, err := expr.Sum(xs)
	require.NoError(t, err)
	shifted, err := expr.NewBroadcast(expr.OpAdd, total, expr.MustLiteral(int64(5)))
	require.NoError(t, err)

	got := computeOne(t, shifted, engine.NewTable(int64(1), int64(2)))
	assert.Equal(t, int64(8), got)
}

func TestByFoldsCombinerReductions(t *testing.T) {
	acc := accounts(t)
	data := engine.NewTable(
		[]any{"Alice", int64(100)},
		[]any{"Bob", int64(200)},
		[]any{"Alice", int64(50)},
	)
	total, err := expr.Sum(expr.MustField(acc, "amount"))
	require.NoError(t, err)
	by, err := expr.NewBy(expr.MustField(acc, "name"), total)
	require.NoError(t, err)

	v := computeOne(t, by, data)
	assert.ElementsMatch(t, []any{
		[]any{"Alice", int64(150)},
		[]any{"Bob", int64(200)},
	}, tableRows(t, v))
}

func TestByFallsBackForMean(t *testing.T) {
	acc := accounts(t)
	data := engine.NewTable(
		[]any{"Alice", int64(100)},
		[]any{"Bob", int64(200)},
		[]any{"Alice", int64(50)},
	)
	mean, err := expr.Mean(expr.MustField(acc, "amount"))
	require.NoError(t, err)
	by, err := expr.NewBy(expr.MustField(acc, "name"), mean)
	require.NoError(t, err)

	v := computeOne(t, by, data)
	assert.ElementsMatch(t, []any{
		[]any{"Alice", 75.0},
		[]any{"Bob", 200.0},
	}, tableRows(t, v))
}

func TestByOverDerivedChildFallsBack(t *testing.T) {
	// The group rows bind to the filtered table, not to a symbol; the
	// per-group evaluation must accept that binding as covering the
	// underlying leaf.
	acc := accounts(t)
	pred, err := expr.NewBroadcast(expr.OpGt, expr.MustField(acc, "amount"), expr.MustLiteral(int64(0)))
	require.NoError(t, err)
	sel, err := expr.NewSelection(acc, pred)
	require.NoError(t, err)

	data := engine.NewTable(
		[]any{"Alice", int64(100)},
		[]any{"Alice", int64(50)},
		[]any{"Bob", int64(200)},
		[]any{"Charlie", int64(-300)},
	)

	nu, err := expr.NUnique(expr.MustField(sel, "amount"))
	require.NoError(t, err)
	by, err := expr.NewBy(expr.MustField(sel, "name"), nu)
	require.NoError(t, err)
	v := computeOne(t, by, data)
	assert.ElementsMatch(t, []any{
		[]any{"Alice", int64(2)},
		[]any{"Bob", int64(1)},
	}, tableRows(t, v))

	mean, err := expr.Mean(expr.MustField(sel, "amount"))
	require.NoError(t, err)
	by, err = expr.NewBy(expr.MustField(sel, "name"), mean)
	require.NoError(t, err)
	v = computeOne(t, by, data)
	assert.ElementsMatch(t, []any{
		[]any{"Alice", 75.0},
		[]any{"Bob", 200.0},
	}, tableRows(t, v))
}

func TestBySummaryApply(t *testing.T) {
	acc := accounts(t)
	amount := expr.MustField(acc, "amount")
	total, err := expr.Sum(amount)
	require.NoError(t, err)
	cnt, err := expr.Count(amount)
	require.NoError(t, err)
	summary, err := expr.NewSummary(
		expr.SummaryField{Name: "total", Value: total},
		expr.SummaryField{Name: "count", Value: cnt},
	)
	require.NoError(t, err)
	by, err := expr.NewBy(expr.MustField(acc, "name"), summary)
	require.NoError(t, err)

	// Summary fields are sorted by name: count before total.
	v := computeOne(t, by, engine.NewTable(
		[]any{"Alice", int64(100)},
		[]any{"Alice", int64(50)},
	))
	assert.Equal(t, []any{[]any{"Alice", int64(2), int64(150)}}, tableRows(t, v))
}

func TestSummaryEvaluatesTogether(t *testing.T) {
	acc := accounts(t)
	amount := expr.MustField(acc, "amount")
	total, err := expr.Sum(amount)
	require.NoError(t, err)
	avg, err := expr.Mean(amount)
	require.NoError(t, err)
	summary, err := expr.NewSummary(
		expr.SummaryField{Name: "total", Value: total},
		expr.SummaryField{Name: "avg", Value: avg},
	)
	require.NoError(t, err)

	got := computeOne(t, summary, engine.StreamOf(accountRows()...))
	// avg sorts before total.
	assert.Equal(t, []any{-400.0 / 3.0, int64(-400)}, got)
}

func TestSortByFieldAndDirection(t *testing.T) {
	acc := accounts(t)
	asc, err := expr.NewSort(acc, true, "amount")
	require.NoError(t, err)
	v := computeOne(t, asc, engine.NewTable(accountRows()...))
	assert.Equal(t, []any{
		[]any{"Charlie", int64(-300)},
		[]any{"Bob", int64(-200)},
		[]any{"Alice", int64(100)},
	}, tableRows(t, v))

	desc, err := expr.NewSort(acc, false, "amount")
	require.NoError(t, err)
	v = computeOne(t, desc, engine.NewTable(accountRows()...))
	assert.Equal(t, []any{
		[]any{"Alice", int64(100)},
		[]any{"Bob", int64(-200)},
		[]any{"Charlie", int64(-300)},
	}, tableRows(t, v))
}

func TestSortByKeyExpression(t *testing.T) {
	acc := accounts(t)
	negated, err := expr.NewBroadcast(expr.OpNeg, expr.MustField(acc, "amount"))
	require.NoError(t, err)
	s, err := expr.NewSortBy(acc, negated, true)
	require.NoError(t, err)

	v := computeOne(t, s, engine.NewTable(accountRows()...))
	assert.Equal(t, []any{
		[]any{"Alice", int64(100)},
		[]any{"Bob", int64(-200)},
		[]any{"Charlie", int64(-300)},
	}, tableRows(t, v))
}

func TestHeadSmallCountMaterializes(t *testing.T) {
	acc := accounts(t)
	head, err := expr.NewHead(acc, 2)
	require.NoError(t, err)

	v := computeOne(t, head, engine.StreamOf(accountRows()...))
	_, isTable := v.(*engine.Table)
	assert.True(t, isTable, "small heads are eager")
	assert.Len(t, tableRows(t, v), 2)
}

func TestHeadLargeCountStaysLazy(t *testing.T) {
	acc := accounts(t)
	head, err := expr.NewHead(acc, 1000)
	require.NoError(t, err)

	v := computeOne(t, head, engine.StreamOf(accountRows()...))
	_, isStream := v.(*engine.Stream)
	assert.True(t, isStream)
	assert.Len(t, tableRows(t, v), 3)
}

func TestDistinctRemovesDuplicatesAndIsIdempotent(t *testing.T) {
	acc := accounts(t)
	d1, err := expr.NewDistinct(acc)
	require.NoError(t, err)
	d2, err := expr.NewDistinct(d1)
	require.NoError(t, err)

	dup := append(accountRows(), []any{"Alice", int64(100)})
	v1 := computeOne(t, d1, engine.StreamOf(dup...))
	assert.Equal(t, accountRows(), tableRows(t, v1))

	v2 := computeOne(t, d2, engine.StreamOf(dup...))
	assert.Equal(t, accountRows(), tableRows(t, v2))
}

func TestDistinctEmptyStream(t *testing.T) {
	acc := accounts(t)
	d, err := expr.NewDistinct(acc)
	require.NoError(t, err)
	v := computeOne(t, d, engine.StreamOf())
	assert.Empty(t, tableRows(t, v))
}

func TestLikeGlobs(t *testing.T) {
	acc := accounts(t)
	like, err := expr.NewLike(acc, map[string]string{"name": "Ali*"})
	require.NoError(t, err)

	v := computeOne(t, like, engine.NewTable(accountRows()...))
	assert.Equal(t, []any{[]any{"Alice", int64(100)}}, tableRows(t, v))

	q, err := expr.NewLike(acc, map[string]string{"name": "?ob"})
	require.NoError(t, err)
	v = computeOne(t, q, engine.NewTable(accountRows()...))
	assert.Equal(t, []any{[]any{"Bob", int64(-200)}}, tableRows(t, v))
}

func TestUnionConcatenatesWithoutDedup(t *testing.T) {
	a := expr.MustTableSymbol("a", "{x: int}")
	b := expr.MustTableSymbol("b", "{x: int}")
	u, err := expr.NewUnion(a, b)
	require.NoError(t, err)

	v := compute(t, u, map[expr.Expr]any{
		a: engine.StreamOf([]any{int64(1)}, []any{int64(2)}),
		b: engine.NewTable([]any{int64(2)}),
	})
	assert.Equal(t, []any{
		[]any{int64(1)}, []any{int64(2)}, []any{int64(2)},
	}, tableRows(t, v))
}

func TestSliceAtAndRange(t *testing.T) {
	acc := accounts(t)
	at, err := expr.NewSliceAt(acc, 1)
	require.NoError(t, err)
	assert.Equal(t, []any{"Bob", int64(-200)}, computeOne(t, at, engine.StreamOf(accountRows()...)))

	rng, err := expr.NewSliceRange(acc, 1, 3)
	require.NoError(t, err)
	v := computeOne(t, rng, engine.StreamOf(accountRows()...))
	assert.Equal(t, []any{
		[]any{"Bob", int64(-200)},
		[]any{"Charlie", int64(-300)},
	}, tableRows(t, v))
}

func TestSliceIndexOutOfRange(t *testing.T) {
	acc := accounts(t)
	at, err := expr.NewSliceAt(acc, 9)
	require.NoError(t, err)

	_, err = NewEngine().ComputeOne(at, engine.NewTable(accountRows()...))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
	// An in-range shape compiled fine; running past the data is an
	// evaluation error, not an unsupported operation.
	assert.False(t, engine.IsUnsupportedOperationError(err))
}

func TestApplyOpaqueFunction(t *testing.T) {
	acc := accounts(t)
	rowCount, err := expr.NewApply(acc, func(data any) any {
		return int64(len(data.([]any)))
	}, shape.Int, "rowcount")
	require.NoError(t, err)

	assert.Equal(t, int64(3), computeOne(t, rowCount, engine.NewTable(accountRows()...)))
}

func TestInnerJoin(t *testing.T) {
	names := expr.MustTableSymbol("names", "{id: int, name: string}")
	amounts := expr.MustTableSymbol("amounts", "{id: int, amount: int}")
	j, err := expr.NewJoin(names, amounts, nil, nil, expr.JoinInner)
	require.NoError(t, err)

	v := compute(t, j, map[expr.Expr]any{
		names: engine.NewTable(
			[]any{int64(1), "Alice"},
			[]any{int64(2), "Bob"},
		),
		amounts: engine.StreamOf(
			[]any{int64(1), int64(100)},
			[]any{int64(3), int64(300)},
		),
	})
	assert.Equal(t, []any{[]any{int64(1), "Alice", int64(100)}}, tableRows(t, v))
}

func TestOuterJoinNilFills(t *testing.T) {
	names := expr.MustTableSymbol("names", "{id: int, name: string}")
	amounts := expr.MustTableSymbol("amounts", "{id: int, amount: int}")
	j, err := expr.NewJoin(names, amounts, nil, nil, expr.JoinOuter)
	require.NoError(t, err)

	v := compute(t, j, map[expr.Expr]any{
		names: engine.NewTable(
			[]any{int64(1), "Alice"},
			[]any{int64(2), "Bob"},
		),
		amounts: engine.NewTable(
			[]any{int64(1), int64(100)},
			[]any{int64(3), int64(300)},
		),
	})
	assert.ElementsMatch(t, []any{
		[]any{int64(1), "Alice", int64(100)},
		[]any{int64(2), "Bob", nil},
		[]any{int64(3), nil, int64(300)},
	}, tableRows(t, v))
}

func TestLeftAndRightJoins(t *testing.T) {
	names := expr.MustTableSymbol("names", "{id: int, name: string}")
	amounts := expr.MustTableSymbol("amounts", "{id: int, amount: int}")
	bindings := func() map[expr.Expr]any {
		return map[expr.Expr]any{
			names:   engine.NewTable([]any{int64(1), "Alice"}, []any{int64(2), "Bob"}),
			amounts: engine.NewTable([]any{int64(1), int64(100)}, []any{int64(3), int64(300)}),
		}
	}

	left, err := expr.NewJoin(names, amounts, nil, nil, expr.JoinLeft)
	require.NoError(t, err)
	v := compute(t, left, bindings())
	assert.ElementsMatch(t, []any{
		[]any{int64(1), "Alice", int64(100)},
		[]any{int64(2), "Bob", nil},
	}, tableRows(t, v))

	right, err := expr.NewJoin(names, amounts, nil, nil, expr.JoinRight)
	require.NoError(t, err)
	v = compute(t, right, bindings())
	assert.ElementsMatch(t, []any{
		[]any{int64(1), "Alice", int64(100)},
		[]any{int64(3), nil, int64(300)},
	}, tableRows(t, v))
}

func TestSelfJoinOnSingleStream(t *testing.T) {
	acc := accounts(t)
	// Joining a stream with itself duplicates the one bound iterator.
	j, err := expr.NewJoin(acc, acc, []string{"name", "amount"}, nil, expr.JoinInner)
	require.NoError(t, err)

	v := computeOne(t, j, engine.StreamOf(accountRows()...))
	assert.Equal(t, accountRows(), tableRows(t, v), "each row matches itself")
}

func TestFusionEquivalence(t *testing.T) {
	// A fused pipeline and its step-by-step evaluation agree.
	acc := accounts(t)
	doubled, err := expr.NewBroadcast(expr.OpMul, expr.MustField(acc, "amount"), expr.MustLiteral(int64(2)))
	require.NoError(t, err)
	pred, err := expr.NewBroadcast(expr.OpGt, doubled, expr.MustLiteral(int64(-500)))
	require.NoError(t, err)
	sel, err := expr.NewSelection(acc, pred)
	require.NoError(t, err)
	proj, err := expr.NewProjection(sel, "name")
	require.NoError(t, err)

	fused := tableRows(t, computeOne(t, proj, engine.StreamOf(accountRows()...)))

	var manual []any
	for _, r := range accountRows() {
		row := r.([]any)
		if row[1].(int64)*2 > -500 {
			manual = append(manual, []any{row[0]})
		}
	}
	assert.Equal(t, manual, fused)
}

func TestDispatchErrorSurfacesForUnregisteredKind(t *testing.T) {
	r := engine.NewRegistry()
	require.NoError(t, Register(r))
	g := engine.New(r)

	acc := accounts(t)
	// A scalar bound where a sequence is declared classifies as Scalar
	// and matches no sequence handler.
	head, err := expr.NewHead(acc, 1)
	require.NoError(t, err)
	_, err = g.Compute(head, map[expr.Expr]any{acc: "not a dataset"})
	require.Error(t, err)
	assert.True(t, engine.IsDispatchError(err))
}
